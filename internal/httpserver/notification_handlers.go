package httpserver

import (
	"net/http"

	"keikkaduuni/internal/service"
	"keikkaduuni/internal/wire"
)

// @Summary      List notifications
// @Tags         notifications
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}  wire.Notification
// @Router       /notifications [get]
func handleListNotifications(notificationSvc *service.NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := notificationSvc.List(r.Context(), CurrentUser(r).ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		res := make([]*wire.Notification, 0, len(list))
		for _, n := range list {
			res = append(res, wire.FromNotification(n))
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// @Summary      Mark a notification read
// @Tags         notifications
// @Security     BearerAuth
// @Param        id   path  int  true  "Notification ID"
// @Success      204
// @Failure      404  {object}  errorBody
// @Router       /notifications/{id}/read [patch]
func handleNotificationRead(notificationSvc *service.NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := notificationSvc.MarkRead(r.Context(), id, CurrentUser(r).ID); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
