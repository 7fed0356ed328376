package httpserver

import (
	"net/http"

	"keikkaduuni/internal/domain"
	"keikkaduuni/internal/service"
	"keikkaduuni/internal/wire"
)

// @Summary      Request a booking
// @Tags         bookings
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        input body wire.CreateBookingRequest true "Booking"
// @Success      201  {object}  wire.Booking
// @Failure      400  {object}  errorBody
// @Failure      404  {object}  errorBody
// @Router       /bookings [post]
func handleCreateBooking(bookingSvc *service.BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req wire.CreateBookingRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		b, err := bookingSvc.Create(r.Context(), CurrentUser(r).ID, service.BookingCreateInput{
			ServiceID: req.ServiceID,
			Message:   req.Message,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, wire.FromBooking(b))
	}
}

// @Summary      List bookings
// @Description  Bookings the caller made or received.
// @Tags         bookings
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}  wire.Booking
// @Router       /bookings [get]
func handleListBookings(bookingSvc *service.BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookings, err := bookingSvc.List(r.Context(), CurrentUser(r).ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		res := make([]*wire.Booking, 0, len(bookings))
		for _, b := range bookings {
			res = append(res, wire.FromBooking(b))
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// @Summary      Approve or reject a booking
// @Tags         bookings
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id     path  int                 true  "Booking ID"
// @Param        input  body  wire.StatusRequest  true  "New status"
// @Success      200  {object}  wire.Booking
// @Failure      400  {object}  errorBody
// @Failure      403  {object}  errorBody
// @Router       /bookings/{id}/status [patch]
func handleBookingStatus(bookingSvc *service.BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req wire.StatusRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		b, err := bookingSvc.UpdateStatus(r.Context(), id, CurrentUser(r).ID, domain.RequestStatus(req.Status))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, wire.FromBooking(b))
	}
}

// @Summary      Mark a booking read
// @Tags         bookings
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Booking ID"
// @Success      200  {object}  wire.Booking
// @Failure      403  {object}  errorBody
// @Router       /bookings/{id}/read [patch]
func handleBookingRead(bookingSvc *service.BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		b, err := bookingSvc.MarkRead(r.Context(), id, CurrentUser(r).ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, wire.FromBooking(b))
	}
}

// @Summary      Pay for a booking
// @Description  Marks an approved booking paid, opens the conversation with the service owner and notifies them. Safe to repeat.
// @Tags         bookings
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Booking ID"
// @Success      200  {object}  wire.PaymentResult
// @Failure      400  {object}  errorBody
// @Failure      403  {object}  errorBody
// @Router       /bookings/{id}/pay [post]
func handlePayBooking(bookingSvc *service.BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		res, err := bookingSvc.Pay(r.Context(), id, CurrentUser(r).ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, wire.PaymentResult{
			Booking:        wire.FromBooking(res.Booking),
			ConversationID: res.Conversation.ID,
			Changed:        res.Changed,
		})
	}
}

// @Summary      Delete a booking
// @Tags         bookings
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Booking ID"
// @Success      200  {object}  wire.Deleted
// @Failure      403  {object}  errorBody
// @Router       /bookings/{id} [delete]
func handleDeleteBooking(bookingSvc *service.BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := bookingSvc.Delete(r.Context(), id, CurrentUser(r).ID); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, wire.Deleted{ID: id})
	}
}
