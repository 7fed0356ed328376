package httpserver

import (
	"net/http"

	"keikkaduuni/internal/domain"
	"keikkaduuni/internal/service"
	"keikkaduuni/internal/wire"
)

// @Summary      Make an offer on a need
// @Tags         offers
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        input body wire.CreateOfferRequest true "Offer"
// @Success      201  {object}  wire.Offer
// @Failure      400  {object}  errorBody
// @Failure      404  {object}  errorBody
// @Router       /offers [post]
func handleCreateOffer(offerSvc *service.OfferService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req wire.CreateOfferRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		o, err := offerSvc.Create(r.Context(), CurrentUser(r).ID, service.OfferCreateInput{
			TarveID: req.TarveID,
			Message: req.Message,
			Price:   req.Price,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, wire.FromOffer(o))
	}
}

// @Summary      List offers
// @Description  Offers the caller made or received.
// @Tags         offers
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}  wire.Offer
// @Router       /offers [get]
func handleListOffers(offerSvc *service.OfferService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offers, err := offerSvc.List(r.Context(), CurrentUser(r).ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		res := make([]*wire.Offer, 0, len(offers))
		for _, o := range offers {
			res = append(res, wire.FromOffer(o))
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// @Summary      Accept or reject an offer
// @Tags         offers
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id     path  int                 true  "Offer ID"
// @Param        input  body  wire.StatusRequest  true  "New status"
// @Success      200  {object}  wire.Offer
// @Failure      400  {object}  errorBody
// @Failure      403  {object}  errorBody
// @Router       /offers/{id}/status [patch]
func handleOfferStatus(offerSvc *service.OfferService) http.HandlerFunc {
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
		o, err := offerSvc.UpdateStatus(r.Context(), id, CurrentUser(r).ID, domain.RequestStatus(req.Status))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, wire.FromOffer(o))
	}
}

// @Summary      Mark an offer read
// @Tags         offers
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Offer ID"
// @Success      200  {object}  wire.Offer
// @Failure      403  {object}  errorBody
// @Router       /offers/{id}/read [patch]
func handleOfferRead(offerSvc *service.OfferService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		o, err := offerSvc.MarkRead(r.Context(), id, CurrentUser(r).ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, wire.FromOffer(o))
	}
}

// @Summary      Delete an offer
// @Tags         offers
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Offer ID"
// @Success      200  {object}  wire.Deleted
// @Failure      403  {object}  errorBody
// @Router       /offers/{id} [delete]
func handleDeleteOffer(offerSvc *service.OfferService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := offerSvc.Delete(r.Context(), id, CurrentUser(r).ID); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, wire.Deleted{ID: id})
	}
}
