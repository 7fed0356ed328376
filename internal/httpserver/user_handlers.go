package httpserver

import (
	"net/http"

	"keikkaduuni/internal/domain"
	"keikkaduuni/internal/service"
	"keikkaduuni/internal/wire"
)

// @Summary      Get a user's public profile
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "User ID"
// @Success      200  {object}  wire.User
// @Failure      404  {object}  errorBody
// @Router       /users/{id} [get]
func handleGetUser(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		user, err := userSvc.GetByID(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, wire.FromUser(user, user.ID == CurrentUser(r).ID))
	}
}

// @Summary      Create a listing
// @Description  POST /services creates a service, POST /tarpeet a need
// @Tags         listings
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        input body wire.CreateListingRequest true "Listing"
// @Success      201  {object}  wire.Listing
// @Failure      400  {object}  errorBody
// @Router       /services [post]
// @Router       /tarpeet [post]
func handleCreateListing(userSvc *service.UserService, kind domain.ListingKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req wire.CreateListingRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		l, err := userSvc.CreateListing(r.Context(), CurrentUser(r).ID, kind, req.Title)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, wire.FromListing(l))
	}
}

// @Summary      Get a listing
// @Tags         listings
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Listing ID"
// @Success      200  {object}  wire.Listing
// @Failure      404  {object}  errorBody
// @Router       /services/{id} [get]
// @Router       /tarpeet/{id} [get]
func handleGetListing(userSvc *service.UserService, kind domain.ListingKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		l, err := userSvc.GetListing(r.Context(), kind, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, wire.FromListing(l))
	}
}
