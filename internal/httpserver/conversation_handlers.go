package httpserver

import (
	"net/http"

	"keikkaduuni/internal/domain"
	"keikkaduuni/internal/service"
	"keikkaduuni/internal/wire"
)

// @Summary      Get or create a conversation
// @Description  Returns the conversation between the caller and otherUserId about exactly one listing, creating it when missing.
// @Tags         conversations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        input body wire.CreateConversationRequest true "Other user and listing"
// @Success      200  {object}  wire.CreateConversationResponse "message is \"exists\""
// @Success      201  {object}  wire.CreateConversationResponse "message is \"created\""
// @Failure      400  {object}  errorBody
// @Failure      404  {object}  errorBody
// @Router       /conversations [post]
func handleCreateConversation(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req wire.CreateConversationRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		conv, created, err := convSvc.GetOrCreate(r.Context(), CurrentUser(r).ID, service.GetOrCreateInput{
			OtherUserID: req.OtherUserID,
			Listing:     domain.ListingRef{ServiceID: req.ServiceID, TarveID: req.TarveID},
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		if created {
			writeJSON(w, http.StatusCreated, wire.CreateConversationResponse{Message: "created", Conversation: conv})
			return
		}
		writeJSON(w, http.StatusOK, wire.CreateConversationResponse{Message: "exists", Conversation: conv})
	}
}

// @Summary      List conversations
// @Description  Conversations the caller has not hidden, newest activity first, each with isUnread for the caller.
// @Tags         conversations
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}   wire.Conversation
// @Router       /conversations [get]
func handleListConversations(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		convs, err := convSvc.List(r.Context(), CurrentUser(r).ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, convs)
	}
}

// @Summary      Get a conversation
// @Tags         conversations
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Conversation ID"
// @Success      200  {object}  wire.Conversation
// @Failure      403  {object}  errorBody
// @Failure      404  {object}  errorBody
// @Router       /conversations/{id} [get]
func handleGetConversation(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		conv, err := convSvc.Get(r.Context(), id, CurrentUser(r).ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	}
}

// @Summary      Mark a conversation read
// @Tags         conversations
// @Security     BearerAuth
// @Param        id   path      int  true  "Conversation ID"
// @Success      204
// @Failure      404  {object}  errorBody
// @Router       /conversations/{id}/read [patch]
func handleMarkConversationRead(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := convSvc.MarkRead(r.Context(), id, CurrentUser(r).ID); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// @Summary      Hide a conversation
// @Description  Hides the conversation for the caller only. It reappears when a new message arrives.
// @Tags         conversations
// @Security     BearerAuth
// @Param        id   path      int  true  "Conversation ID"
// @Success      204
// @Failure      403  {object}  errorBody
// @Failure      404  {object}  errorBody
// @Router       /conversations/{id} [delete]
func handleDeleteConversation(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := convSvc.SoftDelete(r.Context(), id, CurrentUser(r).ID); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
