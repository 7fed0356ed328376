package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"keikkaduuni/internal/config"
	"keikkaduuni/internal/domain"
	"keikkaduuni/internal/service"
	"keikkaduuni/internal/wire"
)

type messageCreateRequest struct {
	Content     string   `json:"content"`
	Attachments []string `json:"attachments"`
}

// @Summary      Send a message
// @Description  Accepts multipart/form-data with "content" and "files[]", or a JSON body.
// @Tags         messages
// @Security     BearerAuth
// @Accept       multipart/form-data
// @Accept       json
// @Produce      json
// @Param        id       path      int     true   "Conversation ID"
// @Param        content  formData  string  false  "Message text"
// @Param        files[]  formData  file    false  "Attachments"
// @Success      201  {object}  wire.Message
// @Failure      400  {object}  errorBody
// @Failure      403  {object}  errorBody
// @Failure      404  {object}  errorBody
// @Router       /messages/{id} [post]
func handleCreateMessage(msgSvc *service.MessageService, cfg *config.Config) http.HandlerFunc {
	maxBody := int64(cfg.MaxUploadMB) << 20
	return func(w http.ResponseWriter, r *http.Request) {
		convID, err := idParam(r)
		if err != nil {
			writeError(w, r, err)
			return
		}

		in := service.MessageCreateInput{ConversationID: convID}
		var saved []string
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			r.Body = http.MaxBytesReader(w, r.Body, maxBody)
			if err := r.ParseMultipartForm(maxBody); err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					writeError(w, r, domain.NewValidationError("files", "upload too large"))
					return
				}
				writeError(w, r, domain.NewValidationError("body", "failed to parse multipart form"))
				return
			}
			defer r.MultipartForm.RemoveAll()

			in.Content = r.FormValue("content")
			files := append(r.MultipartForm.File["files[]"], r.MultipartForm.File["files"]...)
			if len(files) > service.MaxAttachments {
				writeError(w, r, domain.NewValidationError("files", "too many attachments"))
				return
			}
			urls, paths, err := saveUploads(cfg.UploadDir, files)
			if err != nil {
				writeError(w, r, err)
				return
			}
			in.Attachments, saved = urls, paths
		} else {
			var req messageCreateRequest
			if err := decodeJSON(r, &req); err != nil {
				writeError(w, r, err)
				return
			}
			in.Content, in.Attachments = req.Content, req.Attachments
		}

		msg, err := msgSvc.Create(r.Context(), CurrentUser(r).ID, in)
		if err != nil {
			removeUploads(saved)
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	}
}

// @Summary      List messages
// @Description  One page of history, newest page first and oldest-first within the page.
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Param        id        path   int  true   "Conversation ID"
// @Param        page      query  int  false  "Page, from 1"
// @Param        pageSize  query  int  false  "Page size, at most 100"
// @Success      200  {object}  wire.MessagePage
// @Failure      403  {object}  errorBody
// @Failure      404  {object}  errorBody
// @Router       /messages/{id} [get]
func handleListMessages(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		convID, err := idParam(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		q := r.URL.Query()
		page, _ := strconv.Atoi(q.Get("page"))
		pageSize, _ := strconv.Atoi(q.Get("pageSize"))

		res, err := msgSvc.List(r.Context(), convID, CurrentUser(r).ID, page, pageSize)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// @Summary      Delete a message
// @Description  Only the sender can delete a message.
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Message ID"
// @Success      200  {object}  wire.Deleted
// @Failure      403  {object}  errorBody
// @Failure      404  {object}  errorBody
// @Router       /messages/{id} [delete]
func handleDeleteMessage(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := msgSvc.Delete(r.Context(), id, CurrentUser(r).ID); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, wire.Deleted{ID: id})
	}
}
