// Package chatclient keeps a client's view of conversations in sync with the
// server by combining websocket pushes with periodic polling.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"keikkaduuni/internal/wire"
)

// ErrUnauthorized is returned when the server rejects the token.
var ErrUnauthorized = errors.New("unauthorized")

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// Attachment is a file sent with a message.
type Attachment struct {
	Name string
	Data []byte
}

// API is a REST client for the /api surface.
type API struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewAPI returns a client for baseURL (e.g. http://localhost:5001).
// hc may be nil.
func NewAPI(baseURL, token string, hc *http.Client) *API {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &API{baseURL: strings.TrimRight(baseURL, "/"), token: token, http: hc}
}

func (a *API) Me(ctx context.Context) (*wire.User, error) {
	var u wire.User
	if err := a.do(ctx, http.MethodGet, "/api/auth/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (a *API) Conversations(ctx context.Context) ([]wire.Conversation, error) {
	var res []wire.Conversation
	if err := a.do(ctx, http.MethodGet, "/api/conversations", nil, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func (a *API) Messages(ctx context.Context, conversationID int64, page, pageSize int) (*wire.MessagePage, error) {
	q := url.Values{}
	q.Set("page", fmt.Sprint(page))
	q.Set("pageSize", fmt.Sprint(pageSize))
	var res wire.MessagePage
	path := fmt.Sprintf("/api/messages/%d?%s", conversationID, q.Encode())
	if err := a.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SendMessage posts JSON when there are no files and multipart otherwise.
func (a *API) SendMessage(ctx context.Context, conversationID int64, content string, files []Attachment) (*wire.Message, error) {
	path := fmt.Sprintf("/api/messages/%d", conversationID)
	var res wire.Message
	if len(files) == 0 {
		if err := a.do(ctx, http.MethodPost, path, map[string]string{"content": content}, &res); err != nil {
			return nil, err
		}
		return &res, nil
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("content", content); err != nil {
		return nil, err
	}
	for _, f := range files {
		fw, err := mw.CreateFormFile("files[]", f.Name)
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write(f.Data); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := a.newRequest(ctx, http.MethodPost, path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if err := a.send(req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (a *API) MarkConversationRead(ctx context.Context, conversationID int64) error {
	return a.do(ctx, http.MethodPatch, fmt.Sprintf("/api/conversations/%d/read", conversationID), nil, nil)
}

func (a *API) Bookings(ctx context.Context) ([]wire.Booking, error) {
	var res []wire.Booking
	if err := a.do(ctx, http.MethodGet, "/api/bookings", nil, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func (a *API) Offers(ctx context.Context) ([]wire.Offer, error) {
	var res []wire.Offer
	if err := a.do(ctx, http.MethodGet, "/api/offers", nil, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func (a *API) MarkBookingRead(ctx context.Context, id int64) error {
	return a.do(ctx, http.MethodPatch, fmt.Sprintf("/api/bookings/%d/read", id), nil, nil)
}

func (a *API) MarkOfferRead(ctx context.Context, id int64) error {
	return a.do(ctx, http.MethodPatch, fmt.Sprintf("/api/offers/%d/read", id), nil, nil)
}

func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := a.newRequest(ctx, method, path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return a.send(req, out)
}

func (a *API) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (a *API) send(req *http.Request, out any) error {
	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return &APIError{Status: resp.StatusCode, Message: body.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", req.URL.Path, err)
	}
	return nil
}
