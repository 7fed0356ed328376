package httpserver

import (
	"net/http"

	"keikkaduuni/internal/service"
	"keikkaduuni/internal/wire"
)

// @Summary      Register a new user
// @Description  Register a new user and return an access token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        input body wire.RegisterRequest true "Register input"
// @Success      201  {object}  wire.TokenResponse
// @Failure      400  {object}  errorBody
// @Failure      409  {object}  errorBody
// @Router       /auth/register [post]
func handleRegister(authSvc *service.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req wire.RegisterRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		if _, err := authSvc.Register(r.Context(), service.RegisterInput{
			Name:     req.Name,
			Email:    req.Email,
			Password: req.Password,
		}); err != nil {
			writeError(w, r, err)
			return
		}

		// Auto-login after registration
		resp, err := authSvc.Login(r.Context(), service.LoginInput{
			Email:    req.Email,
			Password: req.Password,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toTokenResponse(resp))
	}
}

// @Summary      Login
// @Description  Login with email and password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        input body wire.LoginRequest true "Login input"
// @Success      200  {object}  wire.TokenResponse
// @Failure      400  {object}  errorBody
// @Failure      401  {object}  errorBody
// @Router       /auth/login [post]
func handleLogin(authSvc *service.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req wire.LoginRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		resp, err := authSvc.Login(r.Context(), service.LoginInput{
			Email:    req.Email,
			Password: req.Password,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toTokenResponse(resp))
	}
}

// @Summary      Get Current User
// @Description  Get currently logged in user details
// @Tags         auth
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  wire.User
// @Failure      401  {object}  errorBody
// @Router       /auth/me [get]
func handleMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, wire.FromUser(CurrentUser(r), true))
	}
}

func toTokenResponse(resp *service.TokenResponse) wire.TokenResponse {
	return wire.TokenResponse{
		AccessToken: resp.AccessToken,
		TokenType:   resp.TokenType,
		User:        wire.FromUser(resp.User, true),
	}
}
