package authhandler

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"paystub/internal/domain/auth"
	"paystub/internal/transport/http/api"
	"paystub/internal/transport/http/middleware"
	"paystub/internal/transport/http/shared"
)

type Handler struct {
	Service *auth.Service
	Policy  *auth.Policy
}

func NewHandler(service *auth.Service, policy *auth.Policy) *Handler {
	return &Handler{Service: service, Policy: policy}
}

type tokenRequest struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int    `json:"expiresIn"`
}

type meResponse struct {
	ClientID    string   `json:"clientId"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/token", h.HandleToken)
		r.Get("/me", h.HandleMe)
	})
}

// HandleToken exchanges client credentials for a bearer token.
func (h *Handler) HandleToken(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var payload tokenRequest
	if !shared.DecodeJSON(w, r, &payload, reqID) {
		return
	}
	validator := shared.NewValidator()
	validator.Required("clientId", payload.ClientID, "client id is required")
	validator.Required("clientSecret", payload.ClientSecret, "client secret is required")
	if validator.Reject(w, reqID) {
		return
	}

	token, err := h.Service.IssueToken(r.Context(), payload.ClientID, payload.ClientSecret)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			api.Fail(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials", reqID)
			return
		}
		slog.Error("issue token failed", "clientId", payload.ClientID, "err", err)
		api.Fail(w, http.StatusInternalServerError, "token_error", "failed to issue token", reqID)
		return
	}
	api.Success(w, tokenResponse{AccessToken: token, TokenType: "Bearer", ExpiresIn: int(h.Service.TTL.Seconds())}, reqID)
}

func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}
	perms, err := h.Policy.Permissions(user.RoleName)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "permission_error", "failed to load permissions", reqID)
		return
	}
	sort.Strings(perms)
	api.Success(w, meResponse{ClientID: user.UserID, Role: user.RoleName, Permissions: perms}, reqID)
}
