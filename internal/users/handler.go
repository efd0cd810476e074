package users

import (
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/storefront-api/internal/auth"
	"github.com/joao-fontenele/storefront-api/internal/domain"
	"github.com/joao-fontenele/storefront-api/internal/httpx"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var reg Registration
	if err := httpx.DecodeJSON(r, &reg); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "")
		return
	}

	user, err := h.service.Register(r.Context(), reg)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to register user")
		return
	}

	h.logger.Info("user registered", "user_id", user.ID)
	httpx.WriteJSON(w, h.logger, http.StatusCreated, map[string]string{
		"email": user.Email,
		"name":  user.Name,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "")
		return
	}

	token, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to log in")
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		httpx.WriteDomainError(w, h.logger, domain.ErrUnauthenticated, "")
		return
	}

	user, err := h.service.Me(r.Context(), actor)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to get user", "user_id", actor.UserID)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, user)
}

func (h *Handler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		httpx.WriteDomainError(w, h.logger, domain.ErrUnauthenticated, "")
		return
	}

	var profile Profile
	if err := httpx.DecodeJSON(r, &profile); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "")
		return
	}

	user, err := h.service.UpdateMe(r.Context(), actor, profile)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to update user", "user_id", actor.UserID)
		return
	}

	h.logger.Info("user updated", "user_id", user.ID)
	httpx.WriteJSON(w, h.logger, http.StatusOK, user)
}
