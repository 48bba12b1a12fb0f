package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/taskbounty/marketplace/internal/domain"
	"github.com/taskbounty/marketplace/internal/http/response"
	"github.com/taskbounty/marketplace/internal/identity"
)

type AuthHandler struct {
	identities identity.Service
}

func NewAuthHandler(identities identity.Service) *AuthHandler {
	return &AuthHandler{identities: identities}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	created, err := h.identities.Register(r.Context(), &req)
	if err != nil {
		writeIdentityError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusCreated, created.ToInfo())
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	resp, err := h.identities.Login(r.Context(), &req)
	if err != nil {
		writeIdentityError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	verified, err := h.identities.Verify(r.Context(), req.Username, req.Code)
	if err != nil {
		writeIdentityError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "success",
		"message":  "Email verified",
		"identity": verified.ToInfo(),
	})
}

func (h *AuthHandler) ResendCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	if err := h.identities.ResendCode(r.Context(), req.Username); err != nil {
		writeIdentityError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, map[string]string{"message": "Verification code sent"})
}

func (h *AuthHandler) ChangeEmail(w http.ResponseWriter, r *http.Request) {
	var req domain.ChangeEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	if err := h.identities.ChangeEmail(r.Context(), req.Username, req.NewEmail); err != nil {
		writeIdentityError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, map[string]string{"message": "Email updated, verification code sent to previous address"})
}

func writeIdentityError(w http.ResponseWriter, err error) {
	var cooldown *domain.CooldownActiveError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, domain.ErrAlreadyVerified):
		response.Conflict(w, err.Error())
	case errors.Is(err, domain.ErrDuplicateEmail):
		response.WriteError(w, http.StatusConflict, err.Error(), response.CodeEmailExists)
	case errors.Is(err, domain.ErrDuplicateUsername):
		response.WriteError(w, http.StatusConflict, err.Error(), response.CodeUsernameExists)
	case errors.Is(err, domain.ErrAccountDisabled), errors.Is(err, domain.ErrInvalidEmailSyntax):
		response.BadRequest(w, err.Error())
	case errors.Is(err, domain.ErrInvalidCodeFormat), errors.Is(err, domain.ErrCodeMismatch):
		response.Forbidden(w, err.Error())
	case errors.Is(err, domain.ErrInvalidCredentials):
		response.Unauthorized(w, err.Error())
	case errors.As(err, &cooldown):
		response.WriteJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"error":             cooldown.Error(),
			"code":              response.CodeCooldownActive,
			"required_seconds":  cooldown.RequiredSeconds,
			"remaining_seconds": cooldown.RemainingSeconds,
		})
	case strings.Contains(err.Error(), "validation failed"):
		response.BadRequest(w, err.Error())
	default:
		response.InternalError(w, "internal error")
	}
}
