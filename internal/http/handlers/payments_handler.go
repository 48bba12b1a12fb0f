package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/taskbounty/marketplace/internal/domain"
	"github.com/taskbounty/marketplace/internal/http/response"
	"github.com/taskbounty/marketplace/internal/payments"
	"github.com/taskbounty/marketplace/internal/repo/postgres"
	"github.com/taskbounty/marketplace/pkg/logger"
)

type PaymentsHandler struct {
	settlements *payments.SettlementOrchestrator
	checkout    *payments.CheckoutInitiator
	processor   payments.ProcessorClient
	identities  postgres.IdentityRepository
}

func NewPaymentsHandler(
	settlements *payments.SettlementOrchestrator,
	checkout *payments.CheckoutInitiator,
	processor payments.ProcessorClient,
	identities postgres.IdentityRepository,
) *PaymentsHandler {
	return &PaymentsHandler{
		settlements: settlements,
		checkout:    checkout,
		processor:   processor,
		identities:  identities,
	}
}

func (h *PaymentsHandler) SettleTransfer(w http.ResponseWriter, r *http.Request) {
	var req domain.SettlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	result, err := h.settlements.SettleTransfer(r.Context(), &req)
	if err != nil {
		writePaymentsError(w, r, err)
		return
	}

	if !result.Succeeded() {
		response.WriteJSON(w, http.StatusBadRequest, map[string]interface{}{
			"code":      response.CodeInsufficientFunds,
			"status":    result.Status,
			"available": result.Available,
		})
		return
	}

	response.WriteJSON(w, http.StatusOK, result)
}

func (h *PaymentsHandler) SettlePayout(w http.ResponseWriter, r *http.Request) {
	var req domain.SettlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	payoutID, err := h.settlements.SettlePayout(r.Context(), &req)
	if err != nil {
		writePaymentsError(w, r, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, map[string]string{"payout_id": payoutID})
}

func (h *PaymentsHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var intent domain.CheckoutIntent
	if err := json.NewDecoder(r.Body).Decode(&intent); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	session, err := h.checkout.CreateCheckoutSession(r.Context(), &intent)
	if err != nil {
		writePaymentsError(w, r, err)
		return
	}

	response.WriteJSON(w, http.StatusCreated, session)
}

func (h *PaymentsHandler) CreateConnectedAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IdentityID string `json:"identity_id"`
		Email      string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if req.Email == "" {
		response.BadRequest(w, "email is required")
		return
	}

	accountID, err := h.processor.CreateConnectedAccount(r.Context(), req.Email)
	if err != nil {
		writePaymentsError(w, r, err)
		return
	}

	if req.IdentityID != "" {
		if err := h.identities.SetConnectedAccount(r.Context(), req.IdentityID, accountID); err != nil {
			logger.ErrorContext(r.Context(), "Failed to record connected account", "error", err, "identity_id", req.IdentityID)
		}
	}

	response.WriteJSON(w, http.StatusCreated, map[string]string{"account_id": accountID})
}

func (h *PaymentsHandler) CreateOnboardingLink(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	var req struct {
		RefreshURL string `json:"refresh_url"`
		ReturnURL  string `json:"return_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if req.RefreshURL == "" || req.ReturnURL == "" {
		response.BadRequest(w, "refresh_url and return_url are required")
		return
	}

	url, err := h.processor.CreateOnboardingLink(r.Context(), accountID, req.RefreshURL, req.ReturnURL)
	if err != nil {
		writePaymentsError(w, r, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, map[string]string{"url": url})
}

func writePaymentsError(w http.ResponseWriter, r *http.Request, err error) {
	var pErr *domain.ProcessorError
	switch {
	case errors.As(err, &pErr):
		logger.ErrorContext(r.Context(), "Processor call failed", "op", pErr.Op, "detail", pErr.Detail)
		response.WriteError(w, http.StatusBadGateway, pErr.Error(), response.CodeProcessorError)
	case strings.Contains(err.Error(), "validation failed"):
		response.BadRequest(w, err.Error())
	default:
		response.InternalError(w, "internal error")
	}
}
