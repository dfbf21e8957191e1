package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/honeynil/TicketPurchaseService/internal/infrastructure/auth"
	"github.com/honeynil/TicketPurchaseService/internal/models"
	service "github.com/honeynil/TicketPurchaseService/internal/services"
	pkgerrors "github.com/honeynil/TicketPurchaseService/pkg/errors"
)

type Handler struct {
	service service.PurchaseService
}

func NewHandler(s service.PurchaseService) *Handler {
	return &Handler{service: s}
}

type errorResponse struct {
	Error string `json:"error"`
}

type createPurchaseRequest struct {
	EventID  int64 `json:"eventId"`
	Quantity int   `json:"quantity"`
}

type confirmPaymentRequest struct {
	PaymentMethod string `json:"paymentMethod"`
}

type eventsResponse struct {
	Total  int            `json:"total"`
	Events []models.Event `json:"events"`
}

type purchasesResponse struct {
	Total     int                     `json:"total"`
	Purchases []models.PurchaseDetail `json:"purchases"`
}

type cancelResponse struct {
	Message string `json:"message"`
	Data    struct {
		PurchaseID int64                 `json:"purchaseId"`
		Status     models.PurchaseStatus `json:"status"`
	} `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeError maps error categories to status codes. Anything uncategorised is
// logged and answered with a generic message.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, pkgerrors.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, pkgerrors.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, pkgerrors.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, pkgerrors.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, pkgerrors.ErrConflict):
		status = http.StatusConflict
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: pkgerrors.ErrInternal.Error()})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/purchases/events", h.ListEvents).Methods(http.MethodGet)
	r.HandleFunc("/purchases/mine", h.ListMyPurchases).Methods(http.MethodGet)
	r.HandleFunc("/purchases", h.CreatePurchase).Methods(http.MethodPost)
	r.HandleFunc("/purchases/{id}", h.GetPurchase).Methods(http.MethodGet)
	r.HandleFunc("/purchases/{id}/pay", h.ConfirmPayment).Methods(http.MethodPost)
	r.HandleFunc("/purchases/{id}", h.CancelPurchase).Methods(http.MethodDelete)
}

func callerFrom(r *http.Request) (*models.Claims, error) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		return nil, fmt.Errorf("%w: user not authenticated", pkgerrors.ErrUnauthorized)
	}
	return claims, nil
}

func purchaseIDFrom(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: purchase id must be a positive integer", pkgerrors.ErrInvalidRequest)
	}
	return id, nil
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", pkgerrors.ErrInvalidRequest, err)
	}
	return nil
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	if _, err := callerFrom(r); err != nil {
		h.writeError(w, r, err)
		return
	}

	events := h.service.ListEvents(r.Context())
	writeJSON(w, http.StatusOK, eventsResponse{Total: len(events), Events: events})
}

func (h *Handler) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req createPurchaseRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	purchase, err := h.service.CreatePurchase(r.Context(), caller.SubjectID, req.EventID, req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, purchase)
}

func (h *Handler) ListMyPurchases(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	purchases, err := h.service.ListUserPurchases(r.Context(), caller.SubjectID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, purchasesResponse{Total: len(purchases), Purchases: purchases})
}

// GetPurchase enforces ownership here rather than in the service so that
// admins can read any purchase.
func (h *Handler) GetPurchase(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := purchaseIDFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	purchase, err := h.service.GetPurchase(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if purchase.UserID != caller.SubjectID && !caller.IsAdmin() {
		slog.Warn("purchase read denied", "purchase_id", id, "user_id", caller.SubjectID)
		h.writeError(w, r, pkgerrors.ErrNotOwner)
		return
	}

	writeJSON(w, http.StatusOK, purchase)
}

func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := purchaseIDFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req confirmPaymentRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	purchase, err := h.service.ConfirmPayment(r.Context(), caller.SubjectID, id, req.PaymentMethod)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, purchase)
}

func (h *Handler) CancelPurchase(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := purchaseIDFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	purchase, err := h.service.CancelPurchase(r.Context(), caller.SubjectID, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var resp cancelResponse
	resp.Message = "Purchase cancelled successfully"
	resp.Data.PurchaseID = purchase.ID
	resp.Data.Status = purchase.Status
	writeJSON(w, http.StatusOK, resp)
}
