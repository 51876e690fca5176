package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/greenmart/grocery-backend/internal/auth"
	"github.com/greenmart/grocery-backend/internal/order"
)

type CheckoutItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid4"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

type CheckoutRequest struct {
	DeliveryAddress string                `json:"delivery_address" validate:"required"`
	Items           []CheckoutItemRequest `json:"items" validate:"required,min=1,dive"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason"`
}

type CancelResponse struct {
	Message string       `json:"message"`
	OrderID uuid.UUID    `json:"orderId"`
	Status  order.Status `json:"status"`
	Reason  string       `json:"reason"`
}

type OrderHandler struct {
	svc      order.Service
	validate *validator.Validate
}

func NewOrderHandler(svc order.Service) *OrderHandler {
	return &OrderHandler{
		svc:      svc,
		validate: validator.New(),
	}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Post("/orders", h.handleCheckout)
	router.Get("/orders", h.handleListOrders)
	router.Get("/orders/{id}", h.handleGetOrder)
	router.Get("/orders/{id}/available-transitions", h.handleAvailableTransitions)
	router.Post("/orders/{id}/cancel", h.handleCancel)
	router.Patch("/orders/{id}/status", h.handleUpdateStatus)
	router.Get("/orders/{id}/history", h.handleHistory)
}

func (h *OrderHandler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.FromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var payload CheckoutRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&payload); err != nil {
		log.Error().Err(err).Msg("Failed to decode checkout request body")
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request payload: %v", err))
		return
	}

	if err := h.validate.Struct(payload); err != nil {
		if !respondWithValidationErrors(w, err) {
			log.Error().Err(err).Msg("Unexpected error type during validation")
			respondWithError(w, http.StatusInternalServerError, "Internal validation error")
		}
		return
	}

	o := order.Order{DeliveryAddress: payload.DeliveryAddress}
	for _, item := range payload.Items {
		productID, err := uuid.FromString(item.ProductID)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("invalid product id %q", item.ProductID))
			return
		}
		o.Items = append(o.Items, order.OrderItem{
			ProductID: productID,
			Quantity:  item.Quantity,
		})
	}

	created, err := h.svc.Checkout(r.Context(), actor, &o)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

func (h *OrderHandler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.FromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	orders, err := h.svc.ListOrders(r.Context(), actor)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	actor, orderID, ok := h.requestScope(w, r)
	if !ok {
		return
	}

	o, err := h.svc.GetOrder(r.Context(), actor, orderID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) handleAvailableTransitions(w http.ResponseWriter, r *http.Request) {
	actor, orderID, ok := h.requestScope(w, r)
	if !ok {
		return
	}

	view, err := h.svc.AvailableTransitions(r.Context(), actor, orderID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, view)
}

func (h *OrderHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	actor, orderID, ok := h.requestScope(w, r)
	if !ok {
		return
	}

	// The body is optional: a missing reason falls back to the default.
	var payload CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.svc.Cancel(r.Context(), actor, orderID, payload.Reason)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	reason := ""
	if o.StatusReason != nil {
		reason = *o.StatusReason
	}
	respondWithJSON(w, http.StatusOK, CancelResponse{
		Message: "Order cancelled successfully",
		OrderID: o.ID,
		Status:  o.Status,
		Reason:  reason,
	})
}

func (h *OrderHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, orderID, ok := h.requestScope(w, r)
	if !ok {
		return
	}

	var payload UpdateStatusRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&payload); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validate.Struct(payload); err != nil {
		if !respondWithValidationErrors(w, err) {
			respondWithError(w, http.StatusInternalServerError, "Internal validation error")
		}
		return
	}

	target, err := order.ParseStatus(payload.Status)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	o, err := h.svc.ApplyTransition(r.Context(), actor, orderID, target, payload.Reason)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	actor, orderID, ok := h.requestScope(w, r)
	if !ok {
		return
	}

	view, err := h.svc.History(r.Context(), actor, orderID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, view)
}

// requestScope pulls the actor and the {id} URL parameter every order route
// needs, writing the error response itself when either is missing.
func (h *OrderHandler) requestScope(w http.ResponseWriter, r *http.Request) (auth.Actor, uuid.UUID, bool) {
	actor, ok := auth.FromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "authentication required")
		return auth.Actor{}, uuid.Nil, false
	}

	orderID, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid order id")
		return auth.Actor{}, uuid.Nil, false
	}

	return actor, orderID, true
}
