package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fjod/go_cart/local-cart/internal/cart"
	"github.com/fjod/go_cart/local-cart/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

type CartHandler struct {
	timeout time.Duration
	log     logrus.FieldLogger
}

func NewCartHandler(timeout time.Duration, log logrus.FieldLogger) *CartHandler {
	return &CartHandler{
		timeout: timeout,
		log:     log,
	}
}

type AddItemRequestDTO struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	ImageURL string  `json:"image_url"`
	Price    float64 `json:"price"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	store := cart.MustFromContext(r.Context())
	respondJSON(w, http.StatusOK, store.Products())
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	store := cart.MustFromContext(ctx)

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "id must not be empty")
		return
	}

	err := store.AddToCart(ctx, domain.Product{
		ID:       req.ID,
		Title:    req.Title,
		ImageURL: req.ImageURL,
		Price:    req.Price,
	})
	if err != nil {
		h.handleStoreError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, store.Products())
}

func (h *CartHandler) Increment(w http.ResponseWriter, r *http.Request) {
	h.changeQuantity(w, r, (*cart.Store).Increment)
}

func (h *CartHandler) Decrement(w http.ResponseWriter, r *http.Request) {
	h.changeQuantity(w, r, (*cart.Store).Decrement)
}

func (h *CartHandler) changeQuantity(w http.ResponseWriter, r *http.Request, op func(*cart.Store, context.Context, string) error) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	store := cart.MustFromContext(ctx)

	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "id must not be empty")
		return
	}

	if err := op(store, ctx, id); err != nil {
		h.handleStoreError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, store.Products())
}

// Events streams the cart as server-sent events: the current snapshot first, then one
// event per change. Slow clients skip intermediate snapshots.
func (h *CartHandler) Events(w http.ResponseWriter, r *http.Request) {
	store := cart.MustFromContext(r.Context())

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming_unsupported", "streaming is not supported")
		return
	}

	updates, cancel := store.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case products, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(products)
			if err != nil {
				h.log.WithError(err).Error("failed to encode cart event")
				return
			}
			if _, err := fmt.Fprintf(w, "event: cart\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (h *CartHandler) handleStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrEmptyID):
		respondError(w, http.StatusBadRequest, "invalid_product_id", err.Error())
	case errors.Is(err, cart.ErrClosed):
		respondError(w, http.StatusServiceUnavailable, "unavailable", "cart is shutting down")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		respondError(w, http.StatusGatewayTimeout, "timeout", "request timeout")
	default:
		h.log.WithError(err).WithField("path", r.URL.Path).Error("cart operation failed")
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logrus.WithError(err).Error("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: "",
	})
}
