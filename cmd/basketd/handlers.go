package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/opuscart/basket/internal/basket"
)

const sessionCookie = "basket_session"

type basketHandler struct {
	storage basket.Storage
	catalog *catalog
	orders  *orderBook
}

func newBasketHandler(storage basket.Storage, cat *catalog, orders *orderBook) *basketHandler {
	return &basketHandler{storage: storage, catalog: cat, orders: orders}
}

type addItemRequestDTO struct {
	SKU      string `json:"sku"`
	Quantity int64  `json:"quantity"`
}

type applyDiscountRequestDTO struct {
	Code string `json:"code"`
}

type updateQuantityRequestDTO struct {
	Quantity int64 `json:"quantity"`
}

type itemResponseDTO struct {
	UniqueID   string `json:"unique_id"`
	Kind       string `json:"kind"`
	Label      string `json:"label"`
	UnitPrice  string `json:"unit_price"`
	Quantity   string `json:"quantity"`
	TotalPrice string `json:"total_price"`
}

type basketResponseDTO struct {
	Items          []itemResponseDTO `json:"items"`
	Count          int               `json:"count"`
	TotalVat       string            `json:"total_vat"`
	TotalDiscounts string            `json:"total_discounts"`
	TotalDue       string            `json:"total_due"`
}

type orderResponseDTO struct {
	OrderID string `json:"order_id"`
	Total   string `json:"total"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// openBasket builds a basket for the request's session id and loads it.
// The session id travels in a cookie; a missing cookie starts a new
// session.
func (h *basketHandler) openBasket(w http.ResponseWriter, r *http.Request) (*basket.Basket, error) {
	sessionID := ""
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		sessionID = cookie.Value
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    sessionID,
			Path:     "/",
			HttpOnly: true,
		})
	}

	b := basket.New(h.storage, basket.SessionID(sessionID), basket.WithResolver(h.catalog))
	if err := b.Load(r.Context()); err != nil {
		return nil, err
	}
	return b, nil
}

func (h *basketHandler) getBasket(w http.ResponseWriter, r *http.Request) {
	b, err := h.openBasket(w, r)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	h.respondBasket(w, b)
}

func (h *basketHandler) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}
	if req.Quantity <= 0 || req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, errors.New("quantity must be between 1 and 99"))
		return
	}
	product, ok := h.catalog.product(req.SKU)
	if !ok {
		respondError(w, http.StatusNotFound, errors.New("unknown sku"))
		return
	}

	b, err := h.openBasket(w, r)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	_, err = b.Add(r.Context(), product, true,
		basket.WithQuantity(decimal.NewFromInt(req.Quantity)),
		basket.WithVATRate(product.vatRate))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	h.respondBasket(w, b)
}

func (h *basketHandler) applyDiscount(w http.ResponseWriter, r *http.Request) {
	var req applyDiscountRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}
	discount, ok := h.catalog.discount(req.Code)
	if !ok {
		respondError(w, http.StatusNotFound, errors.New("unknown discount code"))
		return
	}

	b, err := h.openBasket(w, r)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if _, err := b.Add(r.Context(), discount, true); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	h.respondBasket(w, b)
}

func (h *basketHandler) updateQuantity(w http.ResponseWriter, r *http.Request) {
	var req updateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}
	if req.Quantity < 0 {
		respondError(w, http.StatusBadRequest, errors.New("quantity must not be negative"))
		return
	}

	b, err := h.openBasket(w, r)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if !b.Update(chi.URLParam(r, "id"), "quantity", req.Quantity) {
		respondError(w, http.StatusNotFound, errors.New("no such item or attribute"))
		return
	}
	if err := b.Save(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	h.respondBasket(w, b)
}

func (h *basketHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	b, err := h.openBasket(w, r)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	err = b.Remove(r.Context(), chi.URLParam(r, "id"), true)
	if errors.Is(err, basket.ErrItemNotFound) {
		respondError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	h.respondBasket(w, b)
}

func (h *basketHandler) clearBasket(w http.ResponseWriter, r *http.Request) {
	b, err := h.openBasket(w, r)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if err := b.Clear(r.Context(), true); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	h.respondBasket(w, b)
}

func (h *basketHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	b, err := h.openBasket(w, r)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	order, err := b.CreateOrder(r.Context(), h.orders, true)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err)
		return
	}
	respondJSON(w, http.StatusCreated, orderResponseDTO{
		OrderID: order.PrimaryKey(),
		Total:   order.TransactionSum().StringFixed(2),
	})
}

func (h *basketHandler) respondBasket(w http.ResponseWriter, b *basket.Basket) {
	due, err := b.TotalDue(true)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	discounts, err := b.TotalDiscounts(true)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	items := b.Items(nil)
	resp := basketResponseDTO{
		Items:          make([]itemResponseDTO, 0, len(items)),
		Count:          len(items),
		TotalVat:       b.TotalVat().StringFixed(2),
		TotalDiscounts: discounts.StringFixed(2),
		TotalDue:       due.StringFixed(2),
	}
	for _, item := range items {
		resp.Items = append(resp.Items, itemResponseDTO{
			UniqueID:   item.UniqueID(),
			Kind:       string(item.Kind()),
			Label:      item.Label(),
			UnitPrice:  item.UnitPrice().StringFixed(2),
			Quantity:   item.Quantity().String(),
			TotalPrice: item.TotalPrice(true).StringFixed(2),
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, errorResponse{Error: err.Error()})
}
