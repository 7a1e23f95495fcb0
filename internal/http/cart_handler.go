package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_cart/session-cart/internal/cart"
	"github.com/fjod/go_cart/session-cart/internal/catalog"
	"github.com/fjod/go_cart/session-cart/internal/domain"
	"github.com/fjod/go_cart/session-cart/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Catalog is what the handlers need to turn request ids into entities.
type Catalog interface {
	cart.Catalog
	Options(ctx context.Context, ids []int64) ([]*domain.Option, error)
	Products(ctx context.Context) ([]*domain.Product, error)
}

type CartHandler struct {
	catalog Catalog
	store   session.Store
	cartCfg cart.Config
	timeout time.Duration
	logger  *zap.Logger
}

func NewCartHandler(catalog Catalog, store session.Store, cartCfg cart.Config, timeout time.Duration, logger *zap.Logger) *CartHandler {
	cartCfg.Logger = logger
	return &CartHandler{
		catalog: catalog,
		store:   store,
		cartCfg: cartCfg,
		timeout: timeout,
		logger:  logger,
	}
}

type AddItemRequestDTO struct {
	ProductID int64   `json:"product_id"`
	OptionIDs []int64 `json:"option_ids"`
	Quantity  *int    `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	OptionIDs []int64 `json:"option_ids"`
	Quantity  *int    `json:"quantity"`
}

type CartItemDTO struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	OptionIDs []int64         `json:"option_ids"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type CartDTO struct {
	Items       []CartItemDTO   `json:"items"`
	Count       int             `json:"count"`
	UniqueCount int             `json:"unique_count"`
	Total       decimal.Decimal `json:"total"`
	IsEmpty     bool            `json:"is_empty"`
}

func convertCart(c *cart.Cart) CartDTO {
	dto := CartDTO{
		Items:       make([]CartItemDTO, len(c.Items())),
		Count:       c.Count(),
		UniqueCount: c.UniqueCount(),
		Total:       c.Total(),
		IsEmpty:     c.IsEmpty(),
	}
	for i, item := range c.Items() {
		rec := item.Record()
		dto.Items[i] = CartItemDTO{
			ProductID: rec.ProductPK,
			Name:      item.Product.Name,
			OptionIDs: rec.OptionPKs,
			Quantity:  rec.Quantity,
			UnitPrice: item.UnitPrice(),
			Subtotal:  item.Subtotal(),
		}
	}
	return dto
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sess := sessionFromContext(r.Context())
	c := cart.New(ctx, sess, h.catalog, h.cartCfg)

	respondJSON(w, http.StatusOK, convertCart(c))
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	product, options, ok := h.resolve(ctx, w, req.ProductID, req.OptionIDs)
	if !ok {
		return
	}

	sess := sessionFromContext(r.Context())
	c := cart.New(ctx, sess, h.catalog, h.cartCfg)
	if err := c.Add(product, options, quantity); err != nil {
		h.handleCartError(w, err)
		return
	}

	h.commit(ctx, w, sess, c, http.StatusCreated)
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Quantity == nil {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity is required")
		return
	}

	product, options, ok := h.resolve(ctx, w, productID, req.OptionIDs)
	if !ok {
		return
	}

	sess := sessionFromContext(r.Context())
	c := cart.New(ctx, sess, h.catalog, h.cartCfg)
	if err := c.SetQuantity(product, options, *req.Quantity); err != nil {
		h.handleCartError(w, err)
		return
	}

	h.commit(ctx, w, sess, c, http.StatusOK)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	h.mutateItem(w, r, (*cart.Cart).Remove)
}

func (h *CartHandler) DecrementItem(w http.ResponseWriter, r *http.Request) {
	h.mutateItem(w, r, (*cart.Cart).RemoveSingle)
}

// mutateItem serves the routes that address an item by the product_id path
// parameter and repeated option_id query parameters.
func (h *CartHandler) mutateItem(w http.ResponseWriter, r *http.Request, mutate func(*cart.Cart, *domain.Product, []*domain.Option) error) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}
	optionIDs, err := optionIDsQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_option_id", "option_id must be a positive integer")
		return
	}

	product, options, ok := h.resolve(ctx, w, productID, optionIDs)
	if !ok {
		return
	}

	sess := sessionFromContext(r.Context())
	c := cart.New(ctx, sess, h.catalog, h.cartCfg)
	if err := mutate(c, product, options); err != nil {
		h.handleCartError(w, err)
		return
	}

	h.commit(ctx, w, sess, c, http.StatusOK)
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sess := sessionFromContext(r.Context())
	c := cart.New(ctx, sess, h.catalog, h.cartCfg)
	if err := c.Clear(); err != nil {
		h.handleCartError(w, err)
		return
	}

	h.commit(ctx, w, sess, c, http.StatusOK)
}

// resolve looks up the product and options of a request. Lookup errors are
// written to w.
func (h *CartHandler) resolve(ctx context.Context, w http.ResponseWriter, productID int64, optionIDs []int64) (*domain.Product, []*domain.Option, bool) {
	product, err := h.catalog.Product(ctx, productID)
	if err != nil {
		h.handleLookupError(w, err)
		return nil, nil, false
	}
	options, err := h.catalog.Options(ctx, optionIDs)
	if err != nil {
		h.handleLookupError(w, err)
		return nil, nil, false
	}
	return product, options, true
}

// commit saves the session when the cart changed it and writes the cart.
func (h *CartHandler) commit(ctx context.Context, w http.ResponseWriter, sess *session.Session, c *cart.Cart, status int) {
	if sess.Modified() {
		if err := h.store.Save(ctx, sess); err != nil {
			h.logger.Error("failed to save session", zap.String("session_id", sess.ID), zap.Error(err))
			respondError(w, http.StatusInternalServerError, "internal_error", "failed to save cart")
			return
		}
	}
	respondJSON(w, status, convertCart(c))
}

func (h *CartHandler) handleLookupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrProductNotFound):
		respondError(w, http.StatusNotFound, "product_not_found", "product not found")
	case errors.Is(err, catalog.ErrOptionNotFound):
		respondError(w, http.StatusNotFound, "option_not_found", "option not found")
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "catalog lookup timed out")
	default:
		h.logger.Error("catalog lookup failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func (h *CartHandler) handleCartError(w http.ResponseWriter, err error) {
	if errors.Is(err, cart.ErrInvalidQuantity) {
		respondError(w, http.StatusBadRequest, "invalid_quantity", err.Error())
		return
	}
	h.logger.Error("cart update failed", zap.Error(err))
	respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}

func productIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "product_id"), 10, 64)
	if err != nil || productID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return 0, false
	}
	return productID, true
}

func optionIDsQuery(r *http.Request) ([]int64, error) {
	values := r.URL.Query()["option_id"]
	ids := make([]int64, 0, len(values))
	for _, v := range values {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return nil, errors.New("invalid option_id")
		}
		ids = append(ids, id)
	}
	return ids, nil
}
