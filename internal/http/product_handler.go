package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_cart/session-cart/internal/domain"
	"go.uber.org/zap"
)

type ProductLister interface {
	Products(ctx context.Context) ([]*domain.Product, error)
}

type ProductHandler struct {
	products ProductLister
	timeout  time.Duration
	logger   *zap.Logger
}

func NewProductHandler(products ProductLister, timeout time.Duration, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		products: products,
		timeout:  timeout,
		logger:   logger,
	}
}

func (h *ProductHandler) GetProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	products, err := h.products.Products(ctx)
	if err != nil {
		h.logger.Error("failed to list products", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	if products == nil {
		products = []*domain.Product{}
	}

	respondJSON(w, http.StatusOK, products)
}
