package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fjod/go_cart/session-cart/internal/cart"
	"github.com/fjod/go_cart/session-cart/internal/catalog"
	"github.com/fjod/go_cart/session-cart/internal/domain"
	"github.com/fjod/go_cart/session-cart/internal/session"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type testEnv struct {
	router http.Handler
	repo   *catalog.Repository
	store  *session.MemoryStore
	logs   *observer.ObservedLogs
	cookie *http.Cookie
}

func setupTestServer(t *testing.T) *testEnv {
	repo, err := catalog.NewRepository(":memory:", catalog.Lookups{
		Product: catalog.Lookup{"active": true},
		Option:  catalog.Lookup{"active": true},
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	require.NoError(t, repo.RunMigrations())

	core, logs := observer.New(zap.InfoLevel)
	store := session.NewMemoryStore()
	router := NewRouter(RouterConfig{
		Catalog:        catalog.NewService(repo),
		Store:          store,
		Cart:           cart.Config{},
		RequestTimeout: 5 * time.Second,
		Logger:         zap.New(core),
	})

	return &testEnv{router: router, repo: repo, store: store, logs: logs}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewBuffer(data)
	}

	request := httptest.NewRequest(method, path, reader)
	if e.cookie != nil {
		request.AddCookie(e.cookie)
	}
	recorder := httptest.NewRecorder()
	e.router.ServeHTTP(recorder, request)

	for _, c := range recorder.Result().Cookies() {
		if c.Name == SessionCookieName {
			e.cookie = c
		}
	}
	return recorder
}

func decodeCart(t *testing.T, recorder *httptest.ResponseRecorder) CartDTO {
	t.Helper()
	var dto CartDTO
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&dto))
	return dto
}

func decodeError(t *testing.T, recorder *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&resp))
	return resp
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "expected %s, got %s", want, got)
}

func quantity(q int) *int {
	return &q
}

func TestHealth(t *testing.T) {
	env := setupTestServer(t)

	recorder := env.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Nil(t, env.cookie, "health check does not start a session")
}

func TestGetProducts(t *testing.T) {
	env := setupTestServer(t)

	recorder := env.do(t, http.MethodGet, "/api/v1/products", nil)

	require.Equal(t, http.StatusOK, recorder.Code)
	var products []domain.Product
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&products))
	assert.Len(t, products, 4, "inactive products are filtered out")
}

func TestGetCart_Empty(t *testing.T) {
	env := setupTestServer(t)

	recorder := env.do(t, http.MethodGet, "/api/v1/cart", nil)

	require.Equal(t, http.StatusOK, recorder.Code)
	dto := decodeCart(t, recorder)
	assert.True(t, dto.IsEmpty)
	assert.Empty(t, dto.Items)
	assertDecimal(t, "0", dto.Total)
	require.NotNil(t, env.cookie)
	assert.True(t, env.cookie.HttpOnly)

	// reading the cart does not write the session
	_, err := env.store.Load(context.Background(), env.cookie.Value)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestAddItem_SameItemTwice(t *testing.T) {
	env := setupTestServer(t)

	recorder := env.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: 2, Quantity: quantity(2)})
	require.Equal(t, http.StatusCreated, recorder.Code)
	recorder = env.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: 2, Quantity: quantity(3)})
	require.Equal(t, http.StatusCreated, recorder.Code)

	dto := decodeCart(t, recorder)
	assert.Equal(t, 5, dto.Count)
	assert.Equal(t, 1, dto.UniqueCount)
	assertDecimal(t, "50", dto.Total)
	assert.Equal(t, "Pepperoni", dto.Items[0].Name)
}

func TestAddItem_DefaultQuantityAndOptions(t *testing.T) {
	env := setupTestServer(t)

	env.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: 1, OptionIDs: []int64{1, 2}})
	recorder := env.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: 1, OptionIDs: []int64{2, 1}})

	require.Equal(t, http.StatusCreated, recorder.Code)
	dto := decodeCart(t, recorder)
	require.Len(t, dto.Items, 1)
	assert.Equal(t, 2, dto.Items[0].Quantity)
	assert.Equal(t, []int64{1, 2}, dto.Items[0].OptionIDs)
	assertDecimal(t, "11.75", dto.Items[0].UnitPrice)
	assertDecimal(t, "23.50", dto.Total)
}

func TestAddItem_PersistsSession(t *testing.T) {
	env := setupTestServer(t)

	env.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: 3, OptionIDs: []int64{}, Quantity: quantity(1)})

	require.NotNil(t, env.cookie)
	sess, err := env.store.Load(context.Background(), env.cookie.Value)
	require.NoError(t, err)
	var records []domain.Record
	require.NoError(t, sess.Get(cart.DefaultSessionKey, &records))
	assert.Equal(t, []domain.Record{{ProductPK: 3, OptionPKs: []int64{}, Quantity: 1}}, records)

	recorder := env.do(t, http.MethodGet, "/api/v1/cart", nil)
	assert.Equal(t, 1, decodeCart(t, recorder).Count)
}

func TestAddItem_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"malformed json", `{"product_id":`, http.StatusBadRequest, "invalid_request"},
		{"missing product", AddItemRequestDTO{Quantity: quantity(1)}, http.StatusBadRequest, "invalid_product_id"},
		{"zero quantity", AddItemRequestDTO{ProductID: 1, Quantity: quantity(0)}, http.StatusBadRequest, "invalid_quantity"},
		{"negative quantity", AddItemRequestDTO{ProductID: 1, Quantity: quantity(-2)}, http.StatusBadRequest, "invalid_quantity"},
		{"unknown product", AddItemRequestDTO{ProductID: 999, Quantity: quantity(1)}, http.StatusNotFound, "product_not_found"},
		{"inactive product", AddItemRequestDTO{ProductID: 5, Quantity: quantity(1)}, http.StatusNotFound, "product_not_found"},
		{"inactive option", AddItemRequestDTO{ProductID: 2, OptionIDs: []int64{4}, Quantity: quantity(1)}, http.StatusNotFound, "option_not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestServer(t)

			recorder := env.do(t, http.MethodPost, "/api/v1/cart/items", tt.body)

			assert.Equal(t, tt.status, recorder.Code)
			assert.Equal(t, tt.code, decodeError(t, recorder).Code)
			_, err := env.store.Load(context.Background(), env.cookie.Value)
			assert.ErrorIs(t, err, session.ErrSessionNotFound, "failed requests leave the session unsaved")
		})
	}
}

func TestUpdateQuantity(t *testing.T) {
	env := setupTestServer(t)
	env.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: 1, OptionIDs: []int64{1}, Quantity: quantity(1)})

	recorder := env.do(t, http.MethodPut, "/api/v1/cart/items/1", UpdateQuantityRequestDTO{OptionIDs: []int64{1}, Quantity: quantity(4)})

	require.Equal(t, http.StatusOK, recorder.Code)
	dto := decodeCart(t, recorder)
	assert.Equal(t, 4, dto.Count)
	assertDecimal(t, "42", dto.Total)
}

func TestUpdateQuantity_ZeroRemoves(t *testing.T) {
	env := setupTestServer(t)
	env.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: 1, Quantity: quantity(3)})

	recorder := env.do(t, http.MethodPut, "/api/v1/cart/items/1", UpdateQuantityRequestDTO{Quantity: quantity(0)})

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.True(t, decodeCart(t, recorder).IsEmpty)
	recorder = env.do(t, http.MethodGet, "/api/v1/cart", nil)
	assert.True(t, decodeCart(t, recorder).IsEmpty)
}

func TestUpdateQuantity_Errors(t *testing.T) {
	env := setupTestServer(t)
	env.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: 1, Quantity: quantity(3)})

	recorder := env.do(t, http.MethodPut, "/api/v1/cart/items/1", UpdateQuantityRequestDTO{Quantity: quantity(-1)})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = env.do(t, http.MethodPut, "/api/v1/cart/items/1", UpdateQuantityRequestDTO{})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = env.do(t, http.MethodPut, "/api/v1/cart/items/abc", UpdateQuantityRequestDTO{Quantity: quantity(1)})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "invalid_product_id", decodeError(t, recorder).Code)

	recorder = env.do(t, http.MethodGet, "/api/v1/cart", nil)
	assert.Equal(t, 3, decodeCart(t, recorder).Count)
}

func TestRemoveItem(t *testing.T) {
	env := setupTestServer(t)
	env.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: 1, OptionIDs: []int64{1, 2}, Quantity: quantity(2)})
	env.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: 1, Quantity: quantity(1)})

	recorder := env.do(t, http.MethodDelete, "/api/v1/cart/items/1?option_id=2&option_id=1", nil)

	require.Equal(t, http.StatusOK, recorder.Code)
	dto := decodeCart(t, recorder)
	require.Len(t, dto.Items, 1)
	assert.Empty(t, dto.Items[0].OptionIDs)
}

func TestRemoveItem_InvalidOption(t *testing.T) {
	env := setupTestServer(t)

	recorder := env.do(t, http.MethodDelete, "/api/v1/cart/items/1?option_id=x", nil)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "invalid_option_id", decodeError(t, recorder).Code)
}

func TestDecrementItem(t *testing.T) {
	env := setupTestServer(t)
	env.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: 2, Quantity: quantity(2)})

	recorder := env.do(t, http.MethodPost, "/api/v1/cart/items/2/decrement", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, 1, decodeCart(t, recorder).Count)

	recorder = env.do(t, http.MethodPost, "/api/v1/cart/items/2/decrement", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.True(t, decodeCart(t, recorder).IsEmpty)
}

func TestClearCart(t *testing.T) {
	env := setupTestServer(t)
	env.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: 2, Quantity: quantity(2)})
	env.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: 3, Quantity: quantity(1)})

	for i := 0; i < 2; i++ {
		recorder := env.do(t, http.MethodDelete, "/api/v1/cart", nil)
		require.Equal(t, http.StatusOK, recorder.Code)
		dto := decodeCart(t, recorder)
		assert.True(t, dto.IsEmpty)
		assertDecimal(t, "0", dto.Total)
	}
}

func TestGetCart_SkipsDeletedProduct(t *testing.T) {
	env := setupTestServer(t)
	env.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: 1, Quantity: quantity(1)})
	env.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: 2, Quantity: quantity(1)})
	require.NoError(t, env.repo.DeleteProduct(context.Background(), 1))

	recorder := env.do(t, http.MethodGet, "/api/v1/cart", nil)

	require.Equal(t, http.StatusOK, recorder.Code)
	dto := decodeCart(t, recorder)
	require.Len(t, dto.Items, 1)
	assert.Equal(t, int64(2), dto.Items[0].ProductID)
	assert.Equal(t, 1, env.logs.FilterMessage("dropped cart record during rebuild").Len())
}

func TestSession_UnknownCookieStartsNewSession(t *testing.T) {
	env := setupTestServer(t)
	env.cookie = &http.Cookie{Name: SessionCookieName, Value: "forged"}

	env.do(t, http.MethodGet, "/api/v1/cart", nil)

	require.NotNil(t, env.cookie)
	assert.NotEqual(t, "forged", env.cookie.Value)
}

func TestSession_SeparateVisitors(t *testing.T) {
	env := setupTestServer(t)
	env.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: 2, Quantity: quantity(2)})

	other := &testEnv{router: env.router}
	recorder := other.do(t, http.MethodGet, "/api/v1/cart", nil)

	assert.True(t, decodeCart(t, recorder).IsEmpty)
	assert.NotEqual(t, env.cookie.Value, other.cookie.Value)
}
