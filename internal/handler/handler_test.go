package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/flicky/storefront-api/internal/model"
	"github.com/flicky/storefront-api/internal/repository/repotest"
	"github.com/flicky/storefront-api/internal/service"
)

const testSecret = "handler-test-secret"

type testAPI struct {
	t      *testing.T
	store  *repotest.Store
	router *gin.Engine
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := repotest.NewStore()
	log := zap.NewNop()

	cartSvc := service.NewCartService(store.Carts(), store.Products(), 3, log)
	orderSvc := service.NewOrderService(store.Orders(), store.Carts(), store.Products(), nil,
		service.CheckoutOptions{ValidateStock: true, MaxRetries: 3}, log)

	router := NewRouter(RouterConfig{
		Log:       log,
		JWTSecret: testSecret,
		Auth:      NewAuthHandler(service.NewAuthService(store.Users(), testSecret, time.Hour)),
		Product:   NewProductHandler(service.NewProductService(store.Products(), nil, log)),
		Cart:      NewCartHandler(cartSvc),
		Order:     NewOrderHandler(orderSvc),
		Admin: NewAdminHandler(
			service.NewUserService(store.Users()),
			service.NewAnalyticsService(store.Users(), store.Orders()),
		),
		Health: &HealthHandler{},
	})
	return &testAPI{t: t, store: store, router: router}
}

func (a *testAPI) token(user *model.User) string {
	a.t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  user.ID.String(),
		"role": user.Role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(a.t, err)
	return tok
}

func (a *testAPI) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type cartBody struct {
	Items []struct {
		ProductID uuid.UUID       `json:"productId"`
		Quantity  int             `json:"quantity"`
		UnitPrice decimal.Decimal `json:"unitPrice"`
	} `json:"items"`
	Total decimal.Decimal `json:"total"`
}

type orderBody struct {
	Message string `json:"message"`
	Order   struct {
		ID          uuid.UUID         `json:"id"`
		Status      model.OrderStatus `json:"status"`
		TotalAmount decimal.Decimal   `json:"totalAmount"`
		Items       []struct {
			ProductID uuid.UUID `json:"productId"`
			Quantity  int       `json:"quantity"`
		} `json:"items"`
	} `json:"order"`
}

func TestCartAndCheckoutFlow(t *testing.T) {
	api := newTestAPI(t)
	user := api.store.AddUser("Ann", "ann@example.com", model.RoleUser)
	tok := api.token(user)
	p := api.store.AddProduct("P", "100", 5)
	q := api.store.AddProduct("Q", "50", 1)

	w := api.do(http.MethodPost, "/api/cart", tok, gin.H{"productId": p.ID, "quantity": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[cartBody](t, w).Total.Equal(decimal.NewFromInt(200)))

	w = api.do(http.MethodPut, "/api/cart/item/"+p.ID.String(), tok, gin.H{"quantity": 1})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[cartBody](t, w).Total.Equal(decimal.NewFromInt(100)))

	w = api.do(http.MethodPost, "/api/cart", tok, gin.H{"productId": q.ID, "quantity": 2})
	require.Equal(t, http.StatusBadRequest, w.Code)
	e := decode[errorBody](t, w)
	assert.Equal(t, "INSUFFICIENT_STOCK", e.Code)
	assert.Equal(t, "only 1 items available in stock", e.Error)

	w = api.do(http.MethodPost, "/api/orders", tok, gin.H{
		"shippingAddress": gin.H{"street": "Main St", "city": "Pokhara"},
		"totalAmount":     "100",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	order := decode[orderBody](t, w)
	assert.Equal(t, "Order created", order.Message)
	assert.Equal(t, model.OrderStatusPending, order.Order.Status)
	assert.True(t, order.Order.TotalAmount.Equal(decimal.NewFromInt(100)))
	require.Len(t, order.Order.Items, 1)
	assert.Equal(t, p.ID, order.Order.Items[0].ProductID)

	w = api.do(http.MethodGet, "/api/cart", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	cart := decode[cartBody](t, w)
	assert.Empty(t, cart.Items)
	assert.True(t, cart.Total.IsZero())

	w = api.do(http.MethodPost, "/api/orders", tok, gin.H{"shippingAddress": gin.H{}})
	assert.Equal(t, http.StatusBadRequest, w.Code, "empty cart")

	w = api.do(http.MethodGet, "/api/orders/my", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]json.RawMessage](t, w), 1)
}

func TestCartLinesCarryProductDetails(t *testing.T) {
	api := newTestAPI(t)
	user := api.store.AddUser("Ann", "ann@example.com", model.RoleUser)
	tok := api.token(user)
	p := api.store.AddProduct("Phone", "100", 5)
	q := api.store.AddProduct("Case", "10", 5)

	w := api.do(http.MethodPost, "/api/cart", tok, gin.H{"productId": p.ID, "quantity": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = api.do(http.MethodPost, "/api/cart", tok, gin.H{"productId": q.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	type lineProduct struct {
		Name  string          `json:"name"`
		Price decimal.Decimal `json:"price"`
		Stock int             `json:"stock"`
	}
	type detailedCart struct {
		Items []struct {
			ProductID uuid.UUID    `json:"productId"`
			Product   *lineProduct `json:"product"`
		} `json:"items"`
	}

	cart := decode[detailedCart](t, w)
	require.Len(t, cart.Items, 2)
	require.NotNil(t, cart.Items[0].Product)
	assert.Equal(t, "Phone", cart.Items[0].Product.Name)
	assert.True(t, cart.Items[0].Product.Price.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, 5, cart.Items[0].Product.Stock)
	require.NotNil(t, cart.Items[1].Product)
	assert.Equal(t, "Case", cart.Items[1].Product.Name)

	api.store.SetPrice(p.ID, "90")
	require.NoError(t, api.store.Products().Delete(context.Background(), q.ID))

	w = api.do(http.MethodGet, "/api/cart", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	cart = decode[detailedCart](t, w)
	require.Len(t, cart.Items, 2)
	assert.True(t, cart.Items[0].Product.Price.Equal(decimal.NewFromInt(90)), "live price")
	assert.Nil(t, cart.Items[1].Product, "deleted product has no details")
}

func TestCartAddHugeQuantityIsRejected(t *testing.T) {
	api := newTestAPI(t)
	user := api.store.AddUser("Ann", "ann@example.com", model.RoleUser)
	tok := api.token(user)
	p := api.store.AddProduct("P", "100", 5)

	w := api.do(http.MethodPost, "/api/cart", tok, gin.H{"productId": p.ID, "quantity": 1})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = api.do(http.MethodPost, "/api/cart", tok, gin.H{"productId": p.ID, "quantity": math.MaxInt64})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Equal(t, "INSUFFICIENT_STOCK", decode[errorBody](t, w).Code)

	w = api.do(http.MethodGet, "/api/cart", tok, nil)
	cart := decode[cartBody](t, w)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 1, cart.Items[0].Quantity)
}

func TestCartErrors(t *testing.T) {
	api := newTestAPI(t)
	user := api.store.AddUser("Ann", "ann@example.com", model.RoleUser)
	tok := api.token(user)
	p := api.store.AddProduct("P", "100", 5)

	w := api.do(http.MethodPost, "/api/cart", tok, gin.H{"productId": uuid.New()})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(http.MethodPost, "/api/cart", tok, gin.H{"productId": p.ID, "quantity": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ARGUMENT", decode[errorBody](t, w).Code)

	w = api.do(http.MethodDelete, "/api/cart/item/"+p.ID.String(), tok, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(http.MethodPut, "/api/cart/item/not-a-uuid", tok, gin.H{"quantity": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodGet, "/api/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCheckoutMismatchIsConflict(t *testing.T) {
	api := newTestAPI(t)
	user := api.store.AddUser("Ann", "ann@example.com", model.RoleUser)
	tok := api.token(user)
	p := api.store.AddProduct("P", "100", 5)

	w := api.do(http.MethodPost, "/api/cart", tok, gin.H{"productId": p.ID})
	require.Equal(t, http.StatusOK, w.Code)

	w = api.do(http.MethodPost, "/api/orders", tok, gin.H{
		"shippingAddress": gin.H{},
		"items":           []gin.H{{"productId": p.ID, "quantity": 3}},
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONFLICT", decode[errorBody](t, w).Code)
}

func TestOrderStatusEndpoints(t *testing.T) {
	api := newTestAPI(t)
	user := api.store.AddUser("Ann", "ann@example.com", model.RoleUser)
	admin := api.store.AddUser("Root", "root@example.com", model.RoleAdmin)
	userTok, adminTok := api.token(user), api.token(admin)
	p := api.store.AddProduct("P", "100", 5)

	require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/api/cart", userTok, gin.H{"productId": p.ID}).Code)
	w := api.do(http.MethodPost, "/api/orders", userTok, gin.H{"shippingAddress": gin.H{}})
	require.Equal(t, http.StatusCreated, w.Code)
	orderID := decode[orderBody](t, w).Order.ID.String()

	w = api.do(http.MethodPut, "/api/orders/"+orderID, userTok, gin.H{"status": "Processing"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(http.MethodPut, "/api/orders/"+orderID, adminTok, gin.H{"status": "Delivered"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_TRANSITION", decode[errorBody](t, w).Code)

	w = api.do(http.MethodPut, "/api/orders/"+orderID, adminTok, gin.H{"status": "Processing"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, model.OrderStatusProcessing, decode[orderBody](t, w).Order.Status)

	w = api.do(http.MethodPut, "/api/orders/"+uuid.NewString(), adminTok, gin.H{"status": "Processing"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	stranger := api.store.AddUser("Eve", "eve@example.com", model.RoleUser)
	w = api.do(http.MethodPut, "/api/orders/"+orderID+"/cancel", api.token(stranger), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = api.do(http.MethodGet, "/api/orders/"+orderID, api.token(stranger), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(http.MethodPut, "/api/orders/"+orderID+"/cancel", userTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.OrderStatusCancelled, decode[orderBody](t, w).Order.Status)

	w = api.do(http.MethodGet, "/api/orders", adminTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed []struct {
		User struct {
			Email string `json:"email"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "ann@example.com", listed[0].User.Email)

	w = api.do(http.MethodGet, "/api/orders/"+orderID+"/history", adminTok, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthEndpoints(t *testing.T) {
	api := newTestAPI(t)

	reg := gin.H{"name": "Ann", "email": "ann@example.com", "phone": "9800000001", "password": "secret123"}
	w := api.do(http.MethodPost, "/api/auth/register", "", reg)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = api.do(http.MethodPost, "/api/auth/register", "", reg)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "user already exists", decode[errorBody](t, w).Error)

	w = api.do(http.MethodPost, "/api/auth/register", "", gin.H{"email": "x@example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "ann@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "ann@example.com", "password": "secret123"})
	require.Equal(t, http.StatusOK, w.Code)
	login := decode[struct {
		Token string `json:"token"`
	}](t, w)

	w = api.do(http.MethodPut, "/api/auth/profile", login.Token, gin.H{"gender": "other"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = api.do(http.MethodGet, "/api/auth/profile", login.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	profile := decode[struct {
		Gender string `json:"gender"`
		Role   string `json:"role"`
	}](t, w)
	assert.Equal(t, "other", profile.Gender)
	assert.Equal(t, model.RoleUser, profile.Role)
}

func TestProductEndpoints(t *testing.T) {
	api := newTestAPI(t)
	admin := api.store.AddUser("Root", "root@example.com", model.RoleAdmin)
	tok := api.token(admin)

	w := api.do(http.MethodPost, "/api/products", tok, gin.H{"name": "Phone", "price": "99.50", "stock": 3})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[struct {
		ID uuid.UUID `json:"id"`
	}](t, w)

	w = api.do(http.MethodPost, "/api/products", tok, gin.H{"name": "Bad", "price": "-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodGet, "/api/products/"+created.ID.String(), "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = api.do(http.MethodGet, "/api/products/nope", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = api.do(http.MethodGet, "/api/products/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(http.MethodGet, "/api/products?search=pho&sort=price&order=asc", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Total int `json:"total"`
	}](t, w)
	assert.Equal(t, 1, list.Total)

	w = api.do(http.MethodGet, "/api/products?sort=rating", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodDelete, "/api/products/"+created.ID.String(), tok, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = api.do(http.MethodDelete, "/api/products/"+created.ID.String(), tok, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminEndpoints(t *testing.T) {
	api := newTestAPI(t)
	admin := api.store.AddUser("Root", "root@example.com", model.RoleAdmin)
	user := api.store.AddUser("Ann", "ann@example.com", model.RoleUser)
	tok := api.token(admin)

	w := api.do(http.MethodGet, "/api/admin/analytics", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[struct {
		TotalUsers   int64           `json:"totalUsers"`
		TotalOrders  int64           `json:"totalOrders"`
		TotalRevenue decimal.Decimal `json:"totalRevenue"`
	}](t, w)
	assert.Equal(t, int64(2), stats.TotalUsers)
	assert.Equal(t, int64(0), stats.TotalOrders)
	assert.True(t, stats.TotalRevenue.IsZero())

	w = api.do(http.MethodGet, "/api/admin/analytics", api.token(user), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(http.MethodPut, "/api/users/"+user.ID.String()+"/admin", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = api.do(http.MethodDelete, "/api/users/"+user.ID.String(), tok, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = api.do(http.MethodDelete, "/api/users/"+user.ID.String(), tok, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(http.MethodGet, "/api/users", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]json.RawMessage](t, w), 1)
}

func TestStorageFailureIsInternal(t *testing.T) {
	api := newTestAPI(t)
	user := api.store.AddUser("Ann", "ann@example.com", model.RoleUser)
	tok := api.token(user)
	api.store.Err = errors.New("connection reset")

	w := api.do(http.MethodGet, "/api/cart", tok, nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	e := decode[errorBody](t, w)
	assert.Equal(t, "internal server error", e.Error)
	assert.Equal(t, "INTERNAL", e.Code)
}

func TestReadyz(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &HealthHandler{checks: []dependencyCheck{
		{"postgres", func(context.Context) error { return nil }},
		{"redis", func(context.Context) error { return errors.New("down") }},
	}}
	r := gin.New()
	r.GET("/readyz", h.Readyz)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode[map[string]string](t, w)
	assert.Equal(t, "connected", body["postgres"])
	assert.Equal(t, "unavailable", body["redis"])
}
