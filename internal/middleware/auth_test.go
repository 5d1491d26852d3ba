package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/storefront-api/internal/model"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims, method jwt.SigningMethod) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware(testSecret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": GetUserID(c).String(), "role": GetUserRole(c)})
	})
	r.GET("/admin", AuthMiddleware(testSecret), AdminOnly(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func doGet(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	r := newAuthRouter()
	userID := uuid.New()
	valid := signToken(t, jwt.MapClaims{
		"sub": userID.String(), "role": model.RoleUser, "exp": time.Now().Add(time.Hour).Unix(),
	}, jwt.SigningMethodHS256)

	w := doGet(r, "/me", valid)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), userID.String())

	assert.Equal(t, http.StatusUnauthorized, doGet(r, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, doGet(r, "/me", "garbage").Code)

	expired := signToken(t, jwt.MapClaims{
		"sub": userID.String(), "role": model.RoleUser, "exp": time.Now().Add(-time.Hour).Unix(),
	}, jwt.SigningMethodHS256)
	assert.Equal(t, http.StatusUnauthorized, doGet(r, "/me", expired).Code)

	noExpiry := signToken(t, jwt.MapClaims{"sub": userID.String()}, jwt.SigningMethodHS256)
	assert.Equal(t, http.StatusUnauthorized, doGet(r, "/me", noExpiry).Code)

	wrongAlg := signToken(t, jwt.MapClaims{
		"sub": userID.String(), "exp": time.Now().Add(time.Hour).Unix(),
	}, jwt.SigningMethodHS512)
	assert.Equal(t, http.StatusUnauthorized, doGet(r, "/me", wrongAlg).Code)
}

func TestAdminOnly(t *testing.T) {
	r := newAuthRouter()
	exp := time.Now().Add(time.Hour).Unix()

	user := signToken(t, jwt.MapClaims{"sub": uuid.NewString(), "role": model.RoleUser, "exp": exp}, jwt.SigningMethodHS256)
	assert.Equal(t, http.StatusForbidden, doGet(r, "/admin", user).Code)

	admin := signToken(t, jwt.MapClaims{"sub": uuid.NewString(), "role": model.RoleAdmin, "exp": exp}, jwt.SigningMethodHS256)
	assert.Equal(t, http.StatusNoContent, doGet(r, "/admin", admin).Code)
}
