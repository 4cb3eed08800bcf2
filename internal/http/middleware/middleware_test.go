package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/freelance-wallet/internal/dto"
	"github.com/ignatzorin/freelance-wallet/internal/logger"
	"github.com/ignatzorin/freelance-wallet/internal/pkg/apperror"
	"github.com/ignatzorin/freelance-wallet/internal/service"
)

func init() {
	logger.Discard()
	gin.SetMode(gin.TestMode)
}

func serveError(t *testing.T, err error) (int, dto.ErrorResponse) {
	t.Helper()
	r := gin.New()
	r.Use(ErrorHandler())
	r.GET("/", func(c *gin.Context) {
		_ = c.Error(err)
	})

	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var body dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestErrorHandler_AppErrorWithDetails(t *testing.T) {
	err := apperror.New(apperror.ErrCodeInsufficientBalance, "недостаточно средств").
		WithDetail("requested", 5000).
		WithDetail("available", 3000)

	status, body := serveError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "INSUFFICIENT_BALANCE", body.Code)
	assert.Equal(t, "недостаточно средств", body.Error)
	assert.Equal(t, map[string]int64{"requested": 5000, "available": 3000}, body.Details)
}

func TestErrorHandler_MasksInternalErrors(t *testing.T) {
	status, body := serveError(t, errors.New("pq: relation wallets does not exist"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, string(apperror.ErrCodeInternal), body.Code)
	assert.NotContains(t, body.Error, "pq:")

	status, body = serveError(t, apperror.Wrap(errors.New("disk full"), apperror.ErrCodeDatabaseError, "insert failed"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.NotContains(t, body.Error, "insert failed")
}

func TestErrorHandler_TransientIsVisible(t *testing.T) {
	status, body := serveError(t, apperror.Wrap(errors.New("version mismatch"), apperror.ErrCodeTransient, "кошелёк занят"))
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "кошелёк занят", body.Error)
}

func TestAuthMiddleware(t *testing.T) {
	tokens := service.NewTokenManager("middleware-test-secret", time.Minute)
	r := gin.New()
	r.GET("/me", AuthMiddleware(tokens), func(c *gin.Context) {
		userID, _ := c.Get(ContextUserIDKey)
		c.JSON(http.StatusOK, gin.H{"user_id": userID, "role": c.GetString(ContextRoleKey)})
	})
	r.GET("/admin", AuthMiddleware(tokens), RequireRole("admin"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	userID := uuid.New()
	token, err := tokens.IssueAccess(userID, "freelancer")
	require.NoError(t, err)

	send := func(path, auth string) *httptest.ResponseRecorder {
		req, _ := http.NewRequest(http.MethodGet, path, nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusUnauthorized, send("/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, send("/me", "Token "+token).Code)
	assert.Equal(t, http.StatusUnauthorized, send("/me", "Bearer broken").Code)

	w := send("/me", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), userID.String())
	assert.Contains(t, w.Body.String(), "freelancer")

	assert.Equal(t, http.StatusForbidden, send("/admin", "Bearer "+token).Code)

	adminToken, err := tokens.IssueAccess(uuid.New(), "admin")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, send("/admin", "Bearer "+adminToken).Code)
}

func TestAuthMiddleware_ExpiredToken(t *testing.T) {
	tokens := service.NewTokenManager("middleware-test-secret", -time.Minute)
	token, err := tokens.IssueAccess(uuid.New(), "freelancer")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", AuthMiddleware(tokens), func(c *gin.Context) { c.Status(http.StatusOK) })
	req, _ := http.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRateLimitMiddleware_PerUser(t *testing.T) {
	alice, bob := uuid.New(), uuid.New()
	r := gin.New()
	r.GET("/", func(c *gin.Context) {
		if c.GetHeader("X-User") == "bob" {
			c.Set(ContextUserIDKey, bob)
		} else {
			c.Set(ContextUserIDKey, alice)
		}
		c.Next()
	}, RateLimitMiddleware(2, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	send := func(user string) *httptest.ResponseRecorder {
		req, _ := http.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-User", user)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, send("alice").Code)
	w := send("alice")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, http.StatusTooManyRequests, send("alice").Code)
	assert.Equal(t, http.StatusOK, send("bob").Code)
}

func TestCORSMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware([]string{"https://app.example.com"}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req, _ := http.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req, _ = http.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
