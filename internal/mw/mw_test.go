package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luna-backend/internal/lifecycle"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func authRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", Auth(testSecret), func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})
	return r
}

func TestAuth(t *testing.T) {
	valid := signToken(t, testSecret, jwt.RegisteredClaims{
		Subject:   "user-7",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	testCases := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{name: "valid token", header: "Bearer " + valid, wantStatus: http.StatusOK, wantBody: "user-7"},
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized, wantBody: "Authentication required"},
		{name: "wrong scheme", header: "Basic " + valid, wantStatus: http.StatusUnauthorized, wantBody: "Invalid authentication"},
		{name: "garbage token", header: "Bearer not-a-jwt", wantStatus: http.StatusUnauthorized, wantBody: "Invalid authentication"},
		{
			name:       "wrong secret",
			header:     "Bearer " + signToken(t, "other-secret", jwt.RegisteredClaims{Subject: "user-7"}),
			wantStatus: http.StatusUnauthorized,
			wantBody:   "Invalid authentication",
		},
		{
			name: "expired token",
			header: "Bearer " + signToken(t, testSecret, jwt.RegisteredClaims{
				Subject:   "user-7",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			}),
			wantStatus: http.StatusUnauthorized,
			wantBody:   "Invalid authentication",
		},
		{
			name:       "no subject",
			header:     "Bearer " + signToken(t, testSecret, jwt.RegisteredClaims{}),
			wantStatus: http.StatusUnauthorized,
			wantBody:   "Invalid authentication",
		},
	}

	router := authRouter()
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tc.wantStatus, w.Code)
			if tc.wantStatus == http.StatusUnauthorized {
				assert.JSONEq(t, `{"error":"`+tc.wantBody+`","kind":"auth"}`, w.Body.String())
			} else {
				assert.Equal(t, tc.wantBody, w.Body.String())
			}
		})
	}
}

func TestAuth_RecordsAuthError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var recorded error
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Next()
		if last := c.Errors.Last(); last != nil {
			recorded = last.Err
		}
	})
	r.GET("/me", Auth(testSecret), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	require.NotNil(t, recorded)
	assert.Equal(t, lifecycle.KindAuth, lifecycle.KindOf(recorded))
}

func TestRateLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimiter(1, 2))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
}

func TestKeyedRateLimiter_ReusesLimiter(t *testing.T) {
	l := NewKeyedRateLimiter(1, 1)
	assert.Same(t, l.Limiter("user:a"), l.Limiter("user:a"))
	assert.NotSame(t, l.Limiter("user:a"), l.Limiter("user:b"))
}

func TestCache(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := cache.New(time.Minute, time.Minute)
	calls := 0

	r := gin.New()
	r.Use(Cache(store, time.Minute))
	r.GET("/api/books", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusOK, gin.H{"calls": calls})
	})
	r.GET("/api/books/missing", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusNotFound, gin.H{"error": "Book not found"})
	})

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	first := get("/api/books?q=dune&section=A")
	second := get("/api/books?section=A&q=dune")
	assert.Equal(t, first.Body.String(), second.Body.String(), "equivalent queries share an entry")
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, 1, calls)

	store.Flush()
	get("/api/books?q=dune&section=A")
	assert.Equal(t, 2, calls)

	get("/api/books/missing")
	get("/api/books/missing")
	assert.Equal(t, 4, calls, "errors are not cached")
}
