package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-order-extractor/internal/constants"
)

const defaultSessionTTLForTests = time.Hour

func TestAllowRules(t *testing.T) {
	ac := NewAccessControl(Config{
		AllowedIPs: []string{"127.0.0.1", "::1", "192.168.1.0/24", "118.200.240.101", "2001:db8::/32", "10.0.0.0/33"},
		SessionTTL: defaultSessionTTLForTests,
	})

	tests := []struct {
		ip      string
		allowed bool
	}{
		{"127.0.0.1", true},
		{"::1", true},
		{"192.168.1.1", true},
		{"192.168.1.254", true},
		{"192.168.2.1", false},
		{"118.200.240.101", true},
		{"118.200.240.102", false},
		{"2001:db8::1", false}, // IPv6 prefixes never match
		{"10.0.0.1", false},    // invalid prefix entry
		{"not-an-ip", false},
		{"", false},
	}

	for _, tc := range tests {
		t.Run(tc.ip, func(t *testing.T) {
			assert.Equal(t, tc.allowed, ac.IsAllowed(tc.ip))
		})
	}
}

func TestAllowRuleZeroPrefix(t *testing.T) {
	ac := NewAccessControl(Config{AllowedIPs: []string{"0.0.0.0/0"}})
	assert.True(t, ac.IsAllowed("203.0.113.9"))
	assert.False(t, ac.IsAllowed("::2"))
}

func TestSessionRegistry(t *testing.T) {
	r := newSessionRegistry(50 * time.Millisecond)
	token := r.issue()
	assert.True(t, r.valid(token))
	assert.False(t, r.valid("unknown"))
	assert.False(t, r.valid(""))

	r.revoke(token)
	assert.False(t, r.valid(token))

	expiring := r.issue()
	time.Sleep(80 * time.Millisecond)
	assert.False(t, r.valid(expiring))
}

// setupAccessRouter wires the gate and auth handlers onto a bare router.
func setupAccessRouter(t *testing.T) (*gin.Engine, *AccessControl) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ac := NewAccessControl(testConfig())
	ac.failureDelay = 50 * time.Millisecond

	router := gin.New()
	require.NoError(t, router.SetTrustedProxies(nil))
	gated := router.Group("/", ac.Gate())
	gated.POST("/api/auth", ac.authHandler)
	gated.POST("/api/logout", ac.logoutHandler)
	gated.GET("/api/ping", func(c *gin.Context) { c.String(http.StatusOK, ac.owner(c)) })
	gated.GET("/login", func(c *gin.Context) { c.String(http.StatusOK, "login") })
	gated.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "home") })
	return router, ac
}

func doRequest(router http.Handler, method, target, remoteIP string, body []byte, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.RemoteAddr = remoteIP + ":40000"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func authCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == constants.AuthCookieName {
			return c
		}
	}
	return nil
}

func TestGate(t *testing.T) {
	router, _ := setupAccessRouter(t)

	t.Run("IP outside allow-list", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/ping", "203.0.113.7", nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "Access denied: IP not authorized", w.Body.String())
	})

	t.Run("Forwarded header from untrusted peer is ignored", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
		req.RemoteAddr = "203.0.113.7:40000"
		req.Header.Set("X-Forwarded-For", "127.0.0.1")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("API path needs only the IP check", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/ping", "192.168.1.20", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ip:192.168.1.20", w.Body.String())
	})

	t.Run("Login page without session", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/login", "127.0.0.1", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Page without session redirects", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/", "127.0.0.1", nil)
		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/login", w.Header().Get("Location"))
	})

	t.Run("Forged cookie redirects", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/", "127.0.0.1", nil,
			&http.Cookie{Name: constants.AuthCookieName, Value: "authenticated"})
		assert.Equal(t, http.StatusFound, w.Code)
	})
}

func TestAuthHandler(t *testing.T) {
	router, _ := setupAccessRouter(t)

	t.Run("Missing passcode", func(t *testing.T) {
		w := doRequest(router, http.MethodPost, "/api/auth", "127.0.0.1", []byte(`{}`))
		assert.Equal(t, http.StatusBadRequest, w.Code)

		var resp AuthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		assert.Equal(t, "Passcode is required", resp.Message)
	})

	t.Run("Wrong passcode is delayed", func(t *testing.T) {
		start := time.Now()
		w := doRequest(router, http.MethodPost, "/api/auth", "127.0.0.1", []byte(`{"passcode":"guess"}`))
		assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Nil(t, authCookie(w))

		var resp AuthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "Invalid passcode", resp.Message)
	})

	t.Run("Session lifecycle", func(t *testing.T) {
		w := doRequest(router, http.MethodPost, "/api/auth", "127.0.0.1", []byte(`{"passcode":"secret"}`))
		require.Equal(t, http.StatusOK, w.Code)

		var resp AuthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, "Authentication successful", resp.Message)

		cookie := authCookie(w)
		require.NotNil(t, cookie)
		assert.True(t, cookie.HttpOnly)

		w = doRequest(router, http.MethodGet, "/", "127.0.0.1", nil, cookie)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "home", w.Body.String())

		w = doRequest(router, http.MethodGet, "/api/ping", "127.0.0.1", nil, cookie)
		assert.Equal(t, cookie.Value, w.Body.String(), "session token is the owner key")

		w = doRequest(router, http.MethodPost, "/api/logout", "127.0.0.1", nil, cookie)
		assert.Equal(t, http.StatusOK, w.Code)

		w = doRequest(router, http.MethodGet, "/", "127.0.0.1", nil, cookie)
		assert.Equal(t, http.StatusFound, w.Code)
	})
}
