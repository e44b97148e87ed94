package main

import (
	"crypto/subtle"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"pdf-order-extractor/internal/constants"
)

const defaultFailureDelay = time.Second

// allowRule is one allow-list entry: an exact address string or an IPv4
// prefix. IPv6 prefixes are kept but never match.
type allowRule struct {
	raw    string
	prefix netip.Prefix
	cidr   bool
}

func parseAllowRule(s string) allowRule {
	rule := allowRule{raw: s}
	if !strings.Contains(s, "/") {
		return rule
	}
	rule.cidr = true
	prefix, err := netip.ParsePrefix(s)
	if err != nil {
		log.Warnf("Ignoring invalid allow-list entry '%s': %v", s, err)
		return rule
	}
	if prefix.Addr().Is4() {
		rule.prefix = prefix.Masked()
	}
	return rule
}

func (r allowRule) matches(ip string) bool {
	if !r.cidr {
		return ip == r.raw
	}
	if !r.prefix.IsValid() {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	return addr.Is4() && r.prefix.Contains(addr)
}

// sessionRegistry tracks issued session tokens and their expiry.
type sessionRegistry struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]time.Time
}

func newSessionRegistry(ttl time.Duration) *sessionRegistry {
	return &sessionRegistry{ttl: ttl, sessions: make(map[string]time.Time)}
}

func (r *sessionRegistry) issue() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for token, expires := range r.sessions {
		if now.After(expires) {
			delete(r.sessions, token)
		}
	}
	token := uuid.New().String()
	r.sessions[token] = now.Add(r.ttl)
	return token
}

func (r *sessionRegistry) valid(token string) bool {
	if token == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	expires, ok := r.sessions[token]
	if !ok {
		return false
	}
	if time.Now().After(expires) {
		delete(r.sessions, token)
		return false
	}
	return true
}

func (r *sessionRegistry) revoke(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, token)
}

// AccessControl holds the IP allow-list, the passcode and the active sessions.
type AccessControl struct {
	rules        []allowRule
	passcode     string
	sessions     *sessionRegistry
	sessionTTL   time.Duration
	failureDelay time.Duration
}

// NewAccessControl builds the access policy from cfg.
func NewAccessControl(cfg Config) *AccessControl {
	rules := make([]allowRule, 0, len(cfg.AllowedIPs))
	for _, entry := range cfg.AllowedIPs {
		rules = append(rules, parseAllowRule(entry))
	}
	return &AccessControl{
		rules:        rules,
		passcode:     cfg.Passcode,
		sessions:     newSessionRegistry(cfg.SessionTTL),
		sessionTTL:   cfg.SessionTTL,
		failureDelay: defaultFailureDelay,
	}
}

// IsAllowed reports whether ip matches any allow-list entry.
func (ac *AccessControl) IsAllowed(ip string) bool {
	for _, rule := range ac.rules {
		if rule.matches(ip) {
			return true
		}
	}
	return false
}

// Gate rejects clients outside the allow-list and sends browsers without a
// session to the login page. /login and /api/ paths only need the IP check.
func (ac *AccessControl) Gate() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		logger := log.WithFields(logrus.Fields{"ip": ip, "path": c.Request.URL.Path})

		if !ac.IsAllowed(ip) {
			logger.Warn("IP not in allow-list")
			c.String(http.StatusForbidden, "Access denied: IP not authorized")
			c.Abort()
			return
		}

		path := c.Request.URL.Path
		if path == "/login" || strings.HasPrefix(path, "/api/") {
			c.Next()
			return
		}

		if !ac.hasSession(c) {
			logger.Debug("No valid session, redirecting to login")
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}
		c.Next()
	}
}

func (ac *AccessControl) hasSession(c *gin.Context) bool {
	token, err := c.Cookie(constants.AuthCookieName)
	return err == nil && ac.sessions.valid(token)
}

// owner is the key that partitions the record store: the session token, or
// the client IP for callers without a session.
func (ac *AccessControl) owner(c *gin.Context) string {
	if token, err := c.Cookie(constants.AuthCookieName); err == nil && ac.sessions.valid(token) {
		return token
	}
	return "ip:" + c.ClientIP()
}

// authHandler handles the POST /api/auth endpoint
func (ac *AccessControl) authHandler(c *gin.Context) {
	var req AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Passcode == "" {
		c.JSON(http.StatusBadRequest, AuthResponse{Success: false, Message: "Passcode is required"})
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.Passcode), []byte(ac.passcode)) != 1 {
		log.WithField("ip", c.ClientIP()).Warn("Invalid passcode attempt")
		select {
		case <-time.After(ac.failureDelay):
		case <-c.Request.Context().Done():
		}
		c.JSON(http.StatusUnauthorized, AuthResponse{Success: false, Message: "Invalid passcode"})
		return
	}

	token := ac.sessions.issue()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(constants.AuthCookieName, token, int(ac.sessionTTL.Seconds()), "/", "", c.Request.TLS != nil, true)
	log.WithField("ip", c.ClientIP()).Info("Session started")
	c.JSON(http.StatusOK, AuthResponse{Success: true, Message: "Authentication successful"})
}

// logoutHandler handles the POST /api/logout endpoint
func (ac *AccessControl) logoutHandler(c *gin.Context) {
	if token, err := c.Cookie(constants.AuthCookieName); err == nil {
		ac.sessions.revoke(token)
	}
	c.SetCookie(constants.AuthCookieName, "", -1, "/", "", c.Request.TLS != nil, true)
	c.JSON(http.StatusOK, AuthResponse{Success: true, Message: "Logged out"})
}
