package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/codeforge-rag/service/internal/observability"
)

// SecurityConfig holds configuration for security headers
type SecurityConfig struct {
	// Content Security Policy
	CSP CSPConfig `json:"csp" yaml:"csp"`

	// HTTP Strict Transport Security
	HSTS HSTSConfig `json:"hsts" yaml:"hsts"`

	// X-Frame-Options
	XFrameOptions string `json:"x_frame_options" yaml:"x_frame_options"`

	// X-Content-Type-Options
	XContentTypeOptions string `json:"x_content_type_options" yaml:"x_content_type_options"`

	// Referrer-Policy
	ReferrerPolicy string `json:"referrer_policy" yaml:"referrer_policy"`

	// Permissions-Policy
	PermissionsPolicy string `json:"permissions_policy" yaml:"permissions_policy"`
}

// CSPConfig holds Content Security Policy configuration. This service only
// ever serves JSON (spec §6's three operations plus the root info route),
// never HTML or a script/style/font asset, so unlike a browser-facing
// product it needs no per-resource-type source lists — just a blanket deny
// and a frame-ancestors directive to back up X-Frame-Options.
type CSPConfig struct {
	Enabled    bool     `json:"enabled" yaml:"enabled"`
	Directives []string `json:"directives" yaml:"directives"`
	Report     string   `json:"report" yaml:"report"`
}

// HSTSConfig holds HTTP Strict Transport Security configuration
type HSTSConfig struct {
	Enabled           bool `json:"enabled" yaml:"enabled"`
	MaxAge            int  `json:"max_age" yaml:"max_age"`
	IncludeSubdomains bool `json:"include_subdomains" yaml:"include_subdomains"`
	Preload           bool `json:"preload" yaml:"preload"`
}

// SecurityMiddleware provides security headers middleware
type SecurityMiddleware struct {
	config SecurityConfig
	logger *observability.Logger
}

// NewSecurityMiddleware creates a new security middleware with default restrictive configuration
func NewSecurityMiddleware(config SecurityConfig, logger *observability.Logger) *SecurityMiddleware {
	// Set restrictive defaults if not configured
	if config.XFrameOptions == "" {
		config.XFrameOptions = "DENY"
	}
	if config.XContentTypeOptions == "" {
		config.XContentTypeOptions = "nosniff"
	}
	if config.ReferrerPolicy == "" {
		config.ReferrerPolicy = "strict-origin-when-cross-origin"
	}
	if config.PermissionsPolicy == "" {
		config.PermissionsPolicy = "camera=(), microphone=(), geolocation=(), payment=()"
	}

	// Set CSP defaults if enabled but not configured
	if config.CSP.Enabled && len(config.CSP.Directives) == 0 {
		config.CSP.Directives = []string{"default-src 'none'", "frame-ancestors 'none'"}
	}

	// Set HSTS defaults if enabled but not configured
	if config.HSTS.Enabled && config.HSTS.MaxAge == 0 {
		config.HSTS.MaxAge = 31536000 // 1 year
	}

	return &SecurityMiddleware{
		config: config,
		logger: logger,
	}
}

// Middleware returns an HTTP middleware function that adds security headers
func (sm *SecurityMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Add Content Security Policy
		if sm.config.CSP.Enabled {
			csp := sm.buildCSP()
			w.Header().Set("Content-Security-Policy", csp)
		}

		// Add HTTP Strict Transport Security
		if sm.config.HSTS.Enabled {
			hsts := sm.buildHSTS()
			w.Header().Set("Strict-Transport-Security", hsts)
		}

		// Add X-Frame-Options
		if sm.config.XFrameOptions != "" {
			w.Header().Set("X-Frame-Options", sm.config.XFrameOptions)
		}

		// Add X-Content-Type-Options
		if sm.config.XContentTypeOptions != "" {
			w.Header().Set("X-Content-Type-Options", sm.config.XContentTypeOptions)
		}

		// Add Referrer-Policy
		if sm.config.ReferrerPolicy != "" {
			w.Header().Set("Referrer-Policy", sm.config.ReferrerPolicy)
		}

		// Add Permissions-Policy
		if sm.config.PermissionsPolicy != "" {
			w.Header().Set("Permissions-Policy", sm.config.PermissionsPolicy)
		}

		// Continue with the next handler
		next.ServeHTTP(w, r)

		// Log security headers application
		duration := time.Since(start)
		sm.logger.Debug("Applied security headers",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", duration.Milliseconds(),
			"csp_enabled", sm.config.CSP.Enabled,
			"hsts_enabled", sm.config.HSTS.Enabled,
		)
	})
}

// buildCSP constructs the Content Security Policy header value
func (sm *SecurityMiddleware) buildCSP() string {
	directives := make([]string, len(sm.config.CSP.Directives))
	copy(directives, sm.config.CSP.Directives)

	if sm.config.CSP.Report != "" {
		directives = append(directives, "report-uri "+sm.config.CSP.Report)
	}

	return strings.Join(directives, "; ")
}

// buildHSTS constructs the HTTP Strict Transport Security header value
func (sm *SecurityMiddleware) buildHSTS() string {
	hsts := fmt.Sprintf("max-age=%d", sm.config.HSTS.MaxAge)

	if sm.config.HSTS.IncludeSubdomains {
		hsts += "; includeSubDomains"
	}

	if sm.config.HSTS.Preload {
		hsts += "; preload"
	}

	return hsts
}

// DefaultSecurityConfig returns a restrictive default security configuration
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		CSP: CSPConfig{
			Enabled:    true,
			Directives: []string{"default-src 'none'", "frame-ancestors 'none'"},
		},
		HSTS: HSTSConfig{
			Enabled:           true,
			MaxAge:            31536000, // 1 year
			IncludeSubdomains: true,
			Preload:           false,
		},
		XFrameOptions:       "DENY",
		XContentTypeOptions: "nosniff",
		ReferrerPolicy:      "strict-origin-when-cross-origin",
		PermissionsPolicy:   "camera=(), microphone=(), geolocation=(), payment=()",
	}
}
