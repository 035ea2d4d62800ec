// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// rateLimitConfig mirrors the teacher's middleware.RateLimitConfig.
type rateLimitConfig struct {
	RequestLimit int
	WindowSize   time.Duration
	Whitelist    []string
}

// rateLimit protects the publish/authorize endpoints from brute-forcing the
// stream-key space (spec.md §6.1), sliding-window and IP-keyed the way the
// teacher's middleware.RateLimit does.
func rateLimit(cfg rateLimitConfig) func(http.Handler) http.Handler {
	limiter := httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowSize,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(cfg.WindowSize.Seconds())))
			respondError(w, r, http.StatusTooManyRequests, &APIError{Code: "RATE_LIMITED", Message: "too many requests"})
		}),
	)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
				for _, allowed := range cfg.Whitelist {
					if allowed == ip {
						next.ServeHTTP(w, r)
						return
					}
				}
			}
			limiter(next).ServeHTTP(w, r)
		})
	}
}
