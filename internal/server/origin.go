// Package server normalizes and validates HTTP origins for WebSocket requests
// to enforce configured access control.
package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// originPolicy is the allow-list built from Config.AllowedOrigins. A "*"
// entry allows every well-formed origin.
type originPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
}

func newOriginPolicy(origins []string) (originPolicy, []string) {
	policy := originPolicy{allowed: make(map[string]struct{}, len(origins))}
	normalized := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		switch {
		case trimmed == "":
			continue
		case trimmed == "*":
			policy.allowAll = true
			continue
		}

		canonical, ok := normalizeOrigin(trimmed)
		if !ok {
			slog.Warn("Ignoring invalid origin in configuration", "origin", origin)
			continue
		}
		if _, dup := policy.allowed[canonical]; dup {
			continue
		}
		policy.allowed[canonical] = struct{}{}
		normalized = append(normalized, canonical)
	}

	return policy, normalized
}

// normalizeOrigin lowercases scheme and host so header values compare equal
// to configured entries regardless of case or trailing path.
func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}

	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

func (p originPolicy) allows(header string) bool {
	if header == "" {
		return false
	}

	canonical, ok := normalizeOrigin(header)
	if !ok {
		return false
	}

	if p.allowAll {
		return true
	}
	_, ok = p.allowed[canonical]
	return ok
}

func isOriginAllowed(r *http.Request) bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return activeOrigins.allows(r.Header.Get("Origin"))
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	if isOriginAllowed(r) {
		return true
	}

	g.log.Warn("Blocked WebSocket connection from disallowed origin",
		"origin", r.Header.Get("Origin"), "remote_addr", r.RemoteAddr)
	return false
}
