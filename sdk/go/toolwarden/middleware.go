package toolwarden

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
)

// Middleware returns an http.Handler that checks each request against the
// rules as a call to the "http" tool before passing it to next.
// Blocked requests receive a 403 with a JSON body.
func (c *Client) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := c.Check(r.Context(), callFromRequest(r))

		if !result.Allowed() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]any{
				"blocked":  true,
				"decision": string(result.Decision),
				"rule":     result.Rule,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// callFromRequest maps an HTTP request to a Call.
func callFromRequest(r *http.Request) Call {
	resource := r.URL.String()
	if r.URL.Host == "" && r.Host != "" {
		resource = r.Host + r.URL.RequestURI()
	}

	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	return Call{
		Tool: "http",
		Args: map[string]any{
			"method": strings.ToUpper(r.Method),
			"url":    resource,
			"host":   host,
		},
	}
}
