package server

import (
	"net/http"
	"strings"
	"time"
)

const (
	tokenCookieName      = "lg_token"
	integrationKeyHeader = "X-Integration-Api-Key"
)

// authMiddleware accepts the dashboard token as a bearer header, a query
// param (which is swapped for a cookie) or the cookie itself.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
			if bearer != s.token {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		queryToken := r.URL.Query().Get("token")
		if queryToken != "" {
			if queryToken != s.token {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			http.SetCookie(w, &http.Cookie{
				Name:     tokenCookieName,
				Value:    s.token,
				Path:     "/",
				HttpOnly: true,
				MaxAge:   int(24 * time.Hour / time.Second),
				SameSite: http.SameSiteLaxMode,
			})

			newURL := *r.URL
			q := newURL.Query()
			q.Del("token")
			newURL.RawQuery = q.Encode()
			http.Redirect(w, r, newURL.String(), http.StatusFound)
			return
		}

		cookie, err := r.Cookie(tokenCookieName)
		if err != nil || cookie.Value != s.token {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireIntegrationKey rejects integration calls without a provider API
// key. The key is request-scoped and never stored.
func requireIntegrationKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(integrationKeyHeader) == "" {
			writeError(w, http.StatusUnauthorized, integrationKeyHeader+" header is required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
