package httpapi

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/laralabs/lara/internal/auth"
)

type ctxKey int

const userKey ctxKey = 0

// requireAuth resolves the bearer token before any business logic runs.
// A missing or rejected token short-circuits to 401 with the standard
// envelope.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			sendError(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		user, err := s.verifier.VerifyToken(r.Context(), token)
		if err != nil {
			log.Printf("token verification failed: %v", err)
			sendError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		if user == nil {
			sendError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	})
}

// recoverPanics converts any unhandled panic into the standard 500
// envelope. The underlying error text is exposed only in debug mode.
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("panic serving %s %s: %v", r.Method, r.URL.Path, rec)
				msg := "Internal server error"
				if s.cfg.Debug {
					msg = fmt.Sprintf("Internal server error: %v", rec)
				}
				sendError(w, http.StatusInternalServerError, msg)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func userFrom(ctx context.Context) *auth.User {
	u, _ := ctx.Value(userKey).(*auth.User)
	return u
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
