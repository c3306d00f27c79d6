package v1

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const ctxKeyUserID ctxKey = "authenticatedUserID"

// parseToken reads "Authorization: Bearer <token>", falling back to X-Token.
func parseToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > len("Bearer ") && strings.EqualFold(h[:len("Bearer ")], "Bearer ") {
			return strings.TrimSpace(h[len("Bearer "):])
		}
		return ""
	}
	return strings.TrimSpace(r.Header.Get("X-Token"))
}

// requireUser resolves the request token and stores the user id in the context.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.auth.Resolve(r.Context(), parseToken(r))
		if err != nil {
			s.writeServiceErr(w, r, err)
			return
		}
		if sc := scopeFrom(r.Context()); sc != nil {
			sc.userID = userID
		}
		ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// userIDFrom returns the id stored by requireUser.
func userIDFrom(r *http.Request) uuid.UUID {
	id, _ := r.Context().Value(ctxKeyUserID).(uuid.UUID)
	return id
}
