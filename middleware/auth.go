package middleware

import (
	"context"
	"net/http"
	"strings"

	"courtside/database"
	"courtside/models"
)

type contextKey string

const UserContextKey contextKey = "user"

// Auth middleware checks for valid session and adds user to context.
// The token comes from the Authorization header, or from the token query
// parameter for socket upgrades, which cannot carry custom headers.
func Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := TokenFromRequest(r)
		if token == "" {
			http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
			return
		}

		session, err := database.GetSession(token)
		if err != nil {
			http.Error(w, `{"error": "Invalid session"}`, http.StatusUnauthorized)
			return
		}

		user, err := database.GetUserByID(session.UserID)
		if err != nil {
			http.Error(w, `{"error": "User not found"}`, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TokenFromRequest extracts the bearer token of a request
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// GetUserFromContext retrieves the user from the request context
func GetUserFromContext(r *http.Request) *models.User {
	user, ok := r.Context().Value(UserContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}
