package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/alecgard/entretien/internal/user"
)

type contextKey int

const (
	userContextKey contextKey = iota
	tokenContextKey
)

// ContextWithUser returns a new context carrying the given user.
func ContextWithUser(ctx context.Context, u *user.User) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

// UserFromContext extracts the user from the context, or nil if not present.
func UserFromContext(ctx context.Context) *user.User {
	u, _ := ctx.Value(userContextKey).(*user.User)
	return u
}

// TokenFromContext extracts the validated bearer token from the context.
func TokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(tokenContextKey).(string)
	return t
}

// SessionValidator resolves bearer tokens to users.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (*user.User, error)
}

// SessionMiddleware returns middleware that validates the bearer token on
// every request and injects the user and token into the request context.
// Validity is re-checked per request; nothing is cached across requests.
func SessionMiddleware(sessions SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractBearerToken(r)
			if token == "" {
				writeUnauthorized(w, "missing or malformed authorization header")
				return
			}

			u, err := sessions.Validate(r.Context(), token)
			if err != nil {
				writeUnauthorized(w, "invalid or expired session")
				return
			}

			ctx := ContextWithUser(r.Context(), u)
			ctx = context.WithValue(ctx, tokenContextKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PasswordChangeGate blocks users flagged must_change_password from
// everything except rotating their password (the router exempts the
// change-password, whoami and logout routes).
func PasswordChangeGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := UserFromContext(r.Context())
		if u != nil && u.MustChangePassword {
			writeErrorResponse(w, http.StatusForbidden, "password_change_required",
				"password must be changed before continuing")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ExtractBearerToken pulls the token out of the Authorization header.
func ExtractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeErrorResponse(w, http.StatusUnauthorized, "unauthorized", message)
}

func writeErrorResponse(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error: errorBody{
			Code:    code,
			Message: message,
		},
	})
}
