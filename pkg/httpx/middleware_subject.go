package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/damku999/trustengine/pkg/slogx"
)

// SubjectClaims is the context token the surrounding application mints
// after primary authentication. It identifies the already-authenticated
// principal; the trust engine never sees passwords or sessions beyond
// this reference.
type SubjectClaims struct {
	SubjectType string `json:"sub_type"` // "user" or "customer"
	SessionID   string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// SubjectMiddleware resolves {subject_type, subject_id} from an
// HS256-signed bearer token and injects it into the request context.
// Requests without a valid subject are rejected before reaching any
// engine operation.
func SubjectMiddleware(sharedSecret []byte) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			authz := r.Header.Get("Authorization")
			if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
				writeBearerError(w, "missing bearer token")
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))

			claims := &SubjectClaims{}
			_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return sharedSecret, nil
			}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
			if err != nil {
				log.Warn("subject token verification failed", "err", err)
				writeBearerError(w, "token verification failed")
				return
			}

			if claims.SubjectType == "" || claims.Subject == "" {
				writeBearerError(w, "token missing subject reference")
				return
			}

			ctx = context.WithValue(ctx, CtxKeySubjectType, claims.SubjectType)
			ctx = context.WithValue(ctx, CtxKeySubjectID, claims.Subject)
			if claims.SessionID != "" {
				ctx = context.WithValue(ctx, CtxKeySessionID, claims.SessionID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RFC 6750-style error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	w.WriteHeader(http.StatusUnauthorized)
}
