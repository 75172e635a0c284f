package access

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"

	"github.com/cantal-tech/jsonapi/core/logger"
)

// JwtMiddlewareBuilder is a helper builder for the JWT middleware
type JwtMiddlewareBuilder struct {
	// Key is the HMAC key used to verify token signatures. This is mandatory.
	Key []byte
	// Issuer is the accepted issuer for the token. Optional.
	Issuer string
}

// identityClaims are the custom claims the middleware maps to an Identity.
type identityClaims struct {
	Permissions []string               `json:"permissions"`
	Fields      map[string]interface{} `json:"fields"`
	jwt.RegisteredClaims
}

// NewJwtMiddleware returns a middleware handler that validates JWT bearer
// tokens and attaches the resulting Identity to the request context.
//
// Tokens are accepted as "Authorization: Bearer" header. Requests without
// a token pass through unauthenticated; the resource profiles decide what an
// anonymous identity may do. A present but invalid token is final and
// answered with http.StatusUnauthorized.
func NewJwtMiddleware(jmb *JwtMiddlewareBuilder) mux.MiddlewareFunc {

	if len(jmb.Key) == 0 {
		panic("jwt middleware: key is missing")
	}

	keyFunc := func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.NewValidationError("unexpected signing method", jwt.ValidationErrorSignatureInvalid)
		}
		return jmb.Key, nil
	}

	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IdentityFromContext(r.Context()) != nil { // already authenticated?
				h.ServeHTTP(w, r)
				return
			}

			tokenString := ""
			bearer := r.Header.Get("Authorization")
			if len(bearer) >= 8 && strings.ToLower(bearer[:7]) == "bearer " {
				tokenString = bearer[7:]
			}
			if len(tokenString) == 0 {
				h.ServeHTTP(w, r) // no token no identity, moving on
				return
			}

			rlog := logger.FromContext(r.Context())

			claims := identityClaims{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, keyFunc)
			if err != nil || !token.Valid {
				rlog.WithError(err).Infoln("invalid bearer token")
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			if jmb.Issuer != "" && claims.Issuer != jmb.Issuer {
				rlog.Infoln("token from unexpected issuer:", claims.Issuer)
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			identity := &Identity{
				Permissions: claims.Permissions,
				Fields:      claims.Fields,
			}
			ctx := identity.ContextWithIdentity(r.Context())
			ctx, _ = logger.ContextWithLoggerIdentity(ctx, claims.Subject)
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
