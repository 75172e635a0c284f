package access

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityNilSafety(t *testing.T) {
	var identity *Identity
	assert.False(t, identity.HasPermission("things.read"))
	_, ok := identity.Field("organization_id")
	assert.False(t, ok)
}

func TestIdentityPermissionsAndFields(t *testing.T) {
	identity := &Identity{
		Permissions: []string{"things.read"},
		Fields:      map[string]interface{}{"organization_id": "abc"},
	}
	assert.True(t, identity.HasPermission("things.read"))
	assert.False(t, identity.HasPermission("things.write"))

	value, ok := identity.Field("organization_id")
	assert.True(t, ok)
	assert.Equal(t, "abc", value)
}

func TestIdentityContextRoundTrip(t *testing.T) {
	identity := &Identity{Permissions: []string{"things.read"}}
	ctx := identity.ContextWithIdentity(context.Background())
	assert.Same(t, identity, IdentityFromContext(ctx))
	assert.Nil(t, IdentityFromContext(context.Background()))
}

func signToken(t *testing.T, key []byte, issuer string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":         issuer,
		"sub":         "user-1",
		"exp":         time.Now().Add(time.Hour).Unix(),
		"permissions": []string{"things.read"},
		"fields":      map[string]interface{}{"organization_id": "abc"},
	})
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestJwtMiddleware(t *testing.T) {
	key := []byte("secret-test-key")
	router := mux.NewRouter()
	router.Use(NewJwtMiddleware(&JwtMiddlewareBuilder{Key: key, Issuer: "cantal"}))

	var seen *Identity
	router.HandleFunc("/probe/", func(w http.ResponseWriter, r *http.Request) {
		seen = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	// valid token yields an identity
	r := httptest.NewRequest(http.MethodGet, "/probe/", nil)
	r.Header.Set("Authorization", "Bearer "+signToken(t, key, "cantal"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, seen)
	assert.True(t, seen.HasPermission("things.read"))
	value, _ := seen.Field("organization_id")
	assert.Equal(t, "abc", value)

	// no token passes through anonymously
	seen = &Identity{}
	r = httptest.NewRequest(http.MethodGet, "/probe/", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, seen)

	// a token signed with the wrong key is final
	r = httptest.NewRequest(http.MethodGet, "/probe/", nil)
	r.Header.Set("Authorization", "Bearer "+signToken(t, []byte("other-key"), "cantal"))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// so is a token from an unexpected issuer
	r = httptest.NewRequest(http.MethodGet, "/probe/", nil)
	r.Header.Set("Authorization", "Bearer "+signToken(t, key, "someone-else"))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// and a token signed with anything but HMAC
	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"iss": "cantal",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	r = httptest.NewRequest(http.MethodGet, "/probe/", nil)
	r.Header.Set("Authorization", "Bearer "+unsigned)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJwtMiddlewareRequiresKey(t *testing.T) {
	assert.Panics(t, func() { NewJwtMiddleware(&JwtMiddlewareBuilder{}) })
}
