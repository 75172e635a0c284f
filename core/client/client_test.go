package client

import (
	"net/http"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cantal-tech/jsonapi/core/access"
	"github.com/cantal-tech/jsonapi/core/jsonapi"
)

func probeRouter(t *testing.T) *mux.Router {
	t.Helper()
	router := mux.NewRouter()
	router.HandleFunc("/probe/", func(w http.ResponseWriter, r *http.Request) {
		identity := access.IdentityFromContext(r.Context())
		response := map[string]interface{}{
			"method":       r.Method,
			"content_type": r.Header.Get("Content-Type"),
			"custom":       r.Header.Get("X-Custom"),
			"anonymous":    identity == nil,
		}
		if identity != nil {
			response["permissions"] = identity.Permissions
		}
		body, _ := json.Marshal(response)
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	})
	router.HandleFunc("/broken/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"errors":[{"code":"model_not_found_error"}]}`))
	})
	return router
}

func TestClientCarriesIdentityAndHeaders(t *testing.T) {
	c := NewWithRouter(probeRouter(t)).
		WithPermissions("things.read").
		WithHeader("X-Custom", "yes")

	var response map[string]interface{}
	status, err := c.Post("/probe/", map[string]string{"ping": "pong"}, &response)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "POST", response["method"])
	assert.Equal(t, jsonapi.ContentType, response["content_type"])
	assert.Equal(t, "yes", response["custom"])
	assert.Equal(t, false, response["anonymous"])
	assert.Equal(t, []interface{}{"things.read"}, response["permissions"])
}

func TestClientWithoutIdentityIsAnonymous(t *testing.T) {
	c := NewWithRouter(probeRouter(t))

	var response map[string]interface{}
	_, err := c.Get("/probe/", &response)
	require.NoError(t, err)
	assert.Equal(t, true, response["anonymous"])
	// bodyless requests carry no content type
	assert.Equal(t, "", response["content_type"])
}

func TestClientDecodesErrorEnvelope(t *testing.T) {
	c := NewWithRouter(probeRouter(t))

	status, err := c.Get("/broken/", nil)
	assert.Equal(t, http.StatusNotFound, status)
	require.Error(t, err)
	e, ok := err.(*jsonapi.Error)
	require.True(t, ok)
	assert.Equal(t, "model_not_found_error", e.Code)
	assert.Equal(t, http.StatusNotFound, e.Status)
}

func TestClientHeadersDoNotLeakBetweenClients(t *testing.T) {
	base := NewWithRouter(probeRouter(t))
	custom := base.WithHeader("X-Custom", "yes")

	var response map[string]interface{}
	_, err := base.Get("/probe/", &response)
	require.NoError(t, err)
	assert.Equal(t, "", response["custom"])

	_, err = custom.Get("/probe/", &response)
	require.NoError(t, err)
	assert.Equal(t, "yes", response["custom"])
}
