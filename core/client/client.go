/*
Package client provides easy and fast in-process access to a JSON:API

Instead of marshalling HTTP, the client talks directly to the mux router.
It is perfectly suited for unit tests: requests carry an identity in the
request context the way the JWT middleware would put it there.
*/
package client

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/cantal-tech/jsonapi/core/access"
	"github.com/cantal-tech/jsonapi/core/jsonapi"
)

// Client provides easy access to the JSON:API endpoints.
type Client struct {
	router   *mux.Router
	identity *access.Identity
	headers  map[string]string
}

// NewWithRouter creates a client that makes pseudo-HTTP requests through
// the mux router.
func NewWithRouter(router *mux.Router) Client {
	return Client{
		router:  router,
		headers: map[string]string{},
	}
}

// WithIdentity returns a new client acting as the given identity.
func (c Client) WithIdentity(identity *access.Identity) Client {
	c.identity = identity
	return c
}

// WithPermissions returns a new client acting as an identity with the given
// permissions.
func (c Client) WithPermissions(permissions ...string) Client {
	return c.WithIdentity(&access.Identity{Permissions: permissions})
}

// WithHeader returns a new client with a default header added.
func (c Client) WithHeader(key, value string) Client {
	headers := map[string]string{key: value}
	for k, v := range c.headers {
		headers[k] = v
	}
	c.headers = headers
	return c
}

// RawDo executes one request against the router and returns the response
// status and body.
func (c Client) RawDo(method, path string, body []byte) (int, []byte, error) {
	r := httptest.NewRequest(method, path, bytes.NewReader(body))
	if len(body) > 0 {
		r.Header.Set("Content-Type", jsonapi.ContentType)
	}
	for key, value := range c.headers {
		r.Header.Set(key, value)
	}
	if c.identity != nil {
		r = r.WithContext(c.identity.ContextWithIdentity(r.Context()))
	}
	rec := httptest.NewRecorder()
	c.router.ServeHTTP(rec, r)
	return rec.Code, rec.Body.Bytes(), nil
}

func (c Client) do(method, path string, document interface{}, result interface{}) (int, error) {
	var body []byte
	var err error
	if document != nil {
		body, err = json.Marshal(document)
		if err != nil {
			return 0, err
		}
	}
	status, response, err := c.RawDo(method, path, body)
	if err != nil {
		return status, err
	}
	if status >= 400 {
		var errorDocument jsonapi.ErrorDocument
		if json.Unmarshal(response, &errorDocument) == nil && len(errorDocument.Errors) > 0 {
			e := errorDocument.Errors[0]
			return status, &jsonapi.Error{Code: e.Code, Status: status, Meta: e.Meta}
		}
		return status, fmt.Errorf("%s %s: status %d", method, path, status)
	}
	if result != nil && len(response) > 0 {
		if err := json.Unmarshal(response, result); err != nil {
			return status, err
		}
	}
	return status, nil
}

// Get reads a resource or collection into result.
func (c Client) Get(path string, result interface{}) (int, error) {
	return c.do(http.MethodGet, path, nil, result)
}

// Post creates a resource from the given document.
func (c Client) Post(path string, document interface{}, result interface{}) (int, error) {
	return c.do(http.MethodPost, path, document, result)
}

// Patch updates a resource from the given document.
func (c Client) Patch(path string, document interface{}, result interface{}) (int, error) {
	return c.do(http.MethodPatch, path, document, result)
}

// Delete deletes a resource.
func (c Client) Delete(path string) (int, error) {
	return c.do(http.MethodDelete, path, nil, nil)
}
