package jsonapi_test

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cantal-tech/jsonapi/core"
	"github.com/cantal-tech/jsonapi/core/client"
	"github.com/cantal-tech/jsonapi/core/condition"
	"github.com/cantal-tech/jsonapi/core/jsonapi"
	"github.com/cantal-tech/jsonapi/core/memstore"
)

type recordingNotifier struct {
	mutex    sync.Mutex
	events   []string
	payloads []string
}

func (n *recordingNotifier) Notify(resource string, operation core.Operation, payload []byte) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.events = append(n.events, resource+" "+string(operation))
	n.payloads = append(n.payloads, string(payload))
}

func articleDefinition() *jsonapi.Definition {
	return &jsonapi.Definition{
		Name: "Article",
		Fields: []jsonapi.FieldSpec{
			{Name: "title", Required: true, MaxLength: 40},
			{Name: "body"},
			{Name: "draft_note", Virtual: true},
		},
		Create: &jsonapi.Profile{
			Condition:    condition.HasPermission("articles.write"),
			Attributes:   []string{"title", "body", "draft_note"},
			ShowResponse: true,
		},
		Read: &jsonapi.Profile{
			Condition:  condition.HasPermission("articles.read"),
			Attributes: []string{"title", "body"},
		},
		Update: &jsonapi.Profile{
			Condition:  condition.HasPermission("articles.write"),
			Attributes: []string{"title", "body"},
		},
		Delete: &jsonapi.Profile{
			Condition: condition.HasPermission("articles.write"),
		},
	}
}

func pingDefinition() *jsonapi.Definition {
	return &jsonapi.Definition{
		Name:   "Ping",
		Fields: []jsonapi.FieldSpec{{Name: "message"}},
		Create: &jsonapi.Profile{
			Attributes: []string{"message"},
		},
		Hooks: jsonapi.Hooks{
			AfterSave: func(ctx context.Context, tx jsonapi.Store, record *jsonapi.Record, created bool) (jsonapi.Disposition, error) {
				return jsonapi.Suppress, nil
			},
		},
	}
}

type testAPI struct {
	client   client.Client
	store    *memstore.Store
	notifier *recordingNotifier
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := memstore.New()
	notifier := &recordingNotifier{}
	router := mux.NewRouter()
	jsonapi.MustNew(&jsonapi.Builder{
		Registry: jsonapi.NewRegistry(articleDefinition(), pingDefinition()),
		Store:    store,
		Router:   router,
		Notifier: notifier,
	})
	return &testAPI{
		client:   client.NewWithRouter(router),
		store:    store,
		notifier: notifier,
	}
}

func writer(api *testAPI) client.Client {
	return api.client.WithPermissions("articles.read", "articles.write")
}

func articleDocument(title string) map[string]interface{} {
	return map[string]interface{}{
		"data": map[string]interface{}{
			"type": "Article",
			"attributes": map[string]interface{}{
				"title": title,
			},
		},
	}
}

func createArticle(t *testing.T, api *testAPI, title string) string {
	t.Helper()
	var response jsonapi.Document
	status, err := writer(api).Post("/articles/", articleDocument(title), &response)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, response.Data)
	return response.Data.ID
}

func TestCreateRendersResource(t *testing.T) {
	api := newTestAPI(t)

	var response jsonapi.Document
	status, err := writer(api).Post("/articles/", map[string]interface{}{
		"data": map[string]interface{}{
			"type": "Article",
			"attributes": map[string]interface{}{
				"title": "Hello",
				"body":  "World",
			},
		},
	}, &response)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	require.NotNil(t, response.Data)
	assert.NotEmpty(t, response.Data.ID)
	assert.Equal(t, "Article", response.Data.Type)
	assert.Equal(t, "Hello", response.Data.Attributes["title"])
	assert.Equal(t, []string{"articles create"}, api.notifier.events)
}

func TestNotificationsOmitVirtualFields(t *testing.T) {
	api := newTestAPI(t)

	status, err := writer(api).Post("/articles/", map[string]interface{}{
		"data": map[string]interface{}{
			"type": "Article",
			"attributes": map[string]interface{}{
				"title":     "Hello",
				"draftNote": "not for publication",
			},
		},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)

	require.Len(t, api.notifier.payloads, 1)
	assert.Contains(t, api.notifier.payloads[0], "Hello")
	assert.NotContains(t, api.notifier.payloads[0], "not for publication")
	assert.NotContains(t, api.notifier.payloads[0], "draft_note")
}

func TestCreateRequiresContentType(t *testing.T) {
	api := newTestAPI(t)

	c := writer(api).WithHeader("Content-Type", "application/json")
	status, body, err := c.RawDo(http.MethodPost, "/articles/", []byte(`{"data":{"type":"Article"}}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), "request_header_invalid_error")
}

func TestCreateRejectsMalformedBodies(t *testing.T) {
	api := newTestAPI(t)
	c := writer(api).WithHeader("Content-Type", jsonapi.ContentType)

	status, body, err := c.RawDo(http.MethodPost, "/articles/", []byte(`{not json`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), "request_body_json_decode_error")

	// valid JSON, but not a JSON:API document
	status, body, err = c.RawDo(http.MethodPost, "/articles/", []byte(`{"title":"Hello"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), "request_body_json_schema_error")

	// a create document must not carry an id
	status, body, err = c.RawDo(http.MethodPost, "/articles/",
		[]byte(`{"data":{"id":"x","type":"Article"}}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), "request_body_json_schema_error")
}

func TestCreateRejectsWrongType(t *testing.T) {
	api := newTestAPI(t)

	status, err := writer(api).Post("/articles/", map[string]interface{}{
		"data": map[string]interface{}{"type": "Device"},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	require.Error(t, err)
	assert.Equal(t, "model_type_invalid_error", err.(*jsonapi.Error).Code)
}

func TestCreateUnauthorizedLooksLikeNotFound(t *testing.T) {
	api := newTestAPI(t)

	status, err := api.client.Post("/articles/", articleDocument("Hello"), nil)
	assert.Equal(t, http.StatusNotFound, status)
	require.Error(t, err)
	assert.Equal(t, "not_found_error", err.(*jsonapi.Error).Code)
	assert.Empty(t, api.notifier.events)
}

func TestCreateValidationFailureIsClassified(t *testing.T) {
	api := newTestAPI(t)

	status, err := writer(api).Post("/articles/", map[string]interface{}{
		"data": map[string]interface{}{
			"type":       "Article",
			"attributes": map[string]interface{}{"body": "no title"},
		},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	require.Error(t, err)
	e := err.(*jsonapi.Error)
	assert.Equal(t, "model_attribute_required_error", e.Code)
	assert.Equal(t, "title", e.Meta["field"])
}

func TestCreateRejectsDisallowedAttribute(t *testing.T) {
	api := newTestAPI(t)

	status, err := writer(api).Post("/articles/", map[string]interface{}{
		"data": map[string]interface{}{
			"type":       "Article",
			"attributes": map[string]interface{}{"title": "x", "rating": 5},
		},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	require.Error(t, err)
	e := err.(*jsonapi.Error)
	assert.Equal(t, "model_attribute_not_allowed_error", e.Code)
	assert.Equal(t, "rating", e.Meta["key"])
}

func TestGetHiddenAndAbsentAreIndistinguishable(t *testing.T) {
	api := newTestAPI(t)
	id := createArticle(t, api, "Hello")

	var response jsonapi.Document
	status, err := writer(api).Get("/articles/"+id+"/", &response)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Hello", response.Data.Attributes["title"])

	// no read permission
	_, errHidden := api.client.Get("/articles/"+id+"/", nil)
	// record does not exist
	_, errAbsent := writer(api).Get("/articles/00000000-0000-0000-0000-000000000000/", nil)

	require.Error(t, errHidden)
	require.Error(t, errAbsent)
	assert.Equal(t, errAbsent.(*jsonapi.Error).Code, errHidden.(*jsonapi.Error).Code)
	assert.Equal(t, "model_not_found_error", errHidden.(*jsonapi.Error).Code)
}

func TestListNarrowsToCondition(t *testing.T) {
	api := newTestAPI(t)
	createArticle(t, api, "One")
	createArticle(t, api, "Two")

	var response jsonapi.CollectionDocument
	status, err := writer(api).Get("/articles/", &response)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, response.Data, 2)

	// without permission the collection is empty, not an error
	status, err = api.client.Get("/articles/", &response)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, response.Data)
}

func TestReadRejectsBody(t *testing.T) {
	api := newTestAPI(t)

	status, body, err := writer(api).RawDo(http.MethodGet, "/articles/", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), "request_body_not_allowed_error")
}

func TestUpdate(t *testing.T) {
	api := newTestAPI(t)
	id := createArticle(t, api, "Hello")

	// the update profile has no ShowResponse, so success is empty
	status, err := writer(api).Patch("/articles/"+id+"/", map[string]interface{}{
		"data": map[string]interface{}{
			"id":         id,
			"type":       "Article",
			"attributes": map[string]interface{}{"title": "Changed"},
		},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, status)

	var response jsonapi.Document
	_, err = writer(api).Get("/articles/"+id+"/", &response)
	require.NoError(t, err)
	assert.Equal(t, "Changed", response.Data.Attributes["title"])
	assert.Contains(t, api.notifier.events, "articles update")
}

func TestUpdateChecksDocumentID(t *testing.T) {
	api := newTestAPI(t)
	id := createArticle(t, api, "Hello")

	// id mismatch is detected before the record is even looked up
	status, err := writer(api).Patch("/articles/"+id+"/", map[string]interface{}{
		"data": map[string]interface{}{
			"id":         "00000000-0000-0000-0000-000000000000",
			"type":       "Article",
			"attributes": map[string]interface{}{"title": "Changed"},
		},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	require.Error(t, err)
	assert.Equal(t, "model_id_does_not_match_error", err.(*jsonapi.Error).Code)

	// an update document without id violates the schema
	status, _, rawErr := writer(api).RawDo(http.MethodPatch, "/articles/"+id+"/",
		[]byte(`{"data":{"type":"Article"}}`))
	require.NoError(t, rawErr)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestDelete(t *testing.T) {
	api := newTestAPI(t)
	id := createArticle(t, api, "Hello")

	status, err := writer(api).Delete("/articles/" + id + "/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, status)

	_, err = writer(api).Get("/articles/"+id+"/", nil)
	require.Error(t, err)
	assert.Equal(t, "model_not_found_error", err.(*jsonapi.Error).Code)
	assert.Contains(t, api.notifier.events, "articles delete")
}

func TestMethodNotAllowedWithoutProfile(t *testing.T) {
	api := newTestAPI(t)

	// Ping has no read profile
	status, err := api.client.Get("/pings/", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	require.Error(t, err)
	assert.Equal(t, "request_method_not_allowed_error", err.(*jsonapi.Error).Code)
}

func TestSuppressAnswersNoContentAndRollsBack(t *testing.T) {
	api := newTestAPI(t)

	status, err := api.client.Post("/pings/", map[string]interface{}{
		"data": map[string]interface{}{
			"type":       "Ping",
			"attributes": map[string]interface{}{"message": "hello"},
		},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, status)

	// nothing was persisted and no notification was sent
	records, err := api.store.List(context.Background(), pingDefinition(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, api.notifier.events)
}
