package jsonapi

import (
	_ "embed"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/cantal-tech/jsonapi/core"
	"github.com/cantal-tech/jsonapi/core/access"
	"github.com/cantal-tech/jsonapi/core/logger"
	"github.com/cantal-tech/jsonapi/core/schema"
)

// ContentType is the JSON:API media type. It is required on every request
// that carries a body.
const ContentType = "application/vnd.api+json"

//go:embed schemas/create.json
var createSchemaJSON string

//go:embed schemas/update.json
var updateSchemaJSON string

const (
	createSchemaID = "https://cantal.tech/jsonapi/schemas/create.json"
	updateSchemaID = "https://cantal.tech/jsonapi/schemas/update.json"
)

// Builder is a builder helper for the Controller
type Builder struct {
	// Registry holds the resource definitions. This is mandatory.
	Registry *Registry
	// Store is the persistence collaborator. This is mandatory.
	Store Store
	// Router is a mux router. This is mandatory.
	Router *mux.Router
	// Notifier receives lifecycle notifications for successful create,
	// update and delete operations. This is optional.
	Notifier core.Notifier
	// EnableCORS adds permissive CORS headers to the router. Optional.
	EnableCORS bool
}

// Controller synthesizes the JSON:API CRUD endpoints for every resource
// definition in the registry. It is stateless apart from its immutable
// configuration and safe for concurrent use.
type Controller struct {
	registry  *Registry
	store     Store
	notifier  core.Notifier
	validator *schema.Validator
}

// MustNew realizes the controller and adds the resource routes to the
// router. It panics on configuration errors.
func MustNew(bb *Builder) *Controller {
	if bb.Registry == nil {
		panic("Registry is missing")
	}
	if bb.Store == nil {
		panic("Store is missing")
	}
	if bb.Router == nil {
		panic("Router is missing")
	}

	validator, err := schema.NewValidator([]string{createSchemaJSON, updateSchemaJSON}, nil)
	if err != nil {
		panic(err)
	}

	c := &Controller{
		registry:  bb.Registry,
		store:     bb.Store,
		notifier:  bb.Notifier,
		validator: validator,
	}

	logger.AddRequestID(bb.Router)
	if bb.EnableCORS {
		bb.Router.Use(handlers.CORS(
			handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
			handlers.AllowedMethods([]string{"GET", "POST", "PATCH", "DELETE"}),
		))
	}
	c.handleRoutes(bb.Router)
	return c
}

// handleRoutes adds all necessary handlers for the registered definitions.
// Deeper basenames are registered first so that e.g. "users/email-confirmation"
// is not shadowed by the {id} route of "users".
func (c *Controller) handleRoutes(router *mux.Router) {
	rlog := logger.Default()

	definitions := append([]*Definition{}, c.registry.Definitions()...)
	sort.SliceStable(definitions, func(i, j int) bool {
		return strings.Count(definitions[i].Pathname(), "/") > strings.Count(definitions[j].Pathname(), "/")
	})

	for _, definition := range definitions {
		def := definition
		listRoute := "/" + def.Pathname() + "/"
		itemRoute := "/" + def.Pathname() + "/{id}/"
		rlog.Debugln("create resource:", def.Name)
		rlog.Debugln("  handle routes:", listRoute, itemRoute)

		router.HandleFunc(listRoute, func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				c.create(w, r, def)
				return
			}
			c.list(w, r, def)
		}).Methods(http.MethodGet, http.MethodPost)

		router.HandleFunc(itemRoute, func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPatch:
				c.update(w, r, def)
			case http.MethodDelete:
				c.delete(w, r, def)
			default:
				c.get(w, r, def)
			}
		}).Methods(http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (c *Controller) create(w http.ResponseWriter, r *http.Request, def *Definition) {
	ctx := r.Context()
	identity := access.IdentityFromContext(ctx)

	if def.Create == nil {
		c.writeError(w, r, RequestMethodNotAllowedError())
		return
	}
	body, err := c.requestBody(w, r)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	resource, err := c.parseDocument(body, createSchemaID)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	if resource.Type != def.Name {
		c.writeError(w, r, ModelTypeInvalidError())
		return
	}

	profile := def.Create.Resolve(identity)
	record := NewRecord(def)
	if err := Populate(ctx, record, resource, profile, c.store, c.registry); err != nil {
		c.writeError(w, r, err)
		return
	}
	if profile.Condition != nil && !profile.Condition.Match(record, identity) {
		c.writeError(w, r, NotFoundError())
		return
	}

	disposition, err := c.store.Save(ctx, record)
	if err != nil {
		c.writeError(w, r, c.classify(err))
		return
	}
	if disposition == Suppress {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	c.notify(def, core.OperationCreate, record)

	c.renderOrNoContent(w, r, def, record, profile, identity)
}

func (c *Controller) get(w http.ResponseWriter, r *http.Request, def *Definition) {
	ctx := r.Context()
	identity := access.IdentityFromContext(ctx)

	if def.Read == nil {
		c.writeError(w, r, RequestMethodNotAllowedError())
		return
	}
	if err := c.requireEmptyBody(r); err != nil {
		c.writeError(w, r, err)
		return
	}

	record, err := c.lookup(w, r, def)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	profile := def.Read.Resolve(identity)
	if profile.Condition != nil && !profile.Condition.Match(record, identity) {
		// hidden records are indistinguishable from absent ones
		c.writeError(w, r, ModelNotFoundError())
		return
	}
	c.writeData(w, http.StatusOK, Document{Data: Render(record, profile)})
}

func (c *Controller) list(w http.ResponseWriter, r *http.Request, def *Definition) {
	ctx := r.Context()
	identity := access.IdentityFromContext(ctx)

	if def.Read == nil {
		c.writeError(w, r, RequestMethodNotAllowedError())
		return
	}
	if err := c.requireEmptyBody(r); err != nil {
		c.writeError(w, r, err)
		return
	}

	profile := def.Read.Resolve(identity)
	records, err := c.store.List(ctx, def, profile.Condition, identity)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	resources := make([]*Resource, 0, len(records))
	for _, record := range records {
		resources = append(resources, Render(record, profile))
	}
	c.writeData(w, http.StatusOK, CollectionDocument{Data: resources})
}

func (c *Controller) update(w http.ResponseWriter, r *http.Request, def *Definition) {
	ctx := r.Context()
	identity := access.IdentityFromContext(ctx)

	if def.Update == nil {
		c.writeError(w, r, RequestMethodNotAllowedError())
		return
	}
	body, err := c.requestBody(w, r)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	resource, err := c.parseDocument(body, updateSchemaID)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	if resource.Type != def.Name {
		c.writeError(w, r, ModelTypeInvalidError())
		return
	}
	if resource.ID == "" {
		c.writeError(w, r, ModelIdRequiredError())
		return
	}
	if resource.ID != mux.Vars(r)["id"] {
		c.writeError(w, r, ModelIdDoesNotMatchError())
		return
	}

	record, err := c.lookup(w, r, def)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	profile := def.Update.Resolve(identity)
	if err := Populate(ctx, record, resource, profile, c.store, c.registry); err != nil {
		c.writeError(w, r, err)
		return
	}
	if profile.Condition != nil && !profile.Condition.Match(record, identity) {
		c.writeError(w, r, ModelNotFoundError())
		return
	}

	disposition, err := c.store.Save(ctx, record)
	if err != nil {
		c.writeError(w, r, c.classify(err))
		return
	}
	if disposition == Suppress {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	c.notify(def, core.OperationUpdate, record)

	c.renderOrNoContent(w, r, def, record, profile, identity)
}

func (c *Controller) delete(w http.ResponseWriter, r *http.Request, def *Definition) {
	ctx := r.Context()
	identity := access.IdentityFromContext(ctx)

	if def.Delete == nil {
		c.writeError(w, r, RequestMethodNotAllowedError())
		return
	}
	if err := c.requireEmptyBody(r); err != nil {
		c.writeError(w, r, err)
		return
	}

	record, err := c.lookup(w, r, def)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	profile := def.Delete.Resolve(identity)
	if profile.Condition != nil && !profile.Condition.Match(record, identity) {
		c.writeError(w, r, ModelNotFoundError())
		return
	}
	if err := c.store.Delete(ctx, record); err != nil {
		c.writeError(w, r, err)
		return
	}
	c.notify(def, core.OperationDelete, record)
	w.WriteHeader(http.StatusNoContent)
}

// lookup retrieves the addressed record, translating absence into the
// not-found taxonomy error.
func (c *Controller) lookup(w http.ResponseWriter, r *http.Request, def *Definition) (*Record, error) {
	id := mux.Vars(r)["id"]
	record, err := c.store.Get(r.Context(), def, id)
	if err == ErrRecordNotFound {
		return nil, ModelNotFoundError()
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// renderOrNoContent renders the record under the read profile if the acting
// profile wants a response body, otherwise answers with no content.
func (c *Controller) renderOrNoContent(w http.ResponseWriter, r *http.Request, def *Definition, record *Record, profile *Profile, identity *access.Identity) {
	if !profile.ShowResponse || def.Read == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	readProfile := def.Read.Resolve(identity)
	c.writeData(w, http.StatusOK, Document{Data: Render(record, readProfile)})
}

// requestBody reads the body and validates the content type header, which
// is mandatory on non-empty bodies.
func (c *Controller) requestBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, BadRequestError()
	}
	if len(body) > 0 {
		if contentType := r.Header.Get("Content-Type"); contentType != ContentType {
			return nil, RequestHeaderInvalidError("Content-Type", contentType)
		}
	}
	return body, nil
}

// requireEmptyBody rejects bodies on requests that must not carry one.
func (c *Controller) requireEmptyBody(r *http.Request) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return BadRequestError()
	}
	if len(body) > 0 {
		return RequestBodyNotAllowedError()
	}
	return nil
}

// parseDocument decodes and validates the request envelope against the
// JSON:API document schema for the action.
func (c *Controller) parseDocument(body []byte, schemaID string) (*Resource, error) {
	var probe interface{}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, RequestBodyJsonDecodeError()
	}
	if err := c.validator.ValidateString(string(body), schemaID); err != nil {
		return nil, RequestBodyJsonSchemaError()
	}
	var document struct {
		Data *Resource `json:"data"`
	}
	if err := json.Unmarshal(body, &document); err != nil {
		return nil, RequestBodyJsonDecodeError()
	}
	return document.Data, nil
}

// classify maps a validation failure from the store into its taxonomy
// error. Anything unclassified propagates unchanged and surfaces as an
// internal failure.
func (c *Controller) classify(err error) error {
	if failure, ok := err.(*ValidationFailure); ok {
		if classified, ok := Classify(failure); ok {
			return classified
		}
	}
	return err
}

func (c *Controller) notify(def *Definition, operation core.Operation, record *Record) {
	if c.notifier == nil {
		return
	}
	// virtual fields, e.g. raw passwords, never leave the request
	fields := record.Fields()
	for _, spec := range def.Fields {
		if spec.Virtual {
			delete(fields, spec.Name)
		}
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return
	}
	c.notifier.Notify(def.Pathname(), operation, payload)
}

func (c *Controller) writeData(w http.ResponseWriter, status int, document interface{}) {
	jsonData, err := json.Marshal(document)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(status)
	w.Write(jsonData)
}

func (c *Controller) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := AsError(err)
	if e == nil {
		// unclassified failures are not translated; fail fast without
		// leaking details
		logger.FromContext(r.Context()).WithError(err).Errorln("internal error")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	jsonData, _ := json.Marshal(ErrorDocument{
		Errors: []ErrorObject{{Code: e.Code, Meta: e.Meta}},
	})
	w.Header().Set("Content-Type", ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(e.Status)
	w.Write(jsonData)
}
