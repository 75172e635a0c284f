package jsonapi

import (
	"context"

	"github.com/cantal-tech/jsonapi/core"
)

// Resource is the JSON:API wire representation of one record.
type Resource struct {
	ID            string                  `json:"id,omitempty"`
	Type          string                  `json:"type"`
	Attributes    map[string]interface{}  `json:"attributes,omitempty"`
	Relationships map[string]Relationship `json:"relationships,omitempty"`
}

// Relationship is the wire representation of one to-one relationship.
// A nil Data clears the relationship.
type Relationship struct {
	Data *ResourceIdentifier `json:"data"`
}

// ResourceIdentifier is a reference stub naming a related resource. The
// engine never nests related attributes; a relationship always renders as
// a stub.
type ResourceIdentifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Document is the response envelope for a single resource.
type Document struct {
	Data *Resource `json:"data"`
}

// CollectionDocument is the response envelope for a list of resources.
type CollectionDocument struct {
	Data []*Resource `json:"data"`
}

// ErrorObject is one entry of the error response envelope.
type ErrorObject struct {
	Code string                 `json:"code"`
	Meta map[string]interface{} `json:"meta,omitempty"`
}

// ErrorDocument is the error response envelope.
type ErrorDocument struct {
	Errors []ErrorObject `json:"errors"`
}

// Populate fills a record from a wire resource under the profile's
// allow-lists. Wire attribute and relationship keys are translated to their
// internal form first; a key outside the allow-list fails before anything
// is written, so a rejected resource never mutates the record.
//
// Relationship payloads with null data clear the relationship; otherwise
// the referenced record is looked up through the store and set on the
// record as a reference, failing with ModelNotFoundError if it is absent.
func Populate(ctx context.Context, record *Record, resource *Resource, profile *Profile, store Store, registry *Registry) error {

	// validate the complete allow-lists up front
	for wireName := range resource.Attributes {
		name := core.CamelCaseToSnakeCase(wireName)
		if !profile.AllowsAttribute(name) {
			return ModelAttributeNotAllowedError(name)
		}
	}
	for wireName := range resource.Relationships {
		name := core.CamelCaseToSnakeCase(wireName)
		if _, ok := profile.Relationships[name]; !ok {
			return ModelRelationshipNotAllowedError(name)
		}
	}

	for wireName, value := range resource.Attributes {
		name := core.CamelCaseToSnakeCase(wireName)
		record.SetField(profile.mapped(name), value)
	}

	for wireName, relationship := range resource.Relationships {
		name := core.CamelCaseToSnakeCase(wireName)
		if relationship.Data == nil {
			record.SetRelationship(name, nil)
			record.SetField(name+"_id", nil)
			continue
		}
		ref := profile.Relationships[name]
		target, err := ref.Resolve(registry)
		if err != nil {
			return err
		}
		if relationship.Data.Type != target.Name {
			return ModelTypeInvalidError()
		}
		related, err := store.Get(ctx, target, relationship.Data.ID)
		if err == ErrRecordNotFound {
			return ModelNotFoundError()
		}
		if err != nil {
			return err
		}
		record.SetRelationship(name, related)
		record.SetField(name+"_id", related.ID())
	}
	return nil
}

// Render converts a record into its wire resource representation under the
// profile's allow-lists. Attribute keys are re-keyed to their wire form;
// relationships render as reference stubs or null. The attributes and
// relationships members are omitted entirely when empty. The id and type
// members are always present.
func Render(record *Record, profile *Profile) *Resource {
	resource := &Resource{
		ID:   record.ID(),
		Type: record.Definition().Name,
	}

	if len(profile.Attributes) > 0 {
		attributes := make(map[string]interface{}, len(profile.Attributes))
		for _, name := range profile.Attributes {
			value, _ := record.Field(profile.mapped(name))
			attributes[core.SnakeCaseToCamelCase(name)] = value
		}
		resource.Attributes = attributes
	}

	if len(profile.Relationships) > 0 {
		relationships := make(map[string]Relationship, len(profile.Relationships))
		for name := range profile.Relationships {
			related, _ := record.Relationship(name)
			var data *ResourceIdentifier
			if related != nil {
				data = &ResourceIdentifier{
					Type: related.Definition().Name,
					ID:   related.ID(),
				}
			}
			relationships[core.SnakeCaseToCamelCase(name)] = Relationship{Data: data}
		}
		resource.Relationships = relationships
	}

	return resource
}
