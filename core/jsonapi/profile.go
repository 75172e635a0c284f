package jsonapi

import (
	"github.com/cantal-tech/jsonapi/core/access"
	"github.com/cantal-tech/jsonapi/core/condition"
)

// Resolver selects the profile that applies for a given identity.
// A plain Profile resolves to itself; a ProfileResolver picks from a
// sequence of profiles.
type Resolver interface {
	Resolve(identity *access.Identity) *Profile
}

// Profile configures one action of a resource: the authorization condition,
// the allowed attributes with their optional storage mappings, the allowed
// relationships, and whether the action answers with a response body.
//
// Profiles are immutable after construction and safe for concurrent reuse.
type Profile struct {
	// Condition authorizes the action. A nil condition means the action is
	// unconditionally permitted, e.g. public sign-up.
	Condition condition.Condition
	// Attributes is the allow-list of attribute names, in internal form.
	Attributes []string
	// AttributeMappings renames an allowed attribute to the field it is
	// stored under, e.g. "password" to "raw_password".
	AttributeMappings map[string]string
	// Relationships is the allow-list of relationships with their target
	// resource references.
	Relationships map[string]*Ref
	// ShowResponse controls whether a successful create or update renders
	// the record in the response. The zero value answers with no content.
	ShowResponse bool
}

// Resolve implements Resolver; a plain profile always resolves to itself.
// The condition is evaluated by the caller, not here.
func (p *Profile) Resolve(identity *access.Identity) *Profile {
	return p
}

// AllowsAttribute returns true if the attribute is in the allow-list.
func (p *Profile) AllowsAttribute(name string) bool {
	for _, allowed := range p.Attributes {
		if allowed == name {
			return true
		}
	}
	return false
}

// mapped returns the storage field an allowed attribute is stored under.
func (p *Profile) mapped(name string) string {
	if p.AttributeMappings != nil {
		if mapped, ok := p.AttributeMappings[name]; ok {
			return mapped
		}
	}
	return name
}

// ProfileResolver resolves one profile from an ordered sequence: the first
// profile whose condition can hold for the identity wins, with the first
// unconditional profile as fallback. Record-level predicates are assumed
// satisfiable at resolution time; the caller still enforces the resolved
// profile's condition against the record.
type ProfileResolver struct {
	profiles []*Profile
}

// NewProfileResolver creates a resolver from at least 2 profiles and panics
// otherwise; a single profile should be used directly.
func NewProfileResolver(profiles ...*Profile) *ProfileResolver {
	if len(profiles) < 2 {
		panic("jsonapi: ProfileResolver requires at least 2 profiles")
	}
	return &ProfileResolver{profiles: profiles}
}

// Resolve implements Resolver.
func (pr *ProfileResolver) Resolve(identity *access.Identity) *Profile {
	var fallback *Profile
	for _, profile := range pr.profiles {
		if profile.Condition == nil {
			if fallback == nil {
				fallback = profile
			}
			continue
		}
		if condition.Resolves(profile.Condition, identity) {
			return profile
		}
	}
	if fallback != nil {
		return fallback
	}
	return pr.profiles[0]
}
