package auth

import (
	"context"
	"regexp"

	"golang.org/x/crypto/bcrypt"

	"github.com/cantal-tech/jsonapi/core/condition"
	"github.com/cantal-tech/jsonapi/core/jsonapi"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

func userDefinition(config *Config, d *definitions) *jsonapi.Definition {
	return &jsonapi.Definition{
		Name: "User",
		Fields: []jsonapi.FieldSpec{
			{Name: "email", Required: true, Unique: true, MaxLength: 254, Pattern: emailPattern},
			{Name: "is_email_confirmed"},
			{Name: "password", Virtual: true, MinLength: 8, MaxLength: 128},
			{Name: "password_hash", Required: true, MaxLength: 128},
		},
		Relationships: map[string]*jsonapi.Ref{
			"organization": jsonapi.RefNamed("Organization"),
		},
		Create: &jsonapi.Profile{
			Condition: condition.Any(
				condition.HasPermission(PermUsersCreateAll),
				condition.All(
					condition.HasOrganization("organization_id"),
					condition.HasPermission(PermUsersCreateOwn),
				),
			),
			Attributes: []string{"email", "password"},
			Relationships: map[string]*jsonapi.Ref{
				"organization": jsonapi.RefNamed("Organization"),
			},
		},
		Read: &jsonapi.Profile{
			Condition: condition.Any(
				condition.HasPermission(PermUsersReadAll),
				condition.All(
					condition.HasOrganization("organization_id"),
					condition.Any(
						condition.HasPermission(PermUsersReadOwn),
						condition.All(
							condition.HasPermission(PermUsersReadSelf),
							condition.FieldEqualsIdentityField("id", "id"),
						),
					),
				),
			),
			Attributes: []string{"email", "is_email_confirmed"},
			Relationships: map[string]*jsonapi.Ref{
				"organization": jsonapi.RefNamed("Organization"),
			},
		},
		Delete: &jsonapi.Profile{
			Condition: condition.Any(
				condition.HasPermission(PermUsersDeleteAll),
				condition.All(
					condition.HasOrganization("organization_id"),
					condition.Any(
						condition.HasPermission(PermUsersDeleteOwn),
						condition.All(
							condition.HasPermission(PermUsersDeleteSelf),
							condition.FieldEqualsIdentityField("id", "id"),
						),
					),
				),
			),
		},
		Hooks: jsonapi.Hooks{
			BeforeValidate: userBeforeValidate,
		},
	}
}

// userBeforeValidate hashes a provided raw password into the persisted
// password hash. A user without any password is rejected; the raw password
// itself is validated by its field constraints afterwards.
func userBeforeValidate(ctx context.Context, tx jsonapi.Store, record *jsonapi.Record) error {
	if _, ok := record.Field("is_email_confirmed"); !ok {
		record.SetField("is_email_confirmed", false)
	}
	raw := record.StringField("password")
	if raw != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		record.SetField("password_hash", string(hash))
	}
	if record.StringField("password_hash") == "" {
		return &jsonapi.ValidationFailure{Field: "password", Code: jsonapi.ValidationRequired}
	}
	return nil
}
