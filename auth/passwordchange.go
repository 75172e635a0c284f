package auth

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/cantal-tech/jsonapi/core/condition"
	"github.com/cantal-tech/jsonapi/core/jsonapi"
)

func passwordChangeDefinition(config *Config, d *definitions) *jsonapi.Definition {
	return &jsonapi.Definition{
		Name:     "UserPasswordChange",
		Basename: "users/password-change",
		Fields: []jsonapi.FieldSpec{
			{Name: "current_password", Virtual: true, Required: true, MaxLength: 128},
			{Name: "new_password", Virtual: true, Required: true, MinLength: 8, MaxLength: 128},
		},
		Relationships: map[string]*jsonapi.Ref{
			"user": jsonapi.RefNamed("User"),
		},
		Create: &jsonapi.Profile{
			Condition: condition.All(
				condition.FieldEqualsIdentityField("user_id", "id"),
				condition.HasPermission(PermUserPasswordsCreateSelf),
			),
			Attributes: []string{"current_password", "new_password"},
			Relationships: map[string]*jsonapi.Ref{
				"user": jsonapi.RefNamed("User"),
			},
		},
		Hooks: jsonapi.Hooks{
			BeforeValidate: passwordChangeBeforeValidate,
			AfterSave:      passwordChangeAfterSave(d),
		},
	}
}

func passwordChangeBeforeValidate(ctx context.Context, tx jsonapi.Store, record *jsonapi.Record) error {
	if record.StringField("user_id") == "" {
		return &jsonapi.ValidationFailure{Field: "user", Code: jsonapi.ValidationRequired}
	}
	return nil
}

// passwordChangeAfterSave verifies the current password against the user's
// hash and rotates it to the new one. The password change itself is
// consumed; nothing of it remains persisted.
func passwordChangeAfterSave(d *definitions) func(ctx context.Context, tx jsonapi.Store, record *jsonapi.Record, created bool) (jsonapi.Disposition, error) {
	return func(ctx context.Context, tx jsonapi.Store, record *jsonapi.Record, created bool) (jsonapi.Disposition, error) {
		if !created {
			return jsonapi.Proceed, nil
		}

		user, err := tx.Get(ctx, d.user, record.StringField("user_id"))
		if err != nil {
			return jsonapi.Proceed, err
		}

		current := record.StringField("current_password")
		hash := user.StringField("password_hash")
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(current)) != nil {
			return jsonapi.Proceed, &jsonapi.ValidationFailure{
				Field: "current_password",
				Code:  jsonapi.ValidationInvalid,
			}
		}

		user.SetField("password", record.StringField("new_password"))
		if _, err := tx.Save(ctx, user); err != nil {
			return jsonapi.Proceed, err
		}
		if err := tx.Delete(ctx, record); err != nil {
			return jsonapi.Proceed, err
		}
		return jsonapi.Proceed, nil
	}
}
