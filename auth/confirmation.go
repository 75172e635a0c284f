package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/cantal-tech/jsonapi/core/jsonapi"
)

func emailConfirmationDefinition(config *Config, d *definitions) *jsonapi.Definition {
	return &jsonapi.Definition{
		Name:     "UserEmailConfirmation",
		Basename: "users/email-confirmation",
		Fields: []jsonapi.FieldSpec{
			{Name: "email", Required: true, Pattern: emailPattern},
			{Name: "token", Required: true, MaxLength: 128},
			{Name: "expired_at", Required: true},
			{Name: "raw_token", Virtual: true},
		},
		Relationships: map[string]*jsonapi.Ref{
			"user": jsonapi.RefNamed("User"),
		},
		// Confirmations are created by the sign-up flow, never through the
		// API. The only exposed action is presenting the token.
		Update: &jsonapi.Profile{
			Attributes: []string{"token"},
			AttributeMappings: map[string]string{
				"token": "raw_token",
			},
		},
		Hooks: jsonapi.Hooks{
			BeforeValidate: confirmationBeforeValidate(config),
			AfterSave:      confirmationAfterSave(d),
		},
	}
}

// confirmationBeforeValidate equips a new confirmation with a random token
// and an expiry. Only the token's hash is persisted; the raw token stays on
// the record for the sign-up flow to mail out.
func confirmationBeforeValidate(config *Config) func(ctx context.Context, tx jsonapi.Store, record *jsonapi.Record) error {
	return func(ctx context.Context, tx jsonapi.Store, record *jsonapi.Record) error {
		if record.Persisted {
			return nil
		}
		raw := make([]byte, 32)
		if _, err := rand.Read(raw); err != nil {
			return err
		}
		token := base64.RawURLEncoding.EncodeToString(raw)
		hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		record.SetField("raw_token", token)
		record.SetField("token", string(hash))
		record.SetField("expired_at",
			time.Now().UTC().Add(config.ConfirmationTTL).Format(time.RFC3339))
		return nil
	}
}

// confirmationAfterSave handles a presented token: an expired confirmation
// is indistinguishable from an absent one, a wrong token is an invalid
// attribute. On success the user's email address is marked confirmed and
// the confirmation is consumed.
func confirmationAfterSave(d *definitions) func(ctx context.Context, tx jsonapi.Store, record *jsonapi.Record, created bool) (jsonapi.Disposition, error) {
	return func(ctx context.Context, tx jsonapi.Store, record *jsonapi.Record, created bool) (jsonapi.Disposition, error) {
		if created {
			return jsonapi.Proceed, nil
		}

		expiredAt, err := time.Parse(time.RFC3339, record.StringField("expired_at"))
		if err != nil || expiredAt.Before(time.Now().UTC()) {
			return jsonapi.Proceed, jsonapi.ModelNotFoundError()
		}

		raw := record.StringField("raw_token")
		if raw == "" {
			return jsonapi.Proceed, &jsonapi.ValidationFailure{
				Field: "token",
				Code:  jsonapi.ValidationRequired,
			}
		}
		if bcrypt.CompareHashAndPassword([]byte(record.StringField("token")), []byte(raw)) != nil {
			return jsonapi.Proceed, &jsonapi.ValidationFailure{
				Field: "token",
				Code:  jsonapi.ValidationInvalid,
			}
		}

		user, err := tx.Get(ctx, d.user, record.StringField("user_id"))
		if err != nil {
			return jsonapi.Proceed, err
		}
		user.SetField("is_email_confirmed", true)
		if _, err := tx.Save(ctx, user); err != nil {
			return jsonapi.Proceed, err
		}
		if err := tx.Delete(ctx, record); err != nil {
			return jsonapi.Proceed, err
		}
		return jsonapi.Proceed, nil
	}
}
