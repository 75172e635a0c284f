package auth

import (
	"context"

	"github.com/cantal-tech/jsonapi/core/condition"
	"github.com/cantal-tech/jsonapi/core/jsonapi"
	"github.com/cantal-tech/jsonapi/core/logger"
)

func organizationDefinition(config *Config, d *definitions) *jsonapi.Definition {
	return &jsonapi.Definition{
		Name: "Organization",
		Fields: []jsonapi.FieldSpec{
			{Name: "name", Required: true, MaxLength: 64},
			{Name: "owner_email", Virtual: true, Pattern: emailPattern},
			{Name: "owner_raw_password", Virtual: true, MinLength: 8, MaxLength: 128},
		},
		Relationships: map[string]*jsonapi.Ref{
			"owner": jsonapi.RefNamed("User"),
		},
		Create: &jsonapi.Profile{
			Condition:  condition.HasPermission(PermOrganizationsCreateAll),
			Attributes: []string{"name", "owner_email", "owner_password"},
			AttributeMappings: map[string]string{
				"owner_password": "owner_raw_password",
			},
		},
		Read: jsonapi.NewProfileResolver(
			&jsonapi.Profile{
				Condition:  condition.HasPermission(PermOrganizationsReadAll),
				Attributes: []string{"name"},
				Relationships: map[string]*jsonapi.Ref{
					"owner": jsonapi.RefNamed("User"),
				},
			},
			&jsonapi.Profile{
				Condition: condition.All(
					condition.HasOrganization("id"),
					condition.HasPermission(PermOrganizationsReadOwn),
				),
				Attributes: []string{"name"},
			},
		),
		Update: &jsonapi.Profile{
			Condition: condition.Any(
				condition.HasPermission(PermOrganizationsUpdateAll),
				condition.All(
					condition.HasOrganization("id"),
					condition.HasPermission(PermOrganizationsUpdateOwn),
				),
			),
			Attributes:   []string{"name"},
			ShowResponse: true,
		},
		Delete: &jsonapi.Profile{
			Condition: condition.Any(
				condition.HasPermission(PermOrganizationsDeleteAll),
				condition.All(
					condition.HasOrganization("id"),
					condition.HasPermission(PermOrganizationsDeleteOwn),
				),
			),
		},
		Hooks: jsonapi.Hooks{
			AfterSave: organizationAfterSave(config, d),
		},
	}
}

// organizationAfterSave creates the owner user and their pending email
// confirmation when an organization is created. If the owner email address
// is already registered, the whole sign-up is undone and the response stays
// indistinguishable from success; the address owner is notified by email
// instead.
func organizationAfterSave(config *Config, d *definitions) func(ctx context.Context, tx jsonapi.Store, record *jsonapi.Record, created bool) (jsonapi.Disposition, error) {
	return func(ctx context.Context, tx jsonapi.Store, record *jsonapi.Record, created bool) (jsonapi.Disposition, error) {
		if !created {
			return jsonapi.Proceed, nil
		}

		email := record.StringField("owner_email")
		if email == "" {
			return jsonapi.Proceed, &jsonapi.ValidationFailure{
				Field: "owner_email",
				Code:  jsonapi.ValidationRequired,
			}
		}

		// checked up front so a constraint violation cannot abort the
		// surrounding transaction
		existing, err := tx.List(ctx, d.user, condition.FieldEquals("email", email), nil)
		if err != nil {
			return jsonapi.Proceed, err
		}
		if len(existing) > 0 {
			if config.SurfaceUniqueConflicts {
				return jsonapi.Proceed, &jsonapi.ValidationFailure{
					Field: "owner_email",
					Code:  jsonapi.ValidationNotUnique,
				}
			}
			if err := config.Mailer.SendEmailAlreadyRegistered(ctx, email); err != nil {
				logger.FromContext(ctx).WithError(err).Errorln("already-registered mail lost:", email)
			}
			return jsonapi.Suppress, nil
		}

		owner := jsonapi.NewRecord(d.user)
		owner.SetField("email", email)
		owner.SetField("password", record.StringField("owner_raw_password"))
		owner.SetField("organization_id", record.ID())
		owner.SetRelationship("organization", record)
		if _, err := tx.Save(ctx, owner); err != nil {
			if failure, ok := err.(*jsonapi.ValidationFailure); ok {
				return jsonapi.Proceed, &jsonapi.ValidationFailure{
					Field:  "owner_" + failure.Field,
					Code:   failure.Code,
					Params: failure.Params,
				}
			}
			return jsonapi.Proceed, err
		}

		record.SetField("owner_id", owner.ID())
		record.SetRelationship("owner", owner)
		if _, err := tx.Save(ctx, record); err != nil {
			return jsonapi.Proceed, err
		}

		confirmation := jsonapi.NewRecord(d.confirmation)
		confirmation.SetField("email", email)
		confirmation.SetField("user_id", owner.ID())
		confirmation.SetRelationship("user", owner)
		if _, err := tx.Save(ctx, confirmation); err != nil {
			return jsonapi.Proceed, err
		}

		err = config.Mailer.SendEmailConfirmation(ctx, email,
			confirmation.ID(), confirmation.StringField("raw_token"))
		if err != nil {
			return jsonapi.Proceed, err
		}
		return jsonapi.Proceed, nil
	}
}
