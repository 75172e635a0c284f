/*Package auth provides ready-made resource definitions for organizations,
users, email confirmation and password change.

Sign-up is privacy preserving: creating an organization also creates its
owner user and a pending email confirmation, and the response is the same
whether or not the owner email address was already registered. The owner
is notified by email either way.
*/
package auth

import (
	"context"
	"time"

	"github.com/cantal-tech/jsonapi/core/jsonapi"
	"github.com/cantal-tech/jsonapi/core/logger"
)

// Permission keys checked by the auth resource conditions. An identity
// carries these in its permissions claim.
const (
	PermOrganizationsCreateAll = "auth.organizations.create_all"
	PermOrganizationsReadAll   = "auth.organizations.read_all"
	PermOrganizationsReadOwn   = "auth.organizations.read_own"
	PermOrganizationsUpdateAll = "auth.organizations.update_all"
	PermOrganizationsUpdateOwn = "auth.organizations.update_own"
	PermOrganizationsDeleteAll = "auth.organizations.delete_all"
	PermOrganizationsDeleteOwn = "auth.organizations.delete_own"

	PermUsersCreateAll  = "auth.users.create_all"
	PermUsersCreateOwn  = "auth.users.create_own"
	PermUsersReadAll    = "auth.users.read_all"
	PermUsersReadOwn    = "auth.users.read_own"
	PermUsersReadSelf   = "auth.users.read_self"
	PermUsersDeleteAll  = "auth.users.delete_all"
	PermUsersDeleteOwn  = "auth.users.delete_own"
	PermUsersDeleteSelf = "auth.users.delete_self"

	PermUserPasswordsCreateSelf = "auth.user_passwords.create_self"
)

// Mailer delivers the notification emails of the sign-up flow.
type Mailer interface {
	// SendEmailConfirmation asks the recipient to confirm their address.
	// The confirmation id and token together form the confirmation link.
	SendEmailConfirmation(ctx context.Context, email, confirmationID, token string) error

	// SendEmailAlreadyRegistered notifies the recipient that somebody tried
	// to sign up with their already registered address.
	SendEmailAlreadyRegistered(ctx context.Context, email string) error
}

// LogMailer writes mails to the default logger. Useful for development.
type LogMailer struct{}

// SendEmailConfirmation implements Mailer.
func (LogMailer) SendEmailConfirmation(ctx context.Context, email, confirmationID, token string) error {
	logger.FromContext(ctx).WithField("email", email).
		Infoln("email confirmation:", confirmationID, token)
	return nil
}

// SendEmailAlreadyRegistered implements Mailer.
func (LogMailer) SendEmailAlreadyRegistered(ctx context.Context, email string) error {
	logger.FromContext(ctx).WithField("email", email).
		Infoln("email already registered")
	return nil
}

// Config configures the auth resources.
type Config struct {
	// Mailer delivers the sign-up notification emails. Defaults to the
	// LogMailer.
	Mailer Mailer

	// ConfirmationTTL is how long a pending email confirmation stays
	// valid. Defaults to 15 minutes.
	ConfirmationTTL time.Duration

	// SurfaceUniqueConflicts makes sign-up with an already registered
	// owner email fail visibly instead of pretending success. Off by
	// default; turning it on trades privacy for clearer API errors.
	SurfaceUniqueConflicts bool
}

func (c *Config) withDefaults() *Config {
	config := Config{}
	if c != nil {
		config = *c
	}
	if config.Mailer == nil {
		config.Mailer = LogMailer{}
	}
	if config.ConfirmationTTL == 0 {
		config.ConfirmationTTL = 15 * time.Minute
	}
	return &config
}

// definitions carries the mutual references between the auth resources, so
// hooks constructed before all definitions exist can still reach them.
type definitions struct {
	organization   *jsonapi.Definition
	user           *jsonapi.Definition
	confirmation   *jsonapi.Definition
	passwordChange *jsonapi.Definition
}

// Definitions returns the auth resource definitions, ready to be added to
// a registry.
func Definitions(config *Config) []*jsonapi.Definition {
	config = config.withDefaults()
	d := &definitions{}
	d.organization = organizationDefinition(config, d)
	d.user = userDefinition(config, d)
	d.confirmation = emailConfirmationDefinition(config, d)
	d.passwordChange = passwordChangeDefinition(config, d)
	return []*jsonapi.Definition{d.organization, d.user, d.confirmation, d.passwordChange}
}
