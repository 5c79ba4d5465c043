// Package mailer sends transactional email for account lifecycle flows.
package mailer

import "context"

// Mailer delivers the transactional messages the account flows depend on.
// Implementations must be safe for concurrent use.
type Mailer interface {
	// SendVerificationEmail delivers the email ownership challenge. The link
	// embeds a single-use token.
	SendVerificationEmail(ctx context.Context, to, name, link string) error

	// SendResetPasswordEmail delivers the password recovery link. The link
	// embeds a single-use token with a bounded lifetime.
	SendResetPasswordEmail(ctx context.Context, to, name, link string) error

	// SendWelcomeEmail greets a freshly registered account.
	SendWelcomeEmail(ctx context.Context, to, name string) error

	// SendGeneralNotificationEmail delivers a free-form notification, used
	// for confirmations after verification, password changes and deletion.
	SendGeneralNotificationEmail(ctx context.Context, to, name, subject, message string) error
}
