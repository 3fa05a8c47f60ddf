package entity

import "time"

// User represents an account row in the `users` table, keyed by the external
// provider account id. Display fields mirror whatever the identity provider
// sent on the most recent login; the anonymous fields are generated once and
// never change for the lifetime of the account.
type User struct {
	AccountID         string     `db:"provider_account_id"`
	Email             *string    `db:"email"`
	Name              *string    `db:"name"`
	Image             *string    `db:"image"`
	AnonymousID       string     `db:"anonymous_id"`
	AnonymousUsername *string    `db:"anonymous_username"` // nil on legacy/partial rows until backfilled
	Role              string     `db:"role"`               // ADMIN / MEMBER / GUEST
	Blocked           bool       `db:"blocked"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
}
