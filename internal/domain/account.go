package domain

import "time"

// Account is an internal account reference resolved from a caller-supplied
// identifier. The configured approval method decides how this account signs
// off on transactions it participates in.
type Account struct {
	ID             int64
	TenantID       string
	Identifier     string // caller-facing identifier (email or username)
	ApprovalMethod ApprovalMethod
	MfaDeviceID    string // provider-side device id, empty when not enrolled
	CreatedAt      time.Time
}
