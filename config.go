package authsync

import (
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Config bounds every external call the Synchronizer makes. Zero values are
// replaced by defaults in New.
type Config struct {
	// SessionTimeout bounds session retrieval and the pre-query session
	// re-check. Default 5s.
	SessionTimeout time.Duration

	// ProfileTimeout bounds a single profile store query. Default 8s.
	ProfileTimeout time.Duration

	// ProfileRetryAttempts is how many additional fetches we make when the
	// profile row is missing, to ride out the provider-side trigger that
	// creates it after signup. Default 3.
	ProfileRetryAttempts uint64

	// ProfileRetryInitialWait is the first retry delay. Default 250ms.
	ProfileRetryInitialWait time.Duration

	// ProfileRetryMaxWait caps the exponential retry delay. Default 2s.
	ProfileRetryMaxWait time.Duration

	// DuplicateIdentityWindow classifies a sign-up response carrying an
	// identity older than this, without a session, as a duplicate account.
	// Default 1s.
	DuplicateIdentityWindow time.Duration

	// RepairOrphans enables seeding a minimal profile row when retries
	// exhaust with no profile found. Off by default: the safe state for an
	// orphaned identity is user=nil.
	RepairOrphans bool

	// RepairRole is the role written by orphan repair. Default loan_officer.
	RepairRole Role
}

// DefaultConfig returns the bounds used when callers pass a zero Config.
func DefaultConfig() Config {
	return Config{
		SessionTimeout:          5 * time.Second,
		ProfileTimeout:          8 * time.Second,
		ProfileRetryAttempts:    3,
		ProfileRetryInitialWait: 250 * time.Millisecond,
		ProfileRetryMaxWait:     2 * time.Second,
		DuplicateIdentityWindow: time.Second,
		RepairRole:              RoleLoanOfficer,
	}
}

// Validate rejects configurations the Synchronizer cannot honor.
func (c Config) Validate() error {
	if c.SessionTimeout < 0 || c.ProfileTimeout < 0 {
		return goerrors.New("timeouts must not be negative", goerrors.CategoryValidation).
			WithTextCode("INVALID_SYNC_CONFIG")
	}
	if c.ProfileRetryInitialWait < 0 || c.ProfileRetryMaxWait < 0 {
		return goerrors.New("retry waits must not be negative", goerrors.CategoryValidation).
			WithTextCode("INVALID_SYNC_CONFIG")
	}
	if c.RepairRole != "" && !c.RepairRole.IsValid() {
		return goerrors.New("repair role is not a known role", goerrors.CategoryValidation).
			WithTextCode("INVALID_SYNC_CONFIG").
			WithMetadata(map[string]any{"role": c.RepairRole})
	}
	return nil
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SessionTimeout == 0 {
		c.SessionTimeout = def.SessionTimeout
	}
	if c.ProfileTimeout == 0 {
		c.ProfileTimeout = def.ProfileTimeout
	}
	if c.ProfileRetryAttempts == 0 {
		c.ProfileRetryAttempts = def.ProfileRetryAttempts
	}
	if c.ProfileRetryInitialWait == 0 {
		c.ProfileRetryInitialWait = def.ProfileRetryInitialWait
	}
	if c.ProfileRetryMaxWait == 0 {
		c.ProfileRetryMaxWait = def.ProfileRetryMaxWait
	}
	if c.DuplicateIdentityWindow == 0 {
		c.DuplicateIdentityWindow = def.DuplicateIdentityWindow
	}
	if c.RepairRole == "" {
		c.RepairRole = def.RepairRole
	}
	return c
}
