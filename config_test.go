package authsync_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crediq/authsync"
)

func TestDefaultConfig(t *testing.T) {
	cfg := authsync.DefaultConfig()

	assert.Equal(t, 5*time.Second, cfg.SessionTimeout)
	assert.Equal(t, 8*time.Second, cfg.ProfileTimeout)
	assert.Equal(t, uint64(3), cfg.ProfileRetryAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.ProfileRetryInitialWait)
	assert.Equal(t, 2*time.Second, cfg.ProfileRetryMaxWait)
	assert.Equal(t, time.Second, cfg.DuplicateIdentityWindow)
	assert.False(t, cfg.RepairOrphans)
	assert.Equal(t, authsync.RoleLoanOfficer, cfg.RepairRole)

	require.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*authsync.Config)
		ok     bool
	}{
		{"zero config is valid", func(*authsync.Config) {}, true},
		{"negative session timeout", func(c *authsync.Config) { c.SessionTimeout = -time.Second }, false},
		{"negative profile timeout", func(c *authsync.Config) { c.ProfileTimeout = -time.Second }, false},
		{"negative retry wait", func(c *authsync.Config) { c.ProfileRetryInitialWait = -time.Second }, false},
		{"unknown repair role", func(c *authsync.Config) { c.RepairRole = "underwriter" }, false},
		{"known repair role", func(c *authsync.Config) { c.RepairRole = authsync.RoleRiskManager }, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var cfg authsync.Config
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestNewAppliesDefaultsToZeroConfig(t *testing.T) {
	s, err := authsync.New(newStubSource(), newStubProfiles(), authsync.Config{})
	require.NoError(t, err)
	defer s.Close()
}

func TestErrorPredicates(t *testing.T) {
	assert.True(t, authsync.IsProfileNotFound(authsync.ErrProfileNotFound))
	assert.True(t, authsync.IsIdentityMismatch(authsync.ErrIdentityMismatch))
	assert.True(t, authsync.IsInvalidCredentials(authsync.ErrInvalidCredentials))
	assert.True(t, authsync.IsDuplicateIdentity(authsync.ErrDuplicateIdentity))
	assert.True(t, authsync.IsConfirmationRequired(authsync.ErrConfirmationRequired))

	plain := errors.New("boom")
	assert.False(t, authsync.IsProfileNotFound(plain))
	assert.False(t, authsync.IsInvalidCredentials(plain))
	assert.False(t, authsync.IsInvalidCredentials(nil))

	// classification survives wrapping
	wrapped := authsync.WrapTransport(plain, "request failed")
	assert.Error(t, wrapped)
	assert.False(t, authsync.IsProfileNotFound(wrapped))

	fromNil := authsync.WrapTransport(nil, "no response")
	assert.Error(t, fromNil)
}
