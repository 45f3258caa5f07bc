package authsync_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crediq/authsync"
)

func TestRoles(t *testing.T) {
	assert.True(t, authsync.RoleLoanOfficer.IsValid())
	assert.True(t, authsync.RoleRiskManager.IsValid())
	assert.False(t, authsync.Role("underwriter").IsValid())
	assert.False(t, authsync.Role("").IsValid())

	role, ok := authsync.ParseRole("risk_manager")
	require.True(t, ok)
	assert.Equal(t, authsync.RoleRiskManager, role)

	_, ok = authsync.ParseRole("Risk Manager")
	assert.False(t, ok)

	assert.Equal(t, []authsync.Role{
		authsync.RoleLoanOfficer,
		authsync.RoleRiskManager,
	}, authsync.GetAllRoles())
}

func TestRoleCapabilities(t *testing.T) {
	assert.True(t, authsync.RoleLoanOfficer.CanScoreApplications())
	assert.True(t, authsync.RoleRiskManager.CanScoreApplications())
	assert.False(t, authsync.Role("underwriter").CanScoreApplications())

	assert.False(t, authsync.RoleLoanOfficer.CanManagePortfolio())
	assert.True(t, authsync.RoleRiskManager.CanManagePortfolio())

	assert.True(t, authsync.RoleRiskManager.IsAtLeast(authsync.RoleLoanOfficer))
	assert.False(t, authsync.RoleLoanOfficer.IsAtLeast(authsync.RoleRiskManager))
	assert.True(t, authsync.RoleLoanOfficer.IsAtLeast(authsync.RoleLoanOfficer))
	assert.False(t, authsync.Role("underwriter").IsAtLeast(authsync.RoleLoanOfficer))
}

func TestProfileEnsureRole(t *testing.T) {
	p := &authsync.Profile{ID: uuid.New()}
	p.EnsureRole()
	assert.Equal(t, authsync.RoleLoanOfficer, p.Role)

	p.Role = authsync.RoleRiskManager
	p.EnsureRole()
	assert.Equal(t, authsync.RoleRiskManager, p.Role)
}

func TestProfileCloneDoesNotAlias(t *testing.T) {
	now := time.Now()
	original := &authsync.Profile{
		ID:        uuid.New(),
		Email:     "casey@crediq.test",
		FullName:  "Casey Quinn",
		Role:      authsync.RoleLoanOfficer,
		CreatedAt: &now,
	}

	clone := original.Clone()
	clone.FullName = "Someone Else"
	*clone.CreatedAt = now.Add(time.Hour)

	assert.Equal(t, "Casey Quinn", original.FullName)
	assert.True(t, original.CreatedAt.Equal(now))

	var nilProfile *authsync.Profile
	assert.Nil(t, nilProfile.Clone())
}

func TestProfileChangesEmpty(t *testing.T) {
	assert.True(t, authsync.ProfileChanges{}.Empty())

	name := "Casey Quinn"
	assert.False(t, authsync.ProfileChanges{FullName: &name}.Empty())

	role := authsync.RoleRiskManager
	assert.False(t, authsync.ProfileChanges{Role: &role}.Empty())
}

func TestSessionExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	var nilSession *authsync.Session
	assert.False(t, nilSession.Expired(now))
	assert.False(t, (&authsync.Session{}).Expired(now), "no expiry never expires locally")
	assert.True(t, (&authsync.Session{ExpiresAt: &past}).Expired(now))
	assert.False(t, (&authsync.Session{ExpiresAt: &future}).Expired(now))
	assert.True(t, (&authsync.Session{ExpiresAt: &now}).Expired(now), "expiry instant counts as expired")
}

func TestSessionCloneDoesNotAlias(t *testing.T) {
	original := testSession(uuid.New(), "casey@crediq.test")
	clone := original.Clone()
	*clone.ExpiresAt = clone.ExpiresAt.Add(time.Hour)

	assert.NotEqual(t, original.ExpiresAt.Unix(), clone.ExpiresAt.Unix())

	var nilSession *authsync.Session
	assert.Nil(t, nilSession.Clone())
}

func TestSessionStringOmitsTokens(t *testing.T) {
	session := testSession(uuid.New(), "casey@crediq.test")
	assert.NotContains(t, session.String(), session.AccessToken)
	assert.Contains(t, session.String(), "casey@crediq.test")
}

func TestSnapshotAuthenticated(t *testing.T) {
	subject := uuid.New()
	session := testSession(subject, "casey@crediq.test")
	user := &authsync.ResolvedUser{
		ID:      subject,
		Email:   "casey@crediq.test",
		Profile: testProfile(subject, "casey@crediq.test", authsync.RoleRiskManager),
	}

	assert.False(t, authsync.Snapshot{Loading: true, User: user, Session: session}.Authenticated())
	assert.False(t, authsync.Snapshot{Session: session}.Authenticated())
	assert.False(t, authsync.Snapshot{User: user}.Authenticated())
	assert.True(t, authsync.Snapshot{User: user, Session: session}.Authenticated())

	assert.Equal(t, authsync.RoleRiskManager, authsync.Snapshot{User: user}.Role())
	assert.Equal(t, authsync.Role(""), authsync.Snapshot{}.Role())
}
