// Package authsync keeps an application-wide view of "who is signed in"
// consistent with two external collaborators: an identity provider that owns
// the session lifecycle, and a profile store that owns the application's
// user_profiles records.
//
// Session synchronization:
//   - Synchronizer owns the only mutable state (session, resolved user,
//     loading flag). It is constructed once at process start, initialized with
//     Start, and torn down with Close. Consumers read Snapshot values and
//     register OnChange listeners; they never mutate state directly.
//   - Every identity change event (sign in, sign out, token refresh) re-enters
//     the profile resolution protocol. A single monotonically increasing
//     resolution token detects stale completions, so a slow fetch for an older
//     identity can never overwrite state published for a newer one.
//
// Profile resolution:
//   - Profiles are security relevant (role drives authorization) and are
//     re-fetched on every identity change rather than cached. A missing
//     profile row is an orphaned identity, not a transport failure; the two
//     are surfaced differently and the orphan-repair policy is explicit
//     configuration.
//
// Providers:
//   - provider/gotrue adapts a GoTrue-compatible HTTP endpoint.
//   - provider/local is an in-memory provider for development and tests.
//   - store/bunstore implements ProfileStore on Bun.
package authsync
