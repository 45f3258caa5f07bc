package authsync

import (
	goerrors "github.com/goliatone/go-errors"
)

// Text codes carried by classified failures. Callers branch on these to
// drive messaging; the message itself passes through from the provider.
const (
	TextCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	TextCodeDuplicateIdentity    = "DUPLICATE_IDENTITY"
	TextCodeConfirmationRequired = "CONFIRMATION_REQUIRED"
	TextCodeProfileNotFound      = "PROFILE_NOT_FOUND"
	TextCodeIdentityMismatch     = "IDENTITY_MISMATCH"
	TextCodeNoActiveSession      = "NO_ACTIVE_SESSION"
	TextCodeTransportFailure     = "TRANSPORT_FAILURE"
)

// ErrProfileNotFound signals an orphaned identity: a valid session whose
// subject has no user_profiles row. Distinct from transport failures.
var ErrProfileNotFound = goerrors.New("profile not found for subject", goerrors.CategoryNotFound).
	WithTextCode(TextCodeProfileNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrIdentityMismatch is returned when the session re-check before a profile
// query observes a different (or no) subject than the resolution started
// for. Treated like a transport failure: discard and re-evaluate.
var ErrIdentityMismatch = goerrors.New("session subject changed during resolution", goerrors.CategoryAuth).
	WithTextCode(TextCodeIdentityMismatch).
	WithCode(goerrors.CodeUnauthorized)

// ErrNoActiveSession is returned by actions that require a signed-in user.
var ErrNoActiveSession = goerrors.New("no active session", goerrors.CategoryAuth).
	WithTextCode(TextCodeNoActiveSession).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidCredentials is the classified sign-in rejection.
var ErrInvalidCredentials = goerrors.New("invalid email or password", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrDuplicateIdentity is the classified "account already exists" sign-up
// outcome. The message is deliberately ambiguous to avoid account
// enumeration.
var ErrDuplicateIdentity = goerrors.New("account may already exist, check your email or sign in", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateIdentity).
	WithCode(goerrors.CodeConflict)

// ErrConfirmationRequired reports that sign-up succeeded but the identity is
// unusable until email verification completes.
var ErrConfirmationRequired = goerrors.New("email confirmation required before signing in", goerrors.CategoryAuth).
	WithTextCode(TextCodeConfirmationRequired).
	WithCode(goerrors.CodeUnauthorized)

// WrapTransport converts a provider or store failure into the transport
// category the resolution path recovers from.
func WrapTransport(err error, msg string) error {
	if err == nil {
		return goerrors.New(msg, goerrors.CategoryInternal).
			WithTextCode(TextCodeTransportFailure)
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg).
		WithTextCode(TextCodeTransportFailure)
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.TextCode == code
	}
	return false
}

// IsProfileNotFound checks for the orphaned-identity condition.
func IsProfileNotFound(err error) bool {
	return hasTextCode(err, TextCodeProfileNotFound) || goerrors.IsNotFound(err)
}

// IsIdentityMismatch checks for the TOCTOU discard condition.
func IsIdentityMismatch(err error) bool {
	return hasTextCode(err, TextCodeIdentityMismatch)
}

// IsInvalidCredentials checks for a classified sign-in rejection.
func IsInvalidCredentials(err error) bool {
	return hasTextCode(err, TextCodeInvalidCredentials)
}

// IsDuplicateIdentity checks for the "check email or sign in" sign-up
// classification.
func IsDuplicateIdentity(err error) bool {
	return hasTextCode(err, TextCodeDuplicateIdentity)
}

// IsConfirmationRequired checks for the pending-confirmation sign-up
// classification.
func IsConfirmationRequired(err error) bool {
	return hasTextCode(err, TextCodeConfirmationRequired)
}
