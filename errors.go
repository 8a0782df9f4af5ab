package licensor

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("licensor: not found")
	ErrAlreadyExists = errors.New("licensor: already exists")
	ErrPersistence   = errors.New("licensor: persistence failure")

	// Validation errors
	ErrInvalidPlan     = errors.New("licensor: invalid plan")
	ErrInvalidAmount   = errors.New("licensor: invalid amount")
	ErrInvalidEmail    = errors.New("licensor: invalid email")
	ErrInvalidSiteInfo = errors.New("licensor: site info requires site url, site hash or install id")

	// License errors
	ErrLicenseNotFound      = errors.New("licensor: license not found")
	ErrNoOwningOrganization = errors.New("licensor: license has no owning organization")

	// Organization and site errors
	ErrOrganizationNotFound  = errors.New("licensor: organization not found")
	ErrMembershipNotFound    = errors.New("licensor: membership not found")
	ErrSiteNotFound          = errors.New("licensor: site not found")
	ErrSiteOwnershipConflict = errors.New("licensor: site belongs to another organization")
	ErrSiteLimitReached      = errors.New("licensor: organization site limit reached")

	// Access and credit errors
	ErrIdentityNotFound     = errors.New("licensor: identity not found")
	ErrNoIdentity           = errors.New("licensor: no identity")
	ErrSubscriptionNotFound = errors.New("licensor: subscription not found")
	ErrNoSubscription       = errors.New("licensor: no subscription")
	ErrSubscriptionInactive = errors.New("licensor: subscription inactive")
	ErrNoCredits            = errors.New("licensor: insufficient credits")

	// Store errors
	ErrStoreClosed     = errors.New("licensor: store is closed")
	ErrMigrationFailed = errors.New("licensor: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("licensor: validation failed for %s: %s", e.Field, e.Message)
}

func (e ValidationError) Unwrap() error { return e.Err }

// PersistenceError wraps an unexpected store failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("licensor: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Is makes every PersistenceError match ErrPersistence.
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "licensor: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("licensor: %d errors occurred", len(e.Errors))
}

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ErrorKind is a stable classification of an error for callers that map
// failures to transport status codes.
type ErrorKind string

const (
	KindNone                  ErrorKind = ""
	KindInvalidPlan           ErrorKind = "invalid_plan"
	KindInvalidAmount         ErrorKind = "invalid_amount"
	KindInvalidInput          ErrorKind = "invalid_input"
	KindLicenseNotFound       ErrorKind = "license_not_found"
	KindNoOwningOrganization  ErrorKind = "no_owning_organization"
	KindSiteOwnershipConflict ErrorKind = "site_ownership_conflict"
	KindSiteLimitReached      ErrorKind = "site_limit_reached"
	KindNoIdentity            ErrorKind = "no_identity"
	KindNoSubscription        ErrorKind = "no_subscription"
	KindSubscriptionInactive  ErrorKind = "subscription_inactive"
	KindNoCredits             ErrorKind = "no_credits"
	KindNotFound              ErrorKind = "not_found"
	KindConflict              ErrorKind = "conflict"
	KindPersistence           ErrorKind = "persistence_error"
)

var kinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInvalidPlan, KindInvalidPlan},
	{ErrInvalidAmount, KindInvalidAmount},
	{ErrInvalidEmail, KindInvalidInput},
	{ErrInvalidSiteInfo, KindInvalidInput},
	{ErrLicenseNotFound, KindLicenseNotFound},
	{ErrNoOwningOrganization, KindNoOwningOrganization},
	{ErrSiteOwnershipConflict, KindSiteOwnershipConflict},
	{ErrSiteLimitReached, KindSiteLimitReached},
	{ErrNoIdentity, KindNoIdentity},
	{ErrIdentityNotFound, KindNoIdentity},
	{ErrNoSubscription, KindNoSubscription},
	{ErrSubscriptionInactive, KindSubscriptionInactive},
	{ErrNoCredits, KindNoCredits},
	{ErrAlreadyExists, KindConflict},
	{ErrPersistence, KindPersistence},
}

// KindOf classifies err. Unclassified errors are persistence errors.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	var ve ValidationError
	if errors.As(err, &ve) {
		return KindInvalidInput
	}
	if IsNotFound(err) {
		return KindNotFound
	}
	return KindPersistence
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrLicenseNotFound) ||
		errors.Is(err, ErrIdentityNotFound) ||
		errors.Is(err, ErrOrganizationNotFound) ||
		errors.Is(err, ErrMembershipNotFound) ||
		errors.Is(err, ErrSiteNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound)
}

// IsConflict returns true for ownership and capacity conflicts.
func IsConflict(err error) bool {
	return errors.Is(err, ErrSiteOwnershipConflict) ||
		errors.Is(err, ErrSiteLimitReached) ||
		errors.Is(err, ErrAlreadyExists)
}

// IsValidation returns true for rejected input.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.Is(err, ErrInvalidPlan) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidEmail) ||
		errors.Is(err, ErrInvalidSiteInfo) ||
		errors.As(err, &ve)
}

// IsRetryable returns true if the error is temporary and the operation can
// be retried. Validation and conflict errors never are.
func IsRetryable(err error) bool {
	if IsValidation(err) || IsConflict(err) {
		return false
	}
	return errors.Is(err, ErrPersistence)
}

// persistErr passes licensor sentinels through and wraps anything else.
func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindPersistence || errors.Is(err, ErrPersistence) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
