package audithook

// Action constants for audit events.
const (
	// License actions
	ActionLicenseCreated  = "license.created"
	ActionLicenseAttached = "license.attached"
	ActionLicenseUpgraded = "license.upgraded"

	// Organization and site actions
	ActionOrganizationCreated  = "organization.created"
	ActionOrganizationOrphaned = "organization.orphaned"
	ActionSiteRegistered       = "site.registered"
	ActionSiteReactivated      = "site.reactivated"

	// Credit actions
	ActionCreditsAdded     = "credits.added"
	ActionCreditsDuplicate = "credits.duplicate"
	ActionCreditsConsumed  = "credits.consumed"
	ActionCreditsRefunded  = "credits.refunded"

	// Access actions
	ActionAccessGranted = "access.granted"
	ActionAccessDenied  = "access.denied"

	// Billing actions
	ActionCheckoutApplied  = "checkout.applied"
	ActionSideEffectFailed = "side_effect.failed"
)

// Resource constants for audit events.
const (
	ResourceLicense      = "license"
	ResourceOrganization = "organization"
	ResourceSite         = "site"
	ResourceCredits      = "credits"
	ResourceAccess       = "access"
	ResourceCheckout     = "checkout"
	ResourceOperation    = "operation"
)

// Category constants for audit events.
const (
	CategoryLicensing    = "licensing"
	CategoryOrganization = "organization"
	CategoryCredits      = "credits"
	CategoryAccess       = "access"
	CategoryPayment      = "payment"
	CategoryIntegration  = "integration"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
