// Package licensor provides the license, organization-quota and access-control
// core of a metered SaaS backend.
//
// Licensor is a library, not a service. The HTTP layer, authentication and
// email rendering live outside it; this package decides who may consume the
// service and keeps license, site and credit records consistent under
// concurrent webhook and API traffic.
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/licensor"
//	    "github.com/xraph/licensor/store/postgres"
//	)
//
//	store := postgres.New(db)
//	l := licensor.New(store, licensor.WithLogger(logger))
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop(ctx)
//
// # Core Concepts
//
// A License grants a token quota for a plan (free, pro, agency) of a service.
// Limits come from a static plan table:
//
//	lic, err := l.CreateLicense(ctx, licensor.CreateLicenseInput{
//	    Plan:  plan.Pro,
//	    Owner: licensor.OwnedByUser(userID),
//	    Email: "jane@example.com",
//	    Site:  licensor.SiteInfo{SiteURL: "https://example.com"},
//	})
//
// Licenses attach to Sites, which belong to exactly one Organization. An
// organization holds one active site, or ten on the agency plan:
//
//	res, err := l.AutoAttachLicense(ctx, lic.Key, licensor.SiteInfo{SiteHash: hash})
//
// Credits are an append-only ledger per Identity (a normalized email).
// Purchases are idempotent per key, so webhook retries never double-credit:
//
//	balance, err := l.AddCreditsByEmail(ctx, email, 100, sessionID)
//
// Access is decided without ever returning an error. An active paid
// subscription allows, otherwise a positive credit balance allows, otherwise
// the request is denied. Internal failures deny:
//
//	d := l.EvaluateAccess(ctx, email, "generate")
//	if !d.Allowed {
//	    // d.Reason is no_identity, no_subscription or subscription_inactive
//	}
//
// # Side Effects
//
// Emails, metrics and audit records run as plugins after the primary write.
// Their failures are logged and never fail the operation.
//
// # Errors
//
// Failures are sentinel errors. KindOf maps any error to a stable ErrorKind
// for transport-level status mapping.
package licensor
