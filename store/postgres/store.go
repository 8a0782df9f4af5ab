package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/licensor"
	"github.com/xraph/licensor/credit"
	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/identity"
	"github.com/xraph/licensor/license"
	"github.com/xraph/licensor/organization"
	"github.com/xraph/licensor/plan"
	"github.com/xraph/licensor/site"
	licensorstore "github.com/xraph/licensor/store"
	"github.com/xraph/licensor/subscription"
)

// compile-time interface check
var _ licensorstore.Store = (*Store)(nil)

// maxAppendAttempts bounds retries of a credit append that lost the race for
// the identity's next sequence number.
const maxAppendAttempts = 8

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("licensor/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("licensor/postgres: %w: %w", licensor.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// insertUnique inserts m and reports a unique conflict as ErrAlreadyExists.
func (s *Store) insertUnique(ctx context.Context, m any) error {
	res, err := s.pg.NewInsert(m).OnConflict("DO NOTHING").Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return licensor.ErrAlreadyExists
	}
	return nil
}

// updateByPK writes m and returns notFound when no row matched.
func (s *Store) updateByPK(ctx context.Context, m any, notFound error) error {
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

// ==================== Identity Store ====================

func (s *Store) CreateIdentity(ctx context.Context, i *identity.Identity) error {
	return s.insertUnique(ctx, toIdentityModel(i))
}

func (s *Store) GetIdentity(ctx context.Context, identityID id.IdentityID) (*identity.Identity, error) {
	m := new(identityModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", identityID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, licensor.ErrIdentityNotFound
		}
		return nil, err
	}
	return fromIdentityModel(m)
}

func (s *Store) GetIdentityByEmail(ctx context.Context, email string) (*identity.Identity, error) {
	m := new(identityModel)
	err := s.pg.NewSelect(m).
		Where("email = $1", email).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, licensor.ErrIdentityNotFound
		}
		return nil, err
	}
	return fromIdentityModel(m)
}

func (s *Store) TouchIdentity(ctx context.Context, identityID id.IdentityID, seenAt time.Time) error {
	res, err := s.pg.NewUpdate((*identityModel)(nil)).
		Set("last_seen_at = $1", seenAt).
		Set("updated_at = $2", seenAt).
		Where("id = $3", identityID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return licensor.ErrIdentityNotFound
	}
	return nil
}

// ==================== License Store ====================

func (s *Store) CreateLicense(ctx context.Context, l *license.License) error {
	return s.insertUnique(ctx, toLicenseModel(l))
}

func (s *Store) GetLicense(ctx context.Context, licenseID id.LicenseID) (*license.License, error) {
	return s.findLicense(ctx, "id = $1", licenseID.String())
}

func (s *Store) GetLicenseByKey(ctx context.Context, key string) (*license.License, error) {
	if key == "" {
		return nil, licensor.ErrLicenseNotFound
	}
	return s.findLicense(ctx, "license_key = $1", key)
}

func (s *Store) GetLicenseBySubscriptionID(ctx context.Context, stripeSubscriptionID string) (*license.License, error) {
	if stripeSubscriptionID == "" {
		return nil, licensor.ErrLicenseNotFound
	}
	return s.findLicense(ctx, "stripe_subscription_id = $1", stripeSubscriptionID)
}

func (s *Store) GetLicenseByCheckoutSession(ctx context.Context, sessionID string) (*license.License, error) {
	if sessionID == "" {
		return nil, licensor.ErrLicenseNotFound
	}
	return s.findLicense(ctx, "checkout_session_id = $1", sessionID)
}

func (s *Store) GetLicenseByOwner(ctx context.Context, owner license.Owner, service plan.Service) (*license.License, error) {
	if owner.IsZero() {
		return nil, licensor.ErrLicenseNotFound
	}
	m := new(licenseModel)
	err := s.pg.NewSelect(m).
		Where("owner_kind = $1", string(owner.Kind)).
		Where("owner_ref = $2", owner.Ref).
		Where("service = $3", string(service)).
		OrderExpr("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, licensor.ErrLicenseNotFound
		}
		return nil, err
	}
	return fromLicenseModel(m)
}

// findLicense returns the newest license matching a single-argument filter.
func (s *Store) findLicense(ctx context.Context, where string, arg any) (*license.License, error) {
	m := new(licenseModel)
	err := s.pg.NewSelect(m).
		Where(where, arg).
		OrderExpr("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, licensor.ErrLicenseNotFound
		}
		return nil, err
	}
	return fromLicenseModel(m)
}

func (s *Store) UpdateLicense(ctx context.Context, l *license.License) error {
	m := toLicenseModel(l)
	m.UpdatedAt = now()
	return s.updateByPK(ctx, m, licensor.ErrLicenseNotFound)
}

// ==================== Organization Store ====================

func (s *Store) CreateOrganization(ctx context.Context, o *organization.Organization) error {
	return s.insertUnique(ctx, toOrganizationModel(o))
}

func (s *Store) GetOrganization(ctx context.Context, orgID id.OrganizationID) (*organization.Organization, error) {
	m := new(organizationModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", orgID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, licensor.ErrOrganizationNotFound
		}
		return nil, err
	}
	return fromOrganizationModel(m)
}

func (s *Store) UpdateOrganization(ctx context.Context, o *organization.Organization) error {
	m := toOrganizationModel(o)
	m.UpdatedAt = now()
	return s.updateByPK(ctx, m, licensor.ErrOrganizationNotFound)
}

func (s *Store) AddMember(ctx context.Context, m *organization.Member) error {
	return s.insertUnique(ctx, toMemberModel(m))
}

func (s *Store) PrimaryMembership(ctx context.Context, userID string) (*organization.Member, error) {
	m := new(memberModel)
	err := s.pg.NewSelect(m).
		Where("user_id = $1", userID).
		OrderExpr(roleOrder).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, licensor.ErrMembershipNotFound
		}
		return nil, err
	}
	return fromMemberModel(m)
}

// roleOrder sorts memberships owner first, then oldest.
const roleOrder = "CASE role WHEN 'owner' THEN 0 WHEN 'admin' THEN 1 ELSE 2 END ASC, created_at ASC"

// ==================== Site Store ====================

func (s *Store) CreateSite(ctx context.Context, st *site.Site) error {
	return s.insertUnique(ctx, toSiteModel(st))
}

func (s *Store) GetSiteByHash(ctx context.Context, siteHash string) (*site.Site, error) {
	if siteHash == "" {
		return nil, licensor.ErrSiteNotFound
	}
	return s.findSite(ctx, "site_hash = $1", siteHash)
}

func (s *Store) GetSiteByInstallID(ctx context.Context, installID string) (*site.Site, error) {
	if installID == "" {
		return nil, licensor.ErrSiteNotFound
	}
	return s.findSite(ctx, "install_id = $1", installID)
}

func (s *Store) findSite(ctx context.Context, where string, arg any) (*site.Site, error) {
	m := new(siteModel)
	err := s.pg.NewSelect(m).
		Where(where, arg).
		OrderExpr("first_seen ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, licensor.ErrSiteNotFound
		}
		return nil, err
	}
	return fromSiteModel(m)
}

func (s *Store) UpdateSite(ctx context.Context, st *site.Site) error {
	m := toSiteModel(st)
	m.UpdatedAt = now()
	return s.updateByPK(ctx, m, licensor.ErrSiteNotFound)
}

func (s *Store) CountActiveSites(ctx context.Context, orgID id.OrganizationID) (int, error) {
	var n int64
	err := s.pg.NewRaw(`
		SELECT COUNT(*) FROM licensor_sites
		WHERE organization_id = $1 AND is_active
	`, orgID.String()).Scan(ctx, &n)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *Store) ListSites(ctx context.Context, orgID id.OrganizationID, opts site.ListOpts) ([]*site.Site, error) {
	var models []siteModel
	q := s.pg.NewSelect(&models).Where("organization_id = $1", orgID.String())

	if opts.ActiveOnly {
		q = q.Where("is_active = $2", true)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("first_seen ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*site.Site, len(models))
	for i := range models {
		st, err := fromSiteModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = st
	}
	return result, nil
}

// ==================== Credit Store ====================

// appendEntry inserts e as the identity's next ledger row. Every row takes
// the next per-identity sequence number; the unique (identity_id, seq) index
// makes concurrent appends for one identity serialize, and the loser retries
// against the new balance. When covered is set the row is only written if
// the balance stays non-negative.
const appendEntry = `
	INSERT INTO licensor_credit_entries
		(id, identity_id, seq, amount, transaction_type, idempotency_key, description, created_at)
	SELECT $1, $2, COALESCE(MAX(seq), 0) + 1, $3, $4, $5, $6, $7
	FROM licensor_credit_entries
	WHERE identity_id = $2
	HAVING $8 = 0 OR COALESCE(SUM(amount), 0) + $3 >= 0
	ON CONFLICT DO NOTHING
	RETURNING id`

func (s *Store) AppendCreditEntry(ctx context.Context, e *credit.Entry) (bool, error) {
	return s.appendCredit(ctx, e, false)
}

func (s *Store) AppendCoveredCreditEntry(ctx context.Context, e *credit.Entry) (bool, error) {
	return s.appendCredit(ctx, e, true)
}

func (s *Store) appendCredit(ctx context.Context, e *credit.Entry, covered bool) (bool, error) {
	m := toCreditEntryModel(e)
	coverFlag := 0
	if covered {
		coverFlag = 1
	}

	for range maxAppendAttempts {
		var inserted string
		err := s.pg.NewRaw(appendEntry,
			m.ID, m.IdentityID, m.Amount, m.Type, m.IdempotencyKey, m.Description, m.CreatedAt, coverFlag,
		).Scan(ctx, &inserted)
		if err == nil {
			return true, nil
		}
		if !isNoRows(err) {
			return false, err
		}

		// Nothing written: a duplicate key, an uncovered debit, or a lost
		// sequence race.
		dup, err := s.hasCreditEntry(ctx, m)
		if err != nil {
			return false, err
		}
		if dup {
			return false, nil
		}
		if covered {
			balance, err := s.CreditBalance(ctx, e.IdentityID)
			if err != nil {
				return false, err
			}
			if balance+e.Amount < 0 {
				return false, licensor.ErrNoCredits
			}
		}
	}
	return false, fmt.Errorf("licensor/postgres: credit append for %s: %w", e.IdentityID, licensor.ErrAlreadyExists)
}

func (s *Store) hasCreditEntry(ctx context.Context, m *creditEntryModel) (bool, error) {
	if m.IdempotencyKey == "" {
		return false, nil
	}
	var n int64
	err := s.pg.NewRaw(`
		SELECT COUNT(*) FROM licensor_credit_entries
		WHERE identity_id = $1 AND transaction_type = $2 AND idempotency_key = $3
	`, m.IdentityID, m.Type, m.IdempotencyKey).Scan(ctx, &n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) CreditBalance(ctx context.Context, identityID id.IdentityID) (int64, error) {
	var total int64
	err := s.pg.NewRaw(`
		SELECT COALESCE(SUM(amount), 0) FROM licensor_credit_entries
		WHERE identity_id = $1
	`, identityID.String()).Scan(ctx, &total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) ListCreditEntries(ctx context.Context, identityID id.IdentityID, opts credit.ListOpts) ([]*credit.Entry, error) {
	var models []creditEntryModel
	q := s.pg.NewSelect(&models).Where("identity_id = $1", identityID.String())

	if opts.Type != "" {
		q = q.Where("transaction_type = $2", string(opts.Type))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("seq DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*credit.Entry, len(models))
	for i := range models {
		e, err := fromCreditEntryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	return s.insertUnique(ctx, toSubscriptionModel(sub))
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	return s.findSubscription(ctx, "id = $1", subID.String())
}

func (s *Store) GetSubscriptionByProviderID(ctx context.Context, providerSubscriptionID string) (*subscription.Subscription, error) {
	if providerSubscriptionID == "" {
		return nil, licensor.ErrSubscriptionNotFound
	}
	return s.findSubscription(ctx, "provider_subscription_id = $1", providerSubscriptionID)
}

func (s *Store) findSubscription(ctx context.Context, where string, arg any) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.pg.NewSelect(m).
		Where(where, arg).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, licensor.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return fromSubscriptionModel(m)
}

func (s *Store) ListSubscriptionsByIdentity(ctx context.Context, identityID id.IdentityID) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	err := s.pg.NewSelect(&models).
		Where("identity_id = $1", identityID.String()).
		OrderExpr("updated_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sub
	}
	return result, nil
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	m.UpdatedAt = now()
	return s.updateByPK(ctx, m, licensor.ErrSubscriptionNotFound)
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
