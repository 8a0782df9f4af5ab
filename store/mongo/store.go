package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

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

// Collection name constants.
const (
	colIdentities    = "licensor_identities"
	colLicenses      = "licensor_licenses"
	colOrganizations = "licensor_organizations"
	colMembers       = "licensor_members"
	colSites         = "licensor_sites"
	colCreditEntries = "licensor_credit_entries"
	colSubscriptions = "licensor_subscriptions"
)

// maxAppendAttempts bounds retries of a credit append that lost the race for
// the identity's next sequence number.
const maxAppendAttempts = 8

// compile-time interface check
var _ licensorstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all licensor collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("licensor/mongo: migrate %s indexes: %w: %w", col, licensor.ErrMigrationFailed, err)
		}
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

// insert writes m and reports a unique index violation as ErrAlreadyExists.
func (s *Store) insert(ctx context.Context, m any, what string) error {
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return licensor.ErrAlreadyExists
		}
		return fmt.Errorf("licensor/mongo: create %s: %w", what, err)
	}
	return nil
}

// ==================== Identity Store ====================

func (s *Store) CreateIdentity(ctx context.Context, i *identity.Identity) error {
	return s.insert(ctx, toIdentityModel(i), "identity")
}

func (s *Store) GetIdentity(ctx context.Context, identityID id.IdentityID) (*identity.Identity, error) {
	return s.findIdentity(ctx, bson.M{"_id": identityID.String()})
}

func (s *Store) GetIdentityByEmail(ctx context.Context, email string) (*identity.Identity, error) {
	return s.findIdentity(ctx, bson.M{"email": email})
}

func (s *Store) findIdentity(ctx context.Context, filter bson.M) (*identity.Identity, error) {
	var m identityModel
	err := s.mdb.NewFind(&m).
		Filter(filter).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, licensor.ErrIdentityNotFound
		}
		return nil, fmt.Errorf("licensor/mongo: get identity: %w", err)
	}
	return fromIdentityModel(&m)
}

func (s *Store) TouchIdentity(ctx context.Context, identityID id.IdentityID, seenAt time.Time) error {
	res, err := s.mdb.NewUpdate((*identityModel)(nil)).
		Filter(bson.M{"_id": identityID.String()}).
		Set("last_seen_at", seenAt).
		Set("updated_at", seenAt).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("licensor/mongo: touch identity: %w", err)
	}
	if res.MatchedCount() == 0 {
		return licensor.ErrIdentityNotFound
	}
	return nil
}

// ==================== License Store ====================

func (s *Store) CreateLicense(ctx context.Context, l *license.License) error {
	return s.insert(ctx, toLicenseModel(l), "license")
}

func (s *Store) GetLicense(ctx context.Context, licenseID id.LicenseID) (*license.License, error) {
	return s.findLicense(ctx, bson.M{"_id": licenseID.String()})
}

func (s *Store) GetLicenseByKey(ctx context.Context, key string) (*license.License, error) {
	if key == "" {
		return nil, licensor.ErrLicenseNotFound
	}
	return s.findLicense(ctx, anyOf(key, "license_key", "licenseKey"))
}

func (s *Store) GetLicenseBySubscriptionID(ctx context.Context, stripeSubscriptionID string) (*license.License, error) {
	if stripeSubscriptionID == "" {
		return nil, licensor.ErrLicenseNotFound
	}
	return s.findLicense(ctx, anyOf(stripeSubscriptionID, "stripe_subscription_id", "stripeSubscriptionId"))
}

func (s *Store) GetLicenseByCheckoutSession(ctx context.Context, sessionID string) (*license.License, error) {
	if sessionID == "" {
		return nil, licensor.ErrLicenseNotFound
	}
	return s.findLicense(ctx, bson.M{"checkout_session_id": sessionID})
}

func (s *Store) GetLicenseByOwner(ctx context.Context, owner license.Owner, service plan.Service) (*license.License, error) {
	if owner.IsZero() {
		return nil, licensor.ErrLicenseNotFound
	}

	legacy := []string{"user_id", "userId"}
	if owner.Kind == license.OwnerOrganization {
		legacy = []string{"organization_id", "organizationId"}
	}
	byOwner := bson.A{bson.M{"owner_kind": string(owner.Kind), "owner_ref": owner.Ref}}
	for _, key := range legacy {
		byOwner = append(byOwner, bson.M{key: owner.Ref})
	}

	return s.findLicense(ctx, bson.M{
		"$or":     byOwner,
		"service": string(service),
	})
}

// findLicense returns the newest license document matching filter.
func (s *Store) findLicense(ctx context.Context, filter bson.M) (*license.License, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})

	var doc bson.M
	err := s.mdb.Collection(colLicenses).FindOne(ctx, filter, opts).Decode(&doc)
	if err != nil {
		if isNoDocuments(err) {
			return nil, licensor.ErrLicenseNotFound
		}
		return nil, fmt.Errorf("licensor/mongo: get license: %w", err)
	}
	return licenseFromDocument(doc)
}

func (s *Store) UpdateLicense(ctx context.Context, l *license.License) error {
	m := toLicenseModel(l)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("licensor/mongo: update license: %w", err)
	}
	if res.MatchedCount() == 0 {
		return licensor.ErrLicenseNotFound
	}
	return nil
}

// ==================== Organization Store ====================

func (s *Store) CreateOrganization(ctx context.Context, o *organization.Organization) error {
	return s.insert(ctx, toOrganizationModel(o), "organization")
}

func (s *Store) GetOrganization(ctx context.Context, orgID id.OrganizationID) (*organization.Organization, error) {
	var m organizationModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": orgID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, licensor.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("licensor/mongo: get organization: %w", err)
	}
	return fromOrganizationModel(&m)
}

func (s *Store) UpdateOrganization(ctx context.Context, o *organization.Organization) error {
	m := toOrganizationModel(o)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("licensor/mongo: update organization: %w", err)
	}
	if res.MatchedCount() == 0 {
		return licensor.ErrOrganizationNotFound
	}
	return nil
}

func (s *Store) AddMember(ctx context.Context, m *organization.Member) error {
	return s.insert(ctx, toMemberModel(m), "member")
}

func (s *Store) PrimaryMembership(ctx context.Context, userID string) (*organization.Member, error) {
	var models []memberModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"user_id": userID}).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("licensor/mongo: list memberships: %w", err)
	}
	if len(models) == 0 {
		return nil, licensor.ErrMembershipNotFound
	}

	members := make([]*organization.Member, len(models))
	for i := range models {
		m, err := fromMemberModel(&models[i])
		if err != nil {
			return nil, err
		}
		members[i] = m
	}
	organization.SortMembers(members)
	return members[0], nil
}

// ==================== Site Store ====================

func (s *Store) CreateSite(ctx context.Context, st *site.Site) error {
	return s.insert(ctx, toSiteModel(st), "site")
}

func (s *Store) GetSiteByHash(ctx context.Context, siteHash string) (*site.Site, error) {
	if siteHash == "" {
		return nil, licensor.ErrSiteNotFound
	}
	return s.findSite(ctx, bson.M{"site_hash": siteHash})
}

func (s *Store) GetSiteByInstallID(ctx context.Context, installID string) (*site.Site, error) {
	if installID == "" {
		return nil, licensor.ErrSiteNotFound
	}
	return s.findSite(ctx, bson.M{"install_id": installID})
}

func (s *Store) findSite(ctx context.Context, filter bson.M) (*site.Site, error) {
	var m siteModel
	err := s.mdb.NewFind(&m).
		Filter(filter).
		Sort(bson.D{{Key: "first_seen", Value: 1}}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, licensor.ErrSiteNotFound
		}
		return nil, fmt.Errorf("licensor/mongo: get site: %w", err)
	}
	return fromSiteModel(&m)
}

func (s *Store) UpdateSite(ctx context.Context, st *site.Site) error {
	m := toSiteModel(st)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("licensor/mongo: update site: %w", err)
	}
	if res.MatchedCount() == 0 {
		return licensor.ErrSiteNotFound
	}
	return nil
}

func (s *Store) CountActiveSites(ctx context.Context, orgID id.OrganizationID) (int, error) {
	n, err := s.mdb.Collection(colSites).CountDocuments(ctx, bson.M{
		"organization_id": orgID.String(),
		"is_active":       true,
	})
	if err != nil {
		return 0, fmt.Errorf("licensor/mongo: count sites: %w", err)
	}
	return int(n), nil
}

func (s *Store) ListSites(ctx context.Context, orgID id.OrganizationID, opts site.ListOpts) ([]*site.Site, error) {
	var models []siteModel

	filter := bson.M{"organization_id": orgID.String()}
	if opts.ActiveOnly {
		filter["is_active"] = true
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "first_seen", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("licensor/mongo: list sites: %w", err)
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

func (s *Store) AppendCreditEntry(ctx context.Context, e *credit.Entry) (bool, error) {
	return s.appendCredit(ctx, e, false)
}

func (s *Store) AppendCoveredCreditEntry(ctx context.Context, e *credit.Entry) (bool, error) {
	return s.appendCredit(ctx, e, true)
}

// appendCredit writes e as the identity's next ledger document. The unique
// (identity_id, seq) index turns a concurrent append into a duplicate key
// error; the loser re-reads the tally and tries again.
func (s *Store) appendCredit(ctx context.Context, e *credit.Entry, covered bool) (bool, error) {
	m := toCreditEntryModel(e)

	for range maxAppendAttempts {
		dup, err := s.hasCreditEntry(ctx, m)
		if err != nil {
			return false, err
		}
		if dup {
			return false, nil
		}

		t, err := s.creditTally(ctx, e.IdentityID)
		if err != nil {
			return false, err
		}
		if covered && t.Total+e.Amount < 0 {
			return false, licensor.ErrNoCredits
		}

		m.Seq = t.MaxSeq + 1
		_, err = s.mdb.NewInsert(m).Exec(ctx)
		if err == nil {
			return true, nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return false, fmt.Errorf("licensor/mongo: append credit: %w", err)
		}
	}
	return false, fmt.Errorf("licensor/mongo: credit append for %s: %w", e.IdentityID, licensor.ErrAlreadyExists)
}

func (s *Store) hasCreditEntry(ctx context.Context, m *creditEntryModel) (bool, error) {
	if m.IdempotencyKey == "" {
		return false, nil
	}
	n, err := s.mdb.Collection(colCreditEntries).CountDocuments(ctx, bson.M{
		"identity_id":      m.IdentityID,
		"transaction_type": m.Type,
		"idempotency_key":  m.IdempotencyKey,
	})
	if err != nil {
		return false, fmt.Errorf("licensor/mongo: check idempotency key: %w", err)
	}
	return n > 0, nil
}

type creditTally struct {
	Total  int64 `bson:"total"`
	MaxSeq int64 `bson:"max_seq"`
}

func (s *Store) creditTally(ctx context.Context, identityID id.IdentityID) (creditTally, error) {
	pipeline := bson.A{
		bson.M{"$match": bson.M{"identity_id": identityID.String()}},
		bson.M{
			"$group": bson.M{
				"_id":     nil,
				"total":   bson.M{"$sum": "$amount"},
				"max_seq": bson.M{"$max": "$seq"},
			},
		},
	}

	cursor, err := s.mdb.Collection(colCreditEntries).Aggregate(ctx, pipeline)
	if err != nil {
		return creditTally{}, fmt.Errorf("licensor/mongo: aggregate credits: %w", err)
	}
	defer cursor.Close(ctx)

	var results []creditTally
	if err := cursor.All(ctx, &results); err != nil {
		return creditTally{}, fmt.Errorf("licensor/mongo: aggregate credits decode: %w", err)
	}
	if len(results) == 0 {
		return creditTally{}, nil
	}
	return results[0], nil
}

func (s *Store) CreditBalance(ctx context.Context, identityID id.IdentityID) (int64, error) {
	t, err := s.creditTally(ctx, identityID)
	if err != nil {
		return 0, err
	}
	return t.Total, nil
}

func (s *Store) ListCreditEntries(ctx context.Context, identityID id.IdentityID, opts credit.ListOpts) ([]*credit.Entry, error) {
	var models []creditEntryModel

	filter := bson.M{"identity_id": identityID.String()}
	if opts.Type != "" {
		filter["transaction_type"] = string(opts.Type)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "seq", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("licensor/mongo: list credit entries: %w", err)
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
	return s.insert(ctx, toSubscriptionModel(sub), "subscription")
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	return s.findSubscription(ctx, bson.M{"_id": subID.String()})
}

func (s *Store) GetSubscriptionByProviderID(ctx context.Context, providerSubscriptionID string) (*subscription.Subscription, error) {
	if providerSubscriptionID == "" {
		return nil, licensor.ErrSubscriptionNotFound
	}
	return s.findSubscription(ctx, bson.M{"provider_subscription_id": providerSubscriptionID})
}

func (s *Store) findSubscription(ctx context.Context, filter bson.M) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := s.mdb.NewFind(&m).
		Filter(filter).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, licensor.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("licensor/mongo: get subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) ListSubscriptionsByIdentity(ctx context.Context, identityID id.IdentityID) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"identity_id": identityID.String()}).
		Sort(bson.D{{Key: "updated_at", Value: -1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("licensor/mongo: list subscriptions: %w", err)
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

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("licensor/mongo: update subscription: %w", err)
	}
	if res.MatchedCount() == 0 {
		return licensor.ErrSubscriptionNotFound
	}
	return nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// anyOf matches documents where any of the given keys equals value.
func anyOf(value string, keys ...string) bson.M {
	alts := make(bson.A, len(keys))
	for i, k := range keys {
		alts[i] = bson.M{k: value}
	}
	return bson.M{"$or": alts}
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all licensor collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	nonEmpty := func(key string) *options.IndexOptionsBuilder {
		return options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.M{key: bson.M{"$gt": ""}})
	}

	return map[string][]mongo.IndexModel{
		colIdentities: {
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colLicenses: {
			{
				Keys:    bson.D{{Key: "license_key", Value: 1}},
				Options: nonEmpty("license_key"),
			},
			{Keys: bson.D{{Key: "owner_kind", Value: 1}, {Key: "owner_ref", Value: 1}, {Key: "service", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "stripe_subscription_id", Value: 1}}},
			{
				Keys:    bson.D{{Key: "checkout_session_id", Value: 1}},
				Options: nonEmpty("checkout_session_id"),
			},
			{Keys: bson.D{{Key: "licenseKey", Value: 1}}, Options: options.Index().SetSparse(true)},
		},
		colOrganizations: {
			{Keys: bson.D{{Key: "license_key", Value: 1}}},
		},
		colMembers: {
			{
				Keys:    bson.D{{Key: "organization_id", Value: 1}, {Key: "user_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
		},
		colSites: {
			{
				Keys:    bson.D{{Key: "site_hash", Value: 1}},
				Options: nonEmpty("site_hash"),
			},
			{Keys: bson.D{{Key: "install_id", Value: 1}}},
			{Keys: bson.D{{Key: "organization_id", Value: 1}, {Key: "is_active", Value: 1}}},
		},
		colCreditEntries: {
			{
				Keys:    bson.D{{Key: "identity_id", Value: 1}, {Key: "seq", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: "identity_id", Value: 1}, {Key: "transaction_type", Value: 1}, {Key: "idempotency_key", Value: 1}},
				Options: nonEmpty("idempotency_key"),
			},
		},
		colSubscriptions: {
			{
				Keys:    bson.D{{Key: "provider_subscription_id", Value: 1}},
				Options: nonEmpty("provider_subscription_id"),
			},
			{Keys: bson.D{{Key: "identity_id", Value: 1}, {Key: "updated_at", Value: -1}}},
		},
	}
}
