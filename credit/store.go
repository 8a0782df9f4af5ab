package credit

import (
	"context"

	"github.com/xraph/licensor/id"
)

type Store interface {
	// Append inserts e unless an entry with the same identity, type and
	// idempotency key exists. It reports whether a row was written.
	Append(ctx context.Context, e *Entry) (bool, error)
	// AppendCovered is Append for debits: it writes only when the current
	// balance covers -e.Amount and fails with the no-credits error otherwise.
	AppendCovered(ctx context.Context, e *Entry) (bool, error)
	Balance(ctx context.Context, identityID id.IdentityID) (int64, error)
	List(ctx context.Context, identityID id.IdentityID, opts ListOpts) ([]*Entry, error)
}
