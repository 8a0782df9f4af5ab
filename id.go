package licensor

import "github.com/xraph/licensor/id"

// ID is the primary identifier type for all licensor records.
type ID = id.ID

// Prefix identifies the record kind encoded in a TypeID.
type Prefix = id.Prefix
