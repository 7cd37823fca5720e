package sigil

import "github.com/xraph/sigil/id"

// ID is the identifier type of settlement and audit records.
type ID = id.ID

// Prefix identifies the record type encoded in a TypeID.
type Prefix = id.Prefix
