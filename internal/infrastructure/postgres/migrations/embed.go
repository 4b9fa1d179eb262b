package migrations

import "embed"

// FS holds the versioned schema migrations applied by the schema manager.
//
//go:embed *.sql
var FS embed.FS
