package migrations

import "embed"

// FS holds the versioned SQL migrations applied by `telecare-api migrate`.
//
//go:embed *.sql
var FS embed.FS
