package migrations

import "embed"

// Migrations holds the schema for the sqlite driver, applied in order by
// golang-migrate.
//
//go:embed *.sql
var Migrations embed.FS
