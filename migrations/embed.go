// Package migrations embeds the PostgreSQL schema migrations so that the
// migrate command and the integration tests do not depend on the working
// directory.
package migrations

import "embed"

// FS holds every *.up.sql and *.down.sql file of this directory
//
//go:embed *.sql
var FS embed.FS
