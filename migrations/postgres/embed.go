// Package migrations embeds the Postgres schema migrations.
package migrations

import "embed"

// FS holds the *_up.sql and *_down.sql files, applied in lexical order.
//
//go:embed *.sql
var FS embed.FS
