// Package migrations embeds the sqlite schema migrations so the binary
// carries its own schema.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
