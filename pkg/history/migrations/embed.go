// Package migrations embeds the history store schema migrations so the
// binary carries them.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
