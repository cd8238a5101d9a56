// Package migrations embeds the tracker's goose migration files so the
// binary carries its own schema and needs no external migration step.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
