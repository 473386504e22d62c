// Package migrations embeds SQL migration files.
package migrations

import "embed"

// FS contiene las migraciones de la tabla de credenciales.
//
//go:embed *.sql
var FS embed.FS
