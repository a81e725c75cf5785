package migrations

import "embed"

// FS содержит SQL-миграции goose, вшитые в бинарник.
//
//go:embed *.sql
var FS embed.FS
