// Package db provides the embedded database migrations and seed data.
package db

import "embed"

// Migrations holds the golang-migrate files under migrations/.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// SeedBooks is the starter catalog loaded by seed-db.
//
//go:embed seed/books.json
var SeedBooks []byte
