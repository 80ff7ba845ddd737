package embedded

import _ "embed"

// Database migrations.

// DBMigration1x0 is the initial database setup.
//
//go:embed sql/1x0.sql
var DBMigration1x0 string

// DBMigration1x1 adds forfeits to the match history and the leaderboard index.
//
//go:embed sql/1x1.sql
var DBMigration1x1 string
