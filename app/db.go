package app

import (
	"context"
	nativeerrors "errors"
	"fmt"
	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/lefinal/gacha-arena/embedded"
	"github.com/lefinal/gacha-arena/errors"
	"go.uber.org/zap"
)

// defaultMaxDBConnections is the maximum number of database connections that
// is used when no other one is provided in the Config.
const defaultMaxDBConnections = 16

// pgCodeUndefinedTable is the PostgreSQL error code for relations that do not
// exist.
const pgCodeUndefinedTable = "42P01"

// dbMetaTable is the key-value table holding the database version.
const dbMetaTable = "arena_meta"

// dbVersionKey is the key of the database version in dbMetaTable.
const dbVersionKey = "db-version"

// dbVersion is the schema version stored in dbMetaTable.
type dbVersion string

// dbVersionZero is the version of an empty database.
const dbVersionZero dbVersion = "0"

// dbMigration brings the schema up to version.
type dbMigration struct {
	version dbVersion
	up      string
}

// dbMigrations must be ordered by version.
var dbMigrations = []dbMigration{
	{
		version: "1.0",
		up:      embedded.DBMigration1x0,
	},
	{
		version: "1.1",
		up:      embedded.DBMigration1x1,
	},
}

var dialect = goqu.Dialect("postgres")

// connectDB connects to the database with the given connection string,
// performs migrations and returns the connection pool.
func connectDB(ctx context.Context, logger *zap.Logger, connectionStr string, maxDBConnections int32) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(connectionStr)
	if err != nil {
		return nil, errors.Error{
			Code:    errors.ErrInternal,
			Kind:    errors.KindInvalidConfig,
			Err:     err,
			Message: "parse db connection string",
		}
	}
	poolConfig.MaxConns = maxDBConnections
	db, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Error{
			Code:    errors.ErrInternal,
			Kind:    errors.KindDB,
			Err:     err,
			Message: "connect to database",
		}
	}
	// Perform test query.
	err = testDBConnection(ctx, db)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "test db connection", nil)
	}
	// Perform db migrations.
	err = performDBMigrations(ctx, logger, db)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "perform db migrations", nil)
	}
	return db, nil
}

// testDBConnection tests the database connection by simply querying 1.
func testDBConnection(ctx context.Context, db *pgxpool.Pool) error {
	q, _, err := goqu.Select(goqu.V(1)).ToSQL()
	if err != nil {
		return errors.NewQueryToSQLError(err, nil)
	}
	var got int
	err = db.QueryRow(ctx, q).Scan(&got)
	if err != nil {
		return errors.NewScanDBRowError(err, q)
	}
	if got != 1 {
		return errors.Error{
			Code:    errors.ErrInternal,
			Kind:    errors.KindDB,
			Message: fmt.Sprintf("test db connection: expected 1 as result but got %d", got),
			Details: errors.Details{"got": got},
		}
	}
	return nil
}

// performDBMigrations performs all needed database migrations according to the
// (un)set database version. Migrations and the version update are performed
// in a single transaction.
func performDBMigrations(ctx context.Context, logger *zap.Logger, db *pgxpool.Pool) error {
	currentVersion, err := retrieveCurrentDBVersion(ctx, db)
	if err != nil {
		return errors.Wrap(err, "retrieve current db version", nil)
	}
	logger.Info("current database version", zap.Any("version", currentVersion))
	migrationsToDo, err := getDBMigrationsToDo(currentVersion)
	if err != nil {
		return errors.Wrap(err, "get db migrations to do", nil)
	}
	if len(migrationsToDo) == 0 {
		return nil
	}
	tx, err := db.Begin(ctx)
	if err != nil {
		return errors.NewDBTxBeginError(err)
	}
	defer rollbackTx(ctx, logger, tx, "database migration failed")
	var newVersion dbVersion
	for i, migration := range migrationsToDo {
		logger.Info(fmt.Sprintf("performing database migration %d/%d...", i+1, len(migrationsToDo)),
			zap.Any("target_version", migration.version))
		_, err = tx.Exec(ctx, migration.up)
		if err != nil {
			return errors.NewExecQueryError(err, migration.up, errors.Details{"target_version": migration.version})
		}
		newVersion = migration.version
	}
	q, err := updateDBVersionQuery(currentVersion, newVersion)
	if err != nil {
		return errors.Wrap(err, "update db version query", nil)
	}
	_, err = tx.Exec(ctx, q)
	if err != nil {
		return errors.NewExecQueryError(err, q, nil)
	}
	err = tx.Commit(ctx)
	if err != nil {
		return errors.NewDBTxCommitError(err)
	}
	logger.Info("database migrations done", zap.Any("version", newVersion))
	return nil
}

// updateDBVersionQuery builds the query for setting the database version.
func updateDBVersionQuery(currentVersion dbVersion, newVersion dbVersion) (string, error) {
	var q string
	var err error
	if currentVersion == dbVersionZero {
		q, _, err = dialect.Insert(goqu.T(dbMetaTable)).Rows(goqu.Record{
			"key":   dbVersionKey,
			"value": newVersion,
		}).ToSQL()
	} else {
		q, _, err = dialect.Update(goqu.T(dbMetaTable)).
			Set(goqu.Record{"value": newVersion}).
			Where(goqu.C("key").Eq(dbVersionKey)).ToSQL()
	}
	if err != nil {
		return "", errors.NewQueryToSQLError(err, nil)
	}
	return q, nil
}

// getDBMigrationsToDo returns the migrations following currentVersion. All
// migrations are returned for dbVersionZero. Unknown versions are an error.
func getDBMigrationsToDo(currentVersion dbVersion) ([]dbMigration, error) {
	if currentVersion == dbVersionZero {
		return dbMigrations, nil
	}
	pending := make([]dbMigration, 0)
	applied := -1
	for i, migration := range dbMigrations {
		switch {
		case migration.version == currentVersion && applied != -1:
			return nil, errors.Error{
				Code:    errors.ErrInternal,
				Kind:    errors.KindShouldNotHappen,
				Message: fmt.Sprintf("duplicate migration for database version %v", currentVersion),
				Details: errors.Details{"version": currentVersion},
			}
		case migration.version == currentVersion:
			applied = i
		case applied != -1:
			pending = append(pending, migration)
		}
	}
	if applied == -1 {
		return nil, errors.NewResourceNotFoundError(fmt.Sprintf("unknown database version %v", currentVersion),
			errors.Details{"version": currentVersion})
	}
	return pending, nil
}

// retrieveCurrentDBVersion reads the dbVersion. A missing meta table or entry
// yields dbVersionZero.
func retrieveCurrentDBVersion(ctx context.Context, db *pgxpool.Pool) (dbVersion, error) {
	q, _, err := dialect.From(goqu.T(dbMetaTable)).
		Select(goqu.C("value")).
		Where(goqu.C("key").Eq(dbVersionKey)).ToSQL()
	if err != nil {
		return "", errors.NewQueryToSQLError(err, nil)
	}
	var version string
	err = db.QueryRow(ctx, q).Scan(&version)
	if err != nil {
		if isUndefinedTable(err) || nativeerrors.Is(err, pgx.ErrNoRows) {
			return dbVersionZero, nil
		}
		return "", errors.NewScanDBRowError(err, q)
	}
	return dbVersion(version), nil
}

// isUndefinedTable checks whether the given error is a PostgreSQL error because
// of a missing relation.
func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return nativeerrors.As(err, &pgErr) && pgErr.Code == pgCodeUndefinedTable
}

// rollbackTx rolls back tx unless it was committed and logs failures.
func rollbackTx(ctx context.Context, logger *zap.Logger, tx pgx.Tx, reason string) {
	err := tx.Rollback(ctx)
	if err != nil && !nativeerrors.Is(err, pgx.ErrTxClosed) {
		errors.Log(logger, errors.Error{
			Code:    errors.ErrInternal,
			Kind:    errors.KindDBRollback,
			Message: "rollback tx",
			Err:     err,
			Details: errors.Details{"rollback_reason": reason},
		})
	}
}
