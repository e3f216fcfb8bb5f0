package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"

	"mercator-hq/modelrouter/pkg/database/migrate"
)

// TableName is the table holding one row per configuration version.
const TableName = "config_versions"

// tsq is the SQLite statement builder with question-mark placeholders.
var tsq = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// TableOptions configures the table backend.
type TableOptions struct {
	// DB is the database handle. It is required and owned by the caller;
	// Close does not close it.
	DB *sql.DB

	// SkipMigrations leaves the schema untouched. Used when the caller
	// manages migrations itself.
	SkipMigrations bool

	Logger   *slog.Logger
	Codec    Codec
	Recorder Recorder
}

// NewTableStore builds a table-backed VersionManager over opts.DB.
func NewTableStore(opts TableOptions) (*VersionedStore, error) {
	if opts.DB == nil {
		return nil, newError(KindMissingRepository, "open", "",
			errors.New("table store requires a database handle"))
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if !opts.SkipMigrations {
		if err := migrate.Run(opts.DB, logger); err != nil {
			return nil, newError(KindIOFailure, "open", "", err)
		}
	}

	b := &tableBackend{db: opts.DB}
	return newVersionedStore(KindTable, b, opts.Codec, logger, opts.Recorder), nil
}

// tableBackend stores every version as a row. Metadata and history are
// derived from the rows, so commit and prune only touch config_versions.
type tableBackend struct {
	db *sql.DB
}

func dbError(op, key string, err error) error {
	return newError(KindIOFailure, op, key, err)
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func (b *tableBackend) readMeta(ctx context.Context, key string) (*Metadata, error) {
	query, args, err := tsq.
		Select("COUNT(*)", "COALESCE(MIN(created_at), 0)").
		From(TableName).
		Where(sq.Eq{"config_key": key}).
		ToSql()
	if err != nil {
		return nil, dbError("read_metadata", key, fmt.Errorf("building count query: %w", err))
	}

	var count int
	var createdAt int64
	if err := b.db.QueryRowContext(ctx, query, args...).Scan(&count, &createdAt); err != nil {
		return nil, dbError("read_metadata", key, err)
	}
	if count == 0 {
		return nil, nil
	}

	query, args, err = tsq.
		Select("version", "updated_at", "created_by", "key_created_at").
		From(TableName).
		Where(sq.Eq{"config_key": key}).
		OrderBy("is_latest DESC", "version DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, dbError("read_metadata", key, fmt.Errorf("building latest query: %w", err))
	}

	var version int
	var updatedAt, keyCreatedAt int64
	var createdBy string
	if err := b.db.QueryRowContext(ctx, query, args...).Scan(&version, &updatedAt, &createdBy, &keyCreatedAt); err != nil {
		return nil, dbError("read_metadata", key, err)
	}
	// Rows written before key_created_at existed fall back to the oldest
	// remaining row.
	if keyCreatedAt > 0 {
		createdAt = keyCreatedAt
	}

	return &Metadata{
		ConfigKey:      key,
		CurrentVersion: version,
		InitialVersion: 1,
		TotalVersions:  count,
		CreatedAt:      fromMillis(createdAt),
		LastModified:   fromMillis(updatedAt),
		LastModifiedBy: createdBy,
	}, nil
}

func (b *tableBackend) readValue(ctx context.Context, op, key string, where sq.Eq) ([]byte, bool, error) {
	query, args, err := tsq.
		Select("config_value").
		From(TableName).
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, false, dbError(op, key, fmt.Errorf("building value query: %w", err))
	}

	var value []byte
	err = b.db.QueryRowContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, dbError(op, key, err)
	}
	return value, true, nil
}

func (b *tableBackend) readActive(ctx context.Context, key string) ([]byte, bool, error) {
	return b.readValue(ctx, "read_active", key, sq.Eq{"config_key": key, "is_latest": 1})
}

func (b *tableBackend) readVersion(ctx context.Context, key string, version int) ([]byte, bool, error) {
	return b.readValue(ctx, "read_version", key, sq.Eq{"config_key": key, "version": version})
}

func (b *tableBackend) readHistory(ctx context.Context, key string) ([]VersionInfo, error) {
	query, args, err := tsq.
		Select("version", "created_at", "created_by", "description", "change_type").
		From(TableName).
		Where(sq.Eq{"config_key": key}).
		OrderBy("version ASC").
		ToSql()
	if err != nil {
		return nil, dbError("read_history", key, fmt.Errorf("building history query: %w", err))
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError("read_history", key, err)
	}
	defer func() { _ = rows.Close() }()

	var history []VersionInfo
	for rows.Next() {
		var info VersionInfo
		var createdAt int64
		var change string
		if err := rows.Scan(&info.Version, &createdAt, &info.CreatedBy, &info.Description, &change); err != nil {
			return nil, dbError("read_history", key, fmt.Errorf("scanning history row: %w", err))
		}
		info.CreatedAt = fromMillis(createdAt)
		info.ChangeType = ChangeType(change)
		history = append(history, info)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("read_history", key, err)
	}
	return history, nil
}

func (b *tableBackend) listVersions(ctx context.Context, key string) ([]int, error) {
	query, args, err := tsq.
		Select("version").
		From(TableName).
		Where(sq.Eq{"config_key": key}).
		OrderBy("version ASC").
		ToSql()
	if err != nil {
		return nil, dbError("list_versions", key, fmt.Errorf("building versions query: %w", err))
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError("list_versions", key, err)
	}
	defer func() { _ = rows.Close() }()

	versions := []int{}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, dbError("list_versions", key, err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("list_versions", key, err)
	}
	return versions, nil
}

// commit demotes the current latest row and inserts the new one inside a
// single transaction, so a key never has zero or two latest rows.
func (b *tableBackend) commit(ctx context.Context, c commitSet) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return versionError(KindIOFailure, "commit", c.key, c.info.Version, fmt.Errorf("beginning transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	now := millis(c.info.CreatedAt)

	query, args, err := tsq.
		Update(TableName).
		Set("is_latest", 0).
		Set("updated_at", now).
		Where(sq.Eq{"config_key": c.key, "is_latest": 1}).
		ToSql()
	if err != nil {
		return versionError(KindIOFailure, "commit", c.key, c.info.Version, fmt.Errorf("building demote statement: %w", err))
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return versionError(KindIOFailure, "commit", c.key, c.info.Version, fmt.Errorf("marking rows not latest: %w", err))
	}

	query, args, err = tsq.
		Insert(TableName).
		Columns("config_key", "config_value", "version", "created_at", "updated_at",
			"is_latest", "created_by", "description", "change_type", "key_created_at").
		Values(c.key, string(c.data), c.info.Version, now, now,
			1, c.info.CreatedBy, c.info.Description, string(c.info.ChangeType), millis(c.meta.CreatedAt)).
		ToSql()
	if err != nil {
		return versionError(KindIOFailure, "commit", c.key, c.info.Version, fmt.Errorf("building insert statement: %w", err))
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return versionError(KindIOFailure, "commit", c.key, c.info.Version, fmt.Errorf("inserting version row: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return versionError(KindIOFailure, "commit", c.key, c.info.Version, fmt.Errorf("committing transaction: %w", err))
	}
	return nil
}

func (b *tableBackend) prune(ctx context.Context, p pruneSet) error {
	del := tsq.Delete(TableName).Where(sq.Eq{"config_key": p.key})
	if p.below > 0 {
		del = del.Where(sq.Lt{"version": p.below})
	} else {
		del = del.Where(sq.Eq{"version": p.versions})
	}
	// Never touch the latest row.
	del = del.Where(sq.Eq{"is_latest": 0})

	query, args, err := del.ToSql()
	if err != nil {
		return dbError("prune", p.key, fmt.Errorf("building delete statement: %w", err))
	}
	if _, err := b.db.ExecContext(ctx, query, args...); err != nil {
		return dbError("prune", p.key, err)
	}
	return nil
}

func (b *tableBackend) deleteAll(ctx context.Context, key string) error {
	query, args, err := tsq.Delete(TableName).Where(sq.Eq{"config_key": key}).ToSql()
	if err != nil {
		return dbError("delete", key, fmt.Errorf("building delete statement: %w", err))
	}
	if _, err := b.db.ExecContext(ctx, query, args...); err != nil {
		return dbError("delete", key, err)
	}
	return nil
}

func (b *tableBackend) keys(ctx context.Context) ([]string, error) {
	query, args, err := tsq.Select("DISTINCT config_key").From(TableName).ToSql()
	if err != nil {
		return nil, dbError("keys", "", fmt.Errorf("building keys query: %w", err))
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError("keys", "", err)
	}
	defer func() { _ = rows.Close() }()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, dbError("keys", "", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("keys", "", err)
	}
	return keys, nil
}

func (b *tableBackend) close() error {
	return nil
}
