// Package bookkeeping provides the daemon-local SQLite-backed metadata
// store for collections and secrets: the single source of truth about
// what exists and how it is protected, while ciphertext itself lives
// with the plugins.
//
// The store is embedded (modernc.org/sqlite, pure Go) rather than a
// networked database: it belongs to exactly one local daemon process.
//
// Every exported method is its own atomic statement; the processor
// orders its calls around plugin operations rather than composing them
// into a cross-call transaction, so after a crash only a bookkeeping
// row — which the daemon controls — can be stale, never plugin-held
// data.
package bookkeeping

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/sealbox/secretsd/internal/model"
)

// Store is the database/sql-backed implementation of pluginapi.Bookkeeping.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the bookkeeping database at path
// and ensures its schema exists, including the reserved standalone
// collection row.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open bookkeeping database: %w", err)
	}
	db.SetMaxOpenConns(1) // single actor, single writer — avoid SQLITE_BUSY entirely
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an already-open *sql.DB, for tests that drive it with
// sqlmock.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS collections (
	name TEXT PRIMARY KEY,
	owner_application_id TEXT NOT NULL,
	uses_device_lock INTEGER NOT NULL,
	storage_plugin TEXT NOT NULL,
	encryption_plugin TEXT NOT NULL,
	auth_plugin TEXT NOT NULL,
	unlock_semantic INTEGER NOT NULL,
	custom_lock_timeout_ms INTEGER NOT NULL,
	access_control_mode INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS secrets (
	collection_name TEXT NOT NULL,
	hashed_secret_name TEXT NOT NULL,
	owner_application_id TEXT NOT NULL,
	uses_device_lock INTEGER NOT NULL,
	storage_plugin TEXT NOT NULL,
	encryption_plugin TEXT NOT NULL,
	auth_plugin TEXT NOT NULL,
	unlock_semantic INTEGER NOT NULL,
	custom_lock_timeout_ms INTEGER NOT NULL,
	access_control_mode INTEGER NOT NULL,
	PRIMARY KEY (collection_name, hashed_secret_name)
);
`

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate bookkeeping schema: %w", err)
	}
	// The reserved standalone collection exists only to satisfy the
	// secrets table's conceptual foreign key; it is never returned by
	// CollectionNames and every operation rejects its name explicitly.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collections (name, owner_application_id, uses_device_lock, storage_plugin,
			encryption_plugin, auth_plugin, unlock_semantic, custom_lock_timeout_ms, access_control_mode)
		VALUES (?, '', 0, '', '', '', 0, 0, 0)
		ON CONFLICT(name) DO NOTHING
	`, model.StandaloneCollectionName)
	if err != nil {
		return fmt.Errorf("seed standalone collection row: %w", err)
	}
	return nil
}

func (s *Store) CollectionExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM collections WHERE name = ?)`, name).Scan(&exists)
	return exists, err
}

func (s *Store) InsertCollection(ctx context.Context, c *model.Collection) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collections (name, owner_application_id, uses_device_lock, storage_plugin,
			encryption_plugin, auth_plugin, unlock_semantic, custom_lock_timeout_ms, access_control_mode)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.Name, c.OwnerApplicationID, boolToInt(c.UsesDeviceLock), c.StoragePluginName,
		c.EncryptionPluginName, c.AuthPluginName, int(c.UnlockSemantic), c.CustomLockTimeoutMS, int(c.AccessControlMode))
	if err != nil {
		return fmt.Errorf("insert collection %q: %w", c.Name, err)
	}
	return nil
}

func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete collection %q: %w", name, err)
	}
	return nil
}

// CleanupDeleteCollection best-effort removes a collection row whose
// plugin create failed. It always returns reportedPluginErr unless
// cleanup itself fails, in which case it wraps both so the primary
// cause is never silently replaced.
func (s *Store) CleanupDeleteCollection(ctx context.Context, name string, reportedPluginErr error) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, name); err != nil {
		return fmt.Errorf("cleanup failed (%v) after plugin error: %w", err, reportedPluginErr)
	}
	return reportedPluginErr
}

func (s *Store) CollectionMetadata(ctx context.Context, name string) (*model.Collection, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, owner_application_id, uses_device_lock, storage_plugin, encryption_plugin,
		       auth_plugin, unlock_semantic, custom_lock_timeout_ms, access_control_mode
		FROM collections WHERE name = ?
	`, name)
	c := &model.Collection{}
	var usesDeviceLock, unlockSemantic, accessMode int
	err := row.Scan(&c.Name, &c.OwnerApplicationID, &usesDeviceLock, &c.StoragePluginName,
		&c.EncryptionPluginName, &c.AuthPluginName, &unlockSemantic, &c.CustomLockTimeoutMS, &accessMode)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("collection metadata %q: %w", name, err)
	}
	c.UsesDeviceLock = usesDeviceLock != 0
	c.UnlockSemantic = model.UnlockSemantic(unlockSemantic)
	c.AccessControlMode = model.AccessControlMode(accessMode)
	return c, true, nil
}

func (s *Store) CollectionNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM collections WHERE name != ? ORDER BY name ASC`, model.StandaloneCollectionName)
	if err != nil {
		return nil, fmt.Errorf("collection names: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (s *Store) SecretExists(ctx context.Context, collection, hashedName string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM secrets WHERE collection_name = ? AND hashed_secret_name = ?)
	`, collection, hashedName).Scan(&exists)
	return exists, err
}

func (s *Store) InsertSecret(ctx context.Context, sec *model.Secret) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO secrets (collection_name, hashed_secret_name, owner_application_id, uses_device_lock,
			storage_plugin, encryption_plugin, auth_plugin, unlock_semantic, custom_lock_timeout_ms, access_control_mode)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sec.CollectionName, sec.HashedSecretName, sec.OwnerApplicationID, boolToInt(sec.UsesDeviceLock),
		sec.StoragePluginName, sec.EncryptionPluginName, sec.AuthPluginName, int(sec.UnlockSemantic),
		sec.CustomLockTimeoutMS, int(sec.AccessControlMode))
	if err != nil {
		return fmt.Errorf("insert secret %q/%q: %w", sec.CollectionName, sec.HashedSecretName, err)
	}
	return nil
}

func (s *Store) UpdateSecret(ctx context.Context, sec *model.Secret) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE secrets SET owner_application_id = ?, uses_device_lock = ?, storage_plugin = ?,
			encryption_plugin = ?, auth_plugin = ?, unlock_semantic = ?, custom_lock_timeout_ms = ?,
			access_control_mode = ?
		WHERE collection_name = ? AND hashed_secret_name = ?
	`, sec.OwnerApplicationID, boolToInt(sec.UsesDeviceLock), sec.StoragePluginName, sec.EncryptionPluginName,
		sec.AuthPluginName, int(sec.UnlockSemantic), sec.CustomLockTimeoutMS, int(sec.AccessControlMode),
		sec.CollectionName, sec.HashedSecretName)
	if err != nil {
		return fmt.Errorf("update secret %q/%q: %w", sec.CollectionName, sec.HashedSecretName, err)
	}
	return nil
}

func (s *Store) DeleteSecret(ctx context.Context, collection, hashedName string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM secrets WHERE collection_name = ? AND hashed_secret_name = ?`, collection, hashedName)
	if err != nil {
		return fmt.Errorf("delete secret %q/%q: %w", collection, hashedName, err)
	}
	return nil
}

func (s *Store) CleanupDeleteSecret(ctx context.Context, collection, hashedName string, reportedPluginErr error) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM secrets WHERE collection_name = ? AND hashed_secret_name = ?`, collection, hashedName); err != nil {
		return fmt.Errorf("cleanup failed (%v) after plugin error: %w", err, reportedPluginErr)
	}
	return reportedPluginErr
}

func (s *Store) SecretMetadata(ctx context.Context, collection, hashedName string) (*model.Secret, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT collection_name, hashed_secret_name, owner_application_id, uses_device_lock, storage_plugin,
		       encryption_plugin, auth_plugin, unlock_semantic, custom_lock_timeout_ms, access_control_mode
		FROM secrets WHERE collection_name = ? AND hashed_secret_name = ?
	`, collection, hashedName)
	sec := &model.Secret{}
	var usesDeviceLock, unlockSemantic, accessMode int
	err := row.Scan(&sec.CollectionName, &sec.HashedSecretName, &sec.OwnerApplicationID, &usesDeviceLock,
		&sec.StoragePluginName, &sec.EncryptionPluginName, &sec.AuthPluginName, &unlockSemantic,
		&sec.CustomLockTimeoutMS, &accessMode)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("secret metadata %q/%q: %w", collection, hashedName, err)
	}
	sec.UsesDeviceLock = usesDeviceLock != 0
	sec.UnlockSemantic = model.UnlockSemantic(unlockSemantic)
	sec.AccessControlMode = model.AccessControlMode(accessMode)
	return sec, true, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
