// Package pluginapi defines the narrow interfaces the Request Processor
// consumes from its collaborators: storage, encryption, encrypted
// storage and authentication plugins, the bookkeeping façade, and the
// permission oracle. The contracts are fixed by the core; concrete
// plugin implementations, the bookkeeping schema, and transport/IPC
// live elsewhere.
package pluginapi

import (
	"context"

	"github.com/sealbox/secretsd/internal/model"
)

// StoragePlugin persists opaque, already-encrypted secret payloads
// keyed by hashed secret name. It never sees plaintext.
type StoragePlugin interface {
	Name() string
	CreateCollection(ctx context.Context, collection string) error
	RemoveCollection(ctx context.Context, collection string) error
	SetSecret(ctx context.Context, collection, hashedName string, encName, encValue []byte, filter map[string]string) error
	GetSecret(ctx context.Context, collection, hashedName string) (encName, encValue []byte, filter map[string]string, err error)
	RemoveSecret(ctx context.Context, collection, hashedName string) error
	FindSecrets(ctx context.Context, collection string, filter map[string]string, op model.FilterOperator) (encNames [][]byte, err error)
}

// EncryptionPlugin performs symmetric encryption/decryption against a
// caller-supplied key. It holds no lock state of its own.
type EncryptionPlugin interface {
	Name() string
	Encrypt(ctx context.Context, plaintext, key []byte) (ciphertext []byte, err error)
	Decrypt(ctx context.Context, ciphertext, key []byte) (plaintext []byte, err error)
}

// EncryptedStoragePlugin is the superset of StoragePlugin and
// EncryptionPlugin used when a single plugin both stores and encrypts a
// collection's secrets, additionally owning the collection's lock
// state.
type EncryptedStoragePlugin interface {
	StoragePlugin
	IsLocked(ctx context.Context, collection string) (bool, error)
	SetEncryptionKey(ctx context.Context, collection string, key []byte) error
	// AccessSecret is a single-shot unlock+read used for standalone
	// secrets, which have no persistent per-collection lock state.
	AccessSecret(ctx context.Context, collection, hashedName string, key []byte) (name, value []byte, filter map[string]string, err error)
}

// AuthenticationTypes is a bitset of authentication mechanisms an
// AuthenticationPlugin supports.
type AuthenticationTypes uint32

const (
	AuthApplicationSpecific AuthenticationTypes = 1 << iota
	AuthSystemDefault
)

// AuthenticationPlugin drives an asynchronous user-interaction flow to
// acquire secret data or an unlock key. Completion is signalled
// asynchronously through internal/bus, never by a direct callback into
// the dispatcher.
type AuthenticationPlugin interface {
	Name() string
	AuthenticationTypes() AuthenticationTypes
	BeginUserInputInteraction(ctx context.Context, callerPID int, requestID string, params model.InteractionParameters, interactionServiceAddr string) error
}

// Bookkeeping is the typed façade the processor uses for collection and
// secret metadata. Every call is its own atomic unit; the processor
// never assumes two calls share a transaction.
type Bookkeeping interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	InsertCollection(ctx context.Context, c *model.Collection) error
	DeleteCollection(ctx context.Context, name string) error
	// CleanupDeleteCollection best-effort removes a row whose plugin
	// create failed. reportedPluginErr is the error to preserve and
	// return if cleanup itself also fails.
	CleanupDeleteCollection(ctx context.Context, name string, reportedPluginErr error) error
	CollectionMetadata(ctx context.Context, name string) (*model.Collection, bool, error)
	CollectionNames(ctx context.Context) ([]string, error)

	SecretExists(ctx context.Context, collection, hashedName string) (bool, error)
	InsertSecret(ctx context.Context, s *model.Secret) error
	UpdateSecret(ctx context.Context, s *model.Secret) error
	DeleteSecret(ctx context.Context, collection, hashedName string) error
	CleanupDeleteSecret(ctx context.Context, collection, hashedName string, reportedPluginErr error) error
	SecretMetadata(ctx context.Context, collection, hashedName string) (*model.Secret, bool, error)
}

// PermissionOracle resolves caller identity for owner-only access
// checks. The concrete mechanism mapping a pid to an application id is
// platform-specific; this daemon only depends on the narrow interface
// below.
type PermissionOracle interface {
	ApplicationID(pid int) (string, error)
	PlatformApplicationID() string
	IsPlatformApplication(pid int) bool
}
