package processor

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/sealbox/secretsd/internal/model"
	"github.com/sealbox/secretsd/internal/pluginapi"
)

// fakeBookkeeping is an in-memory stand-in for pluginapi.Bookkeeping,
// good enough to exercise the processor's transaction-free call
// sequencing without a real database.
type fakeBookkeeping struct {
	collections map[string]*model.Collection
	secrets     map[string]map[string]*model.Secret
}

func newFakeBookkeeping() *fakeBookkeeping {
	return &fakeBookkeeping{
		collections: make(map[string]*model.Collection),
		secrets:     make(map[string]map[string]*model.Secret),
	}
}

func (b *fakeBookkeeping) CollectionExists(ctx context.Context, name string) (bool, error) {
	_, ok := b.collections[name]
	return ok, nil
}

func (b *fakeBookkeeping) InsertCollection(ctx context.Context, c *model.Collection) error {
	cp := *c
	b.collections[c.Name] = &cp
	if b.secrets[c.Name] == nil {
		b.secrets[c.Name] = make(map[string]*model.Secret)
	}
	return nil
}

func (b *fakeBookkeeping) DeleteCollection(ctx context.Context, name string) error {
	delete(b.collections, name)
	delete(b.secrets, name)
	return nil
}

func (b *fakeBookkeeping) CleanupDeleteCollection(ctx context.Context, name string, reportedPluginErr error) error {
	delete(b.collections, name)
	delete(b.secrets, name)
	return reportedPluginErr
}

func (b *fakeBookkeeping) CollectionMetadata(ctx context.Context, name string) (*model.Collection, bool, error) {
	c, ok := b.collections[name]
	if !ok {
		return nil, false, nil
	}
	cp := *c
	return &cp, true, nil
}

func (b *fakeBookkeeping) CollectionNames(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(b.collections))
	for n := range b.collections {
		names = append(names, n)
	}
	return names, nil
}

func (b *fakeBookkeeping) SecretExists(ctx context.Context, collection, hashedName string) (bool, error) {
	m, ok := b.secrets[collection]
	if !ok {
		return false, nil
	}
	_, ok = m[hashedName]
	return ok, nil
}

func (b *fakeBookkeeping) InsertSecret(ctx context.Context, s *model.Secret) error {
	if b.secrets[s.CollectionName] == nil {
		b.secrets[s.CollectionName] = make(map[string]*model.Secret)
	}
	cp := *s
	b.secrets[s.CollectionName][s.HashedSecretName] = &cp
	return nil
}

func (b *fakeBookkeeping) UpdateSecret(ctx context.Context, s *model.Secret) error {
	return b.InsertSecret(ctx, s)
}

func (b *fakeBookkeeping) DeleteSecret(ctx context.Context, collection, hashedName string) error {
	if m, ok := b.secrets[collection]; ok {
		delete(m, hashedName)
	}
	return nil
}

func (b *fakeBookkeeping) CleanupDeleteSecret(ctx context.Context, collection, hashedName string, reportedPluginErr error) error {
	if m, ok := b.secrets[collection]; ok {
		delete(m, hashedName)
	}
	return reportedPluginErr
}

func (b *fakeBookkeeping) SecretMetadata(ctx context.Context, collection, hashedName string) (*model.Secret, bool, error) {
	m, ok := b.secrets[collection]
	if !ok {
		return nil, false, nil
	}
	s, ok := m[hashedName]
	if !ok {
		return nil, false, nil
	}
	cp := *s
	return &cp, true, nil
}

// encRow is one stored ciphertext payload.
type encRow struct {
	name, value []byte
	filter      map[string]string
}

func matchesFilter(filter map[string]string, want map[string]string, op model.FilterOperator) bool {
	if len(want) == 0 {
		return true
	}
	if op == model.FilterAnd {
		for k, v := range want {
			if filter[k] != v {
				return false
			}
		}
		return true
	}
	for k, v := range want {
		if filter[k] == v {
			return true
		}
	}
	return false
}

// fakeEncryptedStoragePlugin simulates a single plugin that both stores
// and encrypts: the first key ever set for a collection establishes
// "the" key, exactly like initializing a vault at creation time; every
// later SetEncryptionKey call only unlocks if it matches.
type fakeEncryptedStoragePlugin struct {
	name        string
	established map[string][]byte
	locked      map[string]bool
	rows        map[string]map[string]encRow
}

func newFakeEncryptedStorage(name string) *fakeEncryptedStoragePlugin {
	return &fakeEncryptedStoragePlugin{
		name:        name,
		established: make(map[string][]byte),
		locked:      make(map[string]bool),
		rows:        make(map[string]map[string]encRow),
	}
}

func (p *fakeEncryptedStoragePlugin) Name() string { return p.name }

func (p *fakeEncryptedStoragePlugin) CreateCollection(ctx context.Context, collection string) error {
	p.locked[collection] = true
	p.rows[collection] = make(map[string]encRow)
	return nil
}

func (p *fakeEncryptedStoragePlugin) RemoveCollection(ctx context.Context, collection string) error {
	delete(p.locked, collection)
	delete(p.established, collection)
	delete(p.rows, collection)
	return nil
}

func (p *fakeEncryptedStoragePlugin) IsLocked(ctx context.Context, collection string) (bool, error) {
	return p.locked[collection], nil
}

func (p *fakeEncryptedStoragePlugin) SetEncryptionKey(ctx context.Context, collection string, key []byte) error {
	if key == nil {
		p.locked[collection] = true
		return nil
	}
	est, ok := p.established[collection]
	if !ok {
		cp := append([]byte{}, key...)
		p.established[collection] = cp
		p.locked[collection] = false
		return nil
	}
	p.locked[collection] = !bytes.Equal(est, key)
	return nil
}

func (p *fakeEncryptedStoragePlugin) SetSecret(ctx context.Context, collection, hashedName string, name, value []byte, filter map[string]string) error {
	if p.rows[collection] == nil {
		p.rows[collection] = make(map[string]encRow)
	}
	p.rows[collection][hashedName] = encRow{name: name, value: value, filter: filter}
	return nil
}

func (p *fakeEncryptedStoragePlugin) GetSecret(ctx context.Context, collection, hashedName string) ([]byte, []byte, map[string]string, error) {
	row, ok := p.rows[collection][hashedName]
	if !ok {
		return nil, nil, nil, fmt.Errorf("no such secret")
	}
	return row.name, row.value, row.filter, nil
}

func (p *fakeEncryptedStoragePlugin) RemoveSecret(ctx context.Context, collection, hashedName string) error {
	delete(p.rows[collection], hashedName)
	return nil
}

func (p *fakeEncryptedStoragePlugin) FindSecrets(ctx context.Context, collection string, filter map[string]string, op model.FilterOperator) ([][]byte, error) {
	var names [][]byte
	for _, row := range p.rows[collection] {
		if matchesFilter(row.filter, filter, op) {
			names = append(names, row.name)
		}
	}
	return names, nil
}

func (p *fakeEncryptedStoragePlugin) AccessSecret(ctx context.Context, collection, hashedName string, key []byte) ([]byte, []byte, map[string]string, error) {
	est, ok := p.established[collection]
	if ok && !bytes.Equal(est, key) {
		return nil, nil, nil, errors.New("wrong key")
	}
	if !ok {
		cp := append([]byte{}, key...)
		p.established[collection] = cp
	}
	row, ok := p.rows[collection][hashedName]
	if !ok {
		return nil, nil, nil, fmt.Errorf("no such secret")
	}
	return row.name, row.value, row.filter, nil
}

// fakeStoragePlugin is the split-plugin storage half: it only ever
// sees ciphertext, the same way the real daemon's split plugins do.
type fakeStoragePlugin struct {
	name string
	rows map[string]map[string]encRow
}

func newFakeStorage(name string) *fakeStoragePlugin {
	return &fakeStoragePlugin{name: name, rows: make(map[string]map[string]encRow)}
}

func (p *fakeStoragePlugin) Name() string { return p.name }

func (p *fakeStoragePlugin) CreateCollection(ctx context.Context, collection string) error {
	p.rows[collection] = make(map[string]encRow)
	return nil
}

func (p *fakeStoragePlugin) RemoveCollection(ctx context.Context, collection string) error {
	delete(p.rows, collection)
	return nil
}

func (p *fakeStoragePlugin) SetSecret(ctx context.Context, collection, hashedName string, encName, encValue []byte, filter map[string]string) error {
	if p.rows[collection] == nil {
		p.rows[collection] = make(map[string]encRow)
	}
	p.rows[collection][hashedName] = encRow{name: encName, value: encValue, filter: filter}
	return nil
}

func (p *fakeStoragePlugin) GetSecret(ctx context.Context, collection, hashedName string) ([]byte, []byte, map[string]string, error) {
	row, ok := p.rows[collection][hashedName]
	if !ok {
		return nil, nil, nil, fmt.Errorf("no such secret")
	}
	return row.name, row.value, row.filter, nil
}

func (p *fakeStoragePlugin) RemoveSecret(ctx context.Context, collection, hashedName string) error {
	delete(p.rows[collection], hashedName)
	return nil
}

func (p *fakeStoragePlugin) FindSecrets(ctx context.Context, collection string, filter map[string]string, op model.FilterOperator) ([][]byte, error) {
	var names [][]byte
	for _, row := range p.rows[collection] {
		if matchesFilter(row.filter, filter, op) {
			names = append(names, row.name)
		}
	}
	return names, nil
}

// fakeEncryptionPlugin encrypts with NaCl secretbox, the same primitive
// a real encryption plugin in this ecosystem would reach for: the key
// is stretched to 32 bytes with SHA-256, a fresh random nonce is
// prepended to every ciphertext, and a wrong key fails Decrypt outright
// rather than silently returning garbage. failNext forces the next
// Encrypt call to fail, for exercising cleanup-on-failure.
type fakeEncryptionPlugin struct {
	name     string
	failNext bool
}

func newFakeEncryption(name string) *fakeEncryptionPlugin {
	return &fakeEncryptionPlugin{name: name}
}

func secretboxKey(key []byte) *[32]byte {
	k := sha256.Sum256(key)
	return &k
}

func (p *fakeEncryptionPlugin) Name() string { return p.name }

func (p *fakeEncryptionPlugin) Encrypt(ctx context.Context, plaintext, key []byte) ([]byte, error) {
	if p.failNext {
		p.failNext = false
		return nil, errors.New("simulated encryption failure")
	}
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, secretboxKey(key)), nil
}

func (p *fakeEncryptionPlugin) Decrypt(ctx context.Context, ciphertext, key []byte) ([]byte, error) {
	if len(ciphertext) < 24 {
		return nil, errors.New("ciphertext too short")
	}
	var nonce [24]byte
	copy(nonce[:], ciphertext[:24])
	plaintext, ok := secretbox.Open(nil, ciphertext[24:], &nonce, secretboxKey(key))
	if !ok {
		return nil, errors.New("decryption failed")
	}
	return plaintext, nil
}

// fakeAuthPlugin records every interaction it is asked to begin but
// never completes one itself: tests drive completion explicitly by
// publishing to the bus, the same way an out-of-process plugin would.
type fakeAuthPlugin struct {
	name  string
	types pluginapi.AuthenticationTypes

	mu         sync.Mutex
	begun      []model.InteractionParameters
	requestIDs []string
}

func newFakeAuthPlugin(name string, types pluginapi.AuthenticationTypes) *fakeAuthPlugin {
	return &fakeAuthPlugin{name: name, types: types}
}

func (p *fakeAuthPlugin) Name() string { return p.name }

func (p *fakeAuthPlugin) AuthenticationTypes() pluginapi.AuthenticationTypes { return p.types }

func (p *fakeAuthPlugin) BeginUserInputInteraction(ctx context.Context, callerPID int, requestID string, params model.InteractionParameters, addr string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.begun = append(p.begun, params)
	p.requestIDs = append(p.requestIDs, requestID)
	return nil
}

// interactionCount and interactionRequestID read the recorded
// interactions under the lock, for tests that poll while the actor is
// still running.
func (p *fakeAuthPlugin) interactionCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requestIDs)
}

func (p *fakeAuthPlugin) interactionRequestID(i int) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requestIDs[i]
}
