// Package registry implements the plugin registry: four maps by
// plugin name — storage, encryption, encrypted-storage, authentication —
// classified by the maximal capability set each loaded plugin object
// supports. A plugin lands in exactly one capability class.
//
// Plugin file discovery/loading belongs to the host application;
// LoadPlugins takes already-instantiated plugin objects (as a loader
// would hand over after opening a shared object or spawning a plugin
// process) and only does classification and registration.
package registry

import (
	"fmt"

	"github.com/sealbox/secretsd/internal/pluginapi"
)

// LoadReport records what happened to each candidate passed to
// LoadPlugins, for logging by the caller.
type LoadReport struct {
	Name  string
	Class string
	Error error
}

// Registry holds the four plugin maps. Authentication plugins are
// additionally reachable by name for beginning interactions.
type Registry struct {
	storage          map[string]pluginapi.StoragePlugin
	encryption       map[string]pluginapi.EncryptionPlugin
	encryptedStorage map[string]pluginapi.EncryptedStoragePlugin
	authentication   map[string]pluginapi.AuthenticationPlugin
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		storage:          make(map[string]pluginapi.StoragePlugin),
		encryption:       make(map[string]pluginapi.EncryptionPlugin),
		encryptedStorage: make(map[string]pluginapi.EncryptedStoragePlugin),
		authentication:   make(map[string]pluginapi.AuthenticationPlugin),
	}
}

// LoadPlugins classifies each candidate and registers it under its
// name. Classification checks the encrypted-storage capability first:
// because EncryptedStoragePlugin is a structural superset of
// StoragePlugin, testing plain Storage first would misclassify a fully
// capable encrypted-storage plugin as a bare storage plugin. Checking
// most-capable-first is the only order that yields a maximal-capability
// classification.
func (r *Registry) LoadPlugins(candidates []any) []LoadReport {
	reports := make([]LoadReport, 0, len(candidates))
	for _, c := range candidates {
		reports = append(reports, r.classify(c))
	}
	return reports
}

func (r *Registry) classify(c any) LoadReport {
	named, ok := c.(interface{ Name() string })
	if !ok {
		return LoadReport{Error: fmt.Errorf("plugin candidate has no Name() method")}
	}
	name := named.Name()

	if esp, ok := c.(pluginapi.EncryptedStoragePlugin); ok {
		r.encryptedStorage[name] = esp
		return LoadReport{Name: name, Class: "EncryptedStorage"}
	}
	if sp, ok := c.(pluginapi.StoragePlugin); ok {
		r.storage[name] = sp
		return LoadReport{Name: name, Class: "Storage"}
	}
	if ep, ok := c.(pluginapi.EncryptionPlugin); ok {
		r.encryption[name] = ep
		return LoadReport{Name: name, Class: "Encryption"}
	}
	if ap, ok := c.(pluginapi.AuthenticationPlugin); ok {
		r.authentication[name] = ap
		return LoadReport{Name: name, Class: "Authentication"}
	}
	return LoadReport{Name: name, Error: fmt.Errorf("plugin %q implements none of the known capability interfaces", name)}
}

// Info returns the registered plugin names per capability class.
func (r *Registry) Info() (storage, encryption, encryptedStorage, authentication []string) {
	for n := range r.storage {
		storage = append(storage, n)
	}
	for n := range r.encryption {
		encryption = append(encryption, n)
	}
	for n := range r.encryptedStorage {
		encryptedStorage = append(encryptedStorage, n)
	}
	for n := range r.authentication {
		authentication = append(authentication, n)
	}
	return
}

func (r *Registry) GetStorage(name string) (pluginapi.StoragePlugin, bool) {
	p, ok := r.storage[name]
	return p, ok
}

func (r *Registry) GetEncryption(name string) (pluginapi.EncryptionPlugin, bool) {
	p, ok := r.encryption[name]
	return p, ok
}

func (r *Registry) GetEncryptedStorage(name string) (pluginapi.EncryptedStoragePlugin, bool) {
	p, ok := r.encryptedStorage[name]
	return p, ok
}

func (r *Registry) GetAuth(name string) (pluginapi.AuthenticationPlugin, bool) {
	p, ok := r.authentication[name]
	return p, ok
}

// RegisterStorage, RegisterEncryption, RegisterEncryptedStorage and
// RegisterAuth allow tests and an embedding application to register a
// plugin directly, bypassing LoadPlugins' classification.
func (r *Registry) RegisterStorage(p pluginapi.StoragePlugin) { r.storage[p.Name()] = p }
func (r *Registry) RegisterEncryption(p pluginapi.EncryptionPlugin) {
	r.encryption[p.Name()] = p
}
func (r *Registry) RegisterEncryptedStorage(p pluginapi.EncryptedStoragePlugin) {
	r.encryptedStorage[p.Name()] = p
}
func (r *Registry) RegisterAuth(p pluginapi.AuthenticationPlugin) {
	r.authentication[p.Name()] = p
}
