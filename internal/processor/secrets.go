package processor

import (
	"context"

	"github.com/sealbox/secretsd/internal/apperr"
	"github.com/sealbox/secretsd/internal/model"
	"github.com/sealbox/secretsd/internal/pending"
	"github.com/sealbox/secretsd/internal/pluginapi"
	"github.com/sealbox/secretsd/internal/secretbuf"
	"github.com/sealbox/secretsd/internal/secretid"
)

// acquireEncryptedStorageKey is the IsLocked -> SetEncryptionKey ->
// re-check -> reset-and-fail dance shared by every same-plugin
// collection and standalone-secret operation: there is no single-shot
// "verify this key" call, so unlocking is always this round trip.
//
// onLocked is invoked when the plugin reports itself locked and no key
// was supplied (the first, unlocked-path entry into a custom-lock
// operation); it is expected to park a continuation and return its
// Result. When unlocked (or successfully unlocked with key), ok is true
// and plugin is the resolved plugin, ready for the caller's own
// SetSecret/GetSecret/FindSecrets/RemoveSecret call.
func (a *Actor) acquireEncryptedStorageKey(ctx context.Context, pluginName, collectionName string, usesDeviceLock bool, key []byte, onLocked func() apperr.Result) (pluginapi.EncryptedStoragePlugin, apperr.Result, bool) {
	plugin, ok := a.registry.GetEncryptedStorage(pluginName)
	if !ok {
		return nil, apperr.Err(apperr.PluginUnavailable(pluginName)), false
	}
	locked, err := plugin.IsLocked(ctx, collectionName)
	if err != nil {
		return nil, apperr.Err(apperr.Unknown(err.Error())), false
	}
	if !locked {
		return plugin, apperr.Result{}, true
	}
	if key == nil {
		if usesDeviceLock {
			return nil, apperr.Err(apperr.CollectionIsLocked(collectionName)), false
		}
		return nil, onLocked(), false
	}
	if err := plugin.SetEncryptionKey(ctx, collectionName, key); err != nil {
		return nil, apperr.Err(apperr.PluginFailure(err)), false
	}
	locked, err = plugin.IsLocked(ctx, collectionName)
	if err != nil {
		return nil, apperr.Err(apperr.Unknown(err.Error())), false
	}
	if locked {
		_ = plugin.SetEncryptionKey(ctx, collectionName, nil)
		return nil, apperr.Err(apperr.IncorrectAuthenticationKey()), false
	}
	return plugin, apperr.Result{}, true
}

// SetCollectionSecret validates the request, optionally fetches the
// secret's value from the user, then acquires an authentication key
// and writes.
func (a *Actor) SetCollectionSecret(ctx context.Context, req *SetCollectionSecretRequest) apperr.Result {
	return a.do(ctx, func() apperr.Result { return a.setCollectionSecret(ctx, req) })
}

func (a *Actor) setCollectionSecret(ctx context.Context, req *SetCollectionSecretRequest) apperr.Result {
	meta, aerr := a.loadCollectionForAccess(ctx, req.Collection, req.CallerPID)
	if aerr != nil {
		return apperr.Err(aerr)
	}

	hashed := secretid.Hash(req.Collection, req.SecretName)
	exists, err := a.bookkeeping.SecretExists(ctx, req.Collection, hashed)
	if err != nil {
		return apperr.Err(apperr.Unknown(err.Error()))
	}
	secret := pending.SecretData{HashedName: hashed, Name: []byte(req.SecretName), Value: req.Value, Filter: req.Filter}

	if req.FetchValueFromUser {
		if aerr := checkInteractionPrevented(req.UserInteractionMode); aerr != nil {
			return apperr.Err(aerr)
		}
		requestID, aerr := a.beginInteraction(ctx, req.CallerPID, meta.AuthPluginName, model.OpStoreSecret, req.Collection, req.SecretName, req.InteractionServiceAddr)
		if aerr != nil {
			return apperr.Err(aerr)
		}
		cont := pending.NewSetCollectionUserInputSecret(requestID, req.CallerPID, req.Collection, secret, req.UserInteractionMode, req.InteractionServiceAddr)
		if err := a.pending.Park(cont); err != nil {
			return apperr.Err(apperr.Unknown(err.Error()))
		}
		return apperr.PendingResult(requestID)
	}

	return a.setCollectionSecretAcquireKey(ctx, meta, secret, !exists, req.CallerPID, req.UserInteractionMode, req.InteractionServiceAddr)
}

// setCollectionSecretAcquireKey is the first entry into key
// acquisition: no key is in hand yet, so an unlocked same-plugin
// collection or a cached/device split key writes immediately;
// otherwise a continuation is parked.
func (a *Actor) setCollectionSecretAcquireKey(ctx context.Context, meta *model.Collection, secret pending.SecretData, isNew bool, callerPID int, mode model.UserInteractionMode, addr string) apperr.Result {
	if meta.SameStoragePlugin() {
		return a.setCollectionSecretWithAuthenticationKey(ctx, meta, secret, isNew, callerPID, mode, addr, nil)
	}

	if key, ok := a.cache.GetCollectionKey(meta.Name); ok {
		return a.writeCollectionSecretSplit(ctx, meta, secret, isNew, key.Bytes())
	}
	if meta.UsesDeviceLock {
		return a.writeCollectionSecretSplit(ctx, meta, secret, isNew, a.deviceLockKey.Bytes())
	}
	return a.parkSetCollectionSecret(ctx, meta, secret, isNew, callerPID, mode, addr)
}

func (a *Actor) parkSetCollectionSecret(ctx context.Context, meta *model.Collection, secret pending.SecretData, isNew bool, callerPID int, mode model.UserInteractionMode, addr string) apperr.Result {
	if aerr := checkInteractionPrevented(mode); aerr != nil {
		return apperr.Err(aerr)
	}
	requestID, aerr := a.beginInteraction(ctx, callerPID, meta.AuthPluginName, model.OpStoreSecret, meta.Name, string(secret.Name), addr)
	if aerr != nil {
		return apperr.Err(aerr)
	}
	cont := pending.NewSetCollectionSecret(requestID, callerPID, meta.Name, secret, isNew)
	if err := a.pending.Park(cont); err != nil {
		return apperr.Err(apperr.Unknown(err.Error()))
	}
	return apperr.PendingResult(requestID)
}

// setCollectionSecretWithAuthenticationKey is both the initial
// unlocked-collection fast path (key == nil) and the resumption stage
// the completion handler re-enters with the acquired key.
func (a *Actor) setCollectionSecretWithAuthenticationKey(ctx context.Context, meta *model.Collection, secret pending.SecretData, isNew bool, callerPID int, mode model.UserInteractionMode, addr string, key []byte) apperr.Result {
	plugin, res, ok := a.acquireEncryptedStorageKey(ctx, meta.StoragePluginName, meta.Name, meta.UsesDeviceLock, key, func() apperr.Result {
		return a.parkSetCollectionSecret(ctx, meta, secret, isNew, callerPID, mode, addr)
	})
	if !ok {
		return res
	}

	if isNew {
		if err := a.bookkeeping.InsertSecret(ctx, secretRow(meta, secret.HashedName)); err != nil {
			return apperr.Err(apperr.Unknown(err.Error()))
		}
	}
	if err := plugin.SetSecret(ctx, meta.Name, secret.HashedName, secret.Name, secret.Value, secret.Filter); err != nil {
		if isNew {
			cleanupErr := a.bookkeeping.CleanupDeleteSecret(ctx, meta.Name, secret.HashedName, err)
			return apperr.Err(apperr.PluginFailure(cleanupErr))
		}
		return apperr.Err(apperr.PluginFailure(err))
	}
	return apperr.Ok(nil)
}

// writeCollectionSecretSplit performs the split-plugin write path with
// key already in hand (cached, device-lock, or freshly acquired via
// interaction): cache the key on first use, encrypt, store.
func (a *Actor) writeCollectionSecretSplit(ctx context.Context, meta *model.Collection, secret pending.SecretData, isNew bool, key []byte) apperr.Result {
	if !a.cache.HasCollectionKey(meta.Name) {
		a.cache.SetCollectionKey(meta.Name, cloneKey(key))
	}

	encPlugin, ok := a.registry.GetEncryption(meta.EncryptionPluginName)
	if !ok {
		return apperr.Err(apperr.PluginUnavailable(meta.EncryptionPluginName))
	}
	storagePlugin, ok := a.registry.GetStorage(meta.StoragePluginName)
	if !ok {
		return apperr.Err(apperr.PluginUnavailable(meta.StoragePluginName))
	}

	if isNew {
		if err := a.bookkeeping.InsertSecret(ctx, secretRow(meta, secret.HashedName)); err != nil {
			return apperr.Err(apperr.Unknown(err.Error()))
		}
	}

	encValue, err := encPlugin.Encrypt(ctx, secret.Value, key)
	if err != nil {
		return a.failSplitWrite(ctx, meta, secret, isNew, apperr.SecretsPluginDecryption(err))
	}
	encName, err := encPlugin.Encrypt(ctx, secret.Name, key)
	if err != nil {
		return a.failSplitWrite(ctx, meta, secret, isNew, apperr.SecretsPluginDecryption(err))
	}
	if err := storagePlugin.SetSecret(ctx, meta.Name, secret.HashedName, encName, encValue, secret.Filter); err != nil {
		return a.failSplitWrite(ctx, meta, secret, isNew, apperr.PluginFailure(err))
	}

	a.maybeScheduleRelock(meta)
	return apperr.Ok(nil)
}

// failSplitWrite preserves the primary error's code across cleanup: the
// cleanup outcome only ever changes the Details text, never the Code the
// caller branches on.
func (a *Actor) failSplitWrite(ctx context.Context, meta *model.Collection, secret pending.SecretData, isNew bool, primary *apperr.AppError) apperr.Result {
	if !isNew {
		return apperr.Err(primary)
	}
	if cleanupErr := a.bookkeeping.CleanupDeleteSecret(ctx, meta.Name, secret.HashedName, primary); cleanupErr != primary {
		primary.Details = cleanupErr.Error()
	}
	return apperr.Err(primary)
}

// GetCollectionSecret reads a collection secret, acquiring an
// authentication key as needed.
func (a *Actor) GetCollectionSecret(ctx context.Context, req *GetCollectionSecretRequest) apperr.Result {
	return a.do(ctx, func() apperr.Result { return a.getCollectionSecret(ctx, req) })
}

func (a *Actor) getCollectionSecret(ctx context.Context, req *GetCollectionSecretRequest) apperr.Result {
	meta, aerr := a.loadCollectionForAccess(ctx, req.Collection, req.CallerPID)
	if aerr != nil {
		return apperr.Err(aerr)
	}
	hashed := secretid.Hash(req.Collection, req.SecretName)
	exists, err := a.bookkeeping.SecretExists(ctx, req.Collection, hashed)
	if err != nil {
		return apperr.Err(apperr.Unknown(err.Error()))
	}
	if !exists {
		return apperr.Err(apperr.InvalidSecret(req.SecretName))
	}

	if meta.SameStoragePlugin() {
		return a.getCollectionSecretWithAuthenticationKey(ctx, meta, hashed, req.CallerPID, req.UserInteractionMode, req.InteractionServiceAddr, nil)
	}
	if key, ok := a.cache.GetCollectionKey(meta.Name); ok {
		return a.readCollectionSecretSplit(ctx, meta, hashed, key.Bytes())
	}
	if meta.UsesDeviceLock {
		return a.readCollectionSecretSplit(ctx, meta, hashed, a.deviceLockKey.Bytes())
	}
	return a.parkGetCollectionSecret(ctx, meta, hashed, req.CallerPID, req.UserInteractionMode, req.InteractionServiceAddr)
}

func (a *Actor) parkGetCollectionSecret(ctx context.Context, meta *model.Collection, hashed string, callerPID int, mode model.UserInteractionMode, addr string) apperr.Result {
	if aerr := checkInteractionPrevented(mode); aerr != nil {
		return apperr.Err(aerr)
	}
	requestID, aerr := a.beginInteraction(ctx, callerPID, meta.AuthPluginName, model.OpReadSecret, meta.Name, "", addr)
	if aerr != nil {
		return apperr.Err(aerr)
	}
	cont := pending.NewGetCollectionSecret(requestID, callerPID, meta.Name, hashed)
	if err := a.pending.Park(cont); err != nil {
		return apperr.Err(apperr.Unknown(err.Error()))
	}
	return apperr.PendingResult(requestID)
}

func (a *Actor) getCollectionSecretWithAuthenticationKey(ctx context.Context, meta *model.Collection, hashed string, callerPID int, mode model.UserInteractionMode, addr string, key []byte) apperr.Result {
	plugin, res, ok := a.acquireEncryptedStorageKey(ctx, meta.StoragePluginName, meta.Name, meta.UsesDeviceLock, key, func() apperr.Result {
		return a.parkGetCollectionSecret(ctx, meta, hashed, callerPID, mode, addr)
	})
	if !ok {
		return res
	}

	name, value, filter, err := plugin.GetSecret(ctx, meta.Name, hashed)
	if err != nil {
		return apperr.Err(apperr.PluginFailure(err))
	}
	return apperr.Ok(GetSecretResponse{Name: name, Value: value, Filter: filter})
}

func (a *Actor) readCollectionSecretSplit(ctx context.Context, meta *model.Collection, hashed string, key []byte) apperr.Result {
	if !a.cache.HasCollectionKey(meta.Name) {
		a.cache.SetCollectionKey(meta.Name, cloneKey(key))
	}
	storagePlugin, ok := a.registry.GetStorage(meta.StoragePluginName)
	if !ok {
		return apperr.Err(apperr.PluginUnavailable(meta.StoragePluginName))
	}
	encPlugin, ok := a.registry.GetEncryption(meta.EncryptionPluginName)
	if !ok {
		return apperr.Err(apperr.PluginUnavailable(meta.EncryptionPluginName))
	}
	encName, encValue, filter, err := storagePlugin.GetSecret(ctx, meta.Name, hashed)
	if err != nil {
		return apperr.Err(apperr.PluginFailure(err))
	}
	name, err := encPlugin.Decrypt(ctx, encName, key)
	if err != nil {
		a.cache.EvictCollectionKey(meta.Name)
		return apperr.Err(apperr.SecretsPluginDecryption(err))
	}
	value, err := encPlugin.Decrypt(ctx, encValue, key)
	if err != nil {
		a.cache.EvictCollectionKey(meta.Name)
		return apperr.Err(apperr.SecretsPluginDecryption(err))
	}
	a.maybeScheduleRelock(meta)
	return apperr.Ok(GetSecretResponse{Name: name, Value: value, Filter: filter})
}

// FindCollectionSecrets searches a collection's secrets by filter; any
// decryption failure aborts the whole batch.
func (a *Actor) FindCollectionSecrets(ctx context.Context, req *FindCollectionSecretsRequest) apperr.Result {
	return a.do(ctx, func() apperr.Result { return a.findCollectionSecrets(ctx, req) })
}

func (a *Actor) findCollectionSecrets(ctx context.Context, req *FindCollectionSecretsRequest) apperr.Result {
	meta, aerr := a.loadCollectionForAccess(ctx, req.Collection, req.CallerPID)
	if aerr != nil {
		return apperr.Err(aerr)
	}
	if len(req.Filter) == 0 {
		return apperr.Err(apperr.InvalidFilter("empty filter given"))
	}

	if meta.SameStoragePlugin() {
		return a.findCollectionSecretsWithAuthenticationKey(ctx, meta, req, nil)
	}
	if key, ok := a.cache.GetCollectionKey(meta.Name); ok {
		return a.findCollectionSecretsSplit(ctx, meta, req.Filter, req.Operator, key.Bytes())
	}
	if meta.UsesDeviceLock {
		return a.findCollectionSecretsSplit(ctx, meta, req.Filter, req.Operator, a.deviceLockKey.Bytes())
	}
	return a.parkFindCollectionSecrets(ctx, meta, req)
}

func (a *Actor) parkFindCollectionSecrets(ctx context.Context, meta *model.Collection, req *FindCollectionSecretsRequest) apperr.Result {
	if aerr := checkInteractionPrevented(req.UserInteractionMode); aerr != nil {
		return apperr.Err(aerr)
	}
	requestID, aerr := a.beginInteraction(ctx, req.CallerPID, meta.AuthPluginName, model.OpReadSecret, meta.Name, "", req.InteractionServiceAddr)
	if aerr != nil {
		return apperr.Err(aerr)
	}
	cont := pending.NewFindCollectionSecrets(requestID, req.CallerPID, meta.Name, req.Filter, req.Operator)
	if err := a.pending.Park(cont); err != nil {
		return apperr.Err(apperr.Unknown(err.Error()))
	}
	return apperr.PendingResult(requestID)
}

func (a *Actor) findCollectionSecretsWithAuthenticationKey(ctx context.Context, meta *model.Collection, req *FindCollectionSecretsRequest, key []byte) apperr.Result {
	plugin, res, ok := a.acquireEncryptedStorageKey(ctx, meta.StoragePluginName, meta.Name, meta.UsesDeviceLock, key, func() apperr.Result {
		return a.parkFindCollectionSecrets(ctx, meta, req)
	})
	if !ok {
		return res
	}
	names, err := plugin.FindSecrets(ctx, meta.Name, req.Filter, req.Operator)
	if err != nil {
		return apperr.Err(apperr.PluginFailure(err))
	}
	return apperr.Ok(FindSecretsResponse{Names: names})
}

func (a *Actor) findCollectionSecretsSplit(ctx context.Context, meta *model.Collection, filter map[string]string, op model.FilterOperator, key []byte) apperr.Result {
	if !a.cache.HasCollectionKey(meta.Name) {
		a.cache.SetCollectionKey(meta.Name, cloneKey(key))
	}
	storagePlugin, ok := a.registry.GetStorage(meta.StoragePluginName)
	if !ok {
		return apperr.Err(apperr.PluginUnavailable(meta.StoragePluginName))
	}
	encPlugin, ok := a.registry.GetEncryption(meta.EncryptionPluginName)
	if !ok {
		return apperr.Err(apperr.PluginUnavailable(meta.EncryptionPluginName))
	}
	encNames, err := storagePlugin.FindSecrets(ctx, meta.Name, filter, op)
	if err != nil {
		return apperr.Err(apperr.PluginFailure(err))
	}
	names := make([][]byte, 0, len(encNames))
	for _, encName := range encNames {
		name, err := encPlugin.Decrypt(ctx, encName, key)
		if err != nil {
			// Any decryption failure aborts the whole batch and evicts
			// the cached key: it decrypted nothing, so it can't be
			// trusted for the next call either.
			a.cache.EvictCollectionKey(meta.Name)
			return apperr.Err(apperr.SecretsPluginDecryption(err))
		}
		names = append(names, name)
	}
	a.maybeScheduleRelock(meta)
	return apperr.Ok(FindSecretsResponse{Names: names})
}

// DeleteCollectionSecret removes a collection secret, idempotent when
// the secret does not exist.
func (a *Actor) DeleteCollectionSecret(ctx context.Context, req *DeleteCollectionSecretRequest) apperr.Result {
	return a.do(ctx, func() apperr.Result { return a.deleteCollectionSecret(ctx, req) })
}

func (a *Actor) deleteCollectionSecret(ctx context.Context, req *DeleteCollectionSecretRequest) apperr.Result {
	meta, aerr := a.loadCollectionForAccess(ctx, req.Collection, req.CallerPID)
	if aerr != nil {
		return apperr.Err(aerr)
	}
	hashed := secretid.Hash(req.Collection, req.SecretName)
	exists, err := a.bookkeeping.SecretExists(ctx, req.Collection, hashed)
	if err != nil {
		return apperr.Err(apperr.Unknown(err.Error()))
	}
	if !exists {
		return apperr.Ok(nil) // idempotent
	}

	if meta.SameStoragePlugin() {
		return a.deleteCollectionSecretWithAuthenticationKey(ctx, meta, hashed, req.CallerPID, req.UserInteractionMode, req.InteractionServiceAddr, nil)
	}
	if _, ok := a.cache.GetCollectionKey(meta.Name); ok {
		return a.deleteCollectionSecretSplit(ctx, meta, hashed)
	}
	if meta.UsesDeviceLock {
		return a.deleteCollectionSecretSplit(ctx, meta, hashed)
	}
	return a.parkDeleteCollectionSecret(ctx, meta, hashed, req.CallerPID, req.UserInteractionMode, req.InteractionServiceAddr)
}

func (a *Actor) parkDeleteCollectionSecret(ctx context.Context, meta *model.Collection, hashed string, callerPID int, mode model.UserInteractionMode, addr string) apperr.Result {
	if aerr := checkInteractionPrevented(mode); aerr != nil {
		return apperr.Err(aerr)
	}
	requestID, aerr := a.beginInteraction(ctx, callerPID, meta.AuthPluginName, model.OpDeleteSecret, meta.Name, "", addr)
	if aerr != nil {
		return apperr.Err(aerr)
	}
	cont := pending.NewDeleteCollectionSecret(requestID, callerPID, meta.Name, hashed)
	if err := a.pending.Park(cont); err != nil {
		return apperr.Err(apperr.Unknown(err.Error()))
	}
	return apperr.PendingResult(requestID)
}

func (a *Actor) deleteCollectionSecretWithAuthenticationKey(ctx context.Context, meta *model.Collection, hashed string, callerPID int, mode model.UserInteractionMode, addr string, key []byte) apperr.Result {
	plugin, res, ok := a.acquireEncryptedStorageKey(ctx, meta.StoragePluginName, meta.Name, meta.UsesDeviceLock, key, func() apperr.Result {
		return a.parkDeleteCollectionSecret(ctx, meta, hashed, callerPID, mode, addr)
	})
	if !ok {
		return res
	}
	if err := plugin.RemoveSecret(ctx, meta.Name, hashed); err != nil {
		return apperr.Err(apperr.PluginFailure(err))
	}
	if err := a.bookkeeping.DeleteSecret(ctx, meta.Name, hashed); err != nil {
		return apperr.Err(apperr.Unknown(err.Error()))
	}
	return apperr.Ok(nil)
}

// deleteCollectionSecretSplit handles both the cached-key and
// device-lock split-plugin cases: deleting a ciphertext blob needs no
// decryption, so both converge on the same storage-only call.
func (a *Actor) deleteCollectionSecretSplit(ctx context.Context, meta *model.Collection, hashed string) apperr.Result {
	storagePlugin, ok := a.registry.GetStorage(meta.StoragePluginName)
	if !ok {
		return apperr.Err(apperr.PluginUnavailable(meta.StoragePluginName))
	}
	if err := storagePlugin.RemoveSecret(ctx, meta.Name, hashed); err != nil {
		return apperr.Err(apperr.PluginFailure(err))
	}
	if err := a.bookkeeping.DeleteSecret(ctx, meta.Name, hashed); err != nil {
		return apperr.Err(apperr.Unknown(err.Error()))
	}
	return apperr.Ok(nil)
}

// loadCollectionForAccess fetches collection metadata, rejects
// references to the reserved collection name, and enforces owner-only
// access.
func (a *Actor) loadCollectionForAccess(ctx context.Context, name string, callerPID int) (*model.Collection, *apperr.AppError) {
	if model.IsReservedCollectionName(name) {
		return nil, apperr.InvalidCollection(name)
	}
	meta, found, err := a.bookkeeping.CollectionMetadata(ctx, name)
	if err != nil {
		return nil, apperr.Unknown(err.Error())
	}
	if !found {
		return nil, apperr.InvalidCollection(name)
	}
	if aerr := a.checkAccess(meta.AccessControlMode, meta.OwnerApplicationID, callerPID); aerr != nil {
		return nil, aerr
	}
	return meta, nil
}

func secretRow(meta *model.Collection, hashedName string) *model.Secret {
	return &model.Secret{
		CollectionName:       meta.Name,
		HashedSecretName:     hashedName,
		OwnerApplicationID:   meta.OwnerApplicationID,
		UsesDeviceLock:       meta.UsesDeviceLock,
		StoragePluginName:    meta.StoragePluginName,
		EncryptionPluginName: meta.EncryptionPluginName,
		AuthPluginName:       meta.AuthPluginName,
		UnlockSemantic:       meta.UnlockSemantic,
		CustomLockTimeoutMS:  meta.CustomLockTimeoutMS,
		AccessControlMode:    meta.AccessControlMode,
	}
}

// cloneKey copies key into a freshly owned secretbuf.Buffer suitable
// for the lock-key cache, so the cache entry's zeroisation never
// aliases the device-lock key or a caller-owned slice.
func cloneKey(key []byte) *secretbuf.Buffer {
	clone := make([]byte, len(key))
	copy(clone, key)
	return secretbuf.New(clone)
}
