package processor

import (
	"context"

	"github.com/sealbox/secretsd/internal/apperr"
	"github.com/sealbox/secretsd/internal/model"
	"github.com/sealbox/secretsd/internal/pending"
	"github.com/sealbox/secretsd/internal/secretid"
)

// SetStandaloneSecret writes a secret outside any collection. The
// reserved "standalone" bookkeeping row satisfies the foreign-key
// relation; the authentication plugin is always
// model.DefaultAuthenticationPluginName. Device-lock secrets use the
// process-wide device key unconditionally; custom-lock secrets
// authenticate like a split-plugin collection.
func (a *Actor) SetStandaloneSecret(ctx context.Context, req *SetStandaloneSecretRequest) apperr.Result {
	return a.do(ctx, func() apperr.Result { return a.setStandaloneSecret(ctx, req) })
}

func (a *Actor) setStandaloneSecret(ctx context.Context, req *SetStandaloneSecretRequest) apperr.Result {
	hashed := secretid.Hash(model.StandaloneCollectionName, req.SecretName)
	existing, found, err := a.bookkeeping.SecretMetadata(ctx, model.StandaloneCollectionName, hashed)
	if err != nil {
		return apperr.Err(apperr.Unknown(err.Error()))
	}
	if found {
		if aerr := a.checkAccess(existing.AccessControlMode, existing.OwnerApplicationID, req.CallerPID); aerr != nil {
			return apperr.Err(aerr)
		}
		// Neither the lock kind, the storage plugin, nor the encryption
		// plugin of an existing standalone secret may change once set:
		// the existing ciphertext was produced under the old plugin's
		// key material and would become undecryptable otherwise.
		if existing.UsesDeviceLock != req.UsesDeviceLock {
			return apperr.Err(apperr.OperationNotSupported("changing a standalone secret's lock kind is not supported"))
		}
		if existing.StoragePluginName != req.StoragePluginName {
			return apperr.Err(apperr.OperationNotSupported("changing a standalone secret's storage plugin is not supported"))
		}
		if existing.EncryptionPluginName != req.EncryptionPluginName {
			return apperr.Err(apperr.OperationNotSupported("changing a standalone secret's encryption plugin is not supported"))
		}
	}
	if verr := a.validatePluginCombination(req.StoragePluginName, req.EncryptionPluginName); verr != nil {
		return apperr.Err(verr)
	}
	if !req.UsesDeviceLock {
		authName := effectiveAuthPluginName(model.DefaultAuthenticationPluginName, a.autotestMode)
		if aerr := a.checkInteractionCompatibility(authName, req.UserInteractionMode, req.InteractionServiceAddr); aerr != nil {
			return apperr.Err(aerr)
		}
	}

	ownerAppID, aerr := a.resolveOwner(req.CallerPID)
	if aerr != nil {
		return apperr.Err(aerr)
	}

	unlockSemantic := model.DeviceLock
	if !req.UsesDeviceLock {
		unlockSemantic = model.CustomLockTimeoutRelock
	}
	row := &model.Secret{
		CollectionName:       model.StandaloneCollectionName,
		HashedSecretName:     hashed,
		OwnerApplicationID:   ownerAppID,
		UsesDeviceLock:       req.UsesDeviceLock,
		StoragePluginName:    req.StoragePluginName,
		EncryptionPluginName: req.EncryptionPluginName,
		AuthPluginName:       model.DefaultAuthenticationPluginName,
		UnlockSemantic:       unlockSemantic,
		CustomLockTimeoutMS:  req.CustomLockTimeoutMS,
		AccessControlMode:    model.OwnerOnly,
	}
	secret := pending.SecretData{HashedName: hashed, Name: []byte(req.SecretName), Value: req.Value, Filter: req.Filter}
	isNew := !found

	if req.FetchValueFromUser {
		if aerr := checkInteractionPrevented(req.UserInteractionMode); aerr != nil {
			return apperr.Err(aerr)
		}
		requestID, aerr := a.beginInteraction(ctx, req.CallerPID, row.AuthPluginName, model.OpStoreSecret, "", req.SecretName, req.InteractionServiceAddr)
		if aerr != nil {
			return apperr.Err(aerr)
		}
		var cont pending.Continuation
		if req.UsesDeviceLock {
			cont = pending.NewSetStandaloneDeviceLockUserInputSecret(requestID, req.CallerPID, row, secret, isNew, req.UserInteractionMode, req.InteractionServiceAddr)
		} else {
			cont = pending.NewSetStandaloneCustomLockUserInputSecret(requestID, req.CallerPID, row, secret, isNew, req.UserInteractionMode, req.InteractionServiceAddr)
		}
		if err := a.pending.Park(cont); err != nil {
			return apperr.Err(apperr.Unknown(err.Error()))
		}
		return apperr.PendingResult(requestID)
	}

	return a.setStandaloneSecretAcquireKey(ctx, row, secret, isNew, req.CallerPID, req.UserInteractionMode, req.InteractionServiceAddr)
}

// setStandaloneSecretAcquireKey mirrors setCollectionSecretAcquireKey:
// device-lock writes always have the key in hand; custom-lock writes
// use a cached key if one is held, else park for one.
func (a *Actor) setStandaloneSecretAcquireKey(ctx context.Context, row *model.Secret, secret pending.SecretData, isNew bool, callerPID int, mode model.UserInteractionMode, addr string) apperr.Result {
	if row.UsesDeviceLock {
		return a.writeStandaloneSecretWithKey(ctx, row, secret, isNew, a.deviceLockKey.Bytes())
	}
	if key, ok := a.cache.GetStandaloneKey(secret.HashedName); ok {
		return a.writeStandaloneSecretWithKey(ctx, row, secret, isNew, key.Bytes())
	}
	return a.parkSetStandaloneSecret(ctx, row, secret, isNew, callerPID, mode, addr)
}

func (a *Actor) parkSetStandaloneSecret(ctx context.Context, row *model.Secret, secret pending.SecretData, isNew bool, callerPID int, mode model.UserInteractionMode, addr string) apperr.Result {
	if aerr := checkInteractionPrevented(mode); aerr != nil {
		return apperr.Err(aerr)
	}
	requestID, aerr := a.beginInteraction(ctx, callerPID, row.AuthPluginName, model.OpStoreSecret, "", string(secret.Name), addr)
	if aerr != nil {
		return apperr.Err(aerr)
	}
	cont := pending.NewSetStandaloneSecret(requestID, callerPID, row, secret, isNew)
	if err := a.pending.Park(cont); err != nil {
		return apperr.Err(apperr.Unknown(err.Error()))
	}
	return apperr.PendingResult(requestID)
}

// writeStandaloneSecretWithKey performs the write once a key is in
// hand: same-plugin standalone secrets still need the
// IsLocked/SetEncryptionKey dance (there is no single-shot "set"
// equivalent to AccessSecret), split secrets encrypt explicitly.
func (a *Actor) writeStandaloneSecretWithKey(ctx context.Context, row *model.Secret, secret pending.SecretData, isNew bool, key []byte) apperr.Result {
	if row.SameStoragePlugin() {
		plugin, res, ok := a.acquireEncryptedStorageKey(ctx, row.StoragePluginName, row.CollectionName, row.UsesDeviceLock, key, func() apperr.Result {
			return apperr.Err(apperr.Unknown("standalone write entered locked with no key in hand"))
		})
		if !ok {
			return res
		}
		if isNew {
			if err := a.bookkeeping.InsertSecret(ctx, row); err != nil {
				return apperr.Err(apperr.Unknown(err.Error()))
			}
		} else if err := a.bookkeeping.UpdateSecret(ctx, row); err != nil {
			return apperr.Err(apperr.Unknown(err.Error()))
		}
		if err := plugin.SetSecret(ctx, row.CollectionName, secret.HashedName, secret.Name, secret.Value, secret.Filter); err != nil {
			return a.failStandaloneWrite(ctx, row, isNew, apperr.PluginFailure(err))
		}
		return apperr.Ok(nil)
	}

	if !a.cache.HasStandaloneKey(secret.HashedName) {
		a.cache.SetStandaloneKey(secret.HashedName, cloneKey(key))
	}
	encPlugin, ok := a.registry.GetEncryption(row.EncryptionPluginName)
	if !ok {
		return apperr.Err(apperr.PluginUnavailable(row.EncryptionPluginName))
	}
	storagePlugin, ok := a.registry.GetStorage(row.StoragePluginName)
	if !ok {
		return apperr.Err(apperr.PluginUnavailable(row.StoragePluginName))
	}
	encValue, err := encPlugin.Encrypt(ctx, secret.Value, key)
	if err != nil {
		return a.failStandaloneWrite(ctx, row, isNew, apperr.SecretsPluginDecryption(err))
	}
	encName, err := encPlugin.Encrypt(ctx, secret.Name, key)
	if err != nil {
		return a.failStandaloneWrite(ctx, row, isNew, apperr.SecretsPluginDecryption(err))
	}
	if isNew {
		if err := a.bookkeeping.InsertSecret(ctx, row); err != nil {
			return apperr.Err(apperr.Unknown(err.Error()))
		}
	} else if err := a.bookkeeping.UpdateSecret(ctx, row); err != nil {
		return apperr.Err(apperr.Unknown(err.Error()))
	}
	if err := storagePlugin.SetSecret(ctx, row.CollectionName, secret.HashedName, encName, encValue, secret.Filter); err != nil {
		return a.failStandaloneWrite(ctx, row, isNew, apperr.PluginFailure(err))
	}
	a.maybeScheduleStandaloneRelock(row, secret.HashedName)
	return apperr.Ok(nil)
}

// failStandaloneWrite mirrors failSplitWrite: cleanup only ever
// changes the primary error's Details, never its Code.
func (a *Actor) failStandaloneWrite(ctx context.Context, row *model.Secret, isNew bool, primary *apperr.AppError) apperr.Result {
	if !isNew {
		return apperr.Err(primary)
	}
	if cleanupErr := a.bookkeeping.CleanupDeleteSecret(ctx, row.CollectionName, row.HashedSecretName, primary); cleanupErr != primary {
		primary.Details = cleanupErr.Error()
	}
	return apperr.Err(primary)
}

// GetStandaloneSecret reads a standalone secret, acquiring the device
// lock or custom-lock key as needed.
func (a *Actor) GetStandaloneSecret(ctx context.Context, req *GetStandaloneSecretRequest) apperr.Result {
	return a.do(ctx, func() apperr.Result { return a.getStandaloneSecret(ctx, req) })
}

func (a *Actor) getStandaloneSecret(ctx context.Context, req *GetStandaloneSecretRequest) apperr.Result {
	hashed := secretid.Hash(model.StandaloneCollectionName, req.SecretName)
	row, found, err := a.bookkeeping.SecretMetadata(ctx, model.StandaloneCollectionName, hashed)
	if err != nil {
		return apperr.Err(apperr.Unknown(err.Error()))
	}
	if !found {
		return apperr.Err(apperr.InvalidSecret(req.SecretName))
	}
	if aerr := a.checkAccess(row.AccessControlMode, row.OwnerApplicationID, req.CallerPID); aerr != nil {
		return apperr.Err(aerr)
	}

	if row.UsesDeviceLock {
		return a.readStandaloneSecretWithKey(ctx, row, hashed, a.deviceLockKey.Bytes())
	}
	if key, ok := a.cache.GetStandaloneKey(hashed); ok {
		return a.readStandaloneSecretWithKey(ctx, row, hashed, key.Bytes())
	}
	return a.parkGetStandaloneSecret(ctx, row, hashed, req.CallerPID, req.UserInteractionMode, req.InteractionServiceAddr)
}

func (a *Actor) parkGetStandaloneSecret(ctx context.Context, row *model.Secret, hashed string, callerPID int, mode model.UserInteractionMode, addr string) apperr.Result {
	if aerr := checkInteractionPrevented(mode); aerr != nil {
		return apperr.Err(aerr)
	}
	requestID, aerr := a.beginInteraction(ctx, callerPID, row.AuthPluginName, model.OpReadSecret, "", "", addr)
	if aerr != nil {
		return apperr.Err(aerr)
	}
	cont := pending.NewGetStandaloneSecret(requestID, callerPID, row, hashed)
	if err := a.pending.Park(cont); err != nil {
		return apperr.Err(apperr.Unknown(err.Error()))
	}
	return apperr.PendingResult(requestID)
}

// readStandaloneSecretWithKey performs the single-shot unlock+read
// (EncryptedStoragePlugin.AccessSecret) for same-plugin standalone
// secrets, or a storage read plus explicit decrypt for split plugins.
func (a *Actor) readStandaloneSecretWithKey(ctx context.Context, row *model.Secret, hashed string, key []byte) apperr.Result {
	if row.SameStoragePlugin() {
		plugin, ok := a.registry.GetEncryptedStorage(row.StoragePluginName)
		if !ok {
			return apperr.Err(apperr.PluginUnavailable(row.StoragePluginName))
		}
		name, value, filter, err := plugin.AccessSecret(ctx, row.CollectionName, hashed, key)
		if err != nil {
			return apperr.Err(apperr.IncorrectAuthenticationKey())
		}
		return apperr.Ok(GetSecretResponse{Name: name, Value: value, Filter: filter})
	}

	if !a.cache.HasStandaloneKey(hashed) {
		a.cache.SetStandaloneKey(hashed, cloneKey(key))
	}
	storagePlugin, ok := a.registry.GetStorage(row.StoragePluginName)
	if !ok {
		return apperr.Err(apperr.PluginUnavailable(row.StoragePluginName))
	}
	encPlugin, ok := a.registry.GetEncryption(row.EncryptionPluginName)
	if !ok {
		return apperr.Err(apperr.PluginUnavailable(row.EncryptionPluginName))
	}
	encName, encValue, filter, err := storagePlugin.GetSecret(ctx, row.CollectionName, hashed)
	if err != nil {
		return apperr.Err(apperr.PluginFailure(err))
	}
	name, err := encPlugin.Decrypt(ctx, encName, key)
	if err != nil {
		a.cache.EvictStandaloneKey(hashed)
		return apperr.Err(apperr.SecretsPluginDecryption(err))
	}
	value, err := encPlugin.Decrypt(ctx, encValue, key)
	if err != nil {
		a.cache.EvictStandaloneKey(hashed)
		return apperr.Err(apperr.SecretsPluginDecryption(err))
	}
	a.maybeScheduleStandaloneRelock(row, hashed)
	return apperr.Ok(GetSecretResponse{Name: name, Value: value, Filter: filter})
}

// DeleteStandaloneSecret is idempotent when the secret does not exist.
func (a *Actor) DeleteStandaloneSecret(ctx context.Context, req *DeleteStandaloneSecretRequest) apperr.Result {
	return a.do(ctx, func() apperr.Result { return a.deleteStandaloneSecret(ctx, req) })
}

func (a *Actor) deleteStandaloneSecret(ctx context.Context, req *DeleteStandaloneSecretRequest) apperr.Result {
	hashed := secretid.Hash(model.StandaloneCollectionName, req.SecretName)
	row, found, err := a.bookkeeping.SecretMetadata(ctx, model.StandaloneCollectionName, hashed)
	if err != nil {
		return apperr.Err(apperr.Unknown(err.Error()))
	}
	if !found {
		return apperr.Ok(nil) // idempotent
	}
	if aerr := a.checkAccess(row.AccessControlMode, row.OwnerApplicationID, req.CallerPID); aerr != nil {
		return apperr.Err(aerr)
	}

	if row.SameStoragePlugin() {
		if row.UsesDeviceLock {
			return a.deleteStandaloneSecretWithKey(ctx, row, hashed, a.deviceLockKey.Bytes())
		}
		if key, ok := a.cache.GetStandaloneKey(hashed); ok {
			return a.deleteStandaloneSecretWithKey(ctx, row, hashed, key.Bytes())
		}
		return a.parkDeleteStandaloneSecret(ctx, row, hashed, req.CallerPID, req.UserInteractionMode, req.InteractionServiceAddr)
	}

	// Split plugins need no decryption to delete a ciphertext blob.
	storagePlugin, ok := a.registry.GetStorage(row.StoragePluginName)
	if !ok {
		return apperr.Err(apperr.PluginUnavailable(row.StoragePluginName))
	}
	if err := storagePlugin.RemoveSecret(ctx, row.CollectionName, hashed); err != nil {
		return apperr.Err(apperr.PluginFailure(err))
	}
	if err := a.bookkeeping.DeleteSecret(ctx, row.CollectionName, hashed); err != nil {
		return apperr.Err(apperr.Unknown(err.Error()))
	}
	a.cache.EvictStandaloneKey(hashed)
	a.relock.Cancel(standaloneRelockKey(hashed))
	return apperr.Ok(nil)
}

func (a *Actor) parkDeleteStandaloneSecret(ctx context.Context, row *model.Secret, hashed string, callerPID int, mode model.UserInteractionMode, addr string) apperr.Result {
	if aerr := checkInteractionPrevented(mode); aerr != nil {
		return apperr.Err(aerr)
	}
	requestID, aerr := a.beginInteraction(ctx, callerPID, row.AuthPluginName, model.OpDeleteSecret, "", "", addr)
	if aerr != nil {
		return apperr.Err(aerr)
	}
	cont := pending.NewDeleteStandaloneSecret(requestID, callerPID, row, hashed)
	if err := a.pending.Park(cont); err != nil {
		return apperr.Err(apperr.Unknown(err.Error()))
	}
	return apperr.PendingResult(requestID)
}

func (a *Actor) deleteStandaloneSecretWithKey(ctx context.Context, row *model.Secret, hashed string, key []byte) apperr.Result {
	plugin, res, ok := a.acquireEncryptedStorageKey(ctx, row.StoragePluginName, row.CollectionName, row.UsesDeviceLock, key, func() apperr.Result {
		return apperr.Err(apperr.Unknown("standalone delete entered locked with no key in hand"))
	})
	if !ok {
		return res
	}
	if err := plugin.RemoveSecret(ctx, row.CollectionName, hashed); err != nil {
		return apperr.Err(apperr.PluginFailure(err))
	}
	if err := a.bookkeeping.DeleteSecret(ctx, row.CollectionName, hashed); err != nil {
		return apperr.Err(apperr.Unknown(err.Error()))
	}
	a.cache.EvictStandaloneKey(hashed)
	a.relock.Cancel(standaloneRelockKey(hashed))
	return apperr.Ok(nil)
}

// FindStandaloneSecrets is unconditionally unsupported: standalone
// secrets have no collection-scoped filter index to search.
func (a *Actor) FindStandaloneSecrets(ctx context.Context) apperr.Result {
	return a.do(ctx, func() apperr.Result {
		return apperr.Err(apperr.OperationNotSupported("finding standalone secrets is not supported"))
	})
}

// maybeScheduleStandaloneRelock mirrors maybeScheduleRelock for
// standalone secrets, keyed by hashed secret name so it never collides
// with a real collection's timer namespace.
func (a *Actor) maybeScheduleStandaloneRelock(row *model.Secret, hashedName string) {
	if row.UnlockSemantic != model.CustomLockTimeoutRelock {
		return
	}
	key := standaloneRelockKey(hashedName)
	a.relock.Schedule(key, millisToDuration(row.CustomLockTimeoutMS), func(string) {
		a.log.Debug().Str("secret", hashedName).Msg("relocking standalone secret after unlock timeout")
		a.cache.EvictStandaloneKey(hashedName)
	})
}

func standaloneRelockKey(hashedName string) string {
	return "standalone:" + hashedName
}
