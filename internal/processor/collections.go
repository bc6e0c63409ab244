package processor

import (
	"context"

	"github.com/sealbox/secretsd/internal/apperr"
	"github.com/sealbox/secretsd/internal/model"
	"github.com/sealbox/secretsd/internal/pending"
)

// CreateCollection validates the request and creates the collection. A
// device-lock collection completes synchronously with the process-wide
// device key; a custom-lock collection first runs a user-input flow to
// gather the key its contents will be protected with, so the caller
// sees Pending and the create finishes when the interaction completes.
func (a *Actor) CreateCollection(ctx context.Context, req *CreateCollectionRequest) apperr.Result {
	return a.do(ctx, func() apperr.Result { return a.createCollection(ctx, req) })
}

func (a *Actor) createCollection(ctx context.Context, req *CreateCollectionRequest) apperr.Result {
	if model.IsReservedCollectionName(req.Name) || req.Name == "" {
		return apperr.Err(apperr.InvalidCollection("collection name is reserved or empty"))
	}
	if verr := a.validatePluginCombination(req.StoragePluginName, req.EncryptionPluginName); verr != nil {
		return apperr.Err(verr)
	}

	row := &model.Collection{
		Name:                 req.Name,
		UsesDeviceLock:       req.UsesDeviceLock,
		StoragePluginName:    req.StoragePluginName,
		EncryptionPluginName: req.EncryptionPluginName,
		AuthPluginName:       req.AuthPluginName,
		UnlockSemantic:       req.UnlockSemantic,
		CustomLockTimeoutMS:  req.CustomLockTimeoutMS,
		AccessControlMode:    req.AccessControlMode,
	}

	if req.UsesDeviceLock {
		exists, err := a.bookkeeping.CollectionExists(ctx, req.Name)
		if err != nil {
			return apperr.Err(apperr.Unknown(err.Error()))
		}
		if exists {
			return apperr.Err(apperr.CollectionAlreadyExists(req.Name))
		}
		return a.finishCreateCollection(ctx, row, req.CallerPID, a.deviceLockKey.Bytes())
	}

	if verr := a.validateAuthPlugin(false, req.AuthPluginName); verr != nil {
		return apperr.Err(verr)
	}
	authName := effectiveAuthPluginName(req.AuthPluginName, a.autotestMode)
	if aerr := a.checkInteractionCompatibility(authName, req.UserInteractionMode, req.InteractionServiceAddr); aerr != nil {
		return apperr.Err(aerr)
	}

	exists, err := a.bookkeeping.CollectionExists(ctx, req.Name)
	if err != nil {
		return apperr.Err(apperr.Unknown(err.Error()))
	}
	if exists {
		return apperr.Err(apperr.CollectionAlreadyExists(req.Name))
	}

	requestID, aerr := a.beginInteraction(ctx, req.CallerPID, req.AuthPluginName, model.OpCreateCollection, req.Name, "", req.InteractionServiceAddr)
	if aerr != nil {
		return apperr.Err(aerr)
	}
	cont := pending.NewCreateCustomLockCollection(requestID, req.CallerPID, row)
	if err := a.pending.Park(cont); err != nil {
		return apperr.Err(apperr.Unknown(err.Error()))
	}
	return apperr.PendingResult(requestID)
}

// finishCreateCollection is the write half of collection creation,
// entered with the protection key in hand (device key, or the
// user-supplied key a resumed custom-lock create carries): insert the
// bookkeeping row, create on the plugin, and clean the row back up if
// the plugin refuses.
func (a *Actor) finishCreateCollection(ctx context.Context, row *model.Collection, callerPID int, key []byte) apperr.Result {
	ownerAppID, aerr := a.resolveOwner(callerPID)
	if aerr != nil {
		return apperr.Err(aerr)
	}
	row.OwnerApplicationID = ownerAppID

	if err := a.bookkeeping.InsertCollection(ctx, row); err != nil {
		return apperr.Err(apperr.Unknown(err.Error()))
	}

	pluginErr := a.createCollectionOnPlugin(ctx, row, key)
	if pluginErr != nil {
		cleanupErr := a.bookkeeping.CleanupDeleteCollection(ctx, row.Name, pluginErr)
		if ae, ok := cleanupErr.(*apperr.AppError); ok {
			return apperr.Err(ae)
		}
		return apperr.Err(apperr.PluginFailure(cleanupErr))
	}
	return apperr.Ok(nil)
}

// createCollectionOnPlugin creates the collection on its plugin: the
// encrypted-storage case applies the key immediately after creation;
// the split case instead primes the lock-key cache so the first write
// doesn't need to re-acquire it.
func (a *Actor) createCollectionOnPlugin(ctx context.Context, row *model.Collection, key []byte) error {
	if row.SameStoragePlugin() {
		plugin, ok := a.registry.GetEncryptedStorage(row.StoragePluginName)
		if !ok {
			return apperr.PluginUnavailable(row.StoragePluginName)
		}
		if err := plugin.CreateCollection(ctx, row.Name); err != nil {
			return err
		}
		return plugin.SetEncryptionKey(ctx, row.Name, key)
	}

	plugin, ok := a.registry.GetStorage(row.StoragePluginName)
	if !ok {
		return apperr.PluginUnavailable(row.StoragePluginName)
	}
	if err := plugin.CreateCollection(ctx, row.Name); err != nil {
		return err
	}
	a.cache.SetCollectionKey(row.Name, cloneKey(key))
	return nil
}

// DeleteCollection removes a collection: idempotent on a missing row,
// plugin-first then bookkeeping-last so a crash mid-delete only ever
// leaves a stale bookkeeping row, never a live plugin collection with
// no owning metadata.
func (a *Actor) DeleteCollection(ctx context.Context, req *DeleteCollectionRequest) apperr.Result {
	return a.do(ctx, func() apperr.Result { return a.deleteCollection(ctx, req) })
}

func (a *Actor) deleteCollection(ctx context.Context, req *DeleteCollectionRequest) apperr.Result {
	meta, found, err := a.bookkeeping.CollectionMetadata(ctx, req.Name)
	if err != nil {
		return apperr.Err(apperr.Unknown(err.Error()))
	}
	if !found {
		return apperr.Ok(nil) // idempotent
	}
	if aerr := a.checkAccess(meta.AccessControlMode, meta.OwnerApplicationID, req.CallerPID); aerr != nil {
		return apperr.Err(aerr)
	}

	if err := a.removeCollectionOnPlugin(ctx, meta); err != nil {
		if ae, ok := err.(*apperr.AppError); ok {
			return apperr.Err(ae)
		}
		return apperr.Err(apperr.PluginFailure(err))
	}

	a.cache.EvictCollectionKey(meta.Name)
	a.relock.Cancel(meta.Name)

	if err := a.bookkeeping.DeleteCollection(ctx, meta.Name); err != nil {
		return apperr.Err(apperr.Unknown(err.Error()))
	}
	return apperr.Ok(nil)
}

func (a *Actor) removeCollectionOnPlugin(ctx context.Context, meta *model.Collection) error {
	if meta.SameStoragePlugin() {
		plugin, ok := a.registry.GetEncryptedStorage(meta.StoragePluginName)
		if !ok {
			return apperr.PluginUnavailable(meta.StoragePluginName)
		}
		return plugin.RemoveCollection(ctx, meta.Name)
	}
	plugin, ok := a.registry.GetStorage(meta.StoragePluginName)
	if !ok {
		return apperr.PluginUnavailable(meta.StoragePluginName)
	}
	return plugin.RemoveCollection(ctx, meta.Name)
}

// CollectionNames enumerates all non-reserved collection names,
// resolving caller identity through the permission oracle first.
func (a *Actor) CollectionNames(ctx context.Context, callerPID int) apperr.Result {
	return a.do(ctx, func() apperr.Result {
		if _, aerr := a.resolveOwner(callerPID); aerr != nil {
			return apperr.Err(aerr)
		}
		names, err := a.bookkeeping.CollectionNames(ctx)
		if err != nil {
			return apperr.Err(apperr.Unknown(err.Error()))
		}
		return apperr.Ok(names)
	})
}

// PluginInfoResponse is the Value carried by a Succeeded Result from
// Actor.PluginInfo.
type PluginInfoResponse struct {
	Storage          []string
	Encryption       []string
	EncryptedStorage []string
	Authentication   []string
}

// PluginInfo returns the registered plugin names per capability
// class.
func (a *Actor) PluginInfo(ctx context.Context) apperr.Result {
	return a.do(ctx, func() apperr.Result {
		storage, encryption, encryptedStorage, auth := a.registry.Info()
		return apperr.Ok(PluginInfoResponse{
			Storage:          storage,
			Encryption:       encryption,
			EncryptedStorage: encryptedStorage,
			Authentication:   auth,
		})
	})
}
