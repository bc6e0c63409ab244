package processor

import (
	"context"
	"fmt"

	"github.com/sealbox/secretsd/internal/apperr"
	"github.com/sealbox/secretsd/internal/bus"
	"github.com/sealbox/secretsd/internal/model"
	"github.com/sealbox/secretsd/internal/pending"
	"github.com/sealbox/secretsd/internal/queue"
)

// handleUserInputCompleted is the completion-handler entry point for a
// finished user-input interaction: the bytes carried are either the
// secret value a fetch-from-user request asked for, or the
// authentication key a locked collection/secret needed.
func (a *Actor) handleUserInputCompleted(evt bus.UserInputCompleted) {
	a.completeInteraction(evt.RequestID, evt.Succeeded, evt.ErrMessage, evt.Bytes)
}

// handleAuthenticationCompleted handles the plugin signal fired when a
// plain authentication (not a data-gathering) interaction finishes. It
// resumes the same pending table as handleUserInputCompleted, since
// every continuation this core parks was begun through
// BeginUserInputInteraction; an authentication-only completion carries
// no bytes of its own, so a key-bearing continuation resumed this way
// would only ever do so on failure. Which of the two signals a plugin
// fires is the plugin's choice, not the core's.
func (a *Actor) handleAuthenticationCompleted(evt bus.AuthenticationCompleted) {
	a.completeInteraction(evt.RequestID, evt.Succeeded, evt.ErrMessage, nil)
}

// completeInteraction finishes a suspended request: a failed result
// drops the continuation and emits the failure; an unknown request id
// is an internal error that must not leak user input to an arbitrary
// caller; otherwise the continuation is resumed and, unless the
// resumption itself parks a further continuation, the final result is
// emitted to the request queue.
func (a *Actor) completeInteraction(requestID string, succeeded bool, errMessage string, bytes []byte) {
	if !succeeded {
		a.pending.Take(requestID)
		a.log.Debug().Str("request_id", requestID).Msg("interaction failed; dropping continuation")
		a.emitFinal(requestID, apperr.Err(apperr.PluginFailure(fmt.Errorf("%s", errMessage))))
		return
	}

	cont, ok := a.pending.Take(requestID)
	if !ok {
		a.log.Warn().Str("request_id", requestID).Msg("interaction completed for unknown request id")
		a.emitFinal(requestID, apperr.Err(apperr.Unknown("no pending request for id "+requestID)))
		return
	}

	ctx := context.Background()
	result := a.resume(ctx, cont, bytes)
	if result.IsPending() {
		// A second continuation was parked (e.g. a fetch-from-user
		// write now waiting on the unlock key); nothing more to emit
		// until that one completes too.
		return
	}
	a.emitFinal(requestID, result)
}

// resume dispatches a resumed continuation by its concrete kind. The
// kinds fall in two shapes: value-fetching kinds substitute bytes as
// the secret's value and re-enter key acquisition (which may itself
// park again); key-bearing kinds call the matching
// *WithAuthenticationKey stage directly with bytes as the key.
func (a *Actor) resume(ctx context.Context, cont pending.Continuation, bytes []byte) apperr.Result {
	switch c := cont.(type) {
	case *pending.CreateCustomLockCollection:
		// Re-check existence: another caller may have created the name
		// while the user-input flow was running.
		exists, err := a.bookkeeping.CollectionExists(ctx, c.Row.Name)
		if err != nil {
			return apperr.Err(apperr.Unknown(err.Error()))
		}
		if exists {
			return apperr.Err(apperr.CollectionAlreadyExists(c.Row.Name))
		}
		return a.finishCreateCollection(ctx, c.Row, c.CallerPID, bytes)

	case *pending.SetCollectionUserInputSecret:
		return a.resumeSetCollectionUserInputSecret(ctx, c, bytes)

	case *pending.SetCollectionSecret:
		meta, aerr := a.loadCollectionForAccess(ctx, c.Collection, c.CallerPID)
		if aerr != nil {
			return apperr.Err(aerr)
		}
		if meta.SameStoragePlugin() {
			return a.setCollectionSecretWithAuthenticationKey(ctx, meta, c.Secret, c.IsNewSecret, c.CallerPID, model.PreventInteraction, "", bytes)
		}
		return a.writeCollectionSecretSplit(ctx, meta, c.Secret, c.IsNewSecret, bytes)

	case *pending.GetCollectionSecret:
		meta, aerr := a.loadCollectionForAccess(ctx, c.Collection, c.CallerPID)
		if aerr != nil {
			return apperr.Err(aerr)
		}
		if meta.SameStoragePlugin() {
			return a.getCollectionSecretWithAuthenticationKey(ctx, meta, c.HashedName, c.CallerPID, model.PreventInteraction, "", bytes)
		}
		return a.readCollectionSecretSplit(ctx, meta, c.HashedName, bytes)

	case *pending.FindCollectionSecrets:
		meta, aerr := a.loadCollectionForAccess(ctx, c.Collection, c.CallerPID)
		if aerr != nil {
			return apperr.Err(aerr)
		}
		if meta.SameStoragePlugin() {
			req := &FindCollectionSecretsRequest{
				CallerPID:  c.CallerPID,
				Collection: c.Collection,
				Filter:     c.Filter,
				Operator:   c.Operator,
			}
			return a.findCollectionSecretsWithAuthenticationKey(ctx, meta, req, bytes)
		}
		return a.findCollectionSecretsSplit(ctx, meta, c.Filter, c.Operator, bytes)

	case *pending.DeleteCollectionSecret:
		meta, aerr := a.loadCollectionForAccess(ctx, c.Collection, c.CallerPID)
		if aerr != nil {
			return apperr.Err(aerr)
		}
		if meta.SameStoragePlugin() {
			return a.deleteCollectionSecretWithAuthenticationKey(ctx, meta, c.HashedName, c.CallerPID, model.PreventInteraction, "", bytes)
		}
		return a.deleteCollectionSecretSplit(ctx, meta, c.HashedName)

	case *pending.SetStandaloneDeviceLockUserInputSecret:
		secret := c.Secret
		secret.Value = bytes
		return a.setStandaloneSecretAcquireKey(ctx, c.Row, secret, c.IsNewSecret, c.CallerPID, c.InteractionMode, c.InteractionServiceAddr)

	case *pending.SetStandaloneCustomLockUserInputSecret:
		secret := c.Secret
		secret.Value = bytes
		return a.setStandaloneSecretAcquireKey(ctx, c.Row, secret, c.IsNewSecret, c.CallerPID, c.InteractionMode, c.InteractionServiceAddr)

	case *pending.SetStandaloneSecret:
		return a.writeStandaloneSecretWithKey(ctx, c.Row, c.Secret, c.IsNewSecret, bytes)

	case *pending.GetStandaloneSecret:
		return a.readStandaloneSecretWithKey(ctx, c.Row, c.HashedName, bytes)

	case *pending.DeleteStandaloneSecret:
		return a.deleteStandaloneSecretWithKey(ctx, c.Row, c.HashedName, bytes)

	case *pending.UserInput:
		return apperr.Ok(bytes)

	default:
		return apperr.Err(apperr.Unknown(fmt.Sprintf("unrecognised continuation kind %q", cont.Kind())))
	}
}

// resumeSetCollectionUserInputSecret re-derives whether the secret is
// new: setCollectionSecret computes existence before parking on the
// fetch-from-user branch, but the continuation does not carry it, so
// the existence check is redone against current bookkeeping state.
func (a *Actor) resumeSetCollectionUserInputSecret(ctx context.Context, c *pending.SetCollectionUserInputSecret, bytes []byte) apperr.Result {
	meta, aerr := a.loadCollectionForAccess(ctx, c.Collection, c.CallerPID)
	if aerr != nil {
		return apperr.Err(aerr)
	}
	exists, err := a.bookkeeping.SecretExists(ctx, c.Collection, c.Secret.HashedName)
	if err != nil {
		return apperr.Err(apperr.Unknown(err.Error()))
	}
	secret := c.Secret
	secret.Value = bytes
	return a.setCollectionSecretAcquireKey(ctx, meta, secret, !exists, c.CallerPID, c.InteractionMode, c.InteractionServiceAddr)
}

// emitFinal posts a terminal result to the request queue; a processor
// wired without one (pure unit tests of dispatcher methods) simply
// drops it.
func (a *Actor) emitFinal(requestID string, result apperr.Result) {
	if a.results == nil {
		return
	}
	a.results.Emit(queue.Entry{RequestID: requestID, Result: result})
}
