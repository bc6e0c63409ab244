package processor

import (
	"context"

	"github.com/sealbox/secretsd/internal/apperr"
	"github.com/sealbox/secretsd/internal/model"
	"github.com/sealbox/secretsd/internal/pending"
	"github.com/sealbox/secretsd/internal/pluginapi"
)

// UserInput returns user-supplied bytes to the caller directly, for
// use as KDF input by the sibling crypto subsystem. If the request
// names neither a collection nor a secret, the prompt is wrapped with a
// warning that the data is leaving secure storage.
func (a *Actor) UserInput(ctx context.Context, req *UserInputRequest) apperr.Result {
	return a.do(ctx, func() apperr.Result { return a.userInput(ctx, req) })
}

func (a *Actor) userInput(ctx context.Context, req *UserInputRequest) apperr.Result {
	authPluginName := model.DefaultAuthenticationPluginName
	if req.CollectionName != "" {
		meta, aerr := a.loadCollectionForAccess(ctx, req.CollectionName, req.CallerPID)
		if aerr != nil {
			return apperr.Err(aerr)
		}
		authPluginName = meta.AuthPluginName
	} else if _, aerr := a.resolveOwner(req.CallerPID); aerr != nil {
		return apperr.Err(aerr)
	}

	params := req.Params
	params.Operation = model.OpRequestUserData
	if req.CollectionName == "" && req.SecretName == "" {
		params.Warning = true
	}

	name := effectiveAuthPluginName(authPluginName, a.autotestMode)
	if aerr := a.checkInteractionCompatibility(name, req.UserInteractionMode, req.InteractionServiceAddr); aerr != nil {
		return apperr.Err(aerr)
	}
	plugin, ok := a.registry.GetAuth(name)
	if !ok {
		return apperr.Err(apperr.PluginUnavailable(name))
	}
	requestID := newRequestID()
	if err := plugin.BeginUserInputInteraction(ctx, req.CallerPID, requestID, params, req.InteractionServiceAddr); err != nil {
		return apperr.Err(apperr.OperationRequiresApplicationUserInteraction())
	}
	cont := pending.NewUserInput(requestID, req.CallerPID)
	if err := a.pending.Park(cont); err != nil {
		return apperr.Err(apperr.Unknown(err.Error()))
	}
	return apperr.PendingResult(requestID)
}

// checkInteractionCompatibility validates a request's user-interaction
// mode against what the named authentication plugin needs, before any
// work is done: an application-specific plugin can only interact
// through the caller's own interaction service, so the caller must
// both permit ApplicationInteraction and name a service address; and a
// PreventInteraction caller fails here rather than parking for input
// that can never arrive.
func (a *Actor) checkInteractionCompatibility(name string, mode model.UserInteractionMode, addr string) *apperr.AppError {
	plugin, ok := a.registry.GetAuth(name)
	if !ok {
		return apperr.PluginUnavailable(name)
	}
	if plugin.AuthenticationTypes()&pluginapi.AuthApplicationSpecific != 0 &&
		(mode != model.ApplicationInteraction || addr == "") {
		return apperr.OperationRequiresApplicationUserInteraction()
	}
	if mode == model.PreventInteraction {
		return apperr.OperationRequiresUserInteraction()
	}
	return nil
}

// checkInteractionPrevented is the lighter check the locked-path park
// sites use: by the time a collection's lock key must be fetched, the
// plugin compatibility was already validated at create time, so only
// the caller's PreventInteraction stance can still stop the flow.
func checkInteractionPrevented(mode model.UserInteractionMode) *apperr.AppError {
	if mode == model.PreventInteraction {
		return apperr.OperationRequiresUserInteraction()
	}
	return nil
}

// beginInteraction starts a user-input interaction through the named
// authentication plugin (adjusted for autotest mode) and returns the
// fresh request id the caller should park a continuation under.
func (a *Actor) beginInteraction(
	ctx context.Context,
	callerPID int,
	authPluginName string,
	op model.InteractionOperation,
	collection, secretName, interactionServiceAddr string,
) (string, *apperr.AppError) {
	name := effectiveAuthPluginName(authPluginName, a.autotestMode)
	plugin, ok := a.registry.GetAuth(name)
	if !ok {
		return "", apperr.PluginUnavailable(name)
	}
	appID, aerr := a.resolveOwner(callerPID)
	if aerr != nil {
		return "", aerr
	}
	requestID := newRequestID()
	params := model.InteractionParameters{
		ApplicationID:          appID,
		CollectionName:         collection,
		SecretName:             secretName,
		Operation:              op,
		InputType:              "alphanumeric",
		EchoMode:               "passwordEchoOnEdit",
		PromptTranslationID:    "secretsd.prompt." + interactionOperationName(op),
		InteractionServiceAddr: interactionServiceAddr,
	}
	if err := plugin.BeginUserInputInteraction(ctx, callerPID, requestID, params, interactionServiceAddr); err != nil {
		return "", apperr.OperationRequiresApplicationUserInteraction()
	}
	return requestID, nil
}

func interactionOperationName(op model.InteractionOperation) string {
	switch op {
	case model.OpCreateCollection:
		return "create_collection"
	case model.OpStoreSecret:
		return "store_secret"
	case model.OpReadSecret:
		return "read_secret"
	case model.OpDeleteSecret:
		return "delete_secret"
	case model.OpUnlockCollection:
		return "unlock_collection"
	case model.OpRequestUserData:
		return "request_user_data"
	default:
		return "unknown"
	}
}
