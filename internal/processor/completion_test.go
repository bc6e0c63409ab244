package processor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealbox/secretsd/internal/apperr"
	"github.com/sealbox/secretsd/internal/bus"
	"github.com/sealbox/secretsd/internal/model"
	"github.com/sealbox/secretsd/internal/pluginapi"
)

// A completion for a request id nothing is parked under is an internal
// error; it must not leak the user's input to an arbitrary caller.
func TestCompletion_UnknownRequestID(t *testing.T) {
	h := newHarness(t, nil)

	h.completeUserInput("no-such-request", []byte("leaked?"))
	final := h.awaitResult(t, "no-such-request")
	require.True(t, final.IsFailed())
	assert.Equal(t, apperr.CodeUnknown, final.Err.Code)
	assert.Nil(t, final.Value)
}

// A failed interaction drops the continuation and surfaces the failure;
// a second completion for the same id then hits the unknown-id path.
func TestCompletion_InteractionFailureDropsContinuation(t *testing.T) {
	h := newHarness(t, nil)
	ap := newFakeAuthPlugin(model.DefaultAuthenticationPluginName, pluginapi.AuthSystemDefault)
	h.reg.RegisterAuth(ap)

	res := h.actor.UserInput(context.Background(), &UserInputRequest{
		CallerPID:           testCallerPID,
		UserInteractionMode: model.SystemInteraction,
	})
	require.True(t, res.IsPending())
	requestID := res.Value.(string)

	_ = h.bus.PublishUserInputCompleted(context.Background(), bus.UserInputCompleted{
		CallerPID:  testCallerPID,
		RequestID:  requestID,
		Succeeded:  false,
		ErrMessage: "user cancelled",
	})
	final := h.awaitResult(t, requestID)
	require.True(t, final.IsFailed())
	assert.Equal(t, apperr.CodePluginFailure, final.Err.Code)

	h.completeUserInput(requestID, []byte("late input"))
	final = h.awaitResult(t, requestID)
	require.True(t, final.IsFailed())
	assert.Equal(t, apperr.CodeUnknown, final.Err.Code)
}

// A fetch-value-from-user write against a locked custom-lock collection suspends
// twice: once to fetch the secret's value, then again for the unlock
// key. The single final reply is emitted under the second request id
// once both interactions complete.
func TestCompletion_DoubleSuspension_ValueThenKey(t *testing.T) {
	h := newHarness(t, nil)
	sp := newFakeStorage("sp")
	ep := newFakeEncryption("ep")
	ap := newFakeAuthPlugin("ap", pluginapi.AuthSystemDefault)
	h.reg.RegisterStorage(sp)
	h.reg.RegisterEncryption(ep)
	h.reg.RegisterAuth(ap)

	// Seed the collection row directly so the lock-key cache starts
	// empty (a fresh create would prime it with the creation key).
	require.NoError(t, h.bk.InsertCollection(context.Background(), &model.Collection{
		Name:                 "locked",
		OwnerApplicationID:   "app1",
		StoragePluginName:    "sp",
		EncryptionPluginName: "ep",
		AuthPluginName:       "ap",
		UnlockSemantic:       model.CustomLockKeepUntilLogout,
	}))

	res := h.actor.SetCollectionSecret(context.Background(), &SetCollectionSecretRequest{
		CallerPID:           testCallerPID,
		Collection:          "locked",
		SecretName:          "s1",
		FetchValueFromUser:  true,
		UserInteractionMode: model.SystemInteraction,
	})
	require.True(t, res.IsPending(), "fetch-from-user write should park for the value: %+v", res)
	valueRequestID := res.Value.(string)

	h.completeUserInput(valueRequestID, []byte("typed-by-user"))

	// The resumption parks a second continuation for the unlock key;
	// wait for the plugin to be asked again.
	require.Eventually(t, func() bool { return ap.interactionCount() == 2 },
		2*time.Second, 5*time.Millisecond, "expected a second interaction for the unlock key")
	keyRequestID := ap.interactionRequestID(1)
	require.NotEqual(t, valueRequestID, keyRequestID)

	h.completeUserInput(keyRequestID, []byte("unlock-key"))
	final := h.awaitResult(t, keyRequestID)
	require.True(t, final.IsSucceeded(), "resumed write: %+v", final)

	// The stored value is what the user typed, readable back through
	// the now-cached key.
	got := h.actor.GetCollectionSecret(context.Background(), &GetCollectionSecretRequest{
		CallerPID:           testCallerPID,
		Collection:          "locked",
		SecretName:          "s1",
		UserInteractionMode: model.SystemInteraction,
	})
	require.True(t, got.IsSucceeded(), "read back: %+v", got)
	assert.Equal(t, []byte("typed-by-user"), got.Value.(GetSecretResponse).Value)
}
