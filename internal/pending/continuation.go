// Package pending implements the Pending-Request Table: a map
// from request id to a suspended continuation carrying the original
// request kind and the parameters needed to resume it after user
// input.
//
// Continuation is a closed interface implemented only by the concrete
// structs below, one per suspended operation kind, each carrying a
// typed record rather than an untyped parameter list: arity mismatches
// are impossible at compile time, so the only internal error left at
// resumption is a genuinely missing/stale request id.
package pending

import "github.com/sealbox/secretsd/internal/model"

// Continuation is implemented by every parked-request record. Kind
// identifies which resumption path internal/processor's completion
// handler must take; it is a closed set enumerated by the constants
// below.
type Continuation interface {
	Kind() Kind
	kindRequestID() string
}

// Kind enumerates the suspended-operation variants.
type Kind string

const (
	// KindCreateCustomLockCollection parks a custom-lock collection
	// create waiting on the user-supplied key its contents will be
	// protected with.
	KindCreateCustomLockCollection Kind = "CreateCustomLockCollection"
	// KindSetCollectionUserInputSecret parks a set-secret request that
	// must first fetch the secret's value from the user before entering
	// authentication-key acquisition.
	KindSetCollectionUserInputSecret Kind = "SetCollectionUserInputSecret"
	// KindSetCollectionSecret parks a set-secret request waiting on an
	// authentication key.
	KindSetCollectionSecret Kind = "SetCollectionSecret"
	// KindGetCollectionSecret parks a get-secret request waiting on an
	// authentication key.
	KindGetCollectionSecret Kind = "GetCollectionSecret"
	// KindFindCollectionSecrets parks a find-secrets request waiting on
	// an authentication key.
	KindFindCollectionSecrets Kind = "FindCollectionSecrets"
	// KindDeleteCollectionSecret parks a delete-secret request waiting
	// on an authentication key.
	KindDeleteCollectionSecret Kind = "DeleteCollectionSecret"
	// KindSetStandaloneDeviceLockUserInputSecret parks a standalone
	// device-lock secret write waiting on its value from the user.
	KindSetStandaloneDeviceLockUserInputSecret Kind = "SetStandaloneDeviceLockUserInputSecret"
	// KindSetStandaloneCustomLockUserInputSecret parks a standalone
	// custom-lock secret write waiting on its value from the user.
	KindSetStandaloneCustomLockUserInputSecret Kind = "SetStandaloneCustomLockUserInputSecret"
	// KindUserInput parks a bare userInput operation: the supplied bytes
	// are returned to the caller directly.
	KindUserInput Kind = "UserInput"
	// KindSetStandaloneSecret parks a standalone secret write waiting on
	// an authentication key (custom-lock only; device-lock never parks
	// here since the device key is always in hand).
	KindSetStandaloneSecret Kind = "SetStandaloneSecret"
	// KindGetStandaloneSecret parks a standalone secret read waiting on
	// an authentication key.
	KindGetStandaloneSecret Kind = "GetStandaloneSecret"
	// KindDeleteStandaloneSecret parks a standalone secret delete waiting
	// on an authentication key (same-plugin configurations only; split
	// deletes need no key at all).
	KindDeleteStandaloneSecret Kind = "DeleteStandaloneSecret"
)

// SecretData is the in-flight payload of a secret being written,
// passed between continuation stages as plaintext is substituted and
// encryption is applied.
type SecretData struct {
	HashedName string
	Name       []byte
	Value      []byte
	Filter     map[string]string
}

// base is embedded by every concrete continuation to carry the request
// id and caller pid without repeating the field in each struct.
type base struct {
	RequestID string
	CallerPID int
}

func (b base) kindRequestID() string { return b.RequestID }

// CreateCustomLockCollection is parked when a custom-lock collection
// create is waiting on the user-supplied protection key. Row carries
// every bookkeeping field except the owner id, which is re-resolved on
// resumption.
type CreateCustomLockCollection struct {
	base
	Row *model.Collection
}

func (*CreateCustomLockCollection) Kind() Kind { return KindCreateCustomLockCollection }

// NewCreateCustomLockCollection constructs a parked continuation of
// this kind.
func NewCreateCustomLockCollection(requestID string, callerPID int, row *model.Collection) *CreateCustomLockCollection {
	return &CreateCustomLockCollection{
		base: base{RequestID: requestID, CallerPID: callerPID},
		Row:  row,
	}
}

// SetCollectionUserInputSecret is parked when a set-collection-secret
// request asked for the value to be fetched from the user: the core
// must gather it before it can proceed to key acquisition and write.
type SetCollectionUserInputSecret struct {
	base
	Collection             string
	Secret                 SecretData
	InteractionMode        model.UserInteractionMode
	InteractionServiceAddr string
}

func (*SetCollectionUserInputSecret) Kind() Kind { return KindSetCollectionUserInputSecret }

// NewSetCollectionUserInputSecret constructs a parked continuation of
// this kind.
func NewSetCollectionUserInputSecret(requestID string, callerPID int, collection string, secret SecretData, mode model.UserInteractionMode, addr string) *SetCollectionUserInputSecret {
	return &SetCollectionUserInputSecret{
		base:                   base{RequestID: requestID, CallerPID: callerPID},
		Collection:             collection,
		Secret:                 secret,
		InteractionMode:        mode,
		InteractionServiceAddr: addr,
	}
}

// SetCollectionSecret is parked when a set-collection-secret request is
// waiting on an authentication key (same-plugin lock, or split-plugin
// with no cached key).
type SetCollectionSecret struct {
	base
	Collection string
	Secret     SecretData
	// IsNewSecret records whether the bookkeeping row was freshly
	// inserted for this request, so a write failure after resumption
	// knows whether to CleanupDeleteSecret.
	IsNewSecret bool
}

func (*SetCollectionSecret) Kind() Kind { return KindSetCollectionSecret }

// NewSetCollectionSecret constructs a parked continuation of this kind.
func NewSetCollectionSecret(requestID string, callerPID int, collection string, secret SecretData, isNew bool) *SetCollectionSecret {
	return &SetCollectionSecret{
		base:        base{RequestID: requestID, CallerPID: callerPID},
		Collection:  collection,
		Secret:      secret,
		IsNewSecret: isNew,
	}
}

// GetCollectionSecret is parked when a get-collection-secret request is
// waiting on an authentication key.
type GetCollectionSecret struct {
	base
	Collection string
	HashedName string
}

func (*GetCollectionSecret) Kind() Kind { return KindGetCollectionSecret }

// NewGetCollectionSecret constructs a parked continuation of this kind.
func NewGetCollectionSecret(requestID string, callerPID int, collection, hashedName string) *GetCollectionSecret {
	return &GetCollectionSecret{
		base:       base{RequestID: requestID, CallerPID: callerPID},
		Collection: collection,
		HashedName: hashedName,
	}
}

// FindCollectionSecrets is parked when a find-collection-secrets
// request is waiting on an authentication key.
type FindCollectionSecrets struct {
	base
	Collection string
	Filter     map[string]string
	Operator   model.FilterOperator
}

func (*FindCollectionSecrets) Kind() Kind { return KindFindCollectionSecrets }

// NewFindCollectionSecrets constructs a parked continuation of this kind.
func NewFindCollectionSecrets(requestID string, callerPID int, collection string, filter map[string]string, op model.FilterOperator) *FindCollectionSecrets {
	return &FindCollectionSecrets{
		base:       base{RequestID: requestID, CallerPID: callerPID},
		Collection: collection,
		Filter:     filter,
		Operator:   op,
	}
}

// DeleteCollectionSecret is parked when a delete-collection-secret
// request is waiting on an authentication key.
type DeleteCollectionSecret struct {
	base
	Collection string
	HashedName string
}

func (*DeleteCollectionSecret) Kind() Kind { return KindDeleteCollectionSecret }

// NewDeleteCollectionSecret constructs a parked continuation of this kind.
func NewDeleteCollectionSecret(requestID string, callerPID int, collection, hashedName string) *DeleteCollectionSecret {
	return &DeleteCollectionSecret{
		base:       base{RequestID: requestID, CallerPID: callerPID},
		Collection: collection,
		HashedName: hashedName,
	}
}

// SetStandaloneDeviceLockUserInputSecret is parked when a standalone
// device-lock secret write is waiting on its value from the user (the
// authentication key itself is the process-wide device lock key,
// acquired unconditionally — no second parking for key acquisition).
type SetStandaloneDeviceLockUserInputSecret struct {
	base
	Row                    *model.Secret
	Secret                 SecretData
	IsNewSecret            bool
	InteractionMode        model.UserInteractionMode
	InteractionServiceAddr string
}

func (*SetStandaloneDeviceLockUserInputSecret) Kind() Kind {
	return KindSetStandaloneDeviceLockUserInputSecret
}

// NewSetStandaloneDeviceLockUserInputSecret constructs a parked
// continuation of this kind.
func NewSetStandaloneDeviceLockUserInputSecret(requestID string, callerPID int, row *model.Secret, secret SecretData, isNew bool, mode model.UserInteractionMode, addr string) *SetStandaloneDeviceLockUserInputSecret {
	return &SetStandaloneDeviceLockUserInputSecret{
		base:                   base{RequestID: requestID, CallerPID: callerPID},
		Row:                    row,
		Secret:                 secret,
		IsNewSecret:            isNew,
		InteractionMode:        mode,
		InteractionServiceAddr: addr,
	}
}

// SetStandaloneCustomLockUserInputSecret is parked when a standalone
// custom-lock secret write is waiting on its value from the user.
type SetStandaloneCustomLockUserInputSecret struct {
	base
	Row                    *model.Secret
	Secret                 SecretData
	IsNewSecret            bool
	InteractionMode        model.UserInteractionMode
	InteractionServiceAddr string
}

func (*SetStandaloneCustomLockUserInputSecret) Kind() Kind {
	return KindSetStandaloneCustomLockUserInputSecret
}

// NewSetStandaloneCustomLockUserInputSecret constructs a parked
// continuation of this kind.
func NewSetStandaloneCustomLockUserInputSecret(requestID string, callerPID int, row *model.Secret, secret SecretData, isNew bool, mode model.UserInteractionMode, addr string) *SetStandaloneCustomLockUserInputSecret {
	return &SetStandaloneCustomLockUserInputSecret{
		base:                   base{RequestID: requestID, CallerPID: callerPID},
		Row:                    row,
		Secret:                 secret,
		IsNewSecret:            isNew,
		InteractionMode:        mode,
		InteractionServiceAddr: addr,
	}
}

// UserInput is parked for a bare userInput operation: on completion the
// supplied bytes are the response value, nothing else is resumed.
type UserInput struct {
	base
}

func (*UserInput) Kind() Kind { return KindUserInput }

// NewUserInput constructs a parked continuation of this kind.
func NewUserInput(requestID string, callerPID int) *UserInput {
	return &UserInput{base: base{RequestID: requestID, CallerPID: callerPID}}
}

// SetStandaloneSecret is parked when a standalone secret write (value
// already known) is waiting on an authentication key.
type SetStandaloneSecret struct {
	base
	Row         *model.Secret
	Secret      SecretData
	IsNewSecret bool
}

func (*SetStandaloneSecret) Kind() Kind { return KindSetStandaloneSecret }

// NewSetStandaloneSecret constructs a parked continuation of this kind.
func NewSetStandaloneSecret(requestID string, callerPID int, row *model.Secret, secret SecretData, isNew bool) *SetStandaloneSecret {
	return &SetStandaloneSecret{
		base:        base{RequestID: requestID, CallerPID: callerPID},
		Row:         row,
		Secret:      secret,
		IsNewSecret: isNew,
	}
}

// GetStandaloneSecret is parked when a standalone secret read is
// waiting on an authentication key.
type GetStandaloneSecret struct {
	base
	Row        *model.Secret
	HashedName string
}

func (*GetStandaloneSecret) Kind() Kind { return KindGetStandaloneSecret }

// NewGetStandaloneSecret constructs a parked continuation of this kind.
func NewGetStandaloneSecret(requestID string, callerPID int, row *model.Secret, hashedName string) *GetStandaloneSecret {
	return &GetStandaloneSecret{
		base:       base{RequestID: requestID, CallerPID: callerPID},
		Row:        row,
		HashedName: hashedName,
	}
}

// DeleteStandaloneSecret is parked when a standalone secret delete is
// waiting on an authentication key.
type DeleteStandaloneSecret struct {
	base
	Row        *model.Secret
	HashedName string
}

func (*DeleteStandaloneSecret) Kind() Kind { return KindDeleteStandaloneSecret }

// NewDeleteStandaloneSecret constructs a parked continuation of this kind.
func NewDeleteStandaloneSecret(requestID string, callerPID int, row *model.Secret, hashedName string) *DeleteStandaloneSecret {
	return &DeleteStandaloneSecret{
		base:       base{RequestID: requestID, CallerPID: callerPID},
		Row:        row,
		HashedName: hashedName,
	}
}
