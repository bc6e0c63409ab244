package processor

import "github.com/sealbox/secretsd/internal/model"

// CreateCollectionRequest is the input to Actor.CreateCollection.
type CreateCollectionRequest struct {
	CallerPID              int
	Name                   string
	UsesDeviceLock         bool
	StoragePluginName      string
	EncryptionPluginName   string
	AuthPluginName         string
	UnlockSemantic         model.UnlockSemantic
	CustomLockTimeoutMS    int64
	AccessControlMode      model.AccessControlMode
	UserInteractionMode    model.UserInteractionMode
	InteractionServiceAddr string
}

// DeleteCollectionRequest is the input to Actor.DeleteCollection.
type DeleteCollectionRequest struct {
	CallerPID int
	Name      string
}

// SetCollectionSecretRequest is the input to Actor.SetCollectionSecret.
type SetCollectionSecretRequest struct {
	CallerPID      int
	Collection     string
	SecretName     string
	Value          []byte
	Filter         map[string]string
	// FetchValueFromUser, when true, tells the core to gather the
	// secret's value from the user through the collection's
	// authentication plugin before entering key acquisition.
	FetchValueFromUser     bool
	UserInteractionMode    model.UserInteractionMode
	InteractionServiceAddr string
}

// GetCollectionSecretRequest is the input to Actor.GetCollectionSecret.
type GetCollectionSecretRequest struct {
	CallerPID              int
	Collection             string
	SecretName             string
	UserInteractionMode    model.UserInteractionMode
	InteractionServiceAddr string
}

// DeleteCollectionSecretRequest is the input to Actor.DeleteCollectionSecret.
type DeleteCollectionSecretRequest struct {
	CallerPID              int
	Collection             string
	SecretName             string
	UserInteractionMode    model.UserInteractionMode
	InteractionServiceAddr string
}

// FindCollectionSecretsRequest is the input to Actor.FindCollectionSecrets.
type FindCollectionSecretsRequest struct {
	CallerPID              int
	Collection             string
	Filter                 map[string]string
	Operator               model.FilterOperator
	UserInteractionMode    model.UserInteractionMode
	InteractionServiceAddr string
}

// SetStandaloneSecretRequest is the input to Actor.SetStandaloneSecret.
type SetStandaloneSecretRequest struct {
	CallerPID              int
	SecretName             string
	Value                  []byte
	Filter                 map[string]string
	UsesDeviceLock         bool
	StoragePluginName      string
	EncryptionPluginName   string
	CustomLockTimeoutMS    int64
	FetchValueFromUser     bool
	UserInteractionMode    model.UserInteractionMode
	InteractionServiceAddr string
}

// GetStandaloneSecretRequest is the input to Actor.GetStandaloneSecret.
type GetStandaloneSecretRequest struct {
	CallerPID              int
	SecretName             string
	UserInteractionMode    model.UserInteractionMode
	InteractionServiceAddr string
}

// DeleteStandaloneSecretRequest is the input to Actor.DeleteStandaloneSecret.
type DeleteStandaloneSecretRequest struct {
	CallerPID              int
	SecretName             string
	UserInteractionMode    model.UserInteractionMode
	InteractionServiceAddr string
}

// UserInputRequest is the input to Actor.UserInput: returns user-supplied
// bytes to the caller directly, for use as KDF input by the out-of-scope
// crypto subsystem.
type UserInputRequest struct {
	CallerPID              int
	CollectionName         string
	SecretName             string
	Params                 model.InteractionParameters
	UserInteractionMode    model.UserInteractionMode
	InteractionServiceAddr string
}

// GetSecretResponse is the Value carried by a Succeeded Result from
// Actor.GetCollectionSecret / Actor.GetStandaloneSecret.
type GetSecretResponse struct {
	Name   []byte
	Value  []byte
	Filter map[string]string
}

// FindSecretsResponse is the Value carried by a Succeeded Result from
// Actor.FindCollectionSecrets.
type FindSecretsResponse struct {
	Names [][]byte
}
