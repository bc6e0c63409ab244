// Package apperr provides the structured errors the request processor
// returns to its callers: a machine-readable code, a human-readable
// message, and optional wrapped details.
package apperr

import "fmt"

// Code is a machine-readable error identifier.
type Code string

const (
	// Validation
	CodeInvalidSecret           Code = "INVALID_SECRET"
	CodeInvalidCollection       Code = "INVALID_COLLECTION"
	CodeInvalidExtensionPlugin  Code = "INVALID_EXTENSION_PLUGIN"
	CodeInvalidFilter           Code = "INVALID_FILTER"
	CodeCollectionAlreadyExists Code = "COLLECTION_ALREADY_EXISTS"
	CodeSecretAlreadyExists     Code = "SECRET_ALREADY_EXISTS"

	// Authorisation
	CodePermissions Code = "PERMISSIONS_ERROR"

	// Lock state
	CodeCollectionIsLocked         Code = "COLLECTION_IS_LOCKED"
	CodeIncorrectAuthenticationKey Code = "INCORRECT_AUTHENTICATION_KEY"

	// Interaction
	CodeOperationRequiresUserInteraction            Code = "OPERATION_REQUIRES_USER_INTERACTION"
	CodeOperationRequiresApplicationUserInteraction Code = "OPERATION_REQUIRES_APPLICATION_USER_INTERACTION"

	// Plugin
	CodeSecretsPluginDecryption Code = "SECRETS_PLUGIN_DECRYPTION_ERROR"
	CodePluginFailure           Code = "PLUGIN_ERROR"
	CodePluginUnavailable       Code = "PLUGIN_UNAVAILABLE"

	// Unsupported
	CodeOperationNotSupported Code = "OPERATION_NOT_SUPPORTED"

	// Internal
	CodeUnknown Code = "UNKNOWN_ERROR"
)

// AppError is the error type every processor operation returns on
// failure.
type AppError struct {
	Code    Code
	Message string
	Details string
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New creates an AppError with no wrapped details.
func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap creates an AppError carrying the originating error's text as
// Details, preserving it as the Error() suffix without masking Code.
func Wrap(code Code, message string, err error) *AppError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &AppError{Code: code, Message: message, Details: details}
}

// Is reports whether err is an *AppError with the given code.
func Is(err error, code Code) bool {
	ae, ok := err.(*AppError)
	return ok && ae.Code == code
}

// Status is the three-valued outcome of a dispatched operation:
// Succeeded with a value, Pending awaiting user interaction, or Failed
// with an AppError.
type Status int

const (
	Succeeded Status = iota
	Pending
	Failed
)

// Result wraps the outcome of a dispatcher operation. Exactly one of
// Value/Err is meaningful, selected by Status.
type Result struct {
	Status Status
	Value  any
	Err    *AppError
}

// Ok builds a Succeeded result.
func Ok(value any) Result {
	return Result{Status: Succeeded, Value: value}
}

// PendingResult builds a Pending result carrying the parked request id.
func PendingResult(requestID string) Result {
	return Result{Status: Pending, Value: requestID}
}

// Err builds a Failed result.
func Err(err *AppError) Result {
	return Result{Status: Failed, Err: err}
}

func (r Result) IsSucceeded() bool { return r.Status == Succeeded }
func (r Result) IsPending() bool   { return r.Status == Pending }
func (r Result) IsFailed() bool    { return r.Status == Failed }

// Convenience constructors, one per error kind.

func InvalidSecret(msg string) *AppError     { return New(CodeInvalidSecret, msg) }
func InvalidCollection(msg string) *AppError { return New(CodeInvalidCollection, msg) }
func InvalidExtensionPlugin(msg string) *AppError {
	return New(CodeInvalidExtensionPlugin, msg)
}
func InvalidFilter(msg string) *AppError { return New(CodeInvalidFilter, msg) }
func CollectionAlreadyExists(name string) *AppError {
	return New(CodeCollectionAlreadyExists, fmt.Sprintf("collection %q already exists", name))
}
// CodeSecretAlreadyExists has no constructor: the set-secret paths
// update an existing row rather than reject it, so the code is only
// ever produced by external collaborators that choose to reject.
func Permissions(msg string) *AppError { return New(CodePermissions, msg) }
func CollectionIsLocked(name string) *AppError {
	return New(CodeCollectionIsLocked, fmt.Sprintf("collection %q is locked", name))
}
func IncorrectAuthenticationKey() *AppError {
	return New(CodeIncorrectAuthenticationKey, "authentication key was incorrect")
}
func OperationRequiresUserInteraction() *AppError {
	return New(CodeOperationRequiresUserInteraction, "operation requires user interaction")
}
func OperationRequiresApplicationUserInteraction() *AppError {
	return New(CodeOperationRequiresApplicationUserInteraction, "operation requires application-specific user interaction")
}
func SecretsPluginDecryption(err error) *AppError {
	return Wrap(CodeSecretsPluginDecryption, "decryption failed", err)
}
func PluginFailure(err error) *AppError {
	return Wrap(CodePluginFailure, "plugin operation failed", err)
}
func PluginUnavailable(name string) *AppError {
	return New(CodePluginUnavailable, fmt.Sprintf("plugin %q is not registered", name))
}
func OperationNotSupported(msg string) *AppError {
	return New(CodeOperationNotSupported, msg)
}
func Unknown(msg string) *AppError { return New(CodeUnknown, msg) }
