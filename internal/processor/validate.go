package processor

import (
	"github.com/sealbox/secretsd/internal/apperr"
	"github.com/sealbox/secretsd/internal/model"
)

// checkAccess enforces the owner-only access-control placeholder: a
// system-access-control row short-circuits to
// OperationNotSupportedError until a policy engine exists to consult;
// otherwise the caller must be the owning application or a platform
// application.
func (a *Actor) checkAccess(mode model.AccessControlMode, ownerAppID string, callerPID int) *apperr.AppError {
	if mode == model.SystemAccessControl {
		return apperr.OperationNotSupported("system access control is not implemented; a future policy engine consumes this metadata")
	}
	if a.permission.IsPlatformApplication(callerPID) {
		return nil
	}
	callerAppID, err := a.permission.ApplicationID(callerPID)
	if err != nil {
		return apperr.Permissions("could not resolve caller identity")
	}
	if callerAppID != ownerAppID {
		return apperr.Permissions("caller does not own this resource")
	}
	return nil
}

// validatePluginCombination checks the plugin pairing rule: if the
// storage plugin name equals the encryption plugin name, it must name a
// registered encrypted-storage plugin; otherwise storage must name a
// registered storage plugin and encryption a registered encryption
// plugin.
func (a *Actor) validatePluginCombination(storageName, encryptionName string) *apperr.AppError {
	if storageName == encryptionName {
		if _, ok := a.registry.GetEncryptedStorage(storageName); !ok {
			return apperr.InvalidExtensionPlugin("storage/encryption plugin name must be a registered encrypted-storage plugin")
		}
		return nil
	}
	if _, ok := a.registry.GetStorage(storageName); !ok {
		return apperr.InvalidExtensionPlugin("storage plugin is not registered")
	}
	if _, ok := a.registry.GetEncryption(encryptionName); !ok {
		return apperr.InvalidExtensionPlugin("encryption plugin is not registered")
	}
	return nil
}

// validateAuthPlugin enforces that a custom-lock collection/secret
// names a registered authentication plugin.
func (a *Actor) validateAuthPlugin(usesDeviceLock bool, authPluginName string) *apperr.AppError {
	if usesDeviceLock {
		return nil
	}
	if _, ok := a.registry.GetAuth(authPluginName); !ok {
		return apperr.InvalidExtensionPlugin("authentication plugin is not registered")
	}
	return nil
}

func (a *Actor) resolveOwner(callerPID int) (string, *apperr.AppError) {
	if a.permission.IsPlatformApplication(callerPID) {
		return a.permission.PlatformApplicationID(), nil
	}
	appID, err := a.permission.ApplicationID(callerPID)
	if err != nil {
		return "", apperr.Permissions("could not resolve caller identity")
	}
	return appID, nil
}

// effectiveAuthPluginName substitutes the default authentication
// plugin with its ".test" variant in autotest mode. A non-default
// plugin name is never rewritten.
func effectiveAuthPluginName(name string, autotestMode bool) string {
	if autotestMode && name == model.DefaultAuthenticationPluginName {
		return name + ".test"
	}
	return name
}
