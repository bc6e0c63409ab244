// Package permission implements the Permission Oracle: resolving
// a caller PID to an application identifier and recognising "platform"
// applications that bypass owner-only checks.
//
// The exact mechanism mapping a pid to an application id is
// platform-specific (an app-confinement label lookup, a package
// manifest, a credential API); it sits behind a pluggable Resolver so
// the processor never depends on a concrete OS mechanism.
package permission

import "fmt"

// Resolver maps an OS process id to the application identifier it runs
// as. Out of process, a real daemon would implement this against
// /proc/<pid>/exe + a package manifest, an app-confinement label, or a
// platform-specific credential API; none of those are modeled here
// since they carry no processor-level semantics beyond the string they
// return.
type Resolver interface {
	ApplicationID(pid int) (string, error)
}

// StaticResolver is a Resolver backed by a fixed pid->appID map, used
// (empty) by cmd/secretsd's default wiring and by tests.
type StaticResolver map[int]string

func (m StaticResolver) ApplicationID(pid int) (string, error) {
	if id, ok := m[pid]; ok {
		return id, nil
	}
	return "", fmt.Errorf("no application registered for pid %d", pid)
}

// Oracle implements pluginapi.PermissionOracle.
type Oracle struct {
	resolver      Resolver
	platformAppID string
	platformPIDs  map[int]bool
}

// New builds an Oracle. platformAppID is the application id treated as
// the platform application (it bypasses owner-only checks); platformPIDs
// names the pids that are considered the platform application.
func New(resolver Resolver, platformAppID string, platformPIDs ...int) *Oracle {
	set := make(map[int]bool, len(platformPIDs))
	for _, pid := range platformPIDs {
		set[pid] = true
	}
	return &Oracle{resolver: resolver, platformAppID: platformAppID, platformPIDs: set}
}

func (o *Oracle) ApplicationID(pid int) (string, error) {
	if o.platformPIDs[pid] {
		return o.platformAppID, nil
	}
	return o.resolver.ApplicationID(pid)
}

func (o *Oracle) PlatformApplicationID() string {
	return o.platformAppID
}

func (o *Oracle) IsPlatformApplication(pid int) bool {
	return o.platformPIDs[pid]
}
