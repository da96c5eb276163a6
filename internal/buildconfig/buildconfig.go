package buildconfig

import "runtime"

// Set with -ldflags "-X github.com/Harshitk-cp/tenantops/internal/buildconfig.version=..."
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

const serviceName = "tenantops"

func Version() string {
	return version
}

func Commit() string {
	return commit
}

// VersionInfo is served by GET /version and logged at startup.
func VersionInfo() map[string]string {
	return map[string]string{
		"service":    serviceName,
		"version":    version,
		"commit":     commit,
		"build_time": buildTime,
		"go_version": runtime.Version(),
	}
}
