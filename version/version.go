package version

// Version is stamped at build time:
//
//	go build -ldflags "-X cashkit/version.Version=v0.3.0" ./cmd/app
var Version = "dev"

// Get returns the stamped version, or "dev" for unstamped builds.
func Get() string {
	if Version == "" {
		return "dev"
	}
	return Version
}
