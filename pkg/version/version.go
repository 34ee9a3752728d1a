// Package version holds the CLI version, set at build time via ldflags.
package version

// Version of the grant CLI. Overridden at build time:
//
//	-ldflags "-X github.com/cloudposse/grant/pkg/version.Version=v1.2.3"
var Version = "0.0.1"
