// Package version derives the build revision of the running binary for
// startup logs, the health endpoint, and outbound User-Agent headers.
package version

import "runtime/debug"

// AppName identifies this service in logs and outbound User-Agent headers.
const AppName = "scour"

// commitOverride may be injected with
//
//	-ldflags "-X github.com/scourlabs/scour/pkg/version.commitOverride=<sha>"
//
// for builds without VCS metadata, such as container image builds.
var commitOverride string

// Commit is the short revision this binary was built from, resolved from the
// ldflags override or the VCS info in build metadata. Builds with neither
// report "dev". A "-dirty" suffix marks builds from a modified tree.
var Commit = resolve()

func resolve() string {
	if commitOverride != "" {
		return shorten(commitOverride)
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return "dev"
	}
	if dirty {
		return shorten(revision) + "-dirty"
	}
	return shorten(revision)
}

func shorten(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

// Full returns "scour/<commit>", the form logged at startup and sent as the
// User-Agent on calls to the search backend, the hosted parser, and model
// endpoints.
func Full() string {
	return AppName + "/" + Commit
}
