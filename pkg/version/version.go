// Package version identifies the running build for logs, health
// responses and user-agent strings.
package version

import "runtime/debug"

const appName = "callscope"

// commit can be stamped with -ldflags "-X .../pkg/version.commit=<sha>"
// for builds without a .git directory. When unset, the VCS revision
// embedded by the Go toolchain is used instead.
var commit string

// Commit returns the short revision the binary was built from, or
// "dev" when no revision is known (go test, builds outside a checkout).
func Commit() string {
	if commit != "" {
		return short(commit)
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				return short(s.Value)
			}
		}
	}
	return "dev"
}

func short(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

// Full returns "callscope/<commit>".
func Full() string {
	return appName + "/" + Commit()
}
