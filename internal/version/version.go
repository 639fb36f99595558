// Package version gates compatibility between a process and the minimum
// library version a topic's configuration requires, using semver range
// matching the way the example corpus's package-manager tooling does.
package version

import (
	semver "github.com/Masterminds/semver/v3"

	"github.com/nightduck/rmw-hazcat/internal/herrors"
)

// Current is this build's semantic version. It has no git-describe wiring
// here -- callers that need a precise build identifier should stamp this
// via -ldflags in their own main package.
const Current = "0.1.0"

// CheckMinimum verifies Current satisfies ">= min". An empty min always
// passes (no constraint configured).
func CheckMinimum(min string) error {
	if min == "" {
		return nil
	}
	cur, err := semver.NewVersion(Current)
	if err != nil {
		return herrors.Wrap(herrors.TopicOpenFailed, "", err, "parsing current version %q", Current)
	}
	constraint, err := semver.NewConstraint(">= " + min)
	if err != nil {
		return herrors.Wrap(herrors.TopicOpenFailed, "", err, "parsing minimum version constraint %q", min)
	}
	if !constraint.Check(cur) {
		return herrors.New(herrors.TopicOpenFailed, "", "this build (%s) is older than the configured minimum %s", Current, min)
	}
	return nil
}
