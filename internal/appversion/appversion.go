// Package appversion canonicalizes the binary version strings mobile clients
// send on update checks and answers semver range-satisfaction queries against
// release compatibility ranges.
//
// Clients routinely send partial versions ("1", "2.0", "2.0-beta"); release
// ranges are full semver expressions. Normalize pads partial input to the
// three-segment form the range matcher needs without touching anything it
// does not recognize.
package appversion

import (
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var (
	majorOnlyPattern  = regexp.MustCompile(`^\d+$`)
	majorMinorPattern = regexp.MustCompile(`^\d+\.\d+(?:[+-].*)?$`)
)

// Normalize canonicalizes a client-supplied version string to a full
// three-segment semver form:
//
//   - "1"          -> "1.0.0"
//   - "1.2"        -> "1.2.0"
//   - "1.2-beta"   -> "1.2.0-beta"
//   - "1.2+build"  -> "1.2.0+build"
//
// Anything else, including the empty string and already-valid semver, is
// returned unchanged. Normalize is idempotent.
func Normalize(version string) string {
	if majorOnlyPattern.MatchString(version) {
		return version + ".0.0"
	}
	if majorMinorPattern.MatchString(version) {
		if i := strings.IndexAny(version, "+-"); i >= 0 {
			return version[:i] + ".0" + version[i:]
		}
		return version + ".0"
	}
	return version
}

// IsValid reports whether version is a full three-segment semver string.
// A leading "v" is tolerated, matching the permissive parsing of the client
// SDKs. Partial versions are not valid; run Normalize first.
func IsValid(version string) bool {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(version, "v"), "V")
	_, err := semver.StrictNewVersion(trimmed)
	return err == nil
}

// Satisfies reports whether version lies inside the semver range expression
// rangeExpr (exact version, "~1.2.0", "^1.0.0", "1.2.x", ">=1.0.0 <2.0.0",
// "*"). An empty range matches everything; an unparseable range or version
// matches nothing.
func Satisfies(version, rangeExpr string) bool {
	if rangeExpr == "" {
		return true
	}
	constraint, err := semver.NewConstraint(rangeExpr)
	if err != nil {
		return false
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	return constraint.Check(v)
}

// AtLeast reports whether version is valid semver and orders at or above
// minimum. Invalid input on either side is false.
func AtLeast(version, minimum string) bool {
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	m, err := semver.NewVersion(minimum)
	if err != nil {
		return false
	}
	return v.Compare(m) >= 0
}
