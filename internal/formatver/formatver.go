// Package formatver guards the on-disk schema version carried by the
// session-history sessions-index.json and all-sessions.json files; of
// these, only sessions-index.json is read back and checked. The
// conversation store's index.json and state.json carry no format version.
//
// The teacher (rekal-dev-rekal-cli) uses golang.org/x/mod/semver to compare
// the CLI's own version against the latest GitHub release, as a
// network phone-home update check. That network concern is out of scope
// here, but the same library is a natural fit for a different job: this
// package uses semver.Compare to detect an on-disk file written by a
// newer, incompatible format version and raise FormatDrift instead of
// silently misreading it.
package formatver

import (
	"fmt"

	"golang.org/x/mod/semver"

	"github.com/harvester-dev/harvester/internal/harvestererr"
)

// Current is the format version this build writes and reads without
// complaint.
const Current = "v1.0.0"

// Check validates that a file's recorded format version is one this build
// understands: same major version, and not newer overall.
func Check(path, fileVersion string) error {
	if fileVersion == "" {
		// Absent version predates versioning; treated as v1.0.0.
		fileVersion = "v1.0.0"
	}
	fv := normalize(fileVersion)
	cv := normalize(Current)
	if !semver.IsValid(fv) {
		return harvestererr.New(harvestererr.FormatDrift, path,
			fmt.Errorf("unparseable format_version %q", fileVersion))
	}
	if semver.Major(fv) != semver.Major(cv) {
		return harvestererr.New(harvestererr.FormatDrift, path,
			fmt.Errorf("incompatible format major version %q (current %q)", fileVersion, Current))
	}
	if semver.Compare(fv, cv) > 0 {
		return harvestererr.New(harvestererr.FormatDrift, path,
			fmt.Errorf("file format version %q is newer than this build (%q)", fileVersion, Current))
	}
	return nil
}

func normalize(v string) string {
	if v == "" {
		return v
	}
	if v[0] != 'v' {
		return "v" + v
	}
	return v
}
