package versions

import (
	"slices"

	"github.com/Masterminds/semver/v3"
)

// IsNewerVersion reports whether newVersion is strictly greater than oldVersion.
// It uses semantic versioning for comparison when both strings are valid semver,
// and falls back to lexicographic string comparison otherwise.
func IsNewerVersion(newVersion, oldVersion string) bool {
	newSemver, errNew := semver.NewVersion(newVersion)
	oldSemver, errOld := semver.NewVersion(oldVersion)

	if errNew != nil || errOld != nil {
		// Fallback to string comparison if semver parsing fails
		return newVersion > oldVersion
	}

	return newSemver.GreaterThan(oldSemver)
}

// Latest returns the newest of the given versions, or "" when there are none
func Latest(versions []string) string {
	latest := ""
	for _, v := range versions {
		if latest == "" || IsNewerVersion(v, latest) {
			latest = v
		}
	}
	return latest
}

// Sort orders versions oldest to newest in place
func Sort(versions []string) {
	slices.SortStableFunc(versions, func(a, b string) int {
		switch {
		case IsNewerVersion(a, b):
			return 1
		case IsNewerVersion(b, a):
			return -1
		default:
			return 0
		}
	})
}
