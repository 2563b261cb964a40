// Package naming maps upstream repository identifiers and raw version labels
// onto the canonical names used by the internal registry and the version store.
//
// Normalization is pure: the same inputs always yield the same names, and the
// functions are applied identically when filtering, recording and publishing.
package naming

import (
	"regexp"
	"strings"

	"github.com/stacklok/depsync/internal/config"
)

// strictVersionPattern matches labels such as v1, v1.2 or v1.2.3.
var strictVersionPattern = regexp.MustCompile(`^v(\d+\.)*\d+$`)

// Normalizer produces canonical repository and version names.
type Normalizer struct {
	repositoryNames map[string]string
	strict          map[string]bool
}

// New creates a Normalizer from an override table and a set of canonical
// repository names that use strict version normalization.
func New(repositoryNames map[string]string, strictVersions []string) *Normalizer {
	n := &Normalizer{
		repositoryNames: make(map[string]string, len(repositoryNames)),
		strict:          make(map[string]bool, len(strictVersions)),
	}
	for id, name := range repositoryNames {
		n.repositoryNames[id] = name
	}
	for _, name := range strictVersions {
		n.strict[name] = true
	}
	return n
}

// FromConfig builds a Normalizer from the naming tables and the per-repository
// name and strictVersion fields.
func FromConfig(cfg *config.Config) *Normalizer {
	n := New(cfg.Naming.RepositoryNames, cfg.Naming.StrictVersions)
	for _, repo := range cfg.Repositories {
		if repo.Name != "" {
			n.repositoryNames[repo.ID] = repo.Name
		}
	}
	for _, repo := range cfg.Repositories {
		if repo.StrictVersion {
			n.strict[n.RepositoryName(repo.ID)] = true
		}
	}
	return n
}

// RepositoryName returns the registry name for a repository identifier.
func (n *Normalizer) RepositoryName(id string) string {
	if name, ok := n.repositoryNames[id]; ok {
		return name
	}
	return mechanicalName(id)
}

// VersionName returns the canonical version name for a raw label of the
// repository with the given canonical name.
func (n *Normalizer) VersionName(canonicalRepository, raw string) string {
	version := raw
	if n.strict[canonicalRepository] {
		if strictVersionPattern.MatchString(version) {
			version = strings.TrimPrefix(version, "v")
		} else if containsSpace(version) {
			version = strings.ReplaceAll(version, " ", "-")
		}
	}

	if containsSpace(version) {
		fields := strings.Fields(version)
		version = fields[len(fields)-1]
	}
	return version
}

// mechanicalName lowercases the identifier, drops a leading scope marker and
// maps separators to single hyphens.
func mechanicalName(id string) string {
	id = strings.TrimPrefix(strings.ToLower(id), "@")

	var b strings.Builder
	b.Grow(len(id))
	lastHyphen := true
	for _, r := range id {
		switch {
		case r == '/' || r == '.' || r == '_' || r == '-' || isSpace(r):
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		default:
			b.WriteRune(r)
			lastHyphen = false
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func containsSpace(s string) bool {
	return strings.IndexFunc(s, isSpace) >= 0
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
