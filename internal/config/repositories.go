package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// repositoriesFile is the legacy TOML repository list:
//
//	github = ["org/project"]
//	npm = ["package"]
//
//	[repository."org/project"]
//	tags = "always"
type repositoriesFile struct {
	GitHub     []string                   `toml:"github"`
	NPM        []string                   `toml:"npm"`
	Repository map[string]repositoryFlags `toml:"repository"`
}

type repositoryFlags struct {
	Name          string `toml:"name"`
	StrictVersion bool   `toml:"strictVersion"`
	SkipReleases  bool   `toml:"skipReleases"`
	Tags          string `toml:"tags"`
	TrackBranch   bool   `toml:"trackBranch"`
}

// LoadRepositoriesFile reads a legacy TOML repository list. Entries under
// "github" are source-control repositories, entries under "npm" are registry
// packages.
func LoadRepositoriesFile(path string) ([]Repository, error) {
	realPath, err := resolveLocalPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(realPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read repositories file: %w", err)
	}

	var file repositoriesFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse repositories file: %w", err)
	}

	repos := make([]Repository, 0, len(file.GitHub)+len(file.NPM))
	for _, id := range file.GitHub {
		flags := file.Repository[id]
		repos = append(repos, Repository{
			ID:            id,
			Kind:          KindSourceControl,
			Name:          flags.Name,
			StrictVersion: flags.StrictVersion,
			SkipReleases:  flags.SkipReleases,
			Tags:          flags.Tags,
			TrackBranch:   flags.TrackBranch,
		})
	}
	for _, id := range file.NPM {
		flags := file.Repository[id]
		repos = append(repos, Repository{
			ID:            id,
			Kind:          KindRegistry,
			Name:          flags.Name,
			StrictVersion: flags.StrictVersion,
		})
	}

	return repos, nil
}
