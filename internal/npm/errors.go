package npm

import "fmt"

// ValidationError indicates that npm refused to install a package version.
// The version is unusable and is recorded as rejected.
type ValidationError struct {
	Package  string
	Version  string
	ExitCode int
	Output   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("npm install %s@%s exited with code %d", e.Package, e.Version, e.ExitCode)
}
