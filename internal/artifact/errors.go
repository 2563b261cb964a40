package artifact

import "fmt"

// FetchError indicates that an artifact could not be retrieved from any
// locator shape.
type FetchError struct {
	Locator string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s: %v", e.Locator, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// UpstreamError is an API error document served in place of an archive
type UpstreamError struct {
	Message string
	Status  string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned an error document (status %s): %s", e.Status, e.Message)
}

// ExtractionError indicates a malformed or unreadable archive
type ExtractionError struct {
	Name    string
	Version string
	Err     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract %s-%s: %v", e.Name, e.Version, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
