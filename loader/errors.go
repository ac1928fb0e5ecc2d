package loader

import "fmt"

// LoadError records a file-level failure during load. Load errors are
// collected, not thrown: a single malformed document never aborts the rest
// of the load.
type LoadError struct {
	// Path is the file that failed to load.
	Path string `json:"path"`
	// Source is the name of the source the file belongs to.
	Source string `json:"source"`
	// Err is the underlying failure.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error {
	return e.Err
}
