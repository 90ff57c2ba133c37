package runconfig

import "fmt"

// Interception errors. Every one of them is recovered from at the interceptor
// boundary; none of them ever aborts the user's launch.
var (
	ErrConfigurationUnavailable = fmt.Errorf("run configuration unavailable")
	ErrPatchUnavailable         = fmt.Errorf("patch unavailable")
	ErrReflectiveAccess         = fmt.Errorf("server model not reachable")
	ErrIO                       = fmt.Errorf("i/o failure")
)

// ErrMissingField creates an error for a run configuration field that is required but unset
func ErrMissingField(field string) error {
	return fmt.Errorf("%w: %s is not set", ErrConfigurationUnavailable, field)
}
