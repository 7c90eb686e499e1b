package runtime

import "fmt"

// ConfigResolutionError indicates a required job value could not be resolved
// at startup. It is fatal: no process is launched after it.
type ConfigResolutionError struct {
	Field string
	Value string
}

func (e *ConfigResolutionError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("cannot resolve %s: no value provided", e.Field)
	}
	return fmt.Sprintf("cannot resolve %s %q against the cluster alias table", e.Field, e.Value)
}
