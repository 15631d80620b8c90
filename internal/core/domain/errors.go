package domain

import "fmt"

// InvalidDescriptorError reports bad local input. It is raised before any network call.
type InvalidDescriptorError struct {
	Name   string
	Reason string
}

func (e *InvalidDescriptorError) Error() string {
	if e.Name == "" {
		return "invalid command descriptor: " + e.Reason
	}
	return fmt.Sprintf("invalid command descriptor %q: %s", e.Name, e.Reason)
}
