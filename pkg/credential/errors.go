package credential

import "fmt"

// ConfigurationError reports missing or contradictory setup. It is fatal for
// the process and is not retried.
type ConfigurationError struct {
	Op     string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := "configuration error"
	if e.Op != "" {
		msg += " in " + e.Op
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// AuthenticationError reports that the selected strategy could not produce
// a token. The caller should ask the user to re-authenticate.
type AuthenticationError struct {
	Strategy Strategy
	Err      error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed using %s credential: %v", e.Strategy, e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}
