package federation

import (
	"errors"
	"fmt"
)

type Step string

const (
	StepAssumeRole     Step = "assume_role"
	StepGetSigninToken Step = "get_signin_token"
	StepComposeURL     Step = "compose_url"
)

var (
	// ErrIncompleteCredential means the provider response lacked one of the four
	// credential fields. The partial credential is discarded.
	ErrIncompleteCredential = errors.New("incomplete credential in provider response")
	ErrCredentialExpired    = errors.New("credential expired or too close to expiry")
	ErrInvalidRequest       = errors.New("invalid console access request")
)

// StepError carries the failed step and, when there was one, the upstream HTTP
// status. It never carries credential material.
type StepError struct {
	Step       Step
	StatusCode int
	Err        error
}

func (e *StepError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("federation %s failed with status %d: %v", e.Step, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("federation %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
