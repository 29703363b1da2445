package notify

import "errors"

// PermanentError marks a delivery that can never succeed, no matter how often
// the bus redelivers it. The consumer sends these straight to the dead letter
// queue instead of the retry tiers.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
