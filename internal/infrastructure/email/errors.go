package email

// PermanentError marks sends that retrying cannot fix (bad address, rejected
// credentials). The consumer routes these to the DLQ.
type PermanentError struct{ msg string }

func (e PermanentError) Error() string { return e.msg }

func (e PermanentError) Permanent() bool { return true }

// TemporaryError marks transient SMTP failures worth a retry tier.
type TemporaryError struct{ msg string }

func (e TemporaryError) Error() string { return e.msg }

func (e TemporaryError) Temporary() bool { return true }
