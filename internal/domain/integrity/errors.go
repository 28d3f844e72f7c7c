package integrity

import "errors"

var (
	ErrInvalidID        = errors.New("invalid verification id")
	ErrIncompleteRecord = errors.New("pay record is missing required fields")
	ErrUnknownKey       = errors.New("unknown seal key id")
	ErrNoKey            = errors.New("seal key is not configured")
	ErrDuplicateID      = errors.New("verification id already registered")
	ErrNotFound         = errors.New("verification record not found")
	ErrFingerprintDrift = errors.New("pay record no longer matches its fingerprint")
	ErrInvalidPayload   = errors.New("invalid scan payload")
)
