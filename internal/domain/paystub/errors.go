package paystub

import "errors"

var ErrSealMismatch = errors.New("verification record does not match the pay record")
