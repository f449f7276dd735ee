package status

import "errors"

var (
	ErrMalformedEnvelope = errors.New("malformed status envelope")
	ErrUnknownCode       = errors.New("unknown status code")
)
