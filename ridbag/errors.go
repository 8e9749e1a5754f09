package ridbag

import "errors"

var (
	ErrIllegalIteratorState = errors.New("illegal iterator state")
	ErrNilIdentifiable      = errors.New("impossible to add a nil identifiable in a ridbag")
	ErrInvalidIdentifiable  = errors.New("invalid identifiable")
	ErrMalformedStream      = errors.New("malformed ridbag stream")
)
