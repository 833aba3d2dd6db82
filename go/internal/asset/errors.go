package asset

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDecompressor is returned when no decompressor handles the payload codec.
	ErrNoDecompressor = errors.New("no decompressor")
	// ErrUnsupportedCodec is returned for payloads that are neither compressed nor JSON.
	ErrUnsupportedCodec = errors.New("unsupported codec")
	// ErrPayloadTooLarge is returned when a payload inflates past the decoder limit.
	ErrPayloadTooLarge = errors.New("decompressed payload too large")
	// ErrInvalidKey is returned for keys outside 1..N.
	ErrInvalidKey = errors.New("invalid asset key")
)

// FetchError reports a transport failure or non-success status while
// fetching an asset. Status is 0 when no response was received.
type FetchError struct {
	Key    int
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch asset %d: HTTP %d", e.Key, e.Status)
	}
	return fmt.Sprintf("fetch asset %d: %v", e.Key, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// DecodeError reports a payload that could not be turned into a Document.
type DecodeError struct {
	Key    int
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode asset %d: %s: %v", e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("decode asset %d: %s", e.Key, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }
