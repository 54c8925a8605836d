package kdt

import (
	"errors"
	"fmt"

	"github.com/kdtcrypt/kdt/internal/armor"
	"github.com/kdtcrypt/kdt/internal/crypto"
)

// Sentinel errors for errors.Is() checks
var (
	// ErrUnknownKeyID is returned when no key in the store has the given ID.
	ErrUnknownKeyID = errors.New("unknown key ID")

	// ErrDuplicateKey is returned when inserting a key whose ID is already stored.
	ErrDuplicateKey = errors.New("key already exists")

	// ErrStoreUnreadable is returned when the key databases cannot be loaded.
	ErrStoreUnreadable = errors.New("key store unreadable")

	// ErrNilArgument is returned when a key or message argument is nil.
	ErrNilArgument = errors.New("missing key or message")

	// ErrUsage is returned by front ends when an invocation is invalid.
	ErrUsage = errors.New("invalid usage")

	// ErrEnvelopeFormat is returned when text is not a well-formed envelope.
	ErrEnvelopeFormat = armor.ErrFormat

	// ErrMalformedEncoding is returned when an envelope field is not valid base64.
	ErrMalformedEncoding = crypto.ErrMalformedEncoding

	// ErrEncapsulation is returned when a public key cannot be used for encryption.
	ErrEncapsulation = crypto.ErrEncapsulation

	// ErrEncryption is returned when sealing a message fails.
	ErrEncryption = crypto.ErrEncryption

	// ErrDecapsulation is returned when a private key or an encapsulated
	// secret is malformed.
	ErrDecapsulation = crypto.ErrDecapsulation

	// ErrAuthentication is returned when a message does not authenticate,
	// including when it was encrypted for a different key.
	ErrAuthentication = crypto.ErrAuthentication

	// ErrKeyMismatch is returned when a public key and a private key do not
	// belong to the same keyset.
	ErrKeyMismatch = crypto.ErrKeyMismatch
)

// KdtError is implemented by all typed errors of this package.
type KdtError interface {
	error
	KdtError() // marker method
}

// CryptoError reports a failed cryptographic operation.
type CryptoError struct {
	Op  string // "encrypt", "decrypt", "sign", "generate"
	Err error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *CryptoError) Unwrap() error {
	return e.Err
}

// KdtError implements the KdtError interface.
func (e *CryptoError) KdtError() {}

// KeyError reports a store operation that failed for a specific key.
type KeyError struct {
	ID  string
	Err error
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("key %s: %v", e.ID, e.Err)
}

// Unwrap returns the underlying error.
func (e *KeyError) Unwrap() error {
	return e.Err
}

// KdtError implements the KdtError interface.
func (e *KeyError) KdtError() {}

// StoreError reports a failure to load or save the key databases.
type StoreError struct {
	Op   string // "load" or "save"
	Path string // empty for stores without a backing file
	Err  error
}

func (e *StoreError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s key store: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for sentinel error matching.
func (e *StoreError) Is(target error) bool {
	return target == ErrStoreUnreadable && e.Op == "load"
}

// KdtError implements the KdtError interface.
func (e *StoreError) KdtError() {}

// ErrorKind groups errors by who can fix them.
type ErrorKind int

const (
	// KindUnknown is any error not produced by this module.
	KindUnknown ErrorKind = iota
	// KindUserInput covers malformed envelopes, bad encodings, unknown IDs
	// and invalid invocations.
	KindUserInput
	// KindCrypto covers failed cryptographic operations.
	KindCrypto
	// KindState covers store conflicts and unreadable or unwritable databases.
	KindState
)

func (k ErrorKind) String() string {
	switch k {
	case KindUserInput:
		return "user input"
	case KindCrypto:
		return "crypto"
	case KindState:
		return "state"
	}
	return "unknown"
}

// Classify reports the kind of err. Nil errors are KindUnknown.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var storeErr *StoreError
	switch {
	case errors.As(err, &storeErr),
		errors.Is(err, ErrDuplicateKey):
		return KindState
	case errors.Is(err, ErrEnvelopeFormat),
		errors.Is(err, ErrMalformedEncoding),
		errors.Is(err, ErrUnknownKeyID),
		errors.Is(err, ErrNilArgument),
		errors.Is(err, ErrUsage):
		return KindUserInput
	case errors.Is(err, ErrEncapsulation),
		errors.Is(err, ErrEncryption),
		errors.Is(err, ErrDecapsulation),
		errors.Is(err, ErrAuthentication),
		errors.Is(err, ErrKeyMismatch):
		return KindCrypto
	}

	var cryptoErr *CryptoError
	if errors.As(err, &cryptoErr) {
		return KindCrypto
	}
	return KindUnknown
}
