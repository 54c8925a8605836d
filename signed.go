package kdt

import (
	"fmt"

	"github.com/kdtcrypt/kdt/internal/armor"
	"github.com/kdtcrypt/kdt/internal/crypto"
)

// SignedMessage is a message in clear text together with an ML-DSA-65
// signature over its UTF-8 bytes.
type SignedMessage struct {
	Message   string
	Signature []byte
}

// Sign signs text with the keyset's signing key.
func Sign(text string, ks *Keyset) (*SignedMessage, error) {
	if ks == nil || ks.Public == nil || ks.Private == nil {
		return nil, &CryptoError{Op: "sign", Err: ErrNilArgument}
	}
	sig, err := crypto.Sign([]byte(text), ks.Private.signingKey, ks.Public.signingKey)
	if err != nil {
		return nil, &CryptoError{Op: "sign", Err: err}
	}
	return &SignedMessage{Message: text, Signature: sig}, nil
}

// Verify reports whether sm carries a valid signature by pub. Malformed
// signatures are reported as invalid.
func Verify(sm *SignedMessage, pub *PublicKey) bool {
	if sm == nil || pub == nil {
		return false
	}
	return crypto.VerifySignatureSafe(pub.signingKey, []byte(sm.Message), sm.Signature)
}

// String returns the signed message envelope.
func (sm *SignedMessage) String() string {
	return armor.WrapSigned(sm.Message, crypto.EncodeBase64(sm.Signature))
}

// ParseSignedMessage parses a signed message envelope. The message text is
// returned exactly as it appears between the markers.
func ParseSignedMessage(text string) (*SignedMessage, error) {
	message, sig, err := armor.UnwrapSigned(text)
	if err != nil {
		return nil, err
	}
	signature, err := crypto.DecodeBase64(sig)
	if err != nil {
		return nil, fmt.Errorf("SIGNATURE: %w", err)
	}
	return &SignedMessage{Message: message, Signature: signature}, nil
}
