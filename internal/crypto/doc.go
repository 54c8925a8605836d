// Package crypto provides the cryptographic primitives behind KDT envelopes.
// It implements post-quantum key encapsulation, authenticated encryption, and
// digital signatures using standardized algorithms from circl.
//
// # Algorithm Suite
//
// The package uses the following cryptographic algorithms:
//
//   - ML-KEM-768 (NIST FIPS 203): Post-quantum key encapsulation mechanism
//     for establishing a 32-byte shared secret per message.
//
//   - ML-DSA-65 (NIST FIPS 204): Post-quantum digital signature algorithm
//     for signing message text.
//
//   - AES-256-GCM: Authenticated encryption. The ML-KEM shared secret is used
//     as the AES key as is; there is no separate key derivation step.
//
// # Hybrid Encryption
//
// [Encrypt] encapsulates a fresh secret against the recipient's ML-KEM public
// key and seals the plaintext under it with a random nonce. [Decrypt] reverses
// both steps:
//
//	env, err := crypto.Encrypt(plaintext, recipientPublicKey)
//	...
//	plaintext, err := crypto.Decrypt(env, recipientSecretKey)
//
// ML-KEM decapsulation never fails for a well-formed key: a wrong secret key
// produces an unrelated shared secret, and the failure is reported by AES-GCM
// as [ErrAuthentication].
//
// AES-GCM nonces MUST be unique for each encryption with the same key. Every
// call to [Encrypt] draws both a new shared secret and a new nonce.
//
// # Key Management
//
// Use [GenerateKeyset] to create the ML-KEM-768 and ML-DSA-65 keypairs of one
// identity. The ML-KEM secret key contains an embedded copy of the public key
// at offset 1152; [NewKeypairFromBytes] extracts it with
// [DerivePublicKeyFromSecret] to check that two halves belong together.
//
// Keep secret keys secure. They should never be logged, transmitted in
// plaintext, or stored in version control.
//
// # Base64 Encoding
//
// [EncodeBase64]/[DecodeBase64] use the standard alphabet with padding
// (RFC 4648 §4). Decoding is strict and fails with [ErrMalformedEncoding].
package crypto
