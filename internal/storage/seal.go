package storage

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/kdtcrypt/kdt/internal/crypto"
)

const (
	sealVersion  = 1
	sealPrefix   = "KDTSEAL1\n"
	sealSaltSize = 16
	sealKDF      = "argon2id"

	argonTime     = 2
	argonMemoryKB = 64 * 1024
	argonThreads  = 1

	// Upper bounds accepted when opening, so a crafted file cannot demand
	// unbounded work.
	maxArgonTime     = 16
	maxArgonMemoryKB = 1024 * 1024
)

type sealedEnvelope struct {
	Version     uint32 `json:"version"`
	KDF         string `json:"kdf"`
	KDFTime     uint32 `json:"kdf_time"`
	KDFMemoryKB uint32 `json:"kdf_memory_kb"`
	KDFThreads  uint8  `json:"kdf_threads"`
	Salt        []byte `json:"salt"`
	Nonce       []byte `json:"nonce"`
	Ciphertext  []byte `json:"ciphertext"`
}

func isSealed(data []byte) bool {
	return bytes.HasPrefix(data, []byte(sealPrefix))
}

// seal encrypts plaintext under a key derived from passphrase with Argon2id
// and XChaCha20-Poly1305.
func seal(passphrase string, plaintext []byte) ([]byte, error) {
	env := &sealedEnvelope{
		Version:     sealVersion,
		KDF:         sealKDF,
		KDFTime:     argonTime,
		KDFMemoryKB: argonMemoryKB,
		KDFThreads:  argonThreads,
		Salt:        make([]byte, sealSaltSize),
		Nonce:       make([]byte, chacha20poly1305.NonceSizeX),
	}
	if _, err := rand.Read(env.Salt); err != nil {
		return nil, err
	}
	if _, err := rand.Read(env.Nonce); err != nil {
		return nil, err
	}

	key := deriveSealKey(passphrase, env)
	defer crypto.Zeroize(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	env.Ciphertext = aead.Seal(nil, env.Nonce, plaintext, []byte(sealPrefix))

	raw, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return append([]byte(sealPrefix), raw...), nil
}

// unseal reverses seal.
func unseal(passphrase string, data []byte) ([]byte, error) {
	if !isSealed(data) {
		return nil, fmt.Errorf("%w: missing seal header", ErrCorrupt)
	}

	var env sealedEnvelope
	if err := json.Unmarshal(data[len(sealPrefix):], &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if env.Version != sealVersion || env.KDF != sealKDF {
		return nil, fmt.Errorf("%w: unsupported seal version %d (%s)", ErrCorrupt, env.Version, env.KDF)
	}
	if env.KDFTime == 0 || env.KDFTime > maxArgonTime ||
		env.KDFMemoryKB == 0 || env.KDFMemoryKB > maxArgonMemoryKB ||
		env.KDFThreads == 0 || len(env.Nonce) != chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("%w: invalid seal parameters", ErrCorrupt)
	}

	key := deriveSealKey(passphrase, &env)
	defer crypto.Zeroize(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, []byte(sealPrefix))
	if err != nil {
		return nil, ErrSealAuth
	}
	return plaintext, nil
}

func deriveSealKey(passphrase string, env *sealedEnvelope) []byte {
	return argon2.IDKey([]byte(passphrase), env.Salt, env.KDFTime, env.KDFMemoryKB, env.KDFThreads, chacha20poly1305.KeySize)
}
