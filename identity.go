package kdt

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/schollz/mnemonicode"
)

// fingerprintBytes is how much of an ID the word fingerprint covers.
const fingerprintBytes = 8

// computeID derives a key ID: the uppercase hex SHA-256 of the key's
// canonical envelope text.
func computeID(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// normalizeID accepts IDs typed in either case with stray whitespace.
func normalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// Fingerprint renders the first bytes of a key ID as dash-separated words,
// for comparing keys over the phone. It returns "" for text that is not a
// hex ID.
func Fingerprint(id string) string {
	raw, err := hex.DecodeString(normalizeID(id))
	if err != nil || len(raw) < fingerprintBytes {
		return ""
	}
	words := mnemonicode.EncodeWordList([]string{}, raw[:fingerprintBytes])
	return strings.Join(words, "-")
}
