package crypto

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// EncodeBase64 encodes bytes to standard base64 with padding (RFC 4648 §4).
// Every armored field uses this alphabet, which never contains the '*'
// field delimiter.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 decodes standard padded base64. It rejects anything
// EncodeBase64 could not have produced.
func DecodeBase64(s string) ([]byte, error) {
	// The decoder skips line breaks on its own; the encoder never emits them.
	if strings.ContainsAny(s, "\r\n") {
		return nil, fmt.Errorf("%w: unexpected line break", ErrMalformedEncoding)
	}
	data, err := base64.StdEncoding.Strict().DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEncoding, err)
	}
	return data, nil
}
