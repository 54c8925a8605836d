// Package armor implements the KDT text envelope: base64 fields joined by
// '*', wrapped at 64 columns and framed by BEGIN/END marker lines.
package armor

import (
	"strings"
)

// Tag names the kind of data inside an envelope.
type Tag string

const (
	// TagPublicKey frames a public key: encryption key, signing key, owner.
	TagPublicKey Tag = "PUBKEY BLOCK"
	// TagPrivateKey frames a private key: encryption key, signing key, owner.
	TagPrivateKey Tag = "PRIVKEY BLOCK"
	// TagMessage frames an encrypted message: encapsulated secret,
	// ciphertext, nonce.
	TagMessage Tag = "MESSAGE"
)

// LineWidth is the number of body characters per envelope line.
const LineWidth = 64

// FieldSeparator joins the fields of an envelope body.
const FieldSeparator = "*"

// Arity returns the number of fields an envelope of this tag carries, or 0
// for tags with no fixed layout.
func (t Tag) Arity() int {
	switch t {
	case TagPublicKey, TagPrivateKey, TagMessage:
		return 3
	}
	return 0
}

// Header returns the opening marker line of the tag, without newline.
func (t Tag) Header() string {
	return "-----BEGIN KDT " + string(t) + "-----"
}

// Footer returns the closing marker line of the tag, without newline.
func (t Tag) Footer() string {
	return "-----END KDT " + string(t) + "-----"
}

// Wrap renders fields as an envelope of the given tag. Fields must not
// contain the separator; base64 text never does.
func Wrap(tag Tag, fields ...string) string {
	body := wrapLines(strings.Join(fields, FieldSeparator))

	var b strings.Builder
	b.Grow(len(body) + 2*len(tag.Header()) + 2)
	b.WriteString(tag.Header())
	b.WriteByte('\n')
	b.WriteString(body)
	b.WriteByte('\n')
	b.WriteString(tag.Footer())
	return b.String()
}

// wrapLines inserts a newline after every LineWidth characters. The final
// partial line is not padded and no trailing newline is left.
func wrapLines(s string) string {
	if len(s) <= LineWidth {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + len(s)/LineWidth)
	for len(s) > LineWidth {
		b.WriteString(s[:LineWidth])
		b.WriteByte('\n')
		s = s[LineWidth:]
	}
	b.WriteString(s)
	return b.String()
}

// Unwrap parses an envelope of the given tag and returns its fields.
// Surrounding whitespace is ignored. The number of fields must match the
// tag's arity.
func Unwrap(tag Tag, text string) ([]string, error) {
	body, err := unframe(tag, text)
	if err != nil {
		return nil, err
	}

	fields := strings.Split(stripLineBreaks(body), FieldSeparator)
	if n := tag.Arity(); n > 0 && len(fields) != n {
		return nil, formatErrorf(tag, "expected %d fields, found %d", n, len(fields))
	}
	return fields, nil
}

func unframe(tag Tag, text string) (string, error) {
	text = strings.TrimSpace(text)
	header, footer := tag.Header(), tag.Footer()

	if len(text) < len(header)+len(footer) {
		return "", formatErrorf(tag, "input too short")
	}
	if !strings.HasPrefix(text, header) {
		return "", formatErrorf(tag, "missing %q marker", header)
	}
	if !strings.HasSuffix(text, footer) {
		return "", formatErrorf(tag, "missing %q marker", footer)
	}
	return text[len(header) : len(text)-len(footer)], nil
}

func stripLineBreaks(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}

// Find returns the first complete envelope of the given tag found in text.
func Find(tag Tag, text string) (string, bool) {
	start := strings.Index(text, tag.Header())
	if start < 0 {
		return "", false
	}
	rest := text[start:]
	end := strings.Index(rest, tag.Footer())
	if end < 0 {
		return "", false
	}
	return rest[:end+len(tag.Footer())], true
}
