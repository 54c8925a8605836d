package armor

import "strings"

const (
	signedMessageTag Tag = "SIGNED MESSAGE"
	signatureTag     Tag = "SIGNATURE"
)

// signatureSeparator sits between the signed text and its signature block.
var signatureSeparator = "\n\n" + signatureTag.Header() + "\n"

// WrapSigned renders a cleartext-signed message. The message is written
// verbatim; the signature is base64 text wrapped at LineWidth.
func WrapSigned(message, signature string) string {
	var b strings.Builder
	b.WriteString(signedMessageTag.Header())
	b.WriteByte('\n')
	b.WriteString(message)
	b.WriteString(signatureSeparator)
	b.WriteString(wrapLines(signature))
	b.WriteByte('\n')
	b.WriteString(signatureTag.Footer())
	return b.String()
}

// UnwrapSigned splits a cleartext-signed message into the message text,
// byte-exact, and the signature with line breaks removed. The split happens
// at the last signature marker, so messages that quote the marker survive.
// CRLF line endings are read as LF.
func UnwrapSigned(text string) (message, signature string, err error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimLeft(text, " \t\r\n")
	text = strings.TrimRight(text, " \t\r\n")

	header := signedMessageTag.Header() + "\n"
	footer := signatureTag.Footer()
	if !strings.HasPrefix(text, header) {
		return "", "", formatErrorf(signedMessageTag, "missing %q marker", signedMessageTag.Header())
	}
	if !strings.HasSuffix(text, footer) {
		return "", "", formatErrorf(signedMessageTag, "missing %q marker", footer)
	}

	inner := text[len(header) : len(text)-len(footer)]
	i := strings.LastIndex(inner, signatureSeparator)
	if i < 0 {
		return "", "", formatErrorf(signedMessageTag, "missing %q marker", signatureTag.Header())
	}

	message = inner[:i]
	signature = stripLineBreaks(inner[i+len(signatureSeparator):])
	if signature == "" {
		return "", "", formatErrorf(signedMessageTag, "empty signature")
	}
	return message, signature, nil
}
