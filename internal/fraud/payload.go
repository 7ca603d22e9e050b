package fraud

import (
	"fmt"
	"strings"
)

// Payload rejection codes returned to HTTP callers.
const (
	CodeInvalidFormat   = "INVALID_FORMAT"
	CodeTamperedPayload = "TAMPERED_PAYLOAD"
	CodeInvalidLength   = "INVALID_LENGTH"
)

// Payload length bounds. GANs and share-URL payloads fall well inside
// these; anything outside is noise or an injection attempt.
const (
	minPayloadLength = 3
	maxPayloadLength = 500
)

// PayloadError describes why an inbound redemption payload was rejected.
type PayloadError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Literal scheme prefixes that never belong in a redemption code.
var dangerousPrefixes = []string{"javascript:", "data:", "vbscript:"}

// ValidatePayload performs stateless structural validation of a raw
// redemption payload. Returns nil if the payload is acceptable.
func ValidatePayload(raw string) *PayloadError {
	if raw == "" {
		return &PayloadError{Code: CodeInvalidFormat, Message: "payload must be a non-empty string"}
	}

	for _, r := range raw {
		// Control characters, including NUL, never appear in a legitimate
		// GAN or share URL.
		if r < 0x20 || r == 0x7f {
			return &PayloadError{Code: CodeTamperedPayload, Message: "payload contains non-printable characters"}
		}
	}

	if strings.ContainsAny(raw, `<>"'&`) {
		return &PayloadError{Code: CodeTamperedPayload, Message: "payload contains forbidden characters"}
	}

	lowered := strings.ToLower(raw)
	for _, prefix := range dangerousPrefixes {
		if strings.HasPrefix(lowered, prefix) {
			return &PayloadError{Code: CodeTamperedPayload, Message: "payload contains a forbidden scheme"}
		}
	}

	if len(raw) < minPayloadLength || len(raw) > maxPayloadLength {
		return &PayloadError{Code: CodeInvalidLength, Message: fmt.Sprintf("payload length must be between %d and %d characters", minPayloadLength, maxPayloadLength)}
	}

	return nil
}
