package fraud

import (
	"strings"
	"testing"
)

func TestValidatePayload_Accepts(t *testing.T) {
	valid := []string{
		"GAN-1234-5678",
		"7783-3272-9264-3216",
		"https://cards.example.com/redeem/order-42",
		"abc",
		strings.Repeat("a", 500),
	}

	for _, payload := range valid {
		if err := ValidatePayload(payload); err != nil {
			t.Errorf("ValidatePayload(%q) = %v, want nil", payload, err)
		}
	}
}

func TestValidatePayload_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantCode string
	}{
		{"empty", "", CodeInvalidFormat},
		{"script tag", "<script>alert(1)</script>", CodeTamperedPayload},
		{"html entity ampersand", "GAN&amp;1234", CodeTamperedPayload},
		{"single quote", "GAN'1234", CodeTamperedPayload},
		{"double quote", `GAN"1234`, CodeTamperedPayload},
		{"null byte", "GAN\x001234", CodeTamperedPayload},
		{"newline", "GAN\n1234", CodeTamperedPayload},
		{"delete char", "GAN\x7f1234", CodeTamperedPayload},
		{"javascript scheme", "javascript:alert(1)", CodeTamperedPayload},
		{"javascript scheme mixed case", "JavaScript:alert(1)", CodeTamperedPayload},
		{"data scheme", "data:text/html;base64,PHNjcmlwdD4", CodeTamperedPayload},
		{"vbscript scheme", "vbscript:msgbox", CodeTamperedPayload},
		{"too short", "ab", CodeInvalidLength},
		{"too long", strings.Repeat("a", 501), CodeInvalidLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePayload(tt.payload)
			if err == nil {
				t.Fatalf("ValidatePayload(%q) = nil, want code %s", tt.payload, tt.wantCode)
			}
			if err.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", err.Code, tt.wantCode)
			}
			if err.Message == "" {
				t.Error("message is empty")
			}
		})
	}
}

func TestValidatePayload_TamperingBeatsLength(t *testing.T) {
	// A 2-char payload with a forbidden character reports tampering, not
	// length: the content check runs first.
	err := ValidatePayload("<a")
	if err == nil || err.Code != CodeTamperedPayload {
		t.Errorf("got %v, want %s", err, CodeTamperedPayload)
	}
}

func TestPayloadError_Error(t *testing.T) {
	err := &PayloadError{Code: CodeInvalidLength, Message: "too long"}
	if got := err.Error(); got != "INVALID_LENGTH: too long" {
		t.Errorf("Error() = %q", got)
	}
}
