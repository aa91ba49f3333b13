package auth

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"image/png"
	"strings"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Issuer is shown by authenticator apps next to the account name.
const Issuer = "Sosed"

const recoveryAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// TwoFactorSetup is a freshly generated, not yet enabled second factor.
type TwoFactorSetup struct {
	Secret       string `json:"secret"`
	URL          string `json:"otpauth_url"`
	RecoveryCode string `json:"recovery_code"`
}

// NewTOTP generates a TOTP key and a recovery code for username.
func NewTOTP(username string) (*TwoFactorSetup, error) {
	key, err := totp.Generate(totp.GenerateOpts{Issuer: Issuer, AccountName: username})
	if err != nil {
		return nil, fmt.Errorf("generating totp key: %w", err)
	}
	code, err := NewRecoveryCode()
	if err != nil {
		return nil, err
	}
	return &TwoFactorSetup{Secret: key.Secret(), URL: key.URL(), RecoveryCode: code}, nil
}

// QRCode renders the otpauth URL as a PNG of size×size pixels for
// authenticator apps to scan.
func (s *TwoFactorSetup) QRCode(size int) ([]byte, error) {
	key, err := otp.NewKeyFromURL(s.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing otpauth url: %w", err)
	}
	img, err := key.Image(size, size)
	if err != nil {
		return nil, fmt.Errorf("rendering qr code: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding qr code: %w", err)
	}
	return buf.Bytes(), nil
}

// ValidateCode checks a 6-digit code against the secret at the current time.
func ValidateCode(secret, code string) bool {
	if secret == "" {
		return false
	}
	return totp.Validate(strings.TrimSpace(code), secret)
}

// NewRecoveryCode returns a random code formatted XXXX-XXXX-XXXX-XXXX.
func NewRecoveryCode() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating recovery code: %w", err)
	}
	var sb strings.Builder
	for i, b := range buf {
		if i > 0 && i%4 == 0 {
			sb.WriteByte('-')
		}
		sb.WriteByte(recoveryAlphabet[int(b)%len(recoveryAlphabet)])
	}
	return sb.String(), nil
}

// NormalizeRecoveryCode upper-cases the code and removes spaces so it can be
// compared against the stored hash.
func NormalizeRecoveryCode(code string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), " ", ""))
}
