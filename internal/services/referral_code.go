package services

import (
	"fmt"
	"strings"

	"github.com/terraincognita07/tierly/internal/models"
	"github.com/terraincognita07/tierly/internal/security"
)

const (
	referralCodePrefixLength = 4
	referralCodeSuffixLength = 2
	referralCodeMaxAttempts  = 5
)

// GenerateReferralCode builds the deterministic code for a user: four letters
// from the display name, the last four digits of the id and the year.
func GenerateReferralCode(user models.User, year int) string {
	return fmt.Sprintf("%s%04d%d", referralCodePrefix(user.DisplayName()), user.ID%10000, year)
}

func referralCodePrefix(displayName string) string {
	var letters strings.Builder
	for _, char := range strings.ToUpper(displayName) {
		if char < 'A' || char > 'Z' {
			continue
		}
		letters.WriteRune(char)
		if letters.Len() == referralCodePrefixLength {
			break
		}
	}

	prefix := letters.String()
	if prefix == "" {
		return "USER"
	}
	return prefix + strings.Repeat("X", referralCodePrefixLength-len(prefix))
}

// NormalizeReferralCode is the form codes are compared and stored in.
func NormalizeReferralCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func referralCodeCandidate(base string, attempt int) (string, error) {
	if attempt == 0 {
		return base, nil
	}
	suffix, err := security.RandomCode(referralCodeSuffixLength)
	if err != nil {
		return "", err
	}
	return base + suffix, nil
}
