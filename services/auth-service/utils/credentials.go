package utils

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"ai-mistake-tracker/pkg/apperr"

	"golang.org/x/crypto/bcrypt"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

const (
	minNameLen     = 2
	maxNameLen     = 50
	minPasswordLen = 6
	// bcrypt ignores everything past 72 bytes.
	maxPasswordLen = 72
)

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// NormalizeEmail lowercases and trims an address before lookup or storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return apperr.InvalidArgument("invalid email format")
	}
	return nil
}

func ValidateName(name string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n < minNameLen || n > maxNameLen {
		return apperr.InvalidArgument("name must be between %d and %d characters", minNameLen, maxNameLen)
	}
	return nil
}

// ValidatePassword requires at least one lowercase letter, one uppercase
// letter and one digit.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLen {
		return apperr.InvalidArgument("password must be at least %d characters", minPasswordLen)
	}
	if len(password) > maxPasswordLen {
		return apperr.InvalidArgument("password must be at most %d bytes", maxPasswordLen)
	}
	var lower, upper, digit bool
	for _, c := range password {
		switch {
		case unicode.IsLower(c):
			lower = true
		case unicode.IsUpper(c):
			upper = true
		case unicode.IsDigit(c):
			digit = true
		}
	}
	if !lower || !upper || !digit {
		return apperr.InvalidArgument("password must contain an uppercase letter, a lowercase letter and a digit")
	}
	return nil
}

func ValidTheme(theme string) bool {
	switch theme {
	case "light", "dark", "auto":
		return true
	}
	return false
}
