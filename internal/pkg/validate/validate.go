package validate

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// v is the package-level singleton validator. It is initialised once at
// package load time. Any custom type registrations must be made during init()
// before the first call to Struct.
var v = validator.New()

func init() {
	_ = v.RegisterValidation("strongpassword", strongPassword)
}

// Struct validates the given struct using its validate tags.
// Returns a human-readable error string or nil.
func Struct(s interface{}) error {
	if err := v.Struct(s); err != nil {
		ve, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		var msgs []string
		for _, fe := range ve {
			msgs = append(msgs, message(fe))
		}
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}
	return nil
}

// Password checks a bare password against the same rule as the strongpassword tag.
func Password(pw string) error {
	if !isStrong(pw) {
		return fmt.Errorf("%s", weakPasswordMsg)
	}
	return nil
}

// EmailDomainAllowed reports whether email belongs to one of the allowed domains.
// An empty allow-list accepts every domain.
func EmailDomainAllowed(email string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	domain := strings.ToLower(email[at+1:])
	for _, a := range allowed {
		if strings.ToLower(strings.TrimSpace(a)) == domain {
			return true
		}
	}
	return false
}

const weakPasswordMsg = "password must be 8-72 characters and contain at least one letter and one digit"

func message(fe validator.FieldError) string {
	if fe.Tag() == "strongpassword" {
		return weakPasswordMsg
	}
	return fmt.Sprintf("field '%s' failed '%s'", fe.Field(), fe.Tag())
}

func strongPassword(fl validator.FieldLevel) bool {
	return isStrong(fl.Field().String())
}

// bcrypt ignores input past 72 bytes.
func isStrong(pw string) bool {
	if len(pw) < 8 || len(pw) > 72 {
		return false
	}
	var letter, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return letter && digit
}
