package security

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Character sets used by the generator.
const (
	CharsetLowercase = "abcdefghijklmnopqrstuvwxyz"
	CharsetUppercase = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	CharsetDigits    = "0123456789"
	CharsetSymbols   = "!@#$%^&*()_+-=[]{}|;:,.<>?"
)

// Generator limits.
const (
	MinGeneratedLength     = 8
	MaxGeneratedLength     = 256
	DefaultGeneratedLength = 24
	MaxExcludeLength       = 256
)

// ErrEmptyCharset is returned when the options leave no characters to use.
var ErrEmptyCharset = errors.New("security: character set is empty")

// GeneratorOptions selects the length and alphabet of generated passwords.
type GeneratorOptions struct {
	Length      int
	NoLowercase bool
	NoUppercase bool
	NoDigits    bool
	NoSymbols   bool
	// Exclude lists characters to remove, such as ambiguous "0O1lI".
	Exclude string
}

// DefaultGeneratorOptions returns a 24 character mixed alphabet.
func DefaultGeneratorOptions() GeneratorOptions {
	return GeneratorOptions{Length: DefaultGeneratedLength}
}

// Validate checks the options are within limits.
func (o GeneratorOptions) Validate() error {
	if o.Length < MinGeneratedLength {
		return fmt.Errorf("password length must be at least %d characters", MinGeneratedLength)
	}
	if o.Length > MaxGeneratedLength {
		return fmt.Errorf("password length must be at most %d characters", MaxGeneratedLength)
	}
	if len(o.Exclude) > MaxExcludeLength {
		return fmt.Errorf("exclude string must be at most %d characters", MaxExcludeLength)
	}
	return nil
}

// Charset returns the alphabet the options select.
func (o GeneratorOptions) Charset() (string, error) {
	var charset strings.Builder
	if !o.NoLowercase {
		charset.WriteString(CharsetLowercase)
	}
	if !o.NoUppercase {
		charset.WriteString(CharsetUppercase)
	}
	if !o.NoDigits {
		charset.WriteString(CharsetDigits)
	}
	if !o.NoSymbols {
		charset.WriteString(CharsetSymbols)
	}

	result := charset.String()
	if o.Exclude != "" {
		result = removeChars(result, o.Exclude)
	}
	if result == "" {
		return "", ErrEmptyCharset
	}
	return result, nil
}

// Generate returns a password drawn uniformly from the selected alphabet
// using crypto/rand.
func Generate(o GeneratorOptions) (string, error) {
	if err := o.Validate(); err != nil {
		return "", err
	}
	charset, err := o.Charset()
	if err != nil {
		return "", err
	}

	n := big.NewInt(int64(len(charset)))
	password := make([]byte, o.Length)
	for i := range password {
		idx, err := rand.Int(rand.Reader, n)
		if err != nil {
			return "", fmt.Errorf("security: failed to generate random number: %w", err)
		}
		password[i] = charset[idx.Int64()]
	}
	return string(password), nil
}

func removeChars(s, chars string) string {
	excluded := make(map[rune]bool)
	for _, c := range chars {
		excluded[c] = true
	}
	var result strings.Builder
	for _, c := range s {
		if !excluded[c] {
			result.WriteRune(c)
		}
	}
	return result.String()
}
