package security

import (
	"errors"
	"strings"
	"testing"
	"unicode"
)

func TestGeneratorOptions_Validate(t *testing.T) {
	tests := []struct {
		name        string
		opts        GeneratorOptions
		expectError bool
	}{
		{"defaults", DefaultGeneratorOptions(), false},
		{"minimum length", GeneratorOptions{Length: MinGeneratedLength}, false},
		{"maximum length", GeneratorOptions{Length: MaxGeneratedLength}, false},
		{"length too short", GeneratorOptions{Length: MinGeneratedLength - 1}, true},
		{"length too long", GeneratorOptions{Length: MaxGeneratedLength + 1}, true},
		{"exclude too long", GeneratorOptions{Length: 24, Exclude: strings.Repeat("a", MaxExcludeLength+1)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if (err != nil) != tt.expectError {
				t.Errorf("Validate() error = %v, expectError %v", err, tt.expectError)
			}
		})
	}
}

func TestGeneratorOptions_Charset(t *testing.T) {
	opts := GeneratorOptions{Length: 8, NoSymbols: true, NoUppercase: true, Exclude: "0123abc"}
	charset, err := opts.Charset()
	if err != nil {
		t.Fatalf("Charset() error = %v", err)
	}
	for _, c := range "0123abcA!" {
		if strings.ContainsRune(charset, c) {
			t.Errorf("charset contains excluded %q", c)
		}
	}
	if !strings.Contains(charset, "d") || !strings.Contains(charset, "9") {
		t.Errorf("charset %q is missing allowed characters", charset)
	}

	empty := GeneratorOptions{Length: 8, NoLowercase: true, NoUppercase: true, NoDigits: true, NoSymbols: true}
	if _, err := empty.Charset(); !errors.Is(err, ErrEmptyCharset) {
		t.Errorf("Charset() error = %v, want ErrEmptyCharset", err)
	}
}

func TestGenerate(t *testing.T) {
	opts := GeneratorOptions{Length: 64, NoSymbols: true}
	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		password, err := Generate(opts)
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if len(password) != 64 {
			t.Errorf("len = %d, want 64", len(password))
		}
		for _, c := range password {
			if !unicode.IsLetter(c) && !unicode.IsDigit(c) {
				t.Errorf("unexpected character %q", c)
			}
		}
		if seen[password] {
			t.Errorf("duplicate password %q", password)
		}
		seen[password] = true
	}

	if _, err := Generate(GeneratorOptions{Length: 4}); err == nil {
		t.Error("Generate() with short length succeeded")
	}
}
