package normalize

import (
	"testing"

	dErrors "phones/pkg/domain-errors"
)

func TestNormalizeUSNumber(t *testing.T) {
	n, err := Normalize("+12025550123", "US")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.CountryCallingCode != "1" {
		t.Fatalf("expected calling code 1, got %q", n.CountryCallingCode)
	}
	if n.National == "" || n.International == "" || n.URI == "" {
		t.Fatalf("expected every format populated, got %+v", n)
	}
	if n.International != "+1 202-555-0123" {
		t.Fatalf("unexpected international form %q", n.International)
	}
}

func TestNormalizeRUMobile(t *testing.T) {
	n, err := Normalize("+79261234567", "RU")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.CountryCallingCode != "7" {
		t.Fatalf("expected calling code 7, got %q", n.CountryCallingCode)
	}
	if n.NumberType != "mobile" {
		t.Fatalf("expected mobile classification, got %q", n.NumberType)
	}
}

func TestNormalizeUsesCountryAsDefaultRegion(t *testing.T) {
	n, err := Normalize("8 926 123-45-67", "ru")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.CountryCallingCode != "7" {
		t.Fatalf("expected calling code 7, got %q", n.CountryCallingCode)
	}
}

func TestNormalizeIsDeterministic(t *testing.T) {
	a, err := Normalize("+12025550123", "US")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Normalize("+12025550123", "US")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Fatalf("identical inputs produced %+v and %+v", a, b)
	}
}

func TestNormalizeUnparsablePair(t *testing.T) {
	n, err := Normalize("not a number", "US")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !dErrors.HasCode(err, dErrors.CodeInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if n != (Normalized{}) {
		t.Fatalf("failure must not return partial fields, got %+v", n)
	}
}

func TestNormalizeEmptyCountryWithoutPrefix(t *testing.T) {
	// Without a + prefix and without a region the plan is unknown.
	if _, err := Normalize("5551234", ""); err == nil {
		t.Fatal("expected an error for a local number with no region")
	}
}
