package numberpool

import (
	"errors"
	"testing"
)

func poolWith(numbers ...Number) *Pool {
	p := New()
	p.Replace(numbers)
	return p
}

func TestChoose_PrefersCallingCodeCountry(t *testing.T) {
	p := poolWith(
		Number{Number: "+46700000001", Country: "se", Active: true},
		Number{Number: "+49300000001", Country: "de", Active: true},
	)

	for i := 0; i < 10; i++ {
		n, err := p.Choose("+49123456789", "sv")
		if err != nil {
			t.Fatalf("choose: %v", err)
		}
		if n.Country != "de" {
			t.Fatalf("expected german number, got %+v", n)
		}
	}
}

func TestChoose_FallsBackToLanguage(t *testing.T) {
	p := poolWith(
		Number{Number: "+46700000001", Country: "se", Active: true},
		Number{Number: "+33100000001", Country: "fr", Active: true},
	)

	// +1 is not in the calling-code table, so country match fails.
	n, err := p.Choose("+15551234567", "fr")
	if err != nil {
		t.Fatalf("choose: %v", err)
	}
	if n.Country != "fr" {
		t.Fatalf("expected french number, got %+v", n)
	}
}

func TestChoose_RandomFromWholePoolWhenNoMatch(t *testing.T) {
	p := poolWith(
		Number{Number: "+46700000001", Country: "se", Active: true},
		Number{Number: "+33100000001", Country: "fr", Active: true},
	)

	n, err := p.Choose("+15551234567", "xx")
	if err != nil {
		t.Fatalf("choose: %v", err)
	}
	if n.Number == "" {
		t.Fatalf("expected some number")
	}
}

func TestChoose_EmptyPoolFails(t *testing.T) {
	p := New()
	if _, err := p.Choose("+49123", "de"); !errors.Is(err, ErrNoNumbersAvailable) {
		t.Fatalf("expected ErrNoNumbersAvailable, got %v", err)
	}
}

func TestReplace_DropsInactiveNumbers(t *testing.T) {
	p := poolWith(
		Number{Number: "+46700000001", Country: "se", Active: true},
		Number{Number: "+46700000002", Country: "se", Active: false},
	)
	if p.Size() != 1 {
		t.Fatalf("expected inactive numbers dropped, size %d", p.Size())
	}
}

func TestCountryForCallingCode(t *testing.T) {
	cases := map[string]string{
		"+49123456789": "de",
		"+421900123":   "sk",
		"+42090012":    "cz",
		"+15551234":    "",
		"no-plus":      "",
	}
	for in, want := range cases {
		if got := CountryForCallingCode(in); got != want {
			t.Fatalf("CountryForCallingCode(%q) = %q, want %q", in, got, want)
		}
	}
}
