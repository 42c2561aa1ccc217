package docid

import "testing"

func TestGenerateDeterministic(t *testing.T) {
	id1, ok1 := Generate("5213003700", "FV/001/2026", "2026-03-05", "1500.00", "invoice")
	id2, ok2 := Generate("5213003700", "FV/001/2026", "2026-03-05", "1500.00", "invoice")
	if !ok1 || !ok2 {
		t.Fatalf("expected both calls to produce an identifier")
	}
	if id1 != id2 {
		t.Fatalf("expected deterministic identifier, got %q and %q", id1, id2)
	}
	if id1[:7] != "DOC-FV-" {
		t.Fatalf("expected DOC-FV- prefix, got %q", id1)
	}
}

func TestGenerateNIPEquivalence(t *testing.T) {
	base, ok := Generate("5213003700", "FV/001", "2026-03-05", "1500.00", "invoice")
	if !ok {
		t.Fatal("expected identifier")
	}
	withPrefix, _ := Generate("PL5213003700", "FV/001", "2026-03-05", "1500.00", "invoice")
	withPunct, _ := Generate(" 521-300-37-00 ", "FV/001", "2026-03-05", "1500.00", "invoice")

	if base != withPrefix || base != withPunct {
		t.Fatalf("expected NIP-equivalent inputs to yield same id: %q %q %q", base, withPrefix, withPunct)
	}
}

func TestGenerateCaseInsensitiveNumber(t *testing.T) {
	upper, _ := Generate("5213003700", "FV/001/2026", "2026-03-05", "1500.00", "invoice")
	lower, _ := Generate("5213003700", "fv/001/2026", "2026-03-05", "1500.00", "invoice")
	if upper != lower {
		t.Fatalf("expected case-insensitive number to yield the same id")
	}
}

func TestGenerateChangedFieldChangesIdentifier(t *testing.T) {
	base, _ := Generate("5213003700", "FV/001", "2026-03-05", "1500.00", "invoice")
	otherAmount, _ := Generate("5213003700", "FV/001", "2026-03-05", "1500.50", "invoice")
	otherNumber, _ := Generate("5213003700", "FV/002", "2026-03-05", "1500.00", "invoice")
	otherDate, _ := Generate("5213003700", "FV/001", "2026-03-06", "1500.00", "invoice")
	otherNip, _ := Generate("9876543210", "FV/001", "2026-03-05", "1500.00", "invoice")

	for _, other := range []string{otherAmount, otherNumber, otherDate, otherNip} {
		if other == base {
			t.Fatalf("expected changed field to produce a distinct identifier, both were %q", base)
		}
	}
}

func TestGenerateInsufficientFields(t *testing.T) {
	_, ok := Generate("", "", "2026-03-05", "", "invoice")
	if ok {
		t.Fatal("expected no identifier when fewer than two fields are meaningful")
	}
}

func TestGenerateDocTypeCodes(t *testing.T) {
	cases := map[string]string{
		"invoice":    "FV",
		"receipt":    "PAR",
		"contract":   "UMO",
		"correction": "KOR",
		"proforma":   "PRO",
		"unknown":    "DOC",
	}
	for docType, want := range cases {
		id, ok := Generate("5213003700", "N/1", "2026-01-01", "100.00", docType)
		if !ok {
			t.Fatalf("expected identifier for doc type %q", docType)
		}
		if got := id[4 : 4+len(want)]; got != want {
			t.Fatalf("doc type %q: expected code %q, got %q (full id %q)", docType, want, got, id)
		}
	}
}

func TestNormalizeAmountEdgeCases(t *testing.T) {
	cases := map[string]string{
		"1 500,00 PLN": "1500.00",
		"1.500,00":     "1500.00",
		"":             "0.00",
		"not-a-number": "0.00",
		"1500":         "1500.00",
	}
	for in, want := range cases {
		if got := NormalizeAmount(in); got != want {
			t.Errorf("NormalizeAmount(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCleanNIPRejectsNonDigits(t *testing.T) {
	if _, ok := CleanNIP("521300370X"); ok {
		t.Fatal("expected non-digit NIP to be rejected")
	}
	if _, ok := CleanNIP("521-300-37"); ok {
		t.Fatal("expected short NIP to be rejected")
	}
	cleaned, ok := CleanNIP("PL 521-300-37-00")
	if !ok || cleaned != "5213003700" {
		t.Fatalf("expected cleaned NIP 5213003700, got %q ok=%v", cleaned, ok)
	}
}

func TestValidNIPChecksum(t *testing.T) {
	if !ValidNIPChecksum("5213003700") {
		t.Fatal("expected known-valid test NIP to pass checksum")
	}
	if ValidNIPChecksum("1234567890") {
		t.Fatal("expected arbitrary digits to fail checksum")
	}
}

func TestNormalizeDateFormats(t *testing.T) {
	cases := map[string]string{
		"2026-03-05": "2026-03-05",
		"05-03-2026": "2026-03-05",
		"05.03.2026": "2026-03-05",
		"05/03/2026": "2026-03-05",
		"2026/03/05": "2026-03-05",
		"20260305":   "2026-03-05",
		"garbage":    "",
	}
	for in, want := range cases {
		if got := NormalizeDate(in); got != want {
			t.Errorf("NormalizeDate(%q) = %q, want %q", in, got, want)
		}
	}
}
