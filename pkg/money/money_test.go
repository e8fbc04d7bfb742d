package money

import "testing"

func TestFormat(t *testing.T) {
	tests := []struct {
		amount float64
		code   string
		want   string
	}{
		{9.5, "VND", "10 ₫"},
		{9.5, "USD", "$9.50"},
		{120000, "VND", "120.000 ₫"},
		{1234567.891, "USD", "$1,234,567.89"},
		{1500, "KRW", "₩1,500"},
		{0, "VND", "0 ₫"},
		{-45000, "VND", "-45.000 ₫"},
		{9.5, "XYZ", "9.50 XYZ"},
	}
	for _, tt := range tests {
		if got := Format(tt.amount, tt.code); got != tt.want {
			t.Errorf("Format(%v, %q) = %q, want %q", tt.amount, tt.code, got, tt.want)
		}
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	amounts := []float64{0, 9.5, 120000, 1234567.891, -45000, 0.004}
	codes := []string{"VND", "USD", "KRW", "EUR"}
	for _, code := range codes {
		for _, amount := range amounts {
			once := Format(amount, code)
			twice, err := Normalize(once, code)
			if err != nil {
				t.Fatalf("Normalize(%q, %q): %v", once, code, err)
			}
			if twice != once {
				t.Errorf("Normalize(%q, %q) = %q, not idempotent", once, code, twice)
			}
		}
	}
}

func TestParse(t *testing.T) {
	got, err := Parse("120.000 ₫", "VND")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got != 120000 {
		t.Errorf("Parse VND = %v, want 120000", got)
	}

	got, err = Parse("$1,234.50", "USD")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got != 1234.5 {
		t.Errorf("Parse USD = %v, want 1234.5", got)
	}

	if _, err := Parse("", "VND"); err == nil {
		t.Error("expected error for empty input")
	}
	if _, err := Parse("abc", "USD"); err == nil {
		t.Error("expected error for non-numeric input")
	}
}

func TestVAT(t *testing.T) {
	if got := VATAmount(100000, 8, "VND"); got != 8000 {
		t.Errorf("VATAmount = %v, want 8000", got)
	}
	if got := Total(100000, 8, "VND"); got != 108000 {
		t.Errorf("Total = %v, want 108000", got)
	}
	// 10.555 * 10% = 1.0555, rounds to 1.06 in a two-decimal currency.
	if got := VATAmount(10.555, 10, "USD"); got != 1.06 {
		t.Errorf("VATAmount USD = %v, want 1.06", got)
	}
	if got := Round(9.5, "VND"); got != 10 {
		t.Errorf("Round = %v, want 10", got)
	}
}
