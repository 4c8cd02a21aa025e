package helpers

import (
	"testing"
	"time"
)

func TestEscapeMarkdownV2(t *testing.T) {
	got := EscapeMarkdownV2(`Bitcoin (BTC) -1.5% \ ok!`)
	want := `Bitcoin \(BTC\) \-1\.5% \\ ok\!`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFormatPriceUS(t *testing.T) {
	cases := []struct {
		price float64
		want  string
	}{
		{67123.45, "67,123"},
		{3500.256, "3,500"},
		{150.456, "150.46"},
		{0.5, "0.500000"},
		{0.0042, "0.00420000"},
		{0.0000012, "0.0000012000"},
		{0, "0.000000"},
	}
	for _, c := range cases {
		if got := FormatPriceUS(c.price, false); got != c.want {
			t.Fatalf("FormatPriceUS(%v) = %q, want %q", c.price, got, c.want)
		}
	}
	if got := FormatPriceUS(150.456, true); got != `150\.46` {
		t.Fatalf("expected escaped price, got %q", got)
	}
}

func TestFormatCompactUSD(t *testing.T) {
	cases := []struct {
		v    float64
		want string
	}{
		{1.3e12, "$1.3T"},
		{45.25e9, "$45.25B"},
		{950000, "$950K"},
		{12.5, "$12.50"},
	}
	for _, c := range cases {
		if got := FormatCompactUSD(c.v); got != c.want {
			t.Fatalf("FormatCompactUSD(%v) = %q, want %q", c.v, got, c.want)
		}
	}
}

func TestFormatPercentage(t *testing.T) {
	if got := FormatPercentage(1.254); got != "+1.25%" {
		t.Fatalf("got %q", got)
	}
	if got := FormatPercentage(-3.5); got != "-3.50%" {
		t.Fatalf("got %q", got)
	}
}

func TestFormatDate(t *testing.T) {
	if got := FormatDate(time.Now().Add(-3 * time.Hour)); got != "3 hours ago" {
		t.Fatalf("got %q", got)
	}
}

func TestFormatCount(t *testing.T) {
	if got := FormatCount(1234567); got != "1,234,567" {
		t.Fatalf("got %q", got)
	}
}
