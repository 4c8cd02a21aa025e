package helpers

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var markdownV2Replacer = func() *strings.Replacer {
	charactersToEscape := []string{"\\", ".", "-", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "=", "|", "{", "}", "!"}
	pairs := make([]string, 0, 2*len(charactersToEscape))
	for _, char := range charactersToEscape {
		pairs = append(pairs, char, "\\"+char)
	}
	return strings.NewReplacer(pairs...)
}()

func EscapeMarkdownV2(text string) string {
	return markdownV2Replacer.Replace(text)
}

// FormatPriceUS prints a price with US thousand separators. Cheaper coins get more decimals.
func FormatPriceUS(price float64, escapeMarkdown bool) string {
	decimals := 6

	abs := math.Abs(price)
	if abs >= 1000 {
		decimals = 0
	} else if abs > 1.2 {
		decimals = 2
	} else if abs < 0.00001 && abs > 0 {
		decimals = 10
	} else if abs < 0.01 && abs > 0 {
		decimals = 8
	}

	p := message.NewPrinter(language.English)
	formatted := p.Sprintf("%.*f", decimals, price)

	if escapeMarkdown {
		return EscapeMarkdownV2(formatted)
	}
	return formatted
}

// FormatCompactUSD prints large dollar amounts as $1.3T, $45.2B, $950K.
func FormatCompactUSD(v float64) string {
	if math.Abs(v) < 1000 {
		return "$" + FormatPriceUS(v, false)
	}
	value, prefix := humanize.ComputeSI(v)
	switch prefix {
	case "k":
		prefix = "K"
	case "G":
		prefix = "B"
	}
	return "$" + humanize.FtoaWithDigits(value, 2) + prefix
}

func FormatPercentage(v float64) string {
	return fmt.Sprintf("%+.2f%%", v)
}

// FormatDate prints t relative to now, e.g. "3 hours ago" or "2 days from now".
func FormatDate(t time.Time) string {
	return humanize.Time(t)
}

func FormatCount(n int64) string {
	return humanize.Comma(n)
}
