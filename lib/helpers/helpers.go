package helpers

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var markdownV2Special = []string{"_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}

func EscapeMarkdownV2(text string) string {
	text = strings.ReplaceAll(text, "\\", "\\\\")
	for _, char := range markdownV2Special {
		text = strings.ReplaceAll(text, char, "\\"+char)
	}
	return text
}

// PriceDecimals picks a precision that keeps small coin prices readable.
func PriceDecimals(price float64) int {
	abs := price
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 1000:
		return 0
	case abs > 1.2:
		return 2
	case abs < 0.00001 && abs > 0:
		return 8
	default:
		return 6
	}
}

// FormatPriceUS formats a coin price with thousand separators.
func FormatPriceUS(price float64) string {
	p := message.NewPrinter(language.English)
	return p.Sprintf("%.*f", PriceDecimals(price), price)
}

// FormatUSD formats a dollar amount with two decimals, e.g. "$1,234.50" or "-$3.10".
func FormatUSD(amount float64) string {
	p := message.NewPrinter(language.English)
	if amount < 0 {
		return p.Sprintf("-$%.2f", -amount)
	}
	return p.Sprintf("$%.2f", amount)
}

// FormatPercentage formats a signed percentage, e.g. "+100.00%".
func FormatPercentage(pct float64) string {
	return fmt.Sprintf("%+.2f%%", pct)
}

// FormatAge renders how long ago t was, e.g. "3 minutes ago". A zero time is "never".
func FormatAge(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}

// FormatCount renders a call counter with separators, e.g. "9,995".
func FormatCount(n int) string {
	return humanize.Comma(int64(n))
}
