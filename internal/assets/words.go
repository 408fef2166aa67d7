package assets

import (
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// ErrorConvertingAmount is substituted into a letter when the amount column
// cannot be parsed. It is deliberately loud: a letter demanding an unreadable
// amount must fail review, not slip through with a blank.
const ErrorConvertingAmount = "ERROR CONVERTING AMOUNT"

var (
	onesWords = []string{
		"ZERO", "ONE", "TWO", "THREE", "FOUR", "FIVE", "SIX", "SEVEN", "EIGHT",
		"NINE", "TEN", "ELEVEN", "TWELVE", "THIRTEEN", "FOURTEEN", "FIFTEEN",
		"SIXTEEN", "SEVENTEEN", "EIGHTEEN", "NINETEEN",
	}
	tensWords = []string{
		"", "", "TWENTY", "THIRTY", "FORTY", "FIFTY", "SIXTY", "SEVENTY",
		"EIGHTY", "NINETY",
	}
	scaleWords = []string{"", "THOUSAND", "MILLION", "BILLION", "TRILLION"}
)

// NumberToWords spells a non-negative integer in uppercase English.
func NumberToWords(n int64) string {
	if n < 0 {
		return ErrorConvertingAmount
	}
	if n == 0 {
		return "ZERO"
	}

	var groups []int64
	for n > 0 {
		groups = append(groups, n%1000)
		n /= 1000
	}
	if len(groups) > len(scaleWords) {
		return ErrorConvertingAmount
	}

	var parts []string
	for i := len(groups) - 1; i >= 0; i-- {
		group := groups[i]
		if group == 0 {
			continue
		}
		words := hundredsToWords(group)
		if scaleWords[i] != "" {
			words += " " + scaleWords[i]
		}
		parts = append(parts, words)
	}
	return strings.Join(parts, " ")
}

func hundredsToWords(n int64) string {
	var parts []string
	if n >= 100 {
		parts = append(parts, onesWords[n/100]+" HUNDRED")
		n %= 100
	}
	switch {
	case n == 0:
	case n < 20:
		parts = append(parts, onesWords[n])
	default:
		word := tensWords[n/10]
		if n%10 != 0 {
			word += "-" + onesWords[n%10]
		}
		parts = append(parts, word)
	}
	return strings.Join(parts, " ")
}

// AmountToWords spells a monetary amount string ("1,234.56") as
// "ONE THOUSAND TWO HUNDRED THIRTY-FOUR PESOS, AND FIFTY-SIX CENTS".
// The peso and cent halves are parsed independently so a malformed fraction
// cannot corrupt the whole figure. Any parse failure yields
// ErrorConvertingAmount.
func AmountToWords(raw string) string {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	cleaned = strings.TrimPrefix(cleaned, "PHP")
	cleaned = strings.TrimPrefix(cleaned, "₱")
	if cleaned == "" {
		return ErrorConvertingAmount
	}

	wholePart := cleaned
	centPart := ""
	if dot := strings.Index(cleaned, "."); dot >= 0 {
		wholePart = cleaned[:dot]
		centPart = cleaned[dot+1:]
	}
	if wholePart == "" {
		wholePart = "0"
	}

	whole, err := strconv.ParseInt(wholePart, 10, 64)
	if err != nil || whole < 0 {
		return ErrorConvertingAmount
	}

	cents, ok := parseCents(centPart)
	if !ok {
		return ErrorConvertingAmount
	}

	return NumberToWords(whole) + " PESOS, AND " + NumberToWords(cents) + " CENTS"
}

func parseCents(fraction string) (int64, bool) {
	if fraction == "" {
		return 0, true
	}
	if len(fraction) > 2 {
		fraction = fraction[:2]
	}
	if len(fraction) == 1 {
		fraction += "0"
	}
	cents, err := strconv.ParseInt(fraction, 10, 64)
	if err != nil || cents < 0 {
		return 0, false
	}
	return cents, true
}

var amountPrinter = message.NewPrinter(language.English)

// FormatAmount renders a numeric amount with thousands separators and two
// decimal places, matching the abbreviated figure printed next to the spelled
// amount.
func FormatAmount(v float64) string {
	return amountPrinter.Sprint(number.Decimal(v,
		number.MinFractionDigits(2),
		number.MaxFractionDigits(2)))
}

// ParseAmount extracts the numeric value from an amount column for reformatting.
func ParseAmount(raw string) (float64, bool) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimPrefix(cleaned, "PHP")
	cleaned = strings.TrimPrefix(cleaned, "₱")
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
