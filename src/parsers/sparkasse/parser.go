// backend/src/parsers/sparkasse/parser.go
package sparkasse

import (
	"encoding/csv"
	"io"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/fliegerkasse/backend/src/models"
)

// SparkasseParser reads the semicolon-delimited CSV export German banks
// produce (Sparkasse/VR column naming, DD.MM.YYYY dates, decimal comma).
// Columns are located by case-insensitive substring match against the header
// row, so minor layout variations between institutes still parse.
type SparkasseParser struct{}

// NewParser creates a new instance of the SparkasseParser.
func NewParser() *SparkasseParser {
	return &SparkasseParser{}
}

// closingBalanceMarker flags the per-period closing rows ("Abschluss per
// 31.12.2023") that carry a balance, not a transaction.
const closingBalanceMarker = "abschluss per"

var germanDateRe = regexp.MustCompile(`^(\d{2})\.(\d{2})\.(\d{4})$`)

// columnLayout holds the detected column indexes; -1 means the column is
// absent. Only date and amount are mandatory.
type columnLayout struct {
	date        int
	name        int
	bookingText int
	purpose     int
	amount      int
	reference   int
}

// findColumn returns the index of the first header matching any of the given
// substrings, in candidate priority order (first candidate wins).
func findColumn(headers []string, candidates ...string) int {
	for _, candidate := range candidates {
		for i, h := range headers {
			if strings.Contains(strings.ToLower(h), candidate) {
				return i
			}
		}
	}
	return -1
}

// findAmountColumn picks any header containing "Betrag" that is not a running
// balance ("Saldo") column.
func findAmountColumn(headers []string) int {
	for i, h := range headers {
		lower := strings.ToLower(h)
		if strings.Contains(lower, "betrag") && !strings.Contains(lower, "saldo") {
			return i
		}
	}
	return -1
}

func detectColumns(headers []string) (columnLayout, *FormatError) {
	layout := columnLayout{
		date:        findColumn(headers, "buchungstag", "valutadatum"),
		name:        findColumn(headers, "name zahlungsbeteiligter"),
		bookingText: findColumn(headers, "buchungstext"),
		purpose:     findColumn(headers, "verwendungszweck"),
		amount:      findAmountColumn(headers),
		reference:   findColumn(headers, "verwendungszweck", "buchungstext"),
	}
	if layout.date < 0 {
		return layout, &FormatError{Reason: "no date column (Buchungstag/Valutadatum) found", Headers: headers}
	}
	if layout.amount < 0 {
		return layout, &FormatError{Reason: "no amount column (Betrag) found", Headers: headers}
	}
	return layout, nil
}

// normalizeLineEndings unifies CRLF and bare CR line endings to LF.
func normalizeLineEndings(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// normalizeAmountString strips whitespace (including non-breaking spaces),
// drops German thousands separators and converts the decimal comma to a
// decimal point. "1.234,56" becomes "1234.56".
func normalizeAmountString(s string) string {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.Trim(cleaned, "\"")
	cleaned = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' || r == '\u00a0' {
			return -1
		}
		return r
	}, cleaned)
	if strings.Contains(cleaned, ",") {
		cleaned = strings.ReplaceAll(cleaned, ".", "")
	}
	return strings.ReplaceAll(cleaned, ",", ".")
}

// normalizeDate converts DD.MM.YYYY to ISO form; dates already in ISO form
// pass through. The second return value is false for anything else.
func normalizeDate(raw string) (string, bool) {
	if m := germanDateRe.FindStringSubmatch(raw); m != nil {
		return m[3] + "-" + m[2] + "-" + m[1], true
	}
	if _, err := time.Parse("2006-01-02", raw); err == nil {
		return raw, true
	}
	return "", false
}

// buildDescription assembles the entry description from the counterparty
// name, the booking text and the purpose, joined with " - ". Booking texts
// mentioning "Abschluss" are kept out of the description but still serve as a
// last-resort fallback before the literal unknown marker.
func buildDescription(name, bookingText, purpose string) string {
	var parts []string
	if name != "" {
		parts = append(parts, name)
	}
	if bookingText != "" && !strings.Contains(strings.ToLower(bookingText), "abschluss") {
		parts = append(parts, bookingText)
	}
	if purpose != "" {
		parts = append(parts, purpose)
	}
	if len(parts) > 0 {
		return strings.Join(parts, " - ")
	}
	if bookingText != "" {
		return bookingText
	}
	return "Unbekannte Transaktion"
}

// Parse reads a Sparkasse-style CSV export and converts its rows into
// normalized statement entries. Rows that cannot be interpreted are skipped
// and logged; the parse only fails as a whole when the header is unusable or
// no row survives.
func (p *SparkasseParser) Parse(file io.Reader) ([]models.StatementEntry, error) {
	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, &FormatError{Reason: "failed to read statement: " + err.Error()}
	}

	text := normalizeLineEndings(string(raw))
	nonEmpty := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			nonEmpty++
		}
	}
	if nonEmpty < 2 {
		return nil, &FormatError{Reason: "statement needs a header row and at least one data row"}
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if err != nil {
		return nil, &FormatError{Reason: "failed to read CSV header: " + err.Error()}
	}
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}

	layout, formatErr := detectColumns(headers)
	if formatErr != nil {
		return nil, formatErr
	}

	field := func(record []string, idx int) string {
		if idx < 0 || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var entries []models.StatementEntry
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("Sparkasse Parser: Skipping unreadable row: %v", err)
			continue
		}

		rawDate := field(record, layout.date)
		if rawDate == "" {
			continue
		}

		bookingText := field(record, layout.bookingText)
		if strings.Contains(strings.ToLower(bookingText), closingBalanceMarker) {
			continue
		}

		date, ok := normalizeDate(rawDate)
		if !ok {
			log.Printf("Sparkasse Parser: Skipping row with unparseable date %q", rawDate)
			continue
		}

		amount, err := decimal.NewFromString(normalizeAmountString(field(record, layout.amount)))
		if err != nil {
			log.Printf("Sparkasse Parser: Skipping row with unparseable amount %q", field(record, layout.amount))
			continue
		}

		entries = append(entries, models.StatementEntry{
			Date:        date,
			Description: buildDescription(field(record, layout.name), bookingText, field(record, layout.purpose)),
			Amount:      amount,
			Reference:   field(record, layout.reference),
		})
	}

	if len(entries) == 0 {
		return nil, &NoDataError{Headers: headers}
	}
	return entries, nil
}
