// backend/src/parsers/sparkasse/errors.go
package sparkasse

import (
	"fmt"
	"strings"
)

// FormatError reports a structurally unusable export: an empty file or a
// header row missing the date or amount column. The detected headers are kept
// so the operator can see what the bank actually sent.
type FormatError struct {
	Reason  string
	Headers []string
}

func (e *FormatError) Error() string {
	if len(e.Headers) == 0 {
		return fmt.Sprintf("sparkasse parser: %s", e.Reason)
	}
	return fmt.Sprintf("sparkasse parser: %s (headers: %s)", e.Reason, strings.Join(e.Headers, "; "))
}

// NoDataError reports a well-formed header with zero surviving data rows
// after row-level filtering.
type NoDataError struct {
	Headers []string
}

func (e *NoDataError) Error() string {
	return fmt.Sprintf("sparkasse parser: no valid transaction rows found (headers: %s)", strings.Join(e.Headers, "; "))
}
