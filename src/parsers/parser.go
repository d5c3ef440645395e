// backend/src/parsers/parser.go
package parsers

import (
	"fmt"
	"io"
	"strings"

	"github.com/username/fliegerkasse/backend/src/models"
	"github.com/username/fliegerkasse/backend/src/parsers/sparkasse"
)

// Parser turns a raw bank-statement export into normalized statement entries.
type Parser interface {
	Parse(file io.Reader) ([]models.StatementEntry, error)
}

// GetParser returns the parser registered for the given statement source.
func GetParser(source string) (Parser, error) {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case "sparkasse", "sparkasse-csv":
		return sparkasse.NewParser(), nil
	default:
		return nil, fmt.Errorf("unsupported statement source: %q", source)
	}
}
