// backend/src/utils/utils.go
package utils

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
)

// SendJSONError writes a JSON error payload with the given status code.
func SendJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// ParseYearSet parses a comma-separated year list ("2022,2023") into ints.
// Blank segments are ignored; a malformed segment fails the whole parse.
func ParseYearSet(raw string) ([]int, error) {
	var years []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		year, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		years = append(years, year)
	}
	return years, nil
}
