package usecase

import (
	"strconv"
	"strings"

	"calendar-agent/internal/domain"
)

// ParsePageSelection parses a comma separated list of 1-based page numbers.
// Blank tokens are skipped. Any other non-numeric token is rejected, as is a
// selection of more than domain.MaxSelectedPages pages. An empty input selects
// every page.
func ParsePageSelection(raw string) (domain.PageSelection, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var pages domain.PageSelection
	for _, token := range strings.Split(raw, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if !isDigits(token) {
			return nil, newError(ErrorInvalidInput, ReasonInvalidPages, nil)
		}
		n, err := strconv.Atoi(token)
		if err != nil {
			return nil, newError(ErrorInvalidInput, ReasonInvalidPages, err)
		}
		pages = append(pages, n)
	}
	if len(pages) > domain.MaxSelectedPages {
		return nil, newError(ErrorInvalidInput, ReasonTooManyPages, nil)
	}
	return pages, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
