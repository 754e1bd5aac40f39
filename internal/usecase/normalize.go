package usecase

import "strings"

// CombineInputs joins the typed text and the extracted text with a single
// space, skipping whichever is empty.
func CombineInputs(userText, ocrText string) string {
	parts := make([]string, 0, 2)
	if userText != "" {
		parts = append(parts, userText)
	}
	if ocrText != "" {
		parts = append(parts, ocrText)
	}
	return strings.Join(parts, " ")
}
