package usecase

import (
	"regexp"
	"strings"
)

var pythonBlock = regexp.MustCompile("(?s)```python\\s*(.*?)\\s*```")

// ExtractCode returns the body of the first ```python fenced block in reply,
// or "" when there is none.
func ExtractCode(reply string) string {
	m := pythonBlock.FindStringSubmatch(reply)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
