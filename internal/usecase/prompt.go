package usecase

import (
	_ "embed"
	"strings"
	"text/template"
)

//go:embed prompts/calendar_script.tmpl
var calendarScriptTemplate string

var calendarPrompt = template.Must(template.New("calendar_script").Parse(calendarScriptTemplate))

// BuildCalendarPrompt embeds combined into the script-generation instructions.
// The text is inserted as is.
func BuildCalendarPrompt(combined string) string {
	var b strings.Builder
	// The template has no fallible actions beyond field access.
	_ = calendarPrompt.Execute(&b, struct{ CombinedInput string }{combined})
	return b.String()
}
