package domain

// ExecutionReport is the outcome of running one generated script.
type ExecutionReport struct {
	CapturedOutput string
	FailureMessage string
}

// Failed reports whether the script raised or exited abnormally.
func (r ExecutionReport) Failed() bool {
	return r.FailureMessage != ""
}

// Output is the text shown to the user: the failure when there is one,
// otherwise whatever the script wrote to standard output.
func (r ExecutionReport) Output() string {
	if r.Failed() {
		return "Execution Error: " + r.FailureMessage
	}
	return r.CapturedOutput
}
