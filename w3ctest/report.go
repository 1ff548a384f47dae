package w3ctest

import (
	"fmt"
	"io"
)

// WriteText renders the report in the runner's terminal format.
func (r *Report) WriteText(w io.Writer) error {
	for _, o := range r.Outcomes {
		status := "FAIL"
		switch {
		case o.Skipped:
			status = "SKIP"
		case o.Passed:
			status = "PASS"
		}
		if o.Detail != "" {
			fmt.Fprintf(w, "%s  %-6s (%s) %s\n", status, o.ID, o.Duration.Round(1e6), o.Detail)
		} else {
			fmt.Fprintf(w, "%s  %-6s (%s)\n", status, o.ID, o.Duration.Round(1e6))
		}
	}
	passed, failed, skipped := r.Counts()
	_, err := fmt.Fprintf(w, "\n%d passed, %d failed, %d skipped\n", passed, failed, skipped)
	return err
}
