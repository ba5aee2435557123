package workflow

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sampleReport() *Report {
	return &Report{
		Scenario: InvoiceScenarioName,
		RunID:    "run-report",
		Outcome:  "fail",
		Final:    StateUpload,
		Duration: 2 * time.Second,
		Steps: []StepResult{
			{Name: "login", From: StateRoot, To: StateDashboard, URL: "http://app/dashboard", Duration: time.Second},
			{Name: "open upload", From: StateDashboard, To: StateUpload, URL: "http://app/upload", Duration: 200 * time.Millisecond},
			{Name: "upload invoice", From: StateUpload, To: StateUpload, URL: "http://app/upload?a=1|2", Err: errors.New("late")},
		},
		Err: errors.New("scenario aborted at step \"upload invoice\"\nsecond line"),
	}
}

func TestReport_Markdown(t *testing.T) {
	md := sampleReport().Markdown()

	require.True(t, strings.HasPrefix(md, "# FAIL: invoice_upload_search_view\n"))
	require.Contains(t, md, "- Run: `run-report`")
	require.Contains(t, md, "- Final state: upload")
	require.Contains(t, md, "| 1 | login | root → dashboard | ok | 1000ms | http://app/dashboard |")
	require.Contains(t, md, "| 3 | upload invoice | upload → upload | **failed** |")
	require.Contains(t, md, `a=1\|2`)
	require.Contains(t, md, "second line")
	require.NotContains(t, md, "\nsecond line")
}

func TestReport_MarkdownWithoutSteps(t *testing.T) {
	md := (&Report{Scenario: "s", Outcome: "skip", Final: StateRoot}).Markdown()
	require.Contains(t, md, "# SKIP: s")
	require.Contains(t, md, "No steps ran.")
	require.NotContains(t, md, "- Error:")
}

func TestReport_HTML(t *testing.T) {
	r := sampleReport()
	r.Steps[0].Name = `<script>alert(1)</script>login`

	page, err := r.HTML()
	require.NoError(t, err)
	out := string(page)

	require.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	require.Contains(t, out, "<title>FAIL invoice_upload_search_view</title>")
	require.Contains(t, out, "<table>")
	require.Contains(t, out, "<strong>failed</strong>")
	require.Contains(t, out, "<code>run-report</code>")
	require.NotContains(t, out, "<script>")
}
