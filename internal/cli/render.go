package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/quillbooks/reconcile/internal/model"
	"github.com/quillbooks/reconcile/internal/service"
)

// FormatAmount renders minor currency units as a major-unit string.
func FormatAmount(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	if currency == "" {
		return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, minor/100, minor%100, currency)
}

// RenderSuggestions renders pending suggestions as a reviewer-facing table,
// best first.
func RenderSuggestions(suggestions []model.Suggestion) string {
	if len(suggestions) == 0 {
		return FormatInfo("No pending suggestions.")
	}

	var b strings.Builder
	b.WriteString(TableHeaderStyle.Render(fmt.Sprintf("%-36s  %-10s  %-6s  %-5s  %s",
		"ID", "TIER", "SCORE", "RECS", "EXPLANATION")))
	b.WriteString("\n")

	for i := range suggestions {
		s := &suggestions[i]
		tier := TierStyle(s.Candidate.Tier).Render(fmt.Sprintf("%-10s", s.Candidate.Tier))
		b.WriteString(fmt.Sprintf("%-36s  %s  %5.1f  %5d  %s\n",
			s.ID,
			tier,
			s.Candidate.Confidence,
			len(s.Candidate.Counterparts),
			s.Candidate.Explanation))
	}
	return b.String()
}

// RenderJobReport summarizes one batch run.
func RenderJobReport(report *service.JobReport) string {
	lines := []string{
		fmt.Sprintf("Processed:     %d", report.Processed),
		SuccessStyle.Render(fmt.Sprintf("Auto-applied:  %d", report.AutoApplied)),
		WarningStyle.Render(fmt.Sprintf("Suggested:     %d", report.Suggested)),
		SubtleStyle.Render(fmt.Sprintf("Unmatched:     %d", report.Unmatched)),
	}
	if report.SkippedStale > 0 {
		lines = append(lines, WarningStyle.Render(fmt.Sprintf("Skipped stale: %d", report.SkippedStale)))
	}
	for _, msg := range report.Errors {
		lines = append(lines, FormatError(msg))
	}
	lines = append(lines, SubtleStyle.Render(
		fmt.Sprintf("Took %s", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))))

	return RenderBox(fmt.Sprintf("Matching run %s", report.JobID), strings.Join(lines, "\n"))
}

// RenderStats summarizes a tenant's reconciliation progress.
func RenderStats(stats *service.TenantStats) string {
	matchedPct := 0.0
	if stats.Total > 0 {
		matchedPct = 100 * float64(stats.Matched) / float64(stats.Total)
	}

	lines := []string{
		fmt.Sprintf("Transactions:    %d", stats.Total),
		SuccessStyle.Render(fmt.Sprintf("Matched:         %d (%.1f%%)", stats.Matched, matchedPct)),
		SubtleStyle.Render(fmt.Sprintf("Pending:         %d", stats.Pending)),
		fmt.Sprintf("Auto matched:    %d (avg confidence %.1f)", stats.AutoMatched, stats.AvgConfidenceAuto),
		fmt.Sprintf("Manual matched:  %d (avg confidence %.1f)", stats.ManualMatched, stats.AvgConfidenceManual),
		fmt.Sprintf("Avg confidence:  %.1f", stats.AvgConfidence),
	}
	return RenderBox(fmt.Sprintf("Tenant %s", stats.TenantID), strings.Join(lines, "\n"))
}

// RenderDuplicateHits renders duplicate warnings, best first.
func RenderDuplicateHits(hits []model.DuplicateHit) string {
	if len(hits) == 0 {
		return FormatSuccess("No probable duplicates found.")
	}

	var b strings.Builder
	b.WriteString(FormatWarning(fmt.Sprintf("%d probable duplicate(s) found:", len(hits))) + "\n")
	for i := range hits {
		hit := &hits[i]
		b.WriteString(fmt.Sprintf("  %s %s duplicates %s (%.1f): %s\n",
			TierStyle(hit.Tier).Render(string(hit.Tier)),
			hit.ExpenseID,
			hit.OfExpenseID,
			hit.Confidence,
			hit.Explanation))
	}
	return b.String()
}

// RenderAuditTrail renders a decision group's history, oldest first.
func RenderAuditTrail(entries []model.AuditEntry) string {
	if len(entries) == 0 {
		return FormatInfo("No audit entries.")
	}

	var b strings.Builder
	for i := range entries {
		entry := &entries[i]
		b.WriteString(fmt.Sprintf("%s  %-9s %-20s %s\n",
			SubtleStyle.Render(entry.RecordedAt.Format("2006-01-02 15:04:05")),
			entry.Action,
			entry.Actor,
			entry.Detail))
	}
	return b.String()
}
