// Package compliance cross-references computed financial metrics against the
// internal policy thresholds and renders the resulting assessment. The
// threshold table is static configuration: policies change by release, not
// at runtime.
package compliance

import (
	"fmt"
	"sort"
	"strings"

	"github.com/AlphaAgentAI/alphaagent-mvp/engine/domain"
)

// Policy is one threshold rule from the internal policy set.
type Policy struct {
	Threshold   float64
	Direction   string // "above": violation when value > threshold; "below": value < threshold
	PolicyRef   string
	Description string
}

// Thresholds is the internal policy threshold table, sourced from the Trade
// Surveillance Policy and the Risk & Compliance Brief.
var Thresholds = map[string]Policy{
	"capex_yoy_pct": {
		Threshold:   40.0,
		Direction:   "above",
		PolicyRef:   "Trade Surveillance Policy §4 — AI Agent Usage Policy",
		Description: "YoY CapEx changes exceeding 40% require management review and board notification.",
	},
	"leverage_ratio": {
		Threshold:   2.5,
		Direction:   "above",
		PolicyRef:   "Risk & Compliance Brief — Internal Policy Limit",
		Description: "Net Debt-to-EBITDA exceeding 2.5x triggers enhanced risk monitoring.",
	},
	"var_99_usd_m": {
		Threshold:   50.0,
		Direction:   "above",
		PolicyRef:   "Trade Surveillance Policy §3 — Alert Severity",
		Description: "99% 1-day VaR exceeding $50M requires escalation to CRO.",
	},
	"position_size_usd_m": {
		Threshold:   10.0,
		Direction:   "above",
		PolicyRef:   "Trade Surveillance Policy §4 — AI Agent Usage Policy",
		Description: "AI-recommended positions above $10M notional require human approval.",
	},
}

// CheckThreshold evaluates one metric against one threshold. A value exactly
// at the threshold passes.
func CheckThreshold(name string, value, threshold float64, direction string) domain.PolicyFinding {
	var violated bool
	if direction == "above" {
		violated = value > threshold
	} else {
		violated = value < threshold
	}

	f := domain.PolicyFinding{
		Metric:    name,
		Value:     value,
		Threshold: threshold,
		Direction: fmt.Sprintf("must not be %s threshold", direction),
		Status:    domain.StatusPass,
		Detail: fmt.Sprintf("PASS: %s (%.2f) is within policy limits (%.2f).",
			name, value, threshold),
	}
	if violated {
		f.Status = domain.StatusFlag
		f.Detail = fmt.Sprintf("POLICY VIOLATION: %s (%.2f) exceeds threshold (%.2f). "+
			"Requires management review per Trade Surveillance Policy §4.",
			name, value, threshold)
	}
	return f
}

// Run checks every supplied metric that has a policy threshold and
// aggregates the findings for one ticker. Metrics without a threshold are
// ignored. Findings are ordered by metric name for stable output.
func Run(metrics map[string]float64, ticker string) domain.ComplianceResult {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		if _, ok := Thresholds[name]; ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	result := domain.ComplianceResult{Ticker: ticker, OverallStatus: domain.StatusPass}
	for _, name := range names {
		policy := Thresholds[name]
		f := CheckThreshold(name, metrics[name], policy.Threshold, policy.Direction)
		f.PolicyRef = policy.PolicyRef
		f.PolicyDescription = policy.Description
		result.Findings = append(result.Findings, f)
		if f.Status == domain.StatusFlag {
			result.Flags++
		}
	}

	result.TotalChecks = len(result.Findings)
	result.Passes = result.TotalChecks - result.Flags

	entity := ticker
	if entity == "" {
		entity = "entity"
	}
	if result.Flags > 0 {
		result.OverallStatus = domain.StatusFlag
		result.Recommendation = fmt.Sprintf(
			"%d policy threshold(s) violated for %s. Escalate to Chief Compliance Officer per Trade Surveillance Policy §6.",
			result.Flags, entity)
	} else {
		result.Recommendation = fmt.Sprintf(
			"All %d compliance checks passed for %s. No escalation required.",
			result.TotalChecks, entity)
	}
	return result
}

// FormatReport renders a compliance result as the markdown assessment block
// included in synthesized answers.
func FormatReport(result domain.ComplianceResult) string {
	ticker := result.Ticker
	if ticker == "" {
		ticker = "Entity"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Compliance Assessment: %s\n", ticker)
	fmt.Fprintf(&b, "**Overall Status:** %s\n", result.OverallStatus)
	fmt.Fprintf(&b, "**Checks Run:** %d | **Passed:** %d | **Flagged:** %d\n\n",
		result.TotalChecks, result.Passes, result.Flags)

	for _, f := range result.Findings {
		marker := "[PASS]"
		if f.Status == domain.StatusFlag {
			marker = "[FLAG]"
		}
		fmt.Fprintf(&b, "%s **%s**: %.2f (threshold: %.2f)\n", marker, f.Metric, f.Value, f.Threshold)
		ref := f.PolicyRef
		if ref == "" {
			ref = "N/A"
		}
		fmt.Fprintf(&b, "   Policy: %s\n", ref)
		fmt.Fprintf(&b, "   %s\n\n", f.Detail)
	}

	fmt.Fprintf(&b, "**Recommendation:** %s", result.Recommendation)
	return b.String()
}
