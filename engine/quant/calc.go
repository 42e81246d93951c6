// Package quant holds the deterministic financial calculations and the
// structured metric loader. Calculations are pure functions that always
// return a result: arithmetic that cannot be performed (zero denominators)
// yields a Failed result with an explanatory string, never an error, so the
// orchestration trace stays complete.
package quant

import (
	"fmt"
	"math"

	"github.com/AlphaAgentAI/alphaagent-mvp/engine/domain"
)

// YoYVariance computes the year-over-year percentage change from prior to
// current.
func YoYVariance(current, prior float64) domain.CalculationResult {
	r := domain.CalculationResult{
		Calculation: "YoY Variance",
		Formula:     "((current - prior) / prior) * 100",
		Inputs:      fmt.Sprintf("current=%g, prior=%g", current, prior),
	}
	if prior == 0 {
		r.Result = "Error: Division by zero (prior period value is 0)"
		r.Interpretation = "Cannot calculate YoY variance with zero baseline."
		r.Failed = true
		return r
	}

	variance := (current - prior) / prior * 100
	direction := "no change"
	switch {
	case variance > 0:
		direction = "increase"
	case variance < 0:
		direction = "decrease"
	}

	r.Result = fmt.Sprintf("%+.2f%%", variance)
	r.AbsoluteChange = fmt.Sprintf("%+.2f", current-prior)
	r.Direction = direction
	r.Interpretation = fmt.Sprintf("A %.2f%% %s from %g to %g.", math.Abs(variance), direction, prior, current)
	return r
}

// Margin computes numerator/denominator as a percentage. label names the
// margin type in the formula and interpretation, e.g. "EBITDA".
func Margin(numerator, denominator float64, label string) domain.CalculationResult {
	r := domain.CalculationResult{
		Calculation: label + " Margin",
		Formula:     label + " / Revenue * 100",
		Inputs:      fmt.Sprintf("%s=%g, Revenue=%g", label, numerator, denominator),
	}
	if denominator == 0 {
		r.Result = "Error: Division by zero."
		r.Failed = true
		return r
	}

	margin := numerator / denominator * 100
	health := "concerning"
	switch {
	case margin > 20:
		health = "healthy"
	case margin > 10:
		health = "moderate"
	}

	r.Result = fmt.Sprintf("%.1f%%", margin)
	r.Interpretation = fmt.Sprintf("%s margin of %.1f%% is considered %s for capital markets.", label, margin, health)
	return r
}

// Leverage computes the Net Debt-to-EBITDA ratio.
func Leverage(netDebt, ebitda float64) domain.CalculationResult {
	r := domain.CalculationResult{
		Calculation: "Leverage Ratio",
		Formula:     "Net Debt / EBITDA",
		Inputs:      fmt.Sprintf("Net Debt=%g, EBITDA=%g", netDebt, ebitda),
	}
	if ebitda == 0 {
		r.Result = "Error: Division by zero (EBITDA is 0)."
		r.Failed = true
		return r
	}

	ratio := netDebt / ebitda
	risk := "high"
	switch {
	case ratio < 1.5:
		risk = "low"
	case ratio < 2.5:
		risk = "moderate"
	case ratio < 3.5:
		risk = "elevated"
	}

	r.Result = fmt.Sprintf("%.2fx", ratio)
	r.Interpretation = fmt.Sprintf("Leverage of %.2fx is %s. Industry threshold is typically 2.5x.", ratio, risk)
	return r
}
