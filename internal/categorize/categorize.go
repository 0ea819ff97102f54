// Package categorize assigns a scoring category to every parsed test.
// Resolution is an explicit ordered rule list over the declared marker set
// and an explicit custom-marker table; no registry, no reflection.
package categorize

import (
	"slices"

	"github.com/gradebench/gradebench/internal/report"
)

// Resolve returns the category for one test. Rules apply in order, first
// match wins:
//
//  1. origin checkpoint precedes the target -> Regression, overriding every
//     marker (a test imported from an earlier checkpoint is always a
//     backward-compatibility check for the current run)
//  2. reserved "error" marker -> Error
//  3. reserved "regression" marker -> Regression
//  4. any marker present in customMarkers -> its mapped category
//  5. reserved "functionality" marker -> Functionality
//  6. default -> Core
//
// originOrder 0 means the origin could not be resolved and the test is
// treated as belonging to the target checkpoint.
func Resolve(originOrder, targetOrder int, markers []string, customMarkers map[string]report.Category) report.Category {
	if originOrder > 0 && originOrder < targetOrder {
		return report.CategoryRegression
	}
	if slices.Contains(markers, report.MarkerError) {
		return report.CategoryError
	}
	if slices.Contains(markers, report.MarkerRegression) {
		return report.CategoryRegression
	}
	for _, m := range markers {
		if cat, ok := customMarkers[m]; ok {
			return cat
		}
	}
	if slices.Contains(markers, report.MarkerFunctionality) {
		return report.CategoryFunctionality
	}
	return report.CategoryCore
}

// KnownMarkers returns the reserved markers plus the problem's custom ones;
// the detailed report format lists every pytest keyword, so parsed keyword
// sets are filtered down to this set before resolution.
func KnownMarkers(customMarkers map[string]report.Category) map[string]bool {
	out := map[string]bool{
		report.MarkerError:         true,
		report.MarkerRegression:    true,
		report.MarkerFunctionality: true,
	}
	for m := range customMarkers {
		out[m] = true
	}
	return out
}
