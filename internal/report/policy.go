package report

import (
	"fmt"
	"strings"
)

// PassPolicy maps category counts to a checkpoint verdict.
type PassPolicy string

const (
	// PolicyAnyCase passes when at least one test of any category passed.
	PolicyAnyCase PassPolicy = "any-case"
	// PolicyAllCases passes when every populated category is fully passing.
	PolicyAllCases PassPolicy = "all-cases"
	// PolicyAllNonErrorCases is all-cases with the Error category excluded.
	PolicyAllNonErrorCases PassPolicy = "all-non-error-cases"
	// PolicyCoreCases passes when every Core test passed. Default.
	PolicyCoreCases PassPolicy = "core-cases"
	// PolicyAnyCoreCases passes when at least one Core test passed.
	PolicyAnyCoreCases PassPolicy = "any-core-cases"
)

const DefaultPolicy = PolicyCoreCases

func ParsePolicy(s string) (PassPolicy, error) {
	p := PassPolicy(strings.TrimSpace(strings.ToLower(s)))
	if p == "" {
		return DefaultPolicy, nil
	}
	switch p {
	case PolicyAnyCase, PolicyAllCases, PolicyAllNonErrorCases, PolicyCoreCases, PolicyAnyCoreCases:
		return p, nil
	}
	return "", fmt.Errorf("unknown pass policy %q", s)
}

func Policies() []PassPolicy {
	return []PassPolicy{PolicyAnyCase, PolicyAllCases, PolicyAllNonErrorCases, PolicyCoreCases, PolicyAnyCoreCases}
}

// PolicyOptions carries the documented knob for the zero-Core edge case:
// with RequireCoreTests false (default), core-cases is vacuously satisfied
// when a checkpoint defines no Core tests; with it true, zero Core tests
// fail the core policies.
type PolicyOptions struct {
	RequireCoreTests bool
}

// Evaluate is the pure verdict function. An infrastructure failure fails
// every policy unconditionally, including when all counts are zero.
func (p PassPolicy) Evaluate(passCounts, totalCounts map[Category]int, infrastructureFailure bool, opts PolicyOptions) bool {
	if infrastructureFailure {
		return false
	}

	var totalPassed, totalTests int
	var nonErrPassed, nonErrTests int
	for _, c := range Categories() {
		passed, tests := passCounts[c], totalCounts[c]
		totalPassed += passed
		totalTests += tests
		if c != CategoryError {
			nonErrPassed += passed
			nonErrTests += tests
		}
	}
	corePassed, coreTests := passCounts[CategoryCore], totalCounts[CategoryCore]

	switch p {
	case PolicyAnyCase:
		return totalPassed > 0
	case PolicyAllCases:
		return totalPassed == totalTests
	case PolicyAllNonErrorCases:
		return nonErrPassed == nonErrTests
	case PolicyCoreCases:
		if opts.RequireCoreTests && coreTests == 0 {
			return false
		}
		return corePassed == coreTests
	case PolicyAnyCoreCases:
		if opts.RequireCoreTests && coreTests == 0 {
			return false
		}
		return corePassed > 0
	default:
		return false
	}
}
