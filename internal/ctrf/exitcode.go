package ctrf

import "regexp"

// Exit codes of the external test executor. The table is a fixed external
// contract: 0 and 1 mean tests ran (possibly failing); everything else means
// the executor itself failed and the run must be scored as an
// infrastructure failure regardless of any parsed report content.
const (
	ExitOK               = 0 // all tests passed
	ExitTestsFailed      = 1 // some tests failed
	ExitInterrupted      = 2 // run interrupted
	ExitInternalError    = 3 // executor internal error
	ExitUsageError       = 4 // invalid invocation
	ExitNoTestsCollected = 5 // zero tests discovered
)

// Reason codes attached to results for non-{0,1} exits.
const (
	ReasonInterrupted      = "GB_E_INTERRUPTED"
	ReasonInternalError    = "GB_E_INTERNAL_ERROR"
	ReasonUsageError       = "GB_E_USAGE_ERROR"
	ReasonNoTestsCollected = "GB_E_NO_TESTS_COLLECTED"
	ReasonBadExitCode      = "GB_E_BAD_EXIT_CODE"
	ReasonBadReport        = "GB_E_BAD_REPORT"
	ReasonZeroTests        = "GB_E_ZERO_TESTS"
)

// InfraExitCode reports whether code means the executor itself failed.
// Unknown codes (signals, OOM kills) count as infrastructure failures too.
func InfraExitCode(code int) bool {
	return code != ExitOK && code != ExitTestsFailed
}

// ExitReason maps an infrastructure exit code to its reason code; ok is
// false for the two non-infrastructure codes.
func ExitReason(code int) (string, bool) {
	switch code {
	case ExitOK, ExitTestsFailed:
		return "", false
	case ExitInterrupted:
		return ReasonInterrupted, true
	case ExitInternalError:
		return ReasonInternalError, true
	case ExitUsageError:
		return ReasonUsageError, true
	case ExitNoTestsCollected:
		return ReasonNoTestsCollected, true
	default:
		return ReasonBadExitCode, true
	}
}

var reCollected = regexp.MustCompile(`collected (\d+) items?`)

// CollectedFromOutput scans executor stdout for the collection line
// ("collected N items"). It is a secondary zero-discovery signal next to
// exit code 5; ok is false when no collection line is present.
func CollectedFromOutput(stdout string) (int, bool) {
	m := reCollected.FindStringSubmatch(stdout)
	if m == nil {
		return 0, false
	}
	n := 0
	for _, ch := range m[1] {
		n = n*10 + int(ch-'0')
	}
	return n, true
}
