package problem

import "errors"

// Configuration error codes. Configuration problems are fatal for the
// checkpoint they affect and are reported before any executor invocation.
const (
	CodeConfig          = "GB_E_CONFIG"
	CodeMissingTestFile = "GB_E_MISSING_TEST_FILE"
)

type ConfigError struct {
	Code    string
	Message string
}

func (e *ConfigError) Error() string { return e.Message }

func IsConfigError(err error, code string) bool {
	var e *ConfigError
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
