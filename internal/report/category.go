// Package report defines the result model for one checkpoint evaluation:
// per-test outcomes, category counts, pass policies, and the persisted
// artifacts built from them.
package report

// Category classifies one test for scoring purposes. The set is closed;
// problem-declared custom markers map into one of these four.
type Category string

const (
	// CategoryCore tests must pass for checkpoint success under the
	// default policy; any unmarked test of the current checkpoint.
	CategoryCore Category = "Core"
	// CategoryFunctionality covers nice-to-have behavior.
	CategoryFunctionality Category = "Functionality"
	// CategoryError covers error-handling and edge-case behavior.
	CategoryError Category = "Error"
	// CategoryRegression covers tests originating from prior checkpoints.
	CategoryRegression Category = "Regression"
)

// Categories returns the closed set in stable order.
func Categories() []Category {
	return []Category{CategoryCore, CategoryFunctionality, CategoryError, CategoryRegression}
}

func (c Category) Valid() bool {
	switch c {
	case CategoryCore, CategoryFunctionality, CategoryError, CategoryRegression:
		return true
	}
	return false
}

// Reserved marker names with fixed categorization semantics.
const (
	MarkerError         = "error"
	MarkerRegression    = "regression"
	MarkerFunctionality = "functionality"
)
