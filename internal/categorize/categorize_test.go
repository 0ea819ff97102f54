package categorize

import (
	"testing"

	"github.com/gradebench/gradebench/internal/report"
)

func TestResolve_RuleOrder(t *testing.T) {
	custom := map[string]report.Category{
		"perf":  report.CategoryFunctionality,
		"crash": report.CategoryError,
	}

	cases := []struct {
		name        string
		originOrder int
		targetOrder int
		markers     []string
		want        report.Category
	}{
		{"default is core", 3, 3, nil, report.CategoryCore},
		{"functionality marker", 3, 3, []string{"functionality"}, report.CategoryFunctionality},
		{"error marker", 3, 3, []string{"error"}, report.CategoryError},
		{"regression marker", 3, 3, []string{"regression"}, report.CategoryRegression},
		{"custom marker maps", 3, 3, []string{"perf"}, report.CategoryFunctionality},
		{"custom marker error category", 3, 3, []string{"crash"}, report.CategoryError},
		{"error beats custom", 3, 3, []string{"crash", "error"}, report.CategoryError},
		{"error beats functionality", 3, 3, []string{"functionality", "error"}, report.CategoryError},
		{"regression beats custom", 3, 3, []string{"perf", "regression"}, report.CategoryRegression},
		{"earlier origin wins over error marker", 1, 3, []string{"error"}, report.CategoryRegression},
		{"earlier origin wins over custom marker", 2, 3, []string{"perf"}, report.CategoryRegression},
		{"earlier origin wins with no markers", 1, 2, nil, report.CategoryRegression},
		{"unresolved origin treated as current", 0, 3, nil, report.CategoryCore},
		{"same order is not regression", 3, 3, []string{"functionality"}, report.CategoryFunctionality},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Resolve(tc.originOrder, tc.targetOrder, tc.markers, custom)
			if got != tc.want {
				t.Fatalf("Resolve(%d, %d, %v) = %s, want %s", tc.originOrder, tc.targetOrder, tc.markers, got, tc.want)
			}
		})
	}
}

func TestResolve_NoCustomMarkers(t *testing.T) {
	if got := Resolve(2, 2, []string{"unknown"}, nil); got != report.CategoryCore {
		t.Fatalf("unknown marker should fall through to Core, got %s", got)
	}
}

func TestKnownMarkers(t *testing.T) {
	known := KnownMarkers(map[string]report.Category{"perf": report.CategoryFunctionality})
	for _, m := range []string{"error", "regression", "functionality", "perf"} {
		if !known[m] {
			t.Fatalf("expected %q to be known", m)
		}
	}
	if known["parametrize"] {
		t.Fatalf("unexpected marker in known set")
	}
}
