package ids

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var reBatchID = regexp.MustCompile(`^[0-9]{8}-[0-9]{6}Z-[0-9a-f]{8}$`)

// NewBatchID returns YYYYMMDD-HHMMSSZ-<uuid8>, sortable by start time and
// unique across concurrent batch runs.
func NewBatchID(now time.Time) string {
	prefix := now.UTC().Format("20060102-150405Z")
	return prefix + "-" + uuid.NewString()[:8]
}

func IsValidBatchID(s string) bool {
	return reBatchID.MatchString(strings.TrimSpace(s))
}
