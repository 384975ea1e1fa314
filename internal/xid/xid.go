package xid

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// New returns a prefixed identifier that sorts by creation time.
func New(prefix string) string {
	id, err := uuid.NewRandom()
	if err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), strings.ReplaceAll(id.String(), "-", "")[:12])
}

// Short is the six character reference printed on documents and log lines.
func Short(id string) string {
	trimmed := strings.ReplaceAll(id, "-", "")
	if len(trimmed) > 6 {
		trimmed = trimmed[len(trimmed)-6:]
	}
	return strings.ToUpper(trimmed)
}
