package storage

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	ChangeRequestPrefix    = "DCR"
	CorrectiveActionPrefix = "CAPA"
)

// IDGenerator issues case identifiers of the form PREFIX-YYYYMMDD-XXXXXXXX.
type IDGenerator struct {
	Now func() time.Time
}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{Now: time.Now}
}

// New returns a fresh identifier. Two calls never share the random suffix
// except by uuid collision.
func (g *IDGenerator) New(prefix string) string {
	now := time.Now
	if g != nil && g.Now != nil {
		now = g.Now
	}
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return prefix + "-" + now().Format("20060102") + "-" + suffix
}
