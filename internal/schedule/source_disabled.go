//go:build !protogen

package schedule

import (
	"github.com/fbmeirelles/horamarcada/internal/availability"
)

// NewRemoteSource returns a gRPC-backed schedule source when built with the
// protogen tag and generated stubs. In the default build remote schedule
// lookup is disabled and the caller falls back to the local repository.
func NewRemoteSource(_ string) (availability.ScheduleSource, error) {
	return nil, nil
}
