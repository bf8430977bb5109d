package dispatch

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/quarryhq/quarry/internal/model"
)

// ErrAllBackendsFailed is the match target for round-fatal failures
var ErrAllBackendsFailed = errors.New("all research backends failed")

// AllFailedError carries every backend's failure detail for a round in
// which no backend succeeded.
type AllFailedError struct {
	Failures map[string]string // backend name -> failure detail
}

func (e *AllFailedError) Error() string {
	if len(e.Failures) == 0 {
		return ErrAllBackendsFailed.Error()
	}

	names := make([]string, 0, len(e.Failures))
	for name := range e.Failures {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.Failures[name]))
	}
	return fmt.Sprintf("%s: %s", ErrAllBackendsFailed, strings.Join(parts, "; "))
}

func (e *AllFailedError) Is(target error) bool {
	return target == ErrAllBackendsFailed
}

// AllFailed inspects a completed round. It returns nil if any backend
// succeeded, and an *AllFailedError enumerating the failures otherwise.
func AllFailed(results []model.BackendResult) error {
	failures := make(map[string]string, len(results))
	for _, r := range results {
		if r.Status == model.ResultOK {
			return nil
		}
		failures[r.BackendName] = r.ErrorDetail
	}
	return &AllFailedError{Failures: failures}
}
