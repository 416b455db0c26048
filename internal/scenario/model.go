// Package scenario defines validated scenario/step objects (C8) and the
// per-target timed executor that drives them (C9).
package scenario

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/p13marc/netimpaird/internal/netem"
	"github.com/p13marc/netimpaird/internal/xerrors"
)

// maxTotalDuration bounds the sum of every step's duration across the whole
// scenario, per spec.md §4.8.
const maxTotalDuration = 24 * time.Hour

// durationPattern matches the compound grammar [Nh][Nm][Ns][Nms], components
// concatenated in that order and each optional but at least one required.
// Decimals and unknown suffixes are rejected by requiring the entire string
// to match and every numeric run to be a plain, non-empty integer.
var durationPattern = regexp.MustCompile(`^(?:(\d+)h)?(?:(\d+)m)?(?:(\d+)s)?(?:(\d+)ms)?$`)

// ParseDuration parses the scenario step duration grammar: an ordered
// concatenation of hour/minute/second/millisecond components, each a
// positive integer, at least one present. "30s", "1m30s", "500ms", and "1h"
// are all valid; "1.5s", "30", and "" are rejected.
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, xerrors.New(xerrors.InvalidScenario, "empty duration")
	}
	m := durationPattern.FindStringSubmatch(s)
	if m == nil || allEmpty(m[1:]) {
		return 0, xerrors.New(xerrors.InvalidScenario, fmt.Sprintf("malformed duration %q", s))
	}
	for _, g := range m[1:] {
		if n, _ := strconv.Atoi(g); g != "" && n == 0 {
			return 0, xerrors.New(xerrors.InvalidScenario, fmt.Sprintf("duration %q has a zero component", s))
		}
	}

	var total time.Duration
	if m[1] != "" {
		n, _ := strconv.Atoi(m[1])
		total += time.Duration(n) * time.Hour
	}
	if m[2] != "" {
		n, _ := strconv.Atoi(m[2])
		total += time.Duration(n) * time.Minute
	}
	if m[3] != "" {
		n, _ := strconv.Atoi(m[3])
		total += time.Duration(n) * time.Second
	}
	if m[4] != "" {
		n, _ := strconv.Atoi(m[4])
		total += time.Duration(n) * time.Millisecond
	}
	if total <= 0 {
		return 0, xerrors.New(xerrors.InvalidScenario, fmt.Sprintf("duration %q must be > 0", s))
	}
	return total, nil
}

func allEmpty(groups []string) bool {
	for _, g := range groups {
		if g != "" {
			return false
		}
	}
	return true
}

// Step is one timed entry in a scenario: a NetemConfig to apply (possibly
// empty, meaning "clear") for Duration.
type Step struct {
	Description string
	Duration    time.Duration
	Config      netem.Config
}

// Definition is a validated, typed scenario: an ordered, non-empty sequence
// of steps driven by the executor.
type Definition struct {
	Id                string
	Name              string
	Description       string
	Loop              bool
	CleanupOnFailure  bool
	Steps             []Step
}

// Validate checks every static invariant from spec.md §4.8: non-empty id and
// name, at least one step, every step duration positive, every per-feature
// range valid, and the total scenario duration within the 24h ceiling.
func (d Definition) Validate() error {
	if d.Id == "" {
		return xerrors.New(xerrors.InvalidScenario, "id must not be empty")
	}
	if d.Name == "" {
		return xerrors.New(xerrors.InvalidScenario, "name must not be empty")
	}
	if len(d.Steps) == 0 {
		return xerrors.New(xerrors.InvalidScenario, "scenario must have at least one step")
	}

	var total time.Duration
	for i, s := range d.Steps {
		if s.Duration <= 0 {
			return xerrors.New(xerrors.InvalidScenario, fmt.Sprintf("step %d: duration must be > 0", i))
		}
		if s.Description == "" {
			return xerrors.New(xerrors.InvalidScenario, fmt.Sprintf("step %d: description must not be empty", i))
		}
		if err := s.Config.Validate(); err != nil {
			return xerrors.Wrap(xerrors.InvalidScenario, fmt.Sprintf("step %d: netem config", i), err)
		}
		total += s.Duration
	}
	if total > maxTotalDuration {
		return xerrors.New(xerrors.InvalidScenario, fmt.Sprintf("total duration %s exceeds 24h ceiling", total))
	}
	return nil
}
