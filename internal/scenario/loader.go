package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/p13marc/netimpaird/internal/netem"
	"github.com/p13marc/netimpaird/internal/xerrors"
)

// fileStep mirrors spec.md §6's scenario file step object: a duration
// string in the §4.8 grammar and a tc_config whose keys are each optional,
// presence meaning "enabled".
type fileStep struct {
	Duration    string        `yaml:"duration"`
	Description string        `yaml:"description"`
	TcConfig    fileNetemSpec `yaml:"tc_config"`
}

type fileNetemSpec struct {
	Loss      *netem.Loss      `yaml:"loss"`
	Delay     *netem.Delay     `yaml:"delay"`
	Duplicate *netem.Duplicate `yaml:"duplicate"`
	Reorder   *netem.Reorder   `yaml:"reorder"`
	Corrupt   *netem.Corrupt   `yaml:"corrupt"`
	RateLimit *netem.Rate      `yaml:"rate_limit"`
}

func (f fileNetemSpec) toConfig() netem.Config {
	return netem.Config{
		Loss:      f.Loss,
		Delay:     f.Delay,
		Duplicate: f.Duplicate,
		Reorder:   f.Reorder,
		Corrupt:   f.Corrupt,
		Rate:      f.RateLimit,
	}
}

// fileDefinition mirrors spec.md §6's top-level scenario file object.
type fileDefinition struct {
	Id               string         `yaml:"id"`
	Name             string         `yaml:"name"`
	Description      string         `yaml:"description"`
	LoopScenario     bool           `yaml:"loop_scenario"`
	CleanupOnFailure *bool          `yaml:"cleanup_on_failure"`
	Metadata         map[string]any `yaml:"metadata"`
	Steps            []fileStep     `yaml:"steps"`
}

// ParseFile parses raw scenario-file bytes (YAML or JSON, both accepted by
// gopkg.in/yaml.v3) into a validated Definition. cleanup_on_failure defaults
// to true when the key is absent from the file, per spec.md §3.
func ParseFile(data []byte) (Definition, error) {
	var f fileDefinition
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Definition{}, xerrors.Wrap(xerrors.InvalidScenario, "parse scenario file", err)
	}

	steps := make([]Step, 0, len(f.Steps))
	for i, fs := range f.Steps {
		d, err := ParseDuration(fs.Duration)
		if err != nil {
			return Definition{}, xerrors.Wrap(xerrors.InvalidScenario, fmt.Sprintf("step %d duration", i), err)
		}
		steps = append(steps, Step{
			Description: fs.Description,
			Duration:    d,
			Config:      fs.TcConfig.toConfig(),
		})
	}

	cleanup := true
	if f.CleanupOnFailure != nil {
		cleanup = *f.CleanupOnFailure
	}

	def := Definition{
		Id:               f.Id,
		Name:             f.Name,
		Description:      f.Description,
		Loop:             f.LoopScenario,
		CleanupOnFailure: cleanup,
		Steps:            steps,
	}
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// LoadDir reads every .yaml/.yml/.json file in dir, parses each as a
// scenario definition, and returns the set keyed by scenario id. A file that
// fails to parse is skipped with its error collected rather than aborting
// the whole directory load, so one malformed preset does not take down
// every other scenario on the host.
func LoadDir(dir string) (map[string]Definition, []error) {
	out := make(map[string]Definition)
	var errs []error

	entries, err := os.ReadDir(dir)
	if err != nil {
		return out, []error{xerrors.Wrap(xerrors.IoError, "read scenario directory", err)}
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		def, err := ParseFile(data)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		out[def.Id] = def
	}
	return out, errs
}
