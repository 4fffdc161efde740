package policy

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"Terminal/internal/model"

	"gopkg.in/yaml.v3"
)

// DefaultLane is the lane name every unresolved lane falls back to.
const DefaultLane = "default"

// BuiltinDefault is used for any Default field the configuration leaves unset.
var BuiltinDefault = model.LanePolicy{
	ROASUp:         1.3,
	ROASHold:       1.0,
	ROASDown:       0.8,
	StepUp:         0.2,
	StepDown:       -0.15,
	MaxStepUp:      0.4,
	MaxStepDown:    -0.3,
	PreviewStepCap: 0.05,
}

// Override is a partially specified lane policy as it appears in config.
// Nil fields inherit from the lane it is merged onto.
type Override struct {
	ROASUp         *float64 `yaml:"roas_up"`
	ROASHold       *float64 `yaml:"roas_hold"`
	ROASDown       *float64 `yaml:"roas_down"`
	StepUp         *float64 `yaml:"step_up"`
	StepDown       *float64 `yaml:"step_down"`
	MaxStepUp      *float64 `yaml:"max_step_up"`
	MaxStepDown    *float64 `yaml:"max_step_down"`
	PreviewStepCap *float64 `yaml:"preview_step_cap"`
}

// File is the on-disk shape of a lane table.
type File struct {
	Default Override            `yaml:"default"`
	Lanes   map[string]Override `yaml:"lanes"`
}

// Apply returns base with every set field of o written over it.
func (o Override) Apply(base model.LanePolicy) model.LanePolicy {
	set := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	out := base
	set(&out.ROASUp, o.ROASUp)
	set(&out.ROASHold, o.ROASHold)
	set(&out.ROASDown, o.ROASDown)
	set(&out.StepUp, o.StepUp)
	set(&out.StepDown, o.StepDown)
	set(&out.MaxStepUp, o.MaxStepUp)
	set(&out.MaxStepDown, o.MaxStepDown)
	set(&out.PreviewStepCap, o.PreviewStepCap)
	return out
}

// Validate checks that a policy is internally consistent.
func Validate(p model.LanePolicy) error {
	if !(p.MaxStepDown <= p.StepDown && p.StepDown <= 0) {
		return fmt.Errorf("step_down %.3f must lie in [max_step_down %.3f, 0]", p.StepDown, p.MaxStepDown)
	}
	if !(0 <= p.StepUp && p.StepUp <= p.MaxStepUp) {
		return fmt.Errorf("step_up %.3f must lie in [0, max_step_up %.3f]", p.StepUp, p.MaxStepUp)
	}
	if p.MaxStepDown <= -1 {
		return fmt.Errorf("max_step_down %.3f would zero the budget", p.MaxStepDown)
	}
	if !(p.ROASDown <= p.ROASHold && p.ROASHold <= p.ROASUp) {
		return fmt.Errorf("roas thresholds must satisfy roas_down <= roas_hold <= roas_up (got %.3f, %.3f, %.3f)",
			p.ROASDown, p.ROASHold, p.ROASUp)
	}
	if p.PreviewStepCap < 0 {
		return fmt.Errorf("preview_step_cap must not be negative")
	}
	return nil
}

// Table is a fully merged, read-only lane table.
type Table struct {
	Version  int64
	LoadedAt time.Time

	def   model.LanePolicy
	lanes map[string]model.LanePolicy
}

// Merge builds a Table: the default override is applied to BuiltinDefault, then every
// named lane is applied to the merged default. All merging happens here, once.
func Merge(f File) (*Table, error) {
	def := f.Default.Apply(BuiltinDefault)
	if err := Validate(def); err != nil {
		return nil, fmt.Errorf("lane %q: %w", DefaultLane, err)
	}
	t := &Table{
		LoadedAt: time.Now(),
		def:      def,
		lanes:    make(map[string]model.LanePolicy, len(f.Lanes)),
	}
	for name, o := range f.Lanes {
		key := normalizeLane(name)
		if key == "" || key == DefaultLane {
			continue
		}
		p := o.Apply(def)
		if err := Validate(p); err != nil {
			return nil, fmt.Errorf("lane %q: %w", name, err)
		}
		t.lanes[key] = p
	}
	return t, nil
}

// Resolve returns the policy for lane, or Default when the lane is empty or unknown.
func (t *Table) Resolve(lane string) model.LanePolicy {
	if t == nil {
		return BuiltinDefault
	}
	if p, ok := t.lanes[normalizeLane(lane)]; ok {
		return p
	}
	return t.def
}

// Default returns the merged Default policy.
func (t *Table) Default() model.LanePolicy {
	if t == nil {
		return BuiltinDefault
	}
	return t.def
}

// Lanes returns the configured lane names in sorted order.
func (t *Table) Lanes() []string {
	if t == nil {
		return nil
	}
	names := make([]string, 0, len(t.lanes))
	for name := range t.lanes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadFile reads and merges a YAML lane table.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lane file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse lane file: %w", err)
	}
	return Merge(f)
}

func normalizeLane(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
