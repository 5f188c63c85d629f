// Package config loads workflow definitions from YAML and compiles them
// into immutable graphs plus a guard registry, ready to hand to the
// engine at process start.
//
// Guards declared in configuration are limited to a small set of builtin,
// context-driven predicate types; guards with host-side logic are
// registered in code through the guard package instead.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gatewright/passage"
	"github.com/gatewright/passage/pkg/domain"
	"github.com/gatewright/passage/pkg/guard"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

var (
	// ErrNoGraphs indicates the configuration declares no graphs.
	ErrNoGraphs = errors.New("config: at least one graph is required")
	// ErrDuplicateGraph indicates two graphs share a name.
	ErrDuplicateGraph = errors.New("config: duplicate graph")
	// ErrGuardTypeUnknown indicates a guard declares an unsupported type.
	ErrGuardTypeUnknown = errors.New("config: unknown guard type")
	// ErrGuardNameRequired indicates a guard entry without a name.
	ErrGuardNameRequired = errors.New("config: guard name required")
	// ErrGuardParamsInvalid indicates guard params failed to decode or validate.
	ErrGuardParamsInvalid = errors.New("config: invalid guard params")
)

// Config is the root YAML document.
type Config struct {
	LogCap int           `yaml:"log_cap"`
	Graphs []GraphConfig `yaml:"graphs"`
}

// GraphConfig declares one workflow graph.
type GraphConfig struct {
	Name        string             `yaml:"name"`
	Initial     string             `yaml:"initial"`
	States      []string           `yaml:"states"`
	Transitions []TransitionConfig `yaml:"transitions"`
}

// TransitionConfig declares one named transition.
type TransitionConfig struct {
	Name   string        `yaml:"name"`
	From   StringList    `yaml:"from"`
	To     string        `yaml:"to"`
	Guards []GuardConfig `yaml:"guards"`
}

// GuardConfig declares a builtin guard bound to its transition.
type GuardConfig struct {
	Name   string         `yaml:"name"`
	Type   string         `yaml:"type"`
	Params map[string]any `yaml:"params"`
}

// StringList accepts either a YAML scalar or a sequence, so single-source
// transitions can be written as `from: idle`.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var single string
		if err := value.Decode(&single); err != nil {
			return err
		}
		*l = StringList{single}
		return nil
	default:
		var many []string
		if err := value.Decode(&many); err != nil {
			return err
		}
		*l = StringList(many)
		return nil
	}
}

// Compiled is the ready-to-use output of Compile.
type Compiled struct {
	LogCap int
	Graphs []*domain.Graph
	Guards *guard.Registry
}

// Options renders the compiled configuration as engine options.
func (c *Compiled) Options() []passage.Option {
	opts := []passage.Option{passage.WithGuards(c.Guards)}
	if c.LogCap > 0 {
		opts = append(opts, passage.WithLogCap(c.LogCap))
	}
	for _, g := range c.Graphs {
		opts = append(opts, passage.WithGraph(g))
	}
	return opts
}

// Load reads and compiles a YAML configuration file.
func Load(path string) (*Compiled, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals and compiles a YAML document.
func Parse(data []byte) (*Compiled, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse yaml: %w", err)
	}
	return Compile(cfg)
}

// Compile validates the configuration and builds graphs and guards.
func Compile(cfg Config) (*Compiled, error) {
	if len(cfg.Graphs) == 0 {
		return nil, ErrNoGraphs
	}

	compiled := &Compiled{
		LogCap: cfg.LogCap,
		Guards: guard.NewRegistry(),
	}

	seen := make(map[string]struct{}, len(cfg.Graphs))
	for _, gc := range cfg.Graphs {
		name := strings.TrimSpace(gc.Name)
		if _, exists := seen[name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateGraph, name)
		}
		seen[name] = struct{}{}

		spec := domain.GraphSpec{
			Name:    gc.Name,
			Initial: gc.Initial,
			States:  gc.States,
		}
		for _, tc := range gc.Transitions {
			spec.Transitions = append(spec.Transitions, domain.TransitionSpec{
				Name: tc.Name,
				From: tc.From,
				To:   tc.To,
			})
		}

		g, err := domain.NewGraph(spec)
		if err != nil {
			return nil, err
		}
		compiled.Graphs = append(compiled.Graphs, g)

		for _, tc := range gc.Transitions {
			for _, guardCfg := range tc.Guards {
				fn, err := compileGuard(guardCfg)
				if err != nil {
					return nil, fmt.Errorf("graph %s, transition %s: %w", g.Name(), tc.Name, err)
				}
				compiled.Guards.Register(g.Name(), tc.Name, guardCfg.Name, fn)
			}
		}
	}

	return compiled, nil
}

// Lint reports non-fatal findings: currently, states unreachable from the
// initial state. A finding is a warning, not an error, because partial
// graphs are legitimate while a workflow is being rolled out.
func (c *Compiled) Lint() []string {
	var warnings []string
	for _, g := range c.Graphs {
		reachable := map[string]bool{g.Initial(): true}
		for changed := true; changed; {
			changed = false
			for _, t := range g.Transitions() {
				if reachable[t.To] {
					continue
				}
				for from := range t.From {
					if reachable[from] {
						reachable[t.To] = true
						changed = true
						break
					}
				}
			}
		}
		for _, state := range g.States() {
			if !reachable[state] {
				warnings = append(warnings, fmt.Sprintf(
					"graph %q: state %q is unreachable from initial state %q",
					g.Name(), state, g.Initial()))
			}
		}
	}
	return warnings
}

type contextFlagParams struct {
	Key     string `mapstructure:"key"`
	Message string `mapstructure:"message"`
}

type contextEqualsParams struct {
	Key     string `mapstructure:"key"`
	Value   any    `mapstructure:"value"`
	Message string `mapstructure:"message"`
}

// compileGuard builds a builtin guard from its declaration.
func compileGuard(cfg GuardConfig) (guard.Func, error) {
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, ErrGuardNameRequired
	}

	switch cfg.Type {
	case "context_flag":
		var p contextFlagParams
		if err := mapstructure.Decode(cfg.Params, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGuardParamsInvalid, err)
		}
		if p.Key == "" {
			return nil, fmt.Errorf("%w: context_flag requires a key", ErrGuardParamsInvalid)
		}
		message := p.Message
		if message == "" {
			message = fmt.Sprintf("required flag %q is not set", p.Key)
		}
		return func(ctx context.Context, in guard.Input) error {
			if ok, _ := in.Context[p.Key].(bool); !ok {
				return &domain.GuardError{Reason: message}
			}
			return nil
		}, nil

	case "context_equals":
		var p contextEqualsParams
		if err := mapstructure.Decode(cfg.Params, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGuardParamsInvalid, err)
		}
		if p.Key == "" {
			return nil, fmt.Errorf("%w: context_equals requires a key", ErrGuardParamsInvalid)
		}
		message := p.Message
		if message == "" {
			message = fmt.Sprintf("context value %q does not match", p.Key)
		}
		return func(ctx context.Context, in guard.Input) error {
			if in.Context[p.Key] != p.Value {
				return &domain.GuardError{Reason: message}
			}
			return nil
		}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrGuardTypeUnknown, cfg.Type)
	}
}
