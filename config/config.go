package config

import (
	"fmt"
	"os"

	"github.com/notargets/FVProblem/level"
	"github.com/notargets/FVProblem/problem"
	"gopkg.in/yaml.v3"
)

// RunConfig represents the top-level run.yaml configuration
type RunConfig struct {
	Grid    GridConfig    `yaml:"grid"`
	Problem ProblemConfig `yaml:"problem"`
	Device  DeviceConfig  `yaml:"device,omitempty"`
	Log     LogConfig     `yaml:"log,omitempty"`
}

// GridConfig describes the level and its decomposition
type GridConfig struct {
	Dim      int                         `yaml:"dim"`     // Global cells per side
	BoxDim   int                         `yaml:"box_dim"` // Cells per box side
	Ghosts   int                         `yaml:"ghosts"`
	Boundary level.BoundaryCondition     `yaml:"boundary"`
	Ranks    int                         `yaml:"ranks,omitempty"` // In-process ranks, default 1
	Strategy level.DecompositionStrategy `yaml:"strategy,omitempty"`
}

// ProblemConfig holds the operator scalars and the coefficient mode
type ProblemConfig struct {
	A            float64                 `yaml:"a"`
	B            float64                 `yaml:"b"`
	Coefficients problem.CoefficientMode `yaml:"coefficients"`
	Workers      int                     `yaml:"workers,omitempty"`
}

// DeviceConfig selects an OCCA device. An empty mode populates on the host.
type DeviceConfig struct {
	Mode string `yaml:"mode,omitempty"` // "", Serial, OpenMP, CUDA or OpenCL
}

type LogConfig struct {
	Verbose bool `yaml:"verbose,omitempty"`
}

// Default returns a 64³ Dirichlet Poisson run on one rank
func Default() *RunConfig {
	return &RunConfig{
		Grid: GridConfig{
			Dim:      64,
			BoxDim:   16,
			Ghosts:   1,
			Boundary: level.Dirichlet,
			Ranks:    1,
			Strategy: level.BlockPartition,
		},
		Problem: ProblemConfig{
			A:            0,
			B:            1,
			Coefficients: problem.VariableCoefficient,
		},
	}
}

// deviceModes maps each accepted device mode to the work items its @inner
// blocks allow, 0 for no limit. The device kernel runs one k plane of a box
// per block.
var deviceModes = map[string]int{
	"":       0,
	"Serial": 0,
	"OpenMP": 0,
	"CUDA":   1024,
	"OpenCL": 1024,
}

// Validate checks the geometry and device selection and fills defaults
func (c *RunConfig) Validate() error {
	if c.Grid.Ranks == 0 {
		c.Grid.Ranks = 1
	}
	if c.Grid.Ranks < 0 {
		return fmt.Errorf("grid.ranks must be >= 1, got %d", c.Grid.Ranks)
	}
	if c.Problem.Workers < 0 {
		return fmt.Errorf("problem.workers must be >= 0 (0 = GOMAXPROCS), got %d", c.Problem.Workers)
	}
	limit, ok := deviceModes[c.Device.Mode]
	if !ok {
		return fmt.Errorf("unknown device mode %q (expected Serial, OpenMP, CUDA or OpenCL)", c.Device.Mode)
	}
	if plane := c.Grid.BoxDim * c.Grid.BoxDim; limit > 0 && plane > limit {
		return fmt.Errorf("box_dim %d puts %d cells in a plane but %s allows %d work items per block",
			c.Grid.BoxDim, plane, c.Device.Mode, limit)
	}

	layout, err := c.LevelBuilder().BuildLayout()
	if err != nil {
		return fmt.Errorf("grid: %w", err)
	}
	if layout.NumBoxes < c.Grid.Ranks {
		return fmt.Errorf("grid has %d boxes but %d ranks were requested", layout.NumBoxes, c.Grid.Ranks)
	}
	return nil
}

// LevelBuilder returns the decomposition described by the grid section
func (c *RunConfig) LevelBuilder() *level.LevelBuilder {
	return &level.LevelBuilder{
		Dim:      c.Grid.Dim,
		BoxDim:   c.Grid.BoxDim,
		Ghosts:   c.Grid.Ghosts,
		BC:       c.Grid.Boundary,
		NumRanks: c.Grid.Ranks,
		Strategy: c.Grid.Strategy,
	}
}

// InitializerConfig returns the initializer options
func (c *RunConfig) InitializerConfig() problem.Config {
	return problem.Config{
		Coefficients: c.Problem.Coefficients,
		Workers:      c.Problem.Workers,
	}
}

// H returns the cell width of the level
func (c *RunConfig) H() float64 {
	return 1.0 / float64(c.Grid.Dim)
}

// Load reads, parses and validates a run file. Keys missing from the file
// keep their Default values.
func Load(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}
