package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/notargets/FVProblem/level"
	"github.com/notargets/FVProblem/problem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `grid:
  dim: 32
  box_dim: 8
  ghosts: 1
  boundary: periodic
  ranks: 4
  strategy: morton
problem:
  a: 0
  b: 1
  coefficients: constant
  workers: 2
device:
  mode: Serial
`)

	config, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 32, config.Grid.Dim)
	assert.Equal(t, 8, config.Grid.BoxDim)
	assert.Equal(t, level.Periodic, config.Grid.Boundary)
	assert.Equal(t, 4, config.Grid.Ranks)
	assert.Equal(t, level.SpaceFillingCurve, config.Grid.Strategy)
	assert.Equal(t, problem.ConstantCoefficient, config.Problem.Coefficients)
	assert.Equal(t, 2, config.Problem.Workers)
	assert.Equal(t, "Serial", config.Device.Mode)
	assert.InDelta(t, 1.0/32, config.H(), 0)

	lb := config.LevelBuilder()
	assert.Equal(t, level.Periodic, lb.BC)
	assert.Equal(t, level.SpaceFillingCurve, lb.Strategy)
	assert.Equal(t, problem.Config{Coefficients: problem.ConstantCoefficient, Workers: 2}, config.InitializerConfig())
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `grid:
  dim: 16
`)

	config, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 16, config.Grid.Dim)
	assert.Equal(t, 16, config.Grid.BoxDim)
	assert.Equal(t, 1, config.Grid.Ranks)
	assert.Equal(t, level.Dirichlet, config.Grid.Boundary)
	assert.Equal(t, problem.VariableCoefficient, config.Problem.Coefficients)
	assert.Equal(t, 1.0, config.Problem.B)
	assert.Empty(t, config.Device.Mode)
}

func TestLoad_FileNotFound(t *testing.T) {
	config, err := Load("/nonexistent/run.yaml")
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_InvalidEnums(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"boundary", "grid:\n  boundary: neumann\n"},
		{"strategy", "grid:\n  strategy: hilbert\n"},
		{"coefficients", "problem:\n  coefficients: piecewise\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
			assert.Nil(t, config)
			assert.Contains(t, err.Error(), "failed to parse YAML")
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *RunConfig)
		wantErr string
	}{
		{"default", func(c *RunConfig) {}, ""},
		{"uneven boxes", func(c *RunConfig) { c.Grid.BoxDim = 12 }, "not a multiple"},
		{"zero dim", func(c *RunConfig) { c.Grid.Dim = 0 }, "invalid geometry"},
		{"too many ranks", func(c *RunConfig) { c.Grid.Ranks = 100 }, "64 boxes but 100 ranks"},
		{"negative ranks", func(c *RunConfig) { c.Grid.Ranks = -1 }, "grid.ranks"},
		{"negative workers", func(c *RunConfig) { c.Problem.Workers = -2 }, "problem.workers"},
		{"device", func(c *RunConfig) { c.Device.Mode = "HIP" }, "unknown device mode"},
		{"cuda plane", func(c *RunConfig) { c.Grid.BoxDim = 64; c.Device.Mode = "CUDA" }, "4096 cells in a plane"},
		{"opencl plane", func(c *RunConfig) { c.Grid.BoxDim = 64; c.Device.Mode = "OpenCL" }, "OpenCL allows 1024"},
		{"cuda small boxes", func(c *RunConfig) { c.Grid.BoxDim = 32; c.Device.Mode = "CUDA" }, ""},
		{"openmp large boxes", func(c *RunConfig) { c.Grid.BoxDim = 64; c.Device.Mode = "OpenMP" }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_FillsRanks(t *testing.T) {
	c := Default()
	c.Grid.Ranks = 0
	require.NoError(t, c.Validate())
	assert.Equal(t, 1, c.Grid.Ranks)
}

func TestEnumsMarshalAsNames(t *testing.T) {
	c := Default()
	c.Grid.Boundary = level.Periodic
	c.Grid.Strategy = level.RoundRobin
	c.Problem.Coefficients = problem.ConstantCoefficient

	data, err := yaml.Marshal(c)
	require.NoError(t, err)
	assert.Contains(t, string(data), "boundary: periodic")
	assert.Contains(t, string(data), "strategy: roundrobin")
	assert.Contains(t, string(data), "coefficients: constant")

	var decoded RunConfig
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, *c, decoded)
}
