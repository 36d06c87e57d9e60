package problem

import (
	"fmt"
	"runtime"

	"gopkg.in/yaml.v3"
)

// CoefficientMode selects between the constant and variable coefficient
// problem. It is fixed for the lifetime of an Initializer.
type CoefficientMode uint8

const (
	VariableCoefficient CoefficientMode = iota
	ConstantCoefficient
)

func (m CoefficientMode) String() string {
	switch m {
	case VariableCoefficient:
		return "variable"
	case ConstantCoefficient:
		return "constant"
	default:
		return fmt.Sprintf("coefficients(%d)", m)
	}
}

// ParseCoefficientMode parses "variable" or "constant"
func ParseCoefficientMode(s string) (CoefficientMode, error) {
	switch s {
	case "variable", "":
		return VariableCoefficient, nil
	case "constant":
		return ConstantCoefficient, nil
	}
	return 0, fmt.Errorf("unknown coefficient mode %q", s)
}

func (m *CoefficientMode) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	mode, err := ParseCoefficientMode(s)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

func (m CoefficientMode) MarshalYAML() (interface{}, error) {
	return m.String(), nil
}

// Config holds the build-time options of the problem setup
type Config struct {
	Coefficients CoefficientMode `yaml:"coefficients"`
	Workers      int             `yaml:"workers,omitempty"` // Parallel plane tasks per box, 0 = GOMAXPROCS
}

// workers returns the effective task limit
func (c Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}
