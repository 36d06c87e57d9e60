package level

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseBoundaryCondition parses "dirichlet" or "periodic"
func ParseBoundaryCondition(s string) (BoundaryCondition, error) {
	switch s {
	case "dirichlet", "":
		return Dirichlet, nil
	case "periodic":
		return Periodic, nil
	}
	return 0, fmt.Errorf("unknown boundary condition %q", s)
}

// ParseStrategy parses "block", "roundrobin" or "morton"
func ParseStrategy(s string) (DecompositionStrategy, error) {
	switch s {
	case "block", "":
		return BlockPartition, nil
	case "roundrobin":
		return RoundRobin, nil
	case "morton":
		return SpaceFillingCurve, nil
	}
	return 0, fmt.Errorf("unknown decomposition strategy %q", s)
}

func (bc *BoundaryCondition) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseBoundaryCondition(s)
	if err != nil {
		return err
	}
	*bc = parsed
	return nil
}

func (bc BoundaryCondition) MarshalYAML() (interface{}, error) {
	return bc.String(), nil
}

func (s *DecompositionStrategy) UnmarshalYAML(value *yaml.Node) error {
	var name string
	if err := value.Decode(&name); err != nil {
		return err
	}
	parsed, err := ParseStrategy(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s DecompositionStrategy) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}
