// Package solver wraps Gorgonia Solvers so that they can be JSON
// serialized into configuration files.
package solver

import (
	"encoding/json"
	"fmt"
	"reflect"

	G "gorgonia.org/gorgonia"
)

// Type describes different types of solvers that are available
type Type string

// Available solver types
const (
	Adam    Type = "Adam"
	Vanilla Type = "Vanilla"
)

// configTypes maps solver types to their concrete Config types for
// JSON unmarshalling
var configTypes map[Type]reflect.Type = map[Type]reflect.Type{
	Adam:    reflect.TypeOf(AdamConfig{}),
	Vanilla: reflect.TypeOf(VanillaConfig{}),
}

// Config describes a Gorgonia Solver and can create the Solver it
// describes
type Config interface {
	Create() G.Solver

	// ValidType returns whether a specific Solver type can be created
	// with the Config
	ValidType(Type) bool
}

// Solver wraps a Gorgonia Solver together with the Type and Config
// that created it so that the Solver can be marshalled and
// unmarshalled as JSON.
type Solver struct {
	G.Solver `json:"-"`
	Type
	Config
}

// newSolver returns a new Solver of the given type, constructed from
// the argument configuration
func newSolver(t Type, c Config) (*Solver, error) {
	if !c.ValidType(t) {
		return nil, fmt.Errorf("newSolver: invalid solver type %v for "+
			"configuration %T", t, c)
	}

	solver := Solver{Type: t, Config: c}
	solver.Solver = solver.Config.Create()
	return &solver, nil
}

// UnmarshalJSON implements the json.Unmarshaller interface
func (s *Solver) UnmarshalJSON(data []byte) error {
	var fields struct {
		Type   Type
		Config json.RawMessage
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	concrete, found := configTypes[fields.Type]
	if !found {
		return fmt.Errorf("unmarshaljson: no such solver type %q",
			fields.Type)
	}

	config := reflect.New(concrete).Interface().(Config)
	if err := json.Unmarshal(fields.Config, config); err != nil {
		return err
	}

	s.Type = fields.Type
	s.Config = reflect.ValueOf(config).Elem().Interface().(Config)
	s.Solver = s.Config.Create()
	return nil
}
