// Package initwfn wraps Gorgonia InitWFn so that they can be JSON
// serialized into configuration files.
package initwfn

import (
	"encoding/json"
	"fmt"
	"reflect"

	G "gorgonia.org/gorgonia"
)

// Type describes different types of InitWFn that are available.
// Type is used to implement a basic type system of InitWFn's.
type Type string

// Available InitWFn types
const (
	GlorotU       Type = "GlorotU"
	GlorotN       Type = "GlorotN"
	GlorotUSeeded Type = "GlorotUSeeded"
	Zeroes        Type = "Zeroes"
	Ones          Type = "Ones"
	Constant      Type = "Constant"
)

// configTypes maps initializer types to their concrete Config types
// for JSON unmarshalling
var configTypes map[Type]reflect.Type = map[Type]reflect.Type{
	GlorotU:       reflect.TypeOf(GlorotUConfig{}),
	GlorotN:       reflect.TypeOf(GlorotNConfig{}),
	GlorotUSeeded: reflect.TypeOf(GlorotUSeededConfig{}),
	Zeroes:        reflect.TypeOf(ZeroesConfig{}),
	Ones:          reflect.TypeOf(OnesConfig{}),
	Constant:      reflect.TypeOf(ConstantConfig{}),
}

// Config describes a Gorgonia InitWFn and can create the InitWFn it
// describes
type Config interface {
	// Create returns the Gorgonia InitWFn that the Config describes
	Create() G.InitWFn

	// Type returns the type of Gorgonia InitWFn that is returned
	Type() Type
}

// InitWFn wraps a Gorgonia InitWFn together with the Config that
// created it so that the InitWFn can be marshalled and unmarshalled
// as JSON.
type InitWFn struct {
	initWFn G.InitWFn
	Type
	Config
}

// newInitWFn returns a new InitWFn constructed from the argument
// configuration
func newInitWFn(c Config) (*InitWFn, error) {
	init := InitWFn{Type: c.Type(), Config: c}
	init.initWFn = init.Config.Create()

	return &init, nil
}

// InitWFn returns the wrapped Gorgonia InitWFn
func (w *InitWFn) InitWFn() G.InitWFn {
	return w.initWFn
}

// String implements the fmt.Stringer interface
func (i *InitWFn) String() string {
	return fmt.Sprintf("{%v InitWFn: %v}", i.Type, i.Config)
}

// UnmarshalJSON implements the json.Unmarshaller interface
func (i *InitWFn) UnmarshalJSON(data []byte) error {
	var fields struct {
		Type   Type
		Config json.RawMessage
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	concrete, found := configTypes[fields.Type]
	if !found {
		return fmt.Errorf("unmarshaljson: no such initializer type %q",
			fields.Type)
	}

	config := reflect.New(concrete).Interface().(Config)
	if err := json.Unmarshal(fields.Config, config); err != nil {
		return err
	}

	i.Config = reflect.ValueOf(config).Elem().Interface().(Config)
	i.Type = fields.Type
	i.initWFn = i.Config.Create()
	return nil
}
