package envconfig

import (
	"testing"

	"github.com/samuelfneumann/airhockey/environment"
)

func TestCreateKnownEnvironments(t *testing.T) {
	for _, name := range []EnvName{Hit, Defend} {
		config := NewConfig(name, 120, 0.99, 4)

		env, step, err := config.Create(14)
		if err != nil {
			t.Fatalf("could not create environment %v: %v", name, err)
		}

		if !step.First() {
			t.Errorf("%v: environment did not start on the first "+
				"timestep", name)
		}
		if env.ObservationSpec().Shape.Len() != 8 {
			t.Errorf("%v: invalid observation size \n\twant(%v) "+
				"\n\thave(%v)", name, 8, env.ObservationSpec().Shape.Len())
		}
		if env.ActionSpec().Shape.Len() != 2 {
			t.Errorf("%v: invalid action size \n\twant(%v) \n\thave(%v)",
				name, 2, env.ActionSpec().Shape.Len())
		}
		if env.ActionSpec().Cardinality != environment.Continuous {
			t.Errorf("%v: actions should be continuous", name)
		}
	}
}

func TestCreateUnknownEnvironment(t *testing.T) {
	config := NewConfig("tennis", 120, 0.99, 4)

	_, _, err := config.Create(14)
	if err == nil {
		t.Error("expected an error for an unknown environment name")
	}
}

func TestValidate(t *testing.T) {
	if err := Hit.Validate(); err != nil {
		t.Errorf("%q should be a valid environment name: %v", Hit, err)
	}
	if err := EnvName("soccer").Validate(); err == nil {
		t.Error("expected an error for an unknown environment name")
	}
}
