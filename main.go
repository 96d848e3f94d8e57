package main

import (
	"log"

	"github.com/samuelfneumann/airhockey/environment/envconfig"
	"github.com/samuelfneumann/airhockey/experiment"
)

func main() {
	var seed uint64 = 192382

	config := experiment.Config{
		Alg:         experiment.SAC,
		Environment: envconfig.Defend,
		NEpochs:     100,
		NSteps:      4000,
		NStepsTest:  3000,

		// Set AgentPath to a saved checkpoint, for example
		// "agents/air_hockey_defend.msh", to skip training and watch
		// the saved agent play
		AgentPath: "",

		Seed: seed,
	}

	if err := experiment.Run(config); err != nil {
		log.Fatal(err)
	}
}
