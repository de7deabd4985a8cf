package evt

import (
	"github.com/asaskevich/EventBus"
)

const (
	// ValidationFinished fires after every completed validation run.
	// Parameters: domain (string), status (string), source (string)
	ValidationFinished = "validation:finished"

	// ValidationDANEChecked fires after a TLSA/DANE check was performed.
	// Parameters: domain (string), daneStatus (string), recordsFound (int)
	ValidationDANEChecked = "validation:daneChecked"
)

// nolint
var evtBus = EventBus.New()

func Bus() EventBus.Bus {
	return evtBus
}
