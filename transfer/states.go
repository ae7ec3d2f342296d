package transfer

import "fmt"

// ProcessState is the lifecycle state of a transfer process. The numeric
// codes are stable and shared with other connector implementations; gaps
// leave room for intermediate states.
type ProcessState int

const (
	StateUnsaved        ProcessState = 0
	StateInitial        ProcessState = 100
	StateProvisioning   ProcessState = 200
	StateProvisioned    ProcessState = 300
	StateRequested      ProcessState = 400
	StateRequestedAck   ProcessState = 500
	StateInProgress     ProcessState = 600
	StateCompleted      ProcessState = 800
	StateDeprovisioning ProcessState = 900
	StateDeprovisioned  ProcessState = 950
	StateEnded          ProcessState = 999
	StateError          ProcessState = -1
)

// StateNames maps states to their canonical wire names.
var StateNames = map[ProcessState]string{
	StateUnsaved:        "UNSAVED",
	StateInitial:        "INITIAL",
	StateProvisioning:   "PROVISIONING",
	StateProvisioned:    "PROVISIONED",
	StateRequested:      "REQUESTED",
	StateRequestedAck:   "REQUESTED_ACK",
	StateInProgress:     "IN_PROGRESS",
	StateCompleted:      "COMPLETED",
	StateDeprovisioning: "DEPROVISIONING",
	StateDeprovisioned:  "DEPROVISIONED",
	StateEnded:          "ENDED",
	StateError:          "ERROR",
}

func (s ProcessState) String() string {
	if name, ok := StateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ProcessState(%d)", int(s))
}

// Terminal reports whether no further work will be scheduled for a process
// in this state.
func (s ProcessState) Terminal() bool {
	return s == StateError || s >= StateCompleted
}

// ParseState resolves a canonical state name, as accepted on the API
// surface. Returns false for unknown names.
func ParseState(name string) (ProcessState, bool) {
	for s, n := range StateNames {
		if n == name {
			return s, true
		}
	}
	return StateUnsaved, false
}
