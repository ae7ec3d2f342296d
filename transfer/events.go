package transfer

// Event is a notification code for a process lifecycle change.
type Event uint64

const (
	EventCreated Event = iota
	EventProvisioning
	EventProvisioned
	EventRequested
	EventRequestAck
	EventInProgress
	EventError
	EventStale
)

// Events maps event codes to readable names for logging and journaling.
var Events = map[Event]string{
	EventCreated:      "Created",
	EventProvisioning: "Provisioning",
	EventProvisioned:  "Provisioned",
	EventRequested:    "Requested",
	EventRequestAck:   "RequestAck",
	EventInProgress:   "InProgress",
	EventError:        "Error",
	EventStale:        "Stale",
}

func (e Event) String() string {
	if name, ok := Events[e]; ok {
		return name
	}
	return "Unknown"
}

// Subscriber is notified of process events with a snapshot of the process
// taken at event time. Subscribers run on the manager's dispatch path and
// must not block.
type Subscriber func(event Event, p TransferProcess)

// Unsubscribe detaches a previously registered Subscriber.
type Unsubscribe func()
