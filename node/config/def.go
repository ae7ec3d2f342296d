package config

import (
	"encoding"
	"time"
)

// Common is config shared by every transferd service
type Common struct {
	API    API
	Libp2p Libp2p
}

// Transferd is the transfer manager daemon config
type Transferd struct {
	Common

	Transfer Transfer
	Journal  Journal
}

// // Common

// API contains configs for API endpoint
type API struct {
	ListenAddress string
	Timeout       Duration
}

// Libp2p contains configs for libp2p
type Libp2p struct {
	// Binding addresses for the libp2p host - 0 means random port.
	// Format: multiaddress; see https://multiformats.io/multiaddr/
	ListenAddresses []string

	// ConnMgrLow is the number of connections that the basic connection
	// manager will trim down to.
	ConnMgrLow uint
	// ConnMgrHigh is the number of connections that, when exceeded, will
	// trigger a connection GC operation.
	ConnMgrHigh uint
	// ConnMgrGrace is a time duration that new connections are immune from
	// being closed by the connection manager.
	ConnMgrGrace Duration
}

// // Transferd

// Transfer controls the worker that advances transfer processes
type Transfer struct {
	// Maximum processes pulled from the store per state on a single pass
	BatchSize int
	// Pacing between idle passes: "fixed" or "backoff"
	WaitStrategy string
	// Sleep between idle passes; the base interval for "backoff"
	PollInterval Duration
	// Upper bound for the "backoff" strategy
	MaxPollInterval Duration
	// When non-zero, processes stuck in PROVISIONING longer than this are
	// handed to the staleness handler. Zero disables the check.
	StaleTimeout Duration
}

type Journal struct {
	//Events of the form: "system1:event1,system1:event2[,...]"
	DisabledEvents string
}

func defCommon() Common {
	return Common{
		API: API{
			ListenAddress: "/ip4/127.0.0.1/tcp/3456/http",
			Timeout:       Duration(30 * time.Second),
		},
		Libp2p: Libp2p{
			ListenAddresses: []string{
				"/ip4/0.0.0.0/tcp/0",
				"/ip6/::/tcp/0",
			},

			ConnMgrLow:   150,
			ConnMgrHigh:  180,
			ConnMgrGrace: Duration(20 * time.Second),
		},
	}

}

// DefaultTransferd returns the default daemon config
func DefaultTransferd() *Transferd {
	return &Transferd{
		Common: defCommon(),

		Transfer: Transfer{
			BatchSize:       5,
			WaitStrategy:    "fixed",
			PollInterval:    Duration(5 * time.Second),
			MaxPollInterval: Duration(time.Minute),
		},
	}
}

var _ encoding.TextMarshaler = (*Duration)(nil)
var _ encoding.TextUnmarshaler = (*Duration)(nil)

// Duration is a wrapper type for time.Duration
// for decoding and encoding from/to TOML
type Duration time.Duration

// UnmarshalText implements interface for TOML decoding
func (dur *Duration) UnmarshalText(text []byte) error {
	d, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*dur = Duration(d)
	return err
}

func (dur Duration) MarshalText() ([]byte, error) {
	d := time.Duration(dur)
	return []byte(d.String()), nil
}
