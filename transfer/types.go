package transfer

import (
	"fmt"

	cbor "github.com/ipfs/go-ipld-cbor"
)

func init() {
	cbor.RegisterCborType(TransferProcess{})
	cbor.RegisterCborType(DataRequest{})
	cbor.RegisterCborType(DataAddress{})
	cbor.RegisterCborType(ResourceManifest{})
	cbor.RegisterCborType(ResourceDefinition{})
	cbor.RegisterCborType(ProvisionedResource{})
	cbor.RegisterCborType(ProvisionedResourceSet{})
}

// ProcessType designates which side of a transfer a process drives.
type ProcessType int

const (
	// Client processes request data from a remote provider connector.
	Client ProcessType = iota
	// Provider processes serve data to a remote client connector.
	Provider
)

func (t ProcessType) String() string {
	switch t {
	case Client:
		return "CLIENT"
	case Provider:
		return "PROVIDER"
	default:
		return fmt.Sprintf("ProcessType(%d)", int(t))
	}
}

// DataAddress names a location data can be read from or written to, with
// opaque type-specific properties.
type DataAddress struct {
	Type       string
	Properties map[string]string
}

// DataRequest describes a single data transfer to perform. A request is
// created by the originating party and travels with the process; on the
// provider side it is reconstructed from the wire message.
type DataRequest struct {
	// ID is the request correlation id, stable across connectors.
	ID string
	// ProcessID backreferences the owning transfer process. Assigned at
	// intake, never sent on the wire.
	ProcessID string
	// ConnectorAddress is the multiaddr of the counterparty connector the
	// request is dispatched to. Only meaningful on the client side.
	ConnectorAddress string
	// Protocol selects the dispatcher used to deliver the request.
	Protocol string
	// ConnectorID identifies the counterparty connector.
	ConnectorID string
	// DatasetID names the data to transfer.
	DatasetID string
	// Destination is where the data should end up.
	Destination *DataAddress
	// ManagedResources is false when the destination already exists and no
	// provisioning is required.
	ManagedResources bool
}

// ResourceDefinition declares a resource that must exist before a transfer
// can begin.
type ResourceDefinition struct {
	ID         string
	Type       string
	Properties map[string]string
}

// ResourceManifest is the set of resources to provision for a process.
type ResourceManifest struct {
	Definitions []ResourceDefinition
}

// ProvisionedResource records the outcome of provisioning one definition.
type ProvisionedResource struct {
	ID           string
	DefinitionID string
	Type         string
	Error        bool
	ErrorMessage string
	Properties   map[string]string
}

// ProvisionedResourceSet collects the resources provisioned for a process
// so far.
type ProvisionedResourceSet struct {
	Resources []ProvisionedResource
}

// ResponseStatus is the outcome class of an intake operation.
type ResponseStatus int

const (
	// OK means the process was created and queued.
	OK ResponseStatus = iota
	// FatalError means the request was rejected and must not be retried.
	FatalError
	// ErrorRetry means a transient failure, the caller may retry.
	ErrorRetry
)

// InitiateResponse is returned by the intake operations. ID is the id of
// the newly created process.
type InitiateResponse struct {
	ID     string
	Status ResponseStatus
}
