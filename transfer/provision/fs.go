package provision

import (
	"context"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/dataspace-labs/go-transfermgr/transfer"
)

// FileResourceType marks resources staged on the local filesystem.
const FileResourceType = "file"

// FileDestinationGenerator requests a staging directory for client
// processes that target a file destination. Other destination types are
// left to their own generators.
type FileDestinationGenerator struct{}

var _ ResourceGenerator = FileDestinationGenerator{}

func (FileDestinationGenerator) Generate(ctx context.Context, p *transfer.TransferProcess) (*transfer.ResourceDefinition, error) {
	req := p.DataRequest
	if req == nil || req.Destination == nil || req.Destination.Type != FileResourceType {
		return nil, nil
	}
	path := req.Destination.Properties["path"]
	if path == "" {
		return nil, xerrors.Errorf("file destination of process %s has no path", p.ID)
	}
	return &transfer.ResourceDefinition{
		ID:         uuid.New().String(),
		Type:       FileResourceType,
		Properties: map[string]string{"path": path},
	}, nil
}

// FileProvisioner creates the parent directory of a file destination.
type FileProvisioner struct{}

var _ Provisioner = FileProvisioner{}

func (FileProvisioner) CanProvision(def transfer.ResourceDefinition) bool {
	return def.Type == FileResourceType
}

func (FileProvisioner) Provision(ctx context.Context, def transfer.ResourceDefinition) (transfer.ProvisionedResource, error) {
	path := def.Properties["path"]
	if path == "" {
		return transfer.ProvisionedResource{}, xerrors.Errorf("file resource %s has no path", def.ID)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return transfer.ProvisionedResource{}, xerrors.Errorf("creating staging dir for %s: %w", path, err)
	}
	return transfer.ProvisionedResource{
		ID:           uuid.New().String(),
		DefinitionID: def.ID,
		Type:         FileResourceType,
		Properties:   map[string]string{"path": path},
	}, nil
}
