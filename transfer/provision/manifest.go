package provision

import (
	"context"
	"sync"

	"github.com/dataspace-labs/go-transfermgr/transfer"
)

// ResourceGenerator contributes a resource definition a process will need
// before its transfer can run, or nil if it has nothing to add.
type ResourceGenerator interface {
	Generate(ctx context.Context, p *transfer.TransferProcess) (*transfer.ResourceDefinition, error)
}

// GeneratorFunc adapts a plain function to ResourceGenerator.
type GeneratorFunc func(ctx context.Context, p *transfer.TransferProcess) (*transfer.ResourceDefinition, error)

func (f GeneratorFunc) Generate(ctx context.Context, p *transfer.TransferProcess) (*transfer.ResourceDefinition, error) {
	return f(ctx, p)
}

// Generators derives resource manifests from two registries of generators,
// one consulted for client processes and one for provider processes.
type Generators struct {
	lk       sync.RWMutex
	client   []ResourceGenerator
	provider []ResourceGenerator
}

var _ transfer.ManifestGenerator = (*Generators)(nil)

func NewGenerators() *Generators {
	return &Generators{}
}

func (g *Generators) RegisterClientGenerator(gen ResourceGenerator) {
	g.lk.Lock()
	defer g.lk.Unlock()
	g.client = append(g.client, gen)
}

func (g *Generators) RegisterProviderGenerator(gen ResourceGenerator) {
	g.lk.Lock()
	defer g.lk.Unlock()
	g.provider = append(g.provider, gen)
}

func (g *Generators) GenerateClientManifest(ctx context.Context, p *transfer.TransferProcess) (*transfer.ResourceManifest, error) {
	g.lk.RLock()
	gens := g.client
	g.lk.RUnlock()
	return generate(ctx, gens, p)
}

func (g *Generators) GenerateProviderManifest(ctx context.Context, p *transfer.TransferProcess) (*transfer.ResourceManifest, error) {
	g.lk.RLock()
	gens := g.provider
	g.lk.RUnlock()
	return generate(ctx, gens, p)
}

func generate(ctx context.Context, gens []ResourceGenerator, p *transfer.TransferProcess) (*transfer.ResourceManifest, error) {
	manifest := &transfer.ResourceManifest{}
	for _, gen := range gens {
		def, err := gen.Generate(ctx, p)
		if err != nil {
			return nil, err
		}
		if def == nil {
			continue
		}
		manifest.Definitions = append(manifest.Definitions, *def)
	}
	return manifest, nil
}
