package deploy

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/cosmo-local-credit/doug/publish/artifact"
	"github.com/cosmo-local-credit/doug/publish/classify"
)

// Resolution is the registry a run registers children with.
type Resolution struct {
	Mode     RegistryMode
	Registry DeployedContract
	Created  bool
	// MarkerBlock is the height recorded before the registry was created.
	MarkerBlock *uint64
	Sender      common.Address
}

// Resolve creates the registry or attaches to an existing one. Attaching
// issues no transactions and trusts the supplied address.
func (o *Orchestrator) Resolve(ctx context.Context, main Main, artifacts artifact.Set) (Resolution, error) {
	ctx, span := o.tracer.Start(ctx, "deploy.resolve")
	defer span.End()

	res, rerr := o.resolve(ctx, main, artifacts)
	if rerr != nil {
		span.RecordError(rerr)
		span.SetStatus(codes.Error, rerr.Kind.String())
		return Resolution{}, rerr
	}
	span.SetAttributes(
		attribute.String("registry.mode", res.Mode.String()),
		attribute.String("registry.address", res.Registry.Address.Hex()),
	)
	return res, nil
}

func (o *Orchestrator) resolve(ctx context.Context, main Main, artifacts artifact.Set) (Resolution, *Error) {
	mode, err := ParseMode(main)
	if err != nil {
		e, _ := AsError(err)
		return Resolution{}, e
	}
	a, ok := artifacts[main.Name]
	if !ok {
		return Resolution{}, newError(KindConfiguration, main.Name, "main contract not found in contracts file", nil)
	}

	if !o.client.IsConnected(ctx) {
		return Resolution{}, newError(KindConnectivity, "", "chain client unreachable", nil)
	}
	sender := o.sender
	if sender == (common.Address{}) {
		sender, err = o.client.DefaultSender(ctx)
		if err != nil {
			return Resolution{}, newError(KindConnectivity, "", "resolve default sender", err)
		}
	}

	res := Resolution{Mode: mode, Sender: sender}
	switch m := mode.(type) {
	case AttachTo:
		res.Registry = DeployedContract{Role: classify.Classify(a), Name: a.Name, Address: m.Address}
		o.logger.Info("Using main contract", "contract", a.Name, "address", m.Address.Hex())
		return res, nil
	case Create:
		return o.createRegistry(ctx, res, a)
	default:
		return Resolution{}, newError(KindConfiguration, main.Name, "unknown registry mode", nil)
	}
}

func (o *Orchestrator) createRegistry(ctx context.Context, res Resolution, a *artifact.CompiledArtifact) (Resolution, *Error) {
	role := classify.Classify(a)
	if role != classify.Registry {
		o.logger.Warn("main contract does not look like a registry", "contract", a.Name, "role", role)
	}

	if !o.client.IsConnected(ctx) {
		return Resolution{}, newError(KindConnectivity, a.Name, "chain client unreachable before creation", nil)
	}
	height, err := o.client.BlockNumber(ctx)
	if err != nil {
		return Resolution{}, newError(KindConnectivity, a.Name, "read block height", err)
	}
	if err := o.blocks.WriteBlock(height); err != nil {
		return Resolution{}, newError(KindPersistence, a.Name, "record block marker", err)
	}

	created, cerr := o.create(ctx, a.Name, a.Bytecode, res.Sender)
	if cerr != nil {
		return Resolution{}, cerr
	}
	if err := o.addresses.WriteAddress(created.ContractAddress); err != nil {
		return Resolution{}, newError(KindPersistence, a.Name, "record registry address", err)
	}

	block := created.BlockNumber
	res.Created = true
	res.MarkerBlock = &height
	res.Registry = DeployedContract{
		Role:            role,
		Name:            a.Name,
		Address:         created.ContractAddress,
		DeployedAtBlock: &block,
		TxHash:          created.Hash,
	}
	o.logger.Info("Deployed main contract", "contract", a.Name, "address", created.ContractAddress.Hex(), "marker_block", height)
	return res, nil
}
