// Package deploy resolves the registry contract, deploys child contracts and
// registers them with the registry.
package deploy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/cosmo-local-credit/doug/publish"
	"github.com/cosmo-local-credit/doug/publish/artifact"
	"github.com/cosmo-local-credit/doug/publish/classify"
	"github.com/cosmo-local-credit/doug/publish/contracts/registry"
	"github.com/cosmo-local-credit/doug/publish/state"
)

const DefaultPollInterval = 2 * time.Second

type (
	Config struct {
		Client publish.ChainClient
		// Sender overrides the client's default sending identity.
		Sender    common.Address
		Addresses state.AddressSink
		Blocks    state.BlockMarkerSink
		Recorder  Recorder
		Logger    *slog.Logger
		Tracer    trace.Tracer

		PollInterval time.Duration
		// ConfirmTimeout bounds the wait for each transaction. Zero waits
		// until ctx is done.
		ConfirmTimeout time.Duration
		// Concurrency caps in-flight child deployments. Zero is unbounded.
		Concurrency int
	}

	Orchestrator struct {
		client    publish.ChainClient
		sender    common.Address
		addresses state.AddressSink
		blocks    state.BlockMarkerSink
		recorder  Recorder
		logger    *slog.Logger
		tracer    trace.Tracer

		pollInterval   time.Duration
		confirmTimeout time.Duration
		concurrency    int
	}

	childResult struct {
		contract DeployedContract
		err      *Error
	}
)

func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		client:         cfg.Client,
		sender:         cfg.Sender,
		addresses:      cfg.Addresses,
		blocks:         cfg.Blocks,
		recorder:       cfg.Recorder,
		logger:         cfg.Logger,
		tracer:         cfg.Tracer,
		pollInterval:   cfg.PollInterval,
		confirmTimeout: cfg.ConfirmTimeout,
		concurrency:    cfg.Concurrency,
	}
	if o.addresses == nil {
		o.addresses = state.Discard{}
	}
	if o.blocks == nil {
		o.blocks = state.Discard{}
	}
	if o.recorder == nil {
		o.recorder = nopRecorder{}
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.tracer == nil {
		o.tracer = noop.NewTracerProvider().Tracer("deploy")
	}
	if o.pollInterval <= 0 {
		o.pollInterval = DefaultPollInterval
	}
	return o
}

// Run resolves the registry, then deploys and registers every artifact named
// in childNames. Configuration and connectivity failures before the child
// phase are returned as errors; child failures are recorded in the session.
func (o *Orchestrator) Run(ctx context.Context, main Main, childNames []string, artifacts artifact.Set) (*Session, error) {
	ctx, span := o.tracer.Start(ctx, "deploy.run", trace.WithAttributes(
		attribute.String("main.name", main.Name),
		attribute.StringSlice("children", childNames),
	))
	defer span.End()

	s := newSession()
	res, err := o.Resolve(ctx, main, artifacts)
	if err != nil {
		s.FinishedAt = time.Now().UTC()
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve registry")
		return s, err
	}
	s.Mode = res.Mode
	s.Registry = res.Registry
	s.RegistryCreated = res.Created
	s.RegistryBlock = res.MarkerBlock
	s.Pending = selectChildren(childNames, artifacts)
	for _, name := range s.Pending {
		s.Roles[name] = classify.Classify(artifacts[name])
	}

	results := make([]childResult, len(s.Pending))
	var g errgroup.Group
	if o.concurrency > 0 {
		g.SetLimit(o.concurrency)
	}
	for i, name := range s.Pending {
		g.Go(func() error {
			results[i] = o.deployChild(ctx, artifacts[name], res.Registry.Address, res.Sender)
			return nil
		})
	}
	_ = g.Wait()

	for i, name := range s.Pending {
		if r := results[i]; r.err != nil {
			s.Failures[name] = r.err
		} else {
			s.Completed[name] = r.contract
		}
	}
	s.FinishedAt = time.Now().UTC()

	if s.Failed() {
		o.logger.Warn("some child contracts failed",
			"session", s.ID, "completed", len(s.Completed), "failed", len(s.Failures))
		span.SetStatus(codes.Error, "partial failure")
	} else {
		o.logger.Info("deployment finished", "session", s.ID, "completed", len(s.Completed))
	}
	if err := o.recorder.Record(ctx, s); err != nil {
		o.logger.Error("record deployment", "session", s.ID, "error", err)
	}
	return s, nil
}

// selectChildren keeps the order of names, dropping duplicates and names that
// have no artifact.
func selectChildren(names []string, artifacts artifact.Set) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if _, ok := artifacts[name]; !ok {
			continue
		}
		out = append(out, name)
	}
	return out
}

func (o *Orchestrator) deployChild(ctx context.Context, a *artifact.CompiledArtifact, registryAddr, sender common.Address) childResult {
	ctx, span := o.tracer.Start(ctx, "deploy.child", trace.WithAttributes(attribute.String("contract", a.Name)))
	defer span.End()

	fail := func(err *Error) childResult {
		o.logger.Error("child contract failed", "contract", a.Name, "kind", err.Kind, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Kind.String())
		return childResult{err: err}
	}

	// Reject names the registry cannot hold before anything is created.
	if _, err := registry.NameToBytes32(a.Name); err != nil {
		return fail(newError(KindConfiguration, a.Name, "invalid registry key", err))
	}

	created, cerr := o.create(ctx, a.Name, a.Bytecode, sender)
	if cerr != nil {
		return fail(cerr)
	}
	span.SetAttributes(attribute.String("address", created.ContractAddress.Hex()))

	calldata, err := registry.EncodeAddContract(a.Name, created.ContractAddress)
	if err != nil {
		return fail(newError(KindConfiguration, a.Name, "encode addContract", err))
	}
	if !o.client.IsConnected(ctx) {
		return fail(newError(KindConnectivity, a.Name, "chain client unreachable before registration", nil))
	}
	txHash, err := o.client.SendTransaction(ctx, registryAddr, calldata, sender, registry.RegisterGasLimit)
	if err != nil {
		return fail(newError(KindTransactionRejected, a.Name, "send addContract", err))
	}
	if _, werr := o.await(ctx, a.Name, txHash, false); werr != nil {
		return fail(werr)
	}

	block := created.BlockNumber
	dc := DeployedContract{
		Role:            classify.Classify(a),
		Name:            a.Name,
		Address:         created.ContractAddress,
		DeployedAtBlock: &block,
		TxHash:          created.Hash,
	}
	o.logger.Info("Deployed child contract", "contract", a.Name, "address", dc.Address.Hex())
	return childResult{contract: dc}
}

// create sends a contract creation and waits until it has an address.
func (o *Orchestrator) create(ctx context.Context, name string, bytecode []byte, sender common.Address) (publish.TxResult, *Error) {
	if !o.client.IsConnected(ctx) {
		return publish.TxResult{}, newError(KindConnectivity, name, "chain client unreachable before creation", nil)
	}
	txHash, err := o.client.CreateContract(ctx, bytecode, sender, registry.CreateGasLimit)
	if err != nil {
		return publish.TxResult{}, newError(KindTransactionRejected, name, "create contract", err)
	}
	return o.await(ctx, name, txHash, true)
}

// await polls until the transaction leaves the pending state. A creation
// that reports success without an address is still pending.
func (o *Orchestrator) await(ctx context.Context, name string, txHash common.Hash, creation bool) (publish.TxResult, *Error) {
	if o.confirmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.confirmTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		res, err := o.client.TxStatus(ctx, txHash)
		if err != nil {
			if ctx.Err() != nil {
				return publish.TxResult{}, o.waitErr(ctx, name, txHash)
			}
			return publish.TxResult{}, newError(KindConnectivity, name, "poll transaction "+txHash.Hex(), err)
		}
		switch res.State {
		case publish.TxFailed:
			return res, newError(KindTransactionRejected, name, "transaction "+txHash.Hex()+" failed", res.Err)
		case publish.TxSucceeded:
			if !creation || res.ContractAddress != (common.Address{}) {
				return res, nil
			}
		}

		select {
		case <-ctx.Done():
			return publish.TxResult{}, o.waitErr(ctx, name, txHash)
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) waitErr(ctx context.Context, name string, txHash common.Hash) *Error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return newError(KindTimeout, name, "waiting for transaction "+txHash.Hex(), ctx.Err())
	}
	return newError(KindConnectivity, name, "waiting for transaction "+txHash.Hex(), ctx.Err())
}
