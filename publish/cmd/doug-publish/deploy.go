package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cosmo-local-credit/doug/publish"
	"github.com/cosmo-local-credit/doug/publish/artifact"
	"github.com/cosmo-local-credit/doug/publish/deploy"
	"github.com/cosmo-local-credit/doug/publish/history"
	"github.com/cosmo-local-credit/doug/publish/report"
	"github.com/cosmo-local-credit/doug/publish/state"
	"github.com/cosmo-local-credit/doug/publish/tracing"
)

func (a *app) newDeployCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy the main registry and register child contracts with it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runDeploy(cmd)
		},
	}

	fs := cmd.Flags()
	fs.String("name", "", "name of the main registry contract")
	fs.String("address", "", "address of an existing main contract to attach to")
	fs.String("contracts-file", "", "contract definitions written by load")
	fs.String("address-file", "", "file the created main contract address is written to")
	fs.String("block-file", "", "file the block height before main contract creation is written to")
	fs.String("contracts", "", "comma separated child contracts to deploy")
	fs.String("report-format", "table", "report format: table, json or yaml")
	fs.String("history-db", "", "SQLite database recording each deployment")
	fs.Duration("confirm-timeout", 0, "per transaction confirmation deadline, zero for none")
	fs.Duration("poll-interval", deploy.DefaultPollInterval, "transaction receipt poll interval")
	fs.Int("concurrency", 0, "maximum child deployments in flight, zero for unbounded")
	fs.Bool("strict", false, "exit non-zero when any child contract fails")
	addChainFlags(fs)
	addTracingFlags(fs)
	return cmd
}

func (a *app) runDeploy(cmd *cobra.Command) error {
	format, err := report.ParseFormat(a.v.GetString("report-format"))
	if err != nil {
		return err
	}
	contractsFile := strings.TrimSpace(a.v.GetString("contracts-file"))
	if contractsFile == "" {
		return fmt.Errorf("--contracts-file is required")
	}
	artifacts, err := artifact.LoadFile(contractsFile)
	if err != nil {
		return err
	}
	chainCfg, err := a.chainConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if timeout := a.v.GetDuration("timeout"); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	provider, err := tracing.NewProvider(ctx, a.tracingConfig())
	if err != nil {
		return err
	}
	defer func() {
		if err := provider.Shutdown(context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn("flush traces", "error", err)
		}
	}()

	client, err := publish.NewDeployer(ctx, chainCfg)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	cfg := deploy.Config{
		Client:         client,
		Logger:         a.logger,
		Tracer:         provider.Tracer(),
		PollInterval:   a.v.GetDuration("poll-interval"),
		ConfirmTimeout: a.v.GetDuration("confirm-timeout"),
		Concurrency:    a.v.GetInt("concurrency"),
	}
	if path := a.v.GetString("address-file"); path != "" {
		cfg.Addresses = state.AddressFile(path)
	}
	if path := a.v.GetString("block-file"); path != "" {
		cfg.Blocks = state.BlockFile(path)
	}
	if path := a.v.GetString("history-db"); path != "" {
		store, err := history.Open(ctx, path)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		cfg.Recorder = store
	}

	mainContract := deploy.Main{Name: a.v.GetString("name"), Address: a.v.GetString("address")}
	session, err := deploy.New(cfg).Run(ctx, mainContract, a.stringList("contracts"), artifacts)
	if err != nil {
		return err
	}
	if err := report.Write(cmd.OutOrStdout(), session, format); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if a.v.GetBool("strict") && session.Failed() {
		return fmt.Errorf("%w: %d of %d", errChildFailures, len(session.Failures), len(session.Pending))
	}
	return nil
}
