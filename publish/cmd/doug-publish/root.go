package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// errChildFailures is returned by deploy --strict when a child failed.
var errChildFailures = errors.New("child contracts failed")

type app struct {
	v      *viper.Viper
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "doug-publish",
		Short:         "Compile, deploy and register contracts with a registry contract",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.bindFlags(cmd.Flags()); err != nil {
				return err
			}
			if err := a.readConfig(); err != nil {
				return err
			}
			logger, err := newLogger(cmd.ErrOrStderr(), a.v.GetString("log-format"), a.v.GetString("log-level"))
			if err != nil {
				return err
			}
			a.logger = logger
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringP("config", "c", "", "YAML config file")
	pf.String("log-format", "text", "log format: text or json")
	pf.String("log-level", "info", "log level: debug, info, warn or error")

	a.setDefaults()
	a.bindEnv()

	root.AddCommand(a.newDeployCmd(), a.newLoadCmd(), a.newHistoryCmd())
	return root
}

// readConfig merges the optional config file under flags and env.
func (a *app) readConfig() error {
	path := a.v.GetString("config")
	if path == "" {
		return nil
	}
	a.v.SetConfigFile(path)
	if err := a.v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

func newLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

// addChainFlags registers the endpoint and signing flags shared by commands
// that talk to a node.
func addChainFlags(fs *pflag.FlagSet) {
	fs.String("rpc-url", "", "JSON-RPC endpoint, overrides the host and port")
	fs.String("rpc-host", "", "JSON-RPC host")
	fs.String("rpc-port", "", "JSON-RPC port")
	fs.Int64("chain-id", 0, "chain id, fetched from the node when zero")
	fs.String("private-key", "", "hex private key; without it the node's first account signs")
	fs.Int64("gas-fee-cap", 0, "EIP-1559 fee cap in wei")
	fs.Int64("gas-tip-cap", 0, "EIP-1559 tip cap in wei")
	fs.Duration("timeout", 0, "overall deadline, zero for none")
}

var tracingFlags = map[string]string{
	"trace":               "tracing.enabled",
	"trace-exporter":      "tracing.exporter",
	"trace-file":          "tracing.file_path",
	"trace-otlp-endpoint": "tracing.otlp_endpoint",
}

// addTracingFlags registers the OpenTelemetry exporter flags.
func addTracingFlags(fs *pflag.FlagSet) {
	fs.Bool("trace", false, "export deployment spans")
	fs.String("trace-exporter", "", "span exporter: none, stdout, file or otlp")
	fs.String("trace-file", "", "JSONL span file for the file exporter")
	fs.String("trace-otlp-endpoint", "", "collector endpoint for the otlp exporter")
}

// bindFlags binds every flag under its own name, and the tracing flags under
// the nested keys used in the config file.
func (a *app) bindFlags(fs *pflag.FlagSet) error {
	if err := a.v.BindPFlags(fs); err != nil {
		return err
	}
	for name, key := range tracingFlags {
		if f := fs.Lookup(name); f != nil {
			if err := a.v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	return nil
}
