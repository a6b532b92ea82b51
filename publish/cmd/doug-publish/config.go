package main

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"net"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/cosmo-local-credit/doug/publish"
	"github.com/cosmo-local-credit/doug/publish/tracing"
)

const (
	defaultRPCHost   = "127.0.0.1"
	defaultRPCPort   = "8545"
	defaultGasFeeCap = 2_000_000_000
	defaultGasTipCap = 1_000_000_000
)

func (a *app) setDefaults() {
	tc := tracing.DefaultConfig()
	a.v.SetDefault("rpc-host", defaultRPCHost)
	a.v.SetDefault("rpc-port", defaultRPCPort)
	a.v.SetDefault("gas-fee-cap", defaultGasFeeCap)
	a.v.SetDefault("gas-tip-cap", defaultGasTipCap)
	a.v.SetDefault("report-format", "table")
	a.v.SetDefault("tracing.exporter", tc.Exporter)
	a.v.SetDefault("tracing.otlp_endpoint", tc.OTLPEndpoint)
	a.v.SetDefault("tracing.sample_rate", tc.SampleRate)
	a.v.SetDefault("tracing.service_name", tc.ServiceName)
}

func (a *app) bindEnv() {
	for key, env := range map[string]string{
		"rpc-url":     "RPC_URL",
		"rpc-host":    "TALLYSTICKS_RPC_HOST",
		"rpc-port":    "TALLYSTICKS_RPC_PORT",
		"chain-id":    "CHAIN_ID",
		"private-key": "PRIVATE_KEY",
		"gas-fee-cap": "GAS_FEE_CAP",
		"gas-tip-cap": "GAS_TIP_CAP",
	} {
		_ = a.v.BindEnv(key, env)
	}
}

// rpcURL prefers an explicit URL over host and port.
func (a *app) rpcURL() string {
	if u := strings.TrimSpace(a.v.GetString("rpc-url")); u != "" {
		return u
	}
	host := strings.TrimSpace(a.v.GetString("rpc-host"))
	if host == "" {
		host = defaultRPCHost
	}
	port := strings.TrimSpace(a.v.GetString("rpc-port"))
	if port == "" {
		port = defaultRPCPort
	}
	return "http://" + net.JoinHostPort(host, port)
}

func (a *app) chainConfig() (publish.Config, error) {
	cfg := publish.Config{
		RPCURL:    a.rpcURL(),
		ChainID:   a.v.GetInt64("chain-id"),
		GasFeeCap: big.NewInt(a.v.GetInt64("gas-fee-cap")),
		GasTipCap: big.NewInt(a.v.GetInt64("gas-tip-cap")),
	}
	if raw := strings.TrimSpace(a.v.GetString("private-key")); raw != "" {
		key, _, err := parsePrivateKey(raw)
		if err != nil {
			return publish.Config{}, err
		}
		cfg.PrivateKey = key
	}
	return cfg, nil
}

func (a *app) tracingConfig() tracing.Config {
	return tracing.Config{
		Enabled:      a.v.GetBool("tracing.enabled"),
		Exporter:     a.v.GetString("tracing.exporter"),
		FilePath:     a.v.GetString("tracing.file_path"),
		OTLPEndpoint: a.v.GetString("tracing.otlp_endpoint"),
		SampleRate:   a.v.GetFloat64("tracing.sample_rate"),
		ServiceName:  a.v.GetString("tracing.service_name"),
	}
}

func parsePrivateKey(v string) (*ecdsa.PrivateKey, common.Address, error) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "0x")
	key, err := crypto.HexToECDSA(v)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("parse private key: %w", err)
	}
	return key, crypto.PubkeyToAddress(key.PublicKey), nil
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// stringList reads key as a list, accepting both a YAML sequence and a
// comma separated string.
func (a *app) stringList(key string) []string {
	var out []string
	for _, s := range a.v.GetStringSlice(key) {
		out = append(out, splitCSV(s)...)
	}
	return out
}
