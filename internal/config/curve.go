package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"

	"shardcurve/internal/curve"
)

// CurveConfig holds pool parameters and simulation settings. Addresses may be hex or an
// account name resolved by the caller.
type CurveConfig struct {
	ChainID         uint64
	Pool            string
	ShardRegistry   string
	Owner           string
	Originator      string
	Protocol        string
	InitialShards   string
	InitialPrice    string
	MinShardReserve string
	FeeProtocol     string
	FeeOriginator   string
	FeeSuppliers    string
	Timelock        time.Duration
	Start           string
	Script          string
	Out             string
	MetricsFile     string
	PGDSN           string
	ContinueOnError bool
	LogLevel        string
}

// LoadCurve merges config file, environment variables, and flags into CurveConfig.
func LoadCurve(cfgFile string, flags *pflag.FlagSet) (CurveConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"chain-id":          uint64(31337),
		"pool":              "pool",
		"shard-registry":    "registry",
		"owner":             "owner",
		"originator":        "originator",
		"protocol":          "protocol",
		"initial-shards":    "700",
		"initial-price":     "1",
		"min-shard-reserve": "300",
		"fee-protocol":      "0.001",
		"fee-originator":    "0.001",
		"fee-suppliers":     "0.003",
		"timelock":          24 * time.Hour,
		"out":               "./data/curve_logs.jsonl",
		"log-level":         "info",
	})
	if err != nil {
		return CurveConfig{}, err
	}

	cfg := CurveConfig{
		ChainID:         v.GetUint64("chain-id"),
		Pool:            v.GetString("pool"),
		ShardRegistry:   v.GetString("shard-registry"),
		Owner:           v.GetString("owner"),
		Originator:      v.GetString("originator"),
		Protocol:        v.GetString("protocol"),
		InitialShards:   v.GetString("initial-shards"),
		InitialPrice:    v.GetString("initial-price"),
		MinShardReserve: v.GetString("min-shard-reserve"),
		FeeProtocol:     v.GetString("fee-protocol"),
		FeeOriginator:   v.GetString("fee-originator"),
		FeeSuppliers:    v.GetString("fee-suppliers"),
		Timelock:        v.GetDuration("timelock"),
		Start:           v.GetString("start"),
		Script:          v.GetString("script"),
		Out:             v.GetString("out"),
		MetricsFile:     v.GetString("metrics-file"),
		PGDSN:           v.GetString("pg-dsn"),
		ContinueOnError: v.GetBool("continue-on-error"),
		LogLevel:        v.GetString("log-level"),
	}

	return cfg, nil
}

// InitParams converts the pool parameters. An empty or "none" originator disables the
// originator fee.
func (c CurveConfig) InitParams(resolve func(string) (common.Address, error)) (curve.InitParams, error) {
	var (
		params curve.InitParams
		err    error
	)

	addresses := []struct {
		name  string
		input string
		dst   *common.Address
	}{
		{"shard-registry", c.ShardRegistry, &params.ShardRegistry},
		{"owner", c.Owner, &params.Owner},
		{"protocol", c.Protocol, &params.ProtocolWallet},
	}
	if o := strings.TrimSpace(c.Originator); o != "" && !strings.EqualFold(o, "none") {
		addresses = append(addresses, struct {
			name  string
			input string
			dst   *common.Address
		}{"originator", o, &params.OriginatorWallet})
	}
	for _, a := range addresses {
		if *a.dst, err = resolve(a.input); err != nil {
			return curve.InitParams{}, fmt.Errorf("%s: %w", a.name, err)
		}
	}

	if params.SuppliedShards, err = curve.ParseWad(c.InitialShards); err != nil {
		return curve.InitParams{}, fmt.Errorf("initial-shards: %w", err)
	}
	if params.InitialPrice, err = curve.ParseWad(c.InitialPrice); err != nil {
		return curve.InitParams{}, fmt.Errorf("initial-price: %w", err)
	}
	if params.MinShardReserve, err = curve.ParseWad(c.MinShardReserve); err != nil {
		return curve.InitParams{}, fmt.Errorf("min-shard-reserve: %w", err)
	}
	if params.Fees.Protocol, err = curve.ParseWad(c.FeeProtocol); err != nil {
		return curve.InitParams{}, fmt.Errorf("fee-protocol: %w", err)
	}
	if params.Fees.Originator, err = curve.ParseWad(c.FeeOriginator); err != nil {
		return curve.InitParams{}, fmt.Errorf("fee-originator: %w", err)
	}
	if params.Fees.Suppliers, err = curve.ParseWad(c.FeeSuppliers); err != nil {
		return curve.InitParams{}, fmt.Errorf("fee-suppliers: %w", err)
	}
	if c.Timelock < 0 {
		return curve.InitParams{}, fmt.Errorf("timelock must not be negative: %s", c.Timelock)
	}
	params.Timelock = c.Timelock

	return params, nil
}
