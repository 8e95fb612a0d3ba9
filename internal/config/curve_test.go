package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"

	"shardcurve/internal/curve"
)

func hexResolver(input string) (common.Address, error) {
	return common.HexToAddress(input), nil
}

func TestLoadCurveDefaults(t *testing.T) {
	if _, err := LoadCurve(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatalf("expected error for missing explicit config file")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "curve.yaml")
	content := "fee-suppliers: \"0.004\"\ntimelock: 2h\nscript: ./ops.jsonl\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("initial-price", "1", "")
	if err := flags.Parse([]string{"--initial-price", "2.5"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := LoadCurve(path, flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.FeeSuppliers != "0.004" || cfg.FeeProtocol != "0.001" {
		t.Fatalf("unexpected fees: %+v", cfg)
	}
	if cfg.Timelock != 2*time.Hour {
		t.Fatalf("unexpected timelock: %s", cfg.Timelock)
	}
	if cfg.InitialPrice != "2.5" {
		t.Fatalf("flag not applied: %s", cfg.InitialPrice)
	}
	if cfg.Script != "./ops.jsonl" || cfg.ChainID != 31337 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadCurveEnv(t *testing.T) {
	t.Setenv("CURVE_MIN_SHARD_RESERVE", "150")
	path := filepath.Join(t.TempDir(), "curve.yaml")
	if err := os.WriteFile(path, []byte("log-level: debug\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadCurve(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MinShardReserve != "150" || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestCurveInitParams(t *testing.T) {
	cfg := CurveConfig{
		ShardRegistry:   "0x0000000000000000000000000000000000000a01",
		Owner:           "0x0000000000000000000000000000000000000a02",
		Originator:      "none",
		Protocol:        "0x0000000000000000000000000000000000000a04",
		InitialShards:   "700",
		InitialPrice:    "1",
		MinShardReserve: "300",
		FeeProtocol:     "0.001",
		FeeOriginator:   "0.001",
		FeeSuppliers:    "0.003",
		Timelock:        time.Hour,
	}
	params, err := cfg.InitParams(hexResolver)
	if err != nil {
		t.Fatalf("init params: %v", err)
	}
	if params.OriginatorWallet != (common.Address{}) {
		t.Fatalf("originator should be disabled: %s", params.OriginatorWallet.Hex())
	}
	if params.ProtocolWallet != common.HexToAddress("0x0000000000000000000000000000000000000a04") {
		t.Fatalf("unexpected protocol wallet: %s", params.ProtocolWallet.Hex())
	}
	if curve.FormatWad(params.Fees.Suppliers) != "0.003" || curve.FormatWad(params.SuppliedShards) != "700" {
		t.Fatalf("unexpected amounts: %s %s", params.Fees.Suppliers.Dec(), params.SuppliedShards.Dec())
	}
	if params.Timelock != time.Hour {
		t.Fatalf("unexpected timelock: %s", params.Timelock)
	}

	cfg.FeeSuppliers = "abc"
	if _, err := cfg.InitParams(hexResolver); err == nil {
		t.Fatalf("expected fee parse error")
	}
}
