package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

const boughtTopic = "0xabcdef1111111111111111111111111111111111111111111111111111111111"

func TestLoadDecodeTopic0Map(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decode.yaml")
	if err := os.WriteFile(path, []byte("in: ./raw.jsonl\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("topic0-map", "", "")
	mixed := "0xABCDEF1111111111111111111111111111111111111111111111111111111111"
	if err := flags.Parse([]string{"--topic0-map", " " + mixed + " = ShardsBought ,"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := LoadDecode(path, flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.In != "./raw.jsonl" || cfg.Out != "./data/typed_events.jsonl" {
		t.Fatalf("unexpected paths: %+v", cfg)
	}
	if got := cfg.Topic0Map[boughtTopic]; got != "ShardsBought" {
		t.Fatalf("unexpected topic0 map: %+v", cfg.Topic0Map)
	}
}

func TestLoadDecodeRejectsBadTopic0Map(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decode.yaml")
	if err := os.WriteFile(path, []byte("log-level: warn\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	for _, input := range []string{"0x1234=ShardsBought", boughtTopic, boughtTopic + "="} {
		t.Setenv("CURVE_TOPIC0_MAP", input)
		if _, err := LoadDecode(path, nil); err == nil {
			t.Fatalf("expected error for %q", input)
		}
	}
}
