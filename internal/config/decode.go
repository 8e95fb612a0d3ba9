package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DecodeConfig holds configuration for the decode command.
type DecodeConfig struct {
	RPCURL          string
	In              string
	Out             string
	Errors          string
	LogLevel        string
	Topic0Map       map[string]string
	IncludeLiveMeta bool
}

// LoadDecode merges config file, environment variables, and flags into DecodeConfig.
func LoadDecode(cfgFile string, flags *pflag.FlagSet) (DecodeConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"out":               "./data/typed_events.jsonl",
		"errors":            "./data/decode_errors.jsonl",
		"include-live-meta": false,
		"log-level":         "info",
	})
	if err != nil {
		return DecodeConfig{}, err
	}

	topics, err := topic0Map(v, "topic0-map")
	if err != nil {
		return DecodeConfig{}, err
	}

	return DecodeConfig{
		RPCURL:          v.GetString("rpc"),
		In:              v.GetString("in"),
		Out:             v.GetString("out"),
		Errors:          v.GetString("errors"),
		LogLevel:        v.GetString("log-level"),
		Topic0Map:       topics,
		IncludeLiveMeta: v.GetBool("include-live-meta"),
	}, nil
}

// topic0Map reads topic0 -> curve event name overrides, either as a config
// table or as "0xhash=EventName" pairs. Keys come back lower-cased.
func topic0Map(v *viper.Viper, key string) (map[string]string, error) {
	out := map[string]string{}
	if !v.IsSet(key) {
		return out, nil
	}

	raw := map[string]string{}
	switch typed := v.Get(key).(type) {
	case map[string]string:
		raw = typed
	case map[string]interface{}:
		for k, val := range typed {
			raw[k] = fmt.Sprintf("%v", val)
		}
	case string:
		pairs, err := parsePairs(typed)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		raw = pairs
	default:
		return nil, fmt.Errorf("%s: unsupported type %T", key, typed)
	}

	for topic, name := range raw {
		topic = strings.ToLower(strings.TrimSpace(topic))
		name = strings.TrimSpace(name)
		decoded, err := hexutil.Decode(topic)
		if err != nil || len(decoded) != 32 {
			return nil, fmt.Errorf("%s: invalid topic0 %q", key, topic)
		}
		if name == "" {
			return nil, fmt.Errorf("%s: empty event name for %s", key, topic)
		}
		out[topic] = name
	}
	return out, nil
}

func parsePairs(input string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range splitAndClean(input) {
		k, val, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("malformed pair %q", pair)
		}
		out[k] = val
	}
	return out, nil
}
