package simulate

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"shardcurve/internal/curve"
)

// Operation names accepted in scripts.
const (
	OpFund         = "fund"
	OpApprove      = "approve"
	OpBuy          = "buy"
	OpSell         = "sell"
	OpSupply       = "supply"
	OpWithdraw     = "withdraw"
	OpTransferLP   = "transfer-lp"
	OpWithdrawFees = "withdraw-fees"
	OpAdvance      = "advance"
	OpQuote        = "quote"
)

// Op is one script line. Amounts are decimal whole units ("10", "0.5"); Limit is the
// maximum payment for buys and the minimum payout for sells.
type Op struct {
	Op          string `json:"op"`
	Account     string `json:"account,omitempty"`
	To          string `json:"to,omitempty"`
	Side        string `json:"side,omitempty"`
	Asset       string `json:"asset,omitempty"`
	Amount      string `json:"amount,omitempty"`
	Limit       string `json:"limit,omitempty"`
	Duration    string `json:"duration,omitempty"`
	Recipient   string `json:"recipient,omitempty"`
	ExpectError string `json:"expect_error,omitempty"`
}

// Line is a parsed script line with its 1-based position.
type Line struct {
	Number int
	Op     Op
}

// ParseScript reads JSONL operations. Blank lines and lines starting with # are skipped.
func ParseScript(r io.Reader) ([]Line, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []Line
	number := 0
	for scanner.Scan() {
		number++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 || raw[0] == '#' {
			continue
		}
		var op Op
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&op); err != nil {
			return nil, fmt.Errorf("line %d: %w", number, err)
		}
		op.Op = strings.ToLower(strings.TrimSpace(op.Op))
		if op.Op == "" {
			return nil, fmt.Errorf("line %d: missing op", number)
		}
		lines = append(lines, Line{Number: number, Op: op})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan script: %w", err)
	}
	return lines, nil
}

// AccountAddress resolves a hex address or derives a stable address from a name such as
// "alice".
func AccountAddress(name string) (common.Address, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return common.Address{}, fmt.Errorf("account is required")
	}
	if common.IsHexAddress(name) {
		return common.HexToAddress(name), nil
	}
	if strings.HasPrefix(name, "0x") {
		return common.Address{}, fmt.Errorf("invalid address: %s", name)
	}
	return common.BytesToAddress(crypto.Keccak256([]byte(strings.ToLower(name)))[12:]), nil
}

// ParseSide accepts ether/eth/value and shards/shard.
func ParseSide(input string) (curve.Side, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "ether", "eth", "value":
		return curve.SideEther, nil
	case "shards", "shard":
		return curve.SideShards, nil
	default:
		return 0, fmt.Errorf("unknown side: %q", input)
	}
}

// ParseAsset accepts value/ether/eth and shards/shard.
func ParseAsset(input string) (curve.Asset, error) {
	side, err := ParseSide(input)
	if err != nil {
		return 0, fmt.Errorf("unknown asset: %q", input)
	}
	if side == curve.SideEther {
		return curve.AssetValue, nil
	}
	return curve.AssetShards, nil
}

// parseUnits parses a decimal amount of whole units. "max" yields the largest amount.
func parseUnits(input string) (*uint256.Int, error) {
	if strings.EqualFold(strings.TrimSpace(input), "max") {
		return new(uint256.Int).SetAllOne(), nil
	}
	return curve.ParseWad(input)
}
