package simulate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"shardcurve/internal/bank"
	"shardcurve/internal/curve"
	"shardcurve/internal/events"
	"shardcurve/internal/metrics"
	"shardcurve/internal/model"
	"shardcurve/internal/storage"
)

// Options configures a Simulator. Writer and Metrics are optional.
type Options struct {
	ChainID         uint64
	Pool            common.Address
	Start           time.Time
	StartBlock      uint64
	Writer          *storage.EventWriter
	Metrics         *metrics.Collector
	Logger          *zap.Logger
	ContinueOnError bool
}

// Result describes one applied operation.
type Result struct {
	Line   int    `json:"line"`
	Op     string `json:"op"`
	Block  uint64 `json:"block"`
	Shards string `json:"shards,omitempty"`
	Value  string `json:"value,omitempty"`
	Minted string `json:"minted,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Report summarizes a script run.
type Report struct {
	Applied  int            `json:"applied"`
	Expected int            `json:"expected_failures"`
	Failed   int            `json:"failed"`
	Results  []Result       `json:"results"`
	Final    curve.Snapshot `json:"-"`
}

// Simulator runs a curve pool against an in-memory bank, one operation per block.
type Simulator struct {
	opts   Options
	logger *zap.Logger
	bank   *bank.Memory
	clock  *Clock
	pool   *curve.Controller
	block  uint64
}

func New(opts Options) (*Simulator, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Pool == (common.Address{}) {
		pool, err := AccountAddress("pool")
		if err != nil {
			return nil, err
		}
		opts.Pool = pool
	}
	if opts.Start.IsZero() {
		opts.Start = time.Unix(1_700_000_000, 0).UTC()
	}

	memory := bank.NewMemory()
	memory.RegisterPool(opts.Pool)
	clock := NewClock(opts.Start)

	var sinks []curve.EventSink
	if opts.Writer != nil {
		sinks = append(sinks, opts.Writer)
	}
	if opts.Metrics != nil {
		sinks = append(sinks, opts.Metrics)
	}

	pool, err := curve.NewController(curve.Options{
		Address: opts.Pool,
		Assets:  memory,
		Events:  curve.MultiSink(sinks...),
		Clock:   clock.Now,
		Logger:  opts.Logger.Named("curve"),
	})
	if err != nil {
		return nil, err
	}

	return &Simulator{
		opts:   opts,
		logger: opts.Logger,
		bank:   memory,
		clock:  clock,
		pool:   pool,
		block:  opts.StartBlock,
	}, nil
}

// Pool returns the simulated controller.
func (s *Simulator) Pool() *curve.Controller { return s.pool }

// Bank returns the in-memory asset ledger.
func (s *Simulator) Bank() *bank.Memory { return s.bank }

// Clock returns the virtual clock.
func (s *Simulator) Clock() *Clock { return s.clock }

// Block returns the last block an operation ran in.
func (s *Simulator) Block() uint64 { return s.block }

// PoolSnapshot renders the current pool state as a stored snapshot row.
func (s *Simulator) PoolSnapshot() model.PoolSnapshot {
	snap := s.pool.Snapshot()
	return model.PoolSnapshot{
		ChainID:     s.opts.ChainID,
		PoolAddress: s.opts.Pool.Hex(),
		BlockNumber: s.block,
		TakenAt:     s.clock.Now(),
		Coordinates: model.CurveCoordinates{
			ShardReserve: decimal(snap.ShardReserve),
			Price:        decimal(snap.Price),
			ValueReserve: decimal(snap.ValueReserve),
		},
		EthSuppliers:   supplierTotals(snap.Ether),
		ShardSuppliers: supplierTotals(snap.Shards),
	}
}

func supplierTotals(t curve.LedgerTotals) model.SupplierTotals {
	return model.SupplierTotals{
		TotalPrincipalPlusFees: decimal(t.TotalPrincipalPlusFees),
		TotalLPShares:          decimal(t.TotalLPShares),
		FeesToProtocol:         decimal(t.FeesToProtocol),
		FeesToOriginator:       decimal(t.FeesToOriginator),
	}
}

func decimal(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

// Initialize funds the owner with the deposit, approves the shard transfer and initializes
// the pool in the first block.
func (s *Simulator) Initialize(ctx context.Context, params curve.InitParams) error {
	if params.Value == nil && params.SuppliedShards != nil && params.InitialPrice != nil {
		params.Value = curve.State{ShardReserve: params.SuppliedShards, Price: params.InitialPrice}.ValueReserve()
	}
	if params.SuppliedShards != nil {
		s.bank.Mint(curve.AssetShards, params.Owner, params.SuppliedShards)
		s.bank.Approve(params.Owner, s.opts.Pool, params.SuppliedShards)
	}
	if params.Value != nil {
		s.bank.Mint(curve.AssetValue, params.Owner, params.Value)
	}

	s.beginTx()
	err := s.pool.Initialize(ctx, params.Owner, params)
	s.observe("initialize", err)
	if err != nil {
		return fmt.Errorf("initialize pool: %w", err)
	}
	s.logger.Info("pool initialized",
		zap.String("pool", s.opts.Pool.Hex()),
		zap.String("shards", curve.FormatWad(params.SuppliedShards)),
		zap.String("price", curve.FormatWad(params.InitialPrice)),
	)
	return nil
}

// Run applies every script line in order and flushes the event writer.
func (s *Simulator) Run(ctx context.Context, r io.Reader) (Report, error) {
	lines, err := ParseScript(r)
	if err != nil {
		return Report{}, err
	}

	var report Report
	for _, line := range lines {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}

		result, err := s.Apply(ctx, line)
		report.Results = append(report.Results, result)
		switch {
		case err == nil && line.Op.ExpectError != "":
			report.Expected++
		case err == nil:
			report.Applied++
		default:
			report.Failed++
			if !s.opts.ContinueOnError {
				report.Final = s.pool.Snapshot()
				return report, fmt.Errorf("line %d (%s): %w", line.Number, line.Op.Op, err)
			}
			s.logger.Warn("operation failed", zap.Int("line", line.Number), zap.String("op", line.Op.Op), zap.Error(err))
		}
	}

	report.Final = s.pool.Snapshot()
	if s.opts.Writer != nil {
		if err := s.opts.Writer.Flush(); err != nil {
			return report, fmt.Errorf("flush events: %w", err)
		}
	}
	return report, nil
}

// ErrUnexpectedSuccess is returned when a line expecting a failure succeeds.
var ErrUnexpectedSuccess = errors.New("operation succeeded but a failure was expected")

// Apply executes one line in its own block. A line with expect_error succeeds only when the
// operation fails for that reason.
func (s *Simulator) Apply(ctx context.Context, line Line) (Result, error) {
	op := line.Op
	s.beginTx()
	result := Result{Line: line.Number, Op: op.Op, Block: s.block}

	err := s.dispatch(ctx, op, &result)
	if op.Op != OpFund && op.Op != OpApprove && op.Op != OpAdvance && op.Op != OpQuote {
		s.observe(op.Op, err)
	}

	if op.ExpectError != "" {
		if err == nil {
			result.Error = ErrUnexpectedSuccess.Error()
			return result, fmt.Errorf("%w: %s", ErrUnexpectedSuccess, op.ExpectError)
		}
		reason := metrics.Reason(err)
		result.Error = reason
		if !strings.EqualFold(reason, op.ExpectError) {
			return result, fmt.Errorf("expected %s, got %s: %w", op.ExpectError, reason, err)
		}
		return result, nil
	}
	if err != nil {
		result.Error = err.Error()
		return result, err
	}
	return result, nil
}

func (s *Simulator) dispatch(ctx context.Context, op Op, result *Result) error {
	switch op.Op {
	case OpAdvance:
		d, err := time.ParseDuration(op.Duration)
		if err != nil {
			return fmt.Errorf("parse duration: %w", err)
		}
		now := s.clock.Advance(d)
		s.logger.Debug("clock advanced", zap.Duration("by", d), zap.Time("now", now))
		return nil
	case OpWithdrawFees:
		return s.withdrawFees(ctx, op, result)
	case OpQuote:
		return s.quote(op, result)
	}

	account, err := AccountAddress(op.Account)
	if err != nil {
		return err
	}

	switch op.Op {
	case OpFund:
		asset, err := ParseAsset(op.Asset)
		if err != nil {
			return err
		}
		amount, err := parseUnits(op.Amount)
		if err != nil {
			return err
		}
		s.bank.Mint(asset, account, amount)
		result.Value = curve.FormatWad(s.bank.Balance(curve.AssetValue, account))
		result.Shards = curve.FormatWad(s.bank.Balance(curve.AssetShards, account))
		return nil
	case OpApprove:
		amount, err := parseUnits(op.Amount)
		if err != nil {
			return err
		}
		s.bank.Approve(account, s.opts.Pool, amount)
		return nil
	case OpBuy, OpSell:
		return s.trade(ctx, op, account, result)
	case OpSupply:
		return s.supply(ctx, op, account, result)
	case OpWithdraw:
		return s.withdraw(ctx, op, account, result)
	case OpTransferLP:
		return s.transferLP(ctx, op, account, result)
	default:
		return fmt.Errorf("unknown op: %s", op.Op)
	}
}

func (s *Simulator) trade(ctx context.Context, op Op, account common.Address, result *Result) error {
	amount, err := parseUnits(op.Amount)
	if err != nil {
		return err
	}
	var quote curve.Quote
	if op.Op == OpBuy {
		limit := new(uint256.Int).SetAllOne()
		if op.Limit != "" {
			if limit, err = parseUnits(op.Limit); err != nil {
				return err
			}
		}
		quote, err = s.pool.BuyShards(ctx, account, amount, limit)
	} else {
		limit := new(uint256.Int)
		if op.Limit != "" {
			if limit, err = parseUnits(op.Limit); err != nil {
				return err
			}
		}
		quote, err = s.pool.SellShards(ctx, account, amount, limit)
	}
	if err != nil {
		return err
	}
	result.Shards = curve.FormatWad(quote.Shards)
	result.Value = curve.FormatWad(quote.Value)
	return nil
}

func (s *Simulator) quote(op Op, result *Result) error {
	amount, err := parseUnits(op.Amount)
	if err != nil {
		return err
	}
	var quote curve.Quote
	switch strings.ToLower(op.Side) {
	case "", "buy":
		quote, err = s.pool.QuoteBuy(amount)
	case "sell":
		quote, err = s.pool.QuoteSell(amount)
	default:
		return fmt.Errorf("quote side must be buy or sell: %q", op.Side)
	}
	if err != nil {
		return err
	}
	result.Shards = curve.FormatWad(quote.Shards)
	result.Value = curve.FormatWad(quote.Value)
	return nil
}

func (s *Simulator) supply(ctx context.Context, op Op, account common.Address, result *Result) error {
	side, err := ParseSide(op.Side)
	if err != nil {
		return err
	}
	amount, err := parseUnits(op.Amount)
	if err != nil {
		return err
	}
	var minted *uint256.Int
	if side == curve.SideEther {
		minted, err = s.pool.SupplyEther(ctx, account, amount)
	} else {
		minted, err = s.pool.SupplyShards(ctx, account, amount)
	}
	if err != nil {
		return err
	}
	result.Minted = curve.FormatWad(minted)
	return nil
}

func (s *Simulator) withdraw(ctx context.Context, op Op, account common.Address, result *Result) error {
	side, err := ParseSide(op.Side)
	if err != nil {
		return err
	}
	var shares *uint256.Int
	if strings.EqualFold(strings.TrimSpace(op.Amount), "all") {
		if side == curve.SideEther {
			shares = s.pool.EthLPTokens(account)
		} else {
			shares = s.pool.ShardLPTokens(account)
		}
	} else if shares, err = parseUnits(op.Amount); err != nil {
		return err
	}

	var out curve.Withdrawal
	if side == curve.SideEther {
		out, err = s.pool.WithdrawSuppliedEther(ctx, account, shares)
	} else {
		out, err = s.pool.WithdrawSuppliedShards(ctx, account, shares)
	}
	if err != nil {
		return err
	}
	result.Value = curve.FormatWad(out.Value)
	result.Shards = curve.FormatWad(out.Shards)
	return nil
}

func (s *Simulator) transferLP(ctx context.Context, op Op, from common.Address, result *Result) error {
	side, err := ParseSide(op.Side)
	if err != nil {
		return err
	}
	to, err := AccountAddress(op.To)
	if err != nil {
		return fmt.Errorf("recipient: %w", err)
	}
	amount, err := parseUnits(op.Amount)
	if err != nil {
		return err
	}
	if side == curve.SideEther {
		err = s.pool.TransferEthLPTokens(ctx, from, to, amount)
	} else {
		err = s.pool.TransferShardLPTokens(ctx, from, to, amount)
	}
	if err != nil {
		return err
	}
	result.Minted = curve.FormatWad(amount)
	return nil
}

func (s *Simulator) withdrawFees(ctx context.Context, op Op, result *Result) error {
	var (
		paid curve.Amounts
		err  error
	)
	switch strings.ToLower(strings.TrimSpace(op.Recipient)) {
	case "protocol":
		paid, err = s.pool.WithdrawProtocolFees(ctx)
	case "originator":
		paid, err = s.pool.WithdrawOriginatorFees(ctx)
	default:
		return fmt.Errorf("fee recipient must be protocol or originator: %q", op.Recipient)
	}
	if err != nil {
		return err
	}
	result.Value = curve.FormatWad(paid.Value)
	result.Shards = curve.FormatWad(paid.Shards)
	return nil
}

func (s *Simulator) beginTx() {
	s.block++
	if s.opts.Writer != nil {
		s.opts.Writer.BeginTx(events.LogPosition{
			ChainID:     s.opts.ChainID,
			Pool:        s.opts.Pool,
			BlockNumber: s.block,
			Timestamp:   s.clock.Now(),
		})
	}
}

func (s *Simulator) observe(operation string, err error) {
	if s.opts.Metrics == nil {
		return
	}
	s.opts.Metrics.ObserveError(operation, err)
	s.opts.Metrics.ObserveSnapshot(s.pool.Snapshot())
}
