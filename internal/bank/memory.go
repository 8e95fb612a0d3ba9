package bank

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"shardcurve/internal/curve"
)

// TransferHook runs before every transfer; a non-nil error rejects it.
type TransferHook func(ctx context.Context, asset curve.Asset, from, to common.Address, amount *uint256.Int) error

// Memory is an in-memory value and shard ledger. Shard transfers out of accounts that are
// not registered pools consume the owner's allowance for the receiving pool, the way an
// ERC20 transferFrom would.
type Memory struct {
	mu         sync.RWMutex
	value      map[common.Address]*uint256.Int
	shards     map[common.Address]*uint256.Int
	allowances map[common.Address]map[common.Address]*uint256.Int
	pools      map[common.Address]struct{}
	hook       TransferHook
}

func NewMemory() *Memory {
	return &Memory{
		value:      make(map[common.Address]*uint256.Int),
		shards:     make(map[common.Address]*uint256.Int),
		allowances: make(map[common.Address]map[common.Address]*uint256.Int),
		pools:      make(map[common.Address]struct{}),
	}
}

// RegisterPool marks account as a pool that may move its own shards without allowance.
func (m *Memory) RegisterPool(account common.Address) {
	m.mu.Lock()
	m.pools[account] = struct{}{}
	m.mu.Unlock()
}

// SetHook installs a hook called before each transfer.
func (m *Memory) SetHook(hook TransferHook) {
	m.mu.Lock()
	m.hook = hook
	m.mu.Unlock()
}

// Mint credits amount of asset to account.
func (m *Memory) Mint(asset curve.Asset, account common.Address, amount *uint256.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	book := m.book(asset)
	book[account] = new(uint256.Int).Add(balanceOf(book, account), amount)
}

// Approve sets the shard allowance owner grants spender.
func (m *Memory) Approve(owner, spender common.Address, amount *uint256.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.allowances[owner] == nil {
		m.allowances[owner] = make(map[common.Address]*uint256.Int)
	}
	m.allowances[owner][spender] = new(uint256.Int).Set(amount)
}

// Allowance returns the shard allowance owner granted spender.
func (m *Memory) Allowance(owner, spender common.Address) *uint256.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if spenders := m.allowances[owner]; spenders != nil {
		if amount, ok := spenders[spender]; ok {
			return new(uint256.Int).Set(amount)
		}
	}
	return new(uint256.Int)
}

// Balance returns account's balance of asset.
func (m *Memory) Balance(asset curve.Asset, account common.Address) *uint256.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return new(uint256.Int).Set(balanceOf(m.book(asset), account))
}

// Transfer implements curve.AssetMover.
func (m *Memory) Transfer(ctx context.Context, asset curve.Asset, from, to common.Address, amount *uint256.Int) error {
	m.mu.RLock()
	hook := m.hook
	m.mu.RUnlock()
	if hook != nil {
		if err := hook(ctx, asset, from, to, amount); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	book := m.book(asset)
	balance := balanceOf(book, from)
	if balance.Lt(amount) {
		return fmt.Errorf("insufficient %s balance for %s: have %s, need %s", asset, from.Hex(), balance.Dec(), amount.Dec())
	}

	if asset == curve.AssetShards {
		if _, isPool := m.pools[from]; !isPool {
			spenders := m.allowances[from]
			allowed := new(uint256.Int)
			if spenders != nil && spenders[to] != nil {
				allowed = spenders[to]
			}
			if allowed.Lt(amount) {
				return fmt.Errorf("insufficient shard allowance from %s to %s: have %s, need %s", from.Hex(), to.Hex(), allowed.Dec(), amount.Dec())
			}
			if spenders != nil {
				spenders[to] = new(uint256.Int).Sub(allowed, amount)
			}
		}
	}

	book[from] = new(uint256.Int).Sub(balance, amount)
	book[to] = new(uint256.Int).Add(balanceOf(book, to), amount)
	return nil
}

func (m *Memory) book(asset curve.Asset) map[common.Address]*uint256.Int {
	if asset == curve.AssetShards {
		return m.shards
	}
	return m.value
}

func balanceOf(book map[common.Address]*uint256.Int, account common.Address) *uint256.Int {
	if balance, ok := book[account]; ok {
		return balance
	}
	return new(uint256.Int)
}
