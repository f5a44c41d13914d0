package ledger

import (
	"sync"

	"github.com/TheMenageri3/deresearcher-program/internal/errors"
	"github.com/TheMenageri3/deresearcher-program/pkg/models"
)

// MemoryLedger 内存账本
// 修改先写入暂存副本，fn成功返回后才一次性提交，失败则整体丢弃，
// 与BoltLedger的事务语义一致；用于单元测试和试运行模式
type MemoryLedger struct {
	mu       sync.Mutex
	data     map[models.Pubkey][]byte
	balances map[models.Pubkey]uint64
}

// NewMemoryLedger 创建内存账本
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		data:     make(map[models.Pubkey][]byte),
		balances: make(map[models.Pubkey]uint64),
	}
}

// Execute 在暂存副本上执行fn，成功后提交
func (l *MemoryLedger) Execute(fn func(Host) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	staged := &memoryHost{
		base:     l,
		data:     make(map[models.Pubkey][]byte),
		balances: make(map[models.Pubkey]uint64),
	}

	if err := fn(staged); err != nil {
		return err
	}

	// 提交暂存的修改
	for addr, data := range staged.data {
		l.data[addr] = data
	}
	for addr, balance := range staged.balances {
		l.balances[addr] = balance
	}

	return nil
}

// View 在只读视图内执行fn
func (l *MemoryLedger) View(fn func(Host) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return fn(&memoryHost{
		base:     l,
		data:     make(map[models.Pubkey][]byte),
		balances: make(map[models.Pubkey]uint64),
		readonly: true,
	})
}

// Credit 直接向账户注入余额
func (l *MemoryLedger) Credit(addr models.Pubkey, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances[addr] += amount
	return nil
}

// Close 关闭账本（内存实现无事可做）
func (l *MemoryLedger) Close() error {
	return nil
}

// memoryHost 暂存视图：读穿透到底层，写只落在暂存副本
type memoryHost struct {
	base     *MemoryLedger
	data     map[models.Pubkey][]byte
	balances map[models.Pubkey]uint64
	readonly bool
}

// Account 读取账户视图
func (h *memoryHost) Account(addr models.Pubkey) (*Account, error) {
	acc := &Account{Address: addr}

	if data, ok := h.data[addr]; ok {
		acc.Data = append([]byte(nil), data...)
	} else if data, ok := h.base.data[addr]; ok {
		acc.Data = append([]byte(nil), data...)
	}

	acc.Balance = h.balance(addr)

	return acc, nil
}

// SetData 覆写账户存储数据
func (h *memoryHost) SetData(addr models.Pubkey, data []byte) error {
	if h.readonly {
		return errors.ErrImmutableAccount.WithAccount(addr.String())
	}

	h.data[addr] = append([]byte(nil), data...)
	return nil
}

// CreateAccount 创建账户并从funder扣除免租最低余额
func (h *memoryHost) CreateAccount(funder, addr models.Pubkey, size int) error {
	if h.readonly {
		return errors.ErrImmutableAccount.WithAccount(addr.String())
	}

	acc, err := h.Account(addr)
	if err != nil {
		return err
	}
	if acc.Exists() {
		return errors.ErrLedgerFailure.WithAccount(addr.String()).WithContext("reason", "账户已存在")
	}

	rent := h.MinimumBalance(size)

	funderBalance := h.balance(funder)
	if funderBalance < rent {
		return errors.ErrInsufficientFunds.WithAccount(funder.String()).WithContext("need", rent)
	}

	h.balances[funder] = funderBalance - rent
	h.balances[addr] = h.balance(addr) + rent

	return h.SetData(addr, make([]byte, size))
}

// Transfer 原子转账
func (h *memoryHost) Transfer(from, to models.Pubkey, amount uint64) error {
	if h.readonly {
		return errors.ErrImmutableAccount.WithAccount(from.String())
	}

	fromBalance := h.balance(from)
	if fromBalance < amount {
		return errors.ErrInsufficientFunds.WithAccount(from.String()).WithContext("need", amount)
	}

	if from == to {
		return nil
	}

	toBalance := h.balance(to)
	h.balances[from] = fromBalance - amount
	h.balances[to] = toBalance + amount

	return nil
}

// MinimumBalance 计算免租最低余额
func (h *memoryHost) MinimumBalance(size int) uint64 {
	return minimumBalance(size)
}

// balance 读取余额，暂存副本优先
func (h *memoryHost) balance(addr models.Pubkey) uint64 {
	if balance, ok := h.balances[addr]; ok {
		return balance
	}
	return h.base.balances[addr]
}
