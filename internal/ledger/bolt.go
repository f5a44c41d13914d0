package ledger

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"github.com/TheMenageri3/deresearcher-program/internal/errors"
	"github.com/TheMenageri3/deresearcher-program/pkg/models"
)

const (
	// DefaultDBPath 默认数据库路径
	DefaultDBPath = "./data/ledger.db"

	// 存储桶名称
	AccountsBucket = "accounts"
	BalancesBucket = "balances"
)

// BoltLedger bbolt支撑的持久账本
// 每次调用在一个db.Update事务内执行，天然获得全有或全无的保证
type BoltLedger struct {
	db     *bolt.DB
	logger *logrus.Logger
	dbPath string
}

// NewBoltLedger 创建持久账本
func NewBoltLedger(dbPath string, logger *logrus.Logger) (*BoltLedger, error) {
	if dbPath == "" {
		dbPath = DefaultDBPath
	}

	// 确保目录存在
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("打开账本数据库失败: %w", err)
	}

	// 初始化存储桶
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(AccountsBucket)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(BalancesBucket)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化存储桶失败: %w", err)
	}

	logger.Infof("账本数据库已打开: %s", dbPath)

	return &BoltLedger{
		db:     db,
		logger: logger,
		dbPath: dbPath,
	}, nil
}

// Execute 在一个写事务内执行fn，fn返回错误时事务整体回滚
func (l *BoltLedger) Execute(fn func(Host) error) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		return fn(&boltHost{tx: tx})
	})
}

// View 在只读事务内执行fn
func (l *BoltLedger) View(fn func(Host) error) error {
	return l.db.View(func(tx *bolt.Tx) error {
		return fn(&boltHost{tx: tx, readonly: true})
	})
}

// Credit 直接向账户注入余额
func (l *BoltLedger) Credit(addr models.Pubkey, amount uint64) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		host := &boltHost{tx: tx}
		balance, err := host.balance(addr)
		if err != nil {
			return err
		}
		return host.setBalance(addr, balance+amount)
	})
}

// Close 关闭账本数据库
func (l *BoltLedger) Close() error {
	if err := l.db.Close(); err != nil {
		return fmt.Errorf("关闭账本数据库失败: %w", err)
	}
	return nil
}

// Path 返回数据库文件路径
func (l *BoltLedger) Path() string {
	return l.dbPath
}

// boltHost 单个事务上的宿主视图
type boltHost struct {
	tx       *bolt.Tx
	readonly bool
}

// Account 读取账户视图
func (h *boltHost) Account(addr models.Pubkey) (*Account, error) {
	accounts := h.tx.Bucket([]byte(AccountsBucket))
	if accounts == nil {
		return nil, errors.ErrLedgerFailure.WithContext("bucket", AccountsBucket)
	}

	acc := &Account{Address: addr}

	if data := accounts.Get(addr.Bytes()); data != nil {
		// bbolt返回的切片只在事务内有效，必须复制
		acc.Data = append([]byte(nil), data...)
	}

	balance, err := h.balance(addr)
	if err != nil {
		return nil, err
	}
	acc.Balance = balance

	return acc, nil
}

// SetData 覆写账户存储数据
func (h *boltHost) SetData(addr models.Pubkey, data []byte) error {
	if h.readonly {
		return errors.ErrImmutableAccount.WithAccount(addr.String())
	}

	accounts := h.tx.Bucket([]byte(AccountsBucket))
	if accounts == nil {
		return errors.ErrLedgerFailure.WithContext("bucket", AccountsBucket)
	}

	if err := accounts.Put(addr.Bytes(), data); err != nil {
		return errors.WrapError(err, errors.ErrorTypeLedger, errors.SeverityCritical,
			"LEDGER_WRITE_FAILED", "写入账户数据失败")
	}

	return nil
}

// CreateAccount 创建账户并从funder扣除免租最低余额
func (h *boltHost) CreateAccount(funder, addr models.Pubkey, size int) error {
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

	funderBalance, err := h.balance(funder)
	if err != nil {
		return err
	}
	if funderBalance < rent {
		return errors.ErrInsufficientFunds.WithAccount(funder.String()).WithContext("need", rent)
	}

	if err := h.setBalance(funder, funderBalance-rent); err != nil {
		return err
	}

	addrBalance, err := h.balance(addr)
	if err != nil {
		return err
	}
	if err := h.setBalance(addr, addrBalance+rent); err != nil {
		return err
	}

	return h.SetData(addr, make([]byte, size))
}

// Transfer 原子转账
func (h *boltHost) Transfer(from, to models.Pubkey, amount uint64) error {
	if h.readonly {
		return errors.ErrImmutableAccount.WithAccount(from.String())
	}

	fromBalance, err := h.balance(from)
	if err != nil {
		return err
	}
	if fromBalance < amount {
		return errors.ErrInsufficientFunds.WithAccount(from.String()).WithContext("need", amount)
	}

	if from == to {
		return nil
	}

	toBalance, err := h.balance(to)
	if err != nil {
		return err
	}

	if err := h.setBalance(from, fromBalance-amount); err != nil {
		return err
	}
	return h.setBalance(to, toBalance+amount)
}

// MinimumBalance 计算免租最低余额
func (h *boltHost) MinimumBalance(size int) uint64 {
	return minimumBalance(size)
}

// balance 读取账户余额
func (h *boltHost) balance(addr models.Pubkey) (uint64, error) {
	balances := h.tx.Bucket([]byte(BalancesBucket))
	if balances == nil {
		return 0, errors.ErrLedgerFailure.WithContext("bucket", BalancesBucket)
	}

	data := balances.Get(addr.Bytes())
	if data == nil {
		return 0, nil
	}
	if len(data) != 8 {
		return 0, errors.ErrLedgerFailure.WithAccount(addr.String()).WithContext("reason", "余额编码损坏")
	}

	return binary.LittleEndian.Uint64(data), nil
}

// setBalance 写入账户余额
func (h *boltHost) setBalance(addr models.Pubkey, balance uint64) error {
	balances := h.tx.Bucket([]byte(BalancesBucket))
	if balances == nil {
		return errors.ErrLedgerFailure.WithContext("bucket", BalancesBucket)
	}

	var data [8]byte
	binary.LittleEndian.PutUint64(data[:], balance)

	if err := balances.Put(addr.Bytes(), data[:]); err != nil {
		return errors.WrapError(err, errors.ErrorTypeLedger, errors.SeverityCritical,
			"LEDGER_WRITE_FAILED", "写入账户余额失败")
	}

	return nil
}
