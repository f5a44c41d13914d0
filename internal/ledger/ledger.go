package ledger

import (
	"github.com/TheMenageri3/deresearcher-program/pkg/models"
)

const (
	// accountStorageOverhead 每个账户的固定存储开销（字节），计租时计入
	accountStorageOverhead = 128

	// rentPerByteYear 每字节每年的租金（基础货币单位）
	rentPerByteYear = 3480

	// rentExemptionYears 免租所需预存的年数
	rentExemptionYears = 2
)

// Account 账户视图
// Data为空表示账户尚未创建
type Account struct {
	Address models.Pubkey `json:"address"`
	Data    []byte        `json:"data"`
	Balance uint64        `json:"balance"`
}

// Exists 判断账户是否已创建（有存储数据）
func (a *Account) Exists() bool {
	return a != nil && len(a.Data) > 0
}

// Host 账本宿主接口
// 提供按地址的字节存储、账户创建、原子转账和最低免租余额计算；
// 一次调用内的所有修改由外层的Execute保证全有或全无
type Host interface {
	// Account 读取账户视图（不存在的账户返回空数据、零余额）
	Account(addr models.Pubkey) (*Account, error)

	// SetData 覆写账户存储数据
	SetData(addr models.Pubkey, data []byte) error

	// CreateAccount 创建账户并从funder扣除免租最低余额
	CreateAccount(funder, addr models.Pubkey, size int) error

	// Transfer 原子转账
	Transfer(from, to models.Pubkey, amount uint64) error

	// MinimumBalance 计算指定大小账户的免租最低余额
	MinimumBalance(size int) uint64
}

// Ledger 账本，服务一次一个的原子调用
type Ledger interface {
	// Execute 在一个原子单元内执行fn：fn返回错误时所有修改回滚
	Execute(fn func(Host) error) error

	// View 在只读视图内执行fn
	View(fn func(Host) error) error

	// Credit 直接向账户注入余额（初始化/测试水龙头，不属于程序语义）
	Credit(addr models.Pubkey, amount uint64) error

	// Close 关闭账本
	Close() error
}

// minimumBalance 免租最低余额公式，各实现共用
func minimumBalance(size int) uint64 {
	return uint64(accountStorageOverhead+size) * rentPerByteYear * rentExemptionYears
}
