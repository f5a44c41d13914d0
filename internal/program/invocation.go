package program

import (
	"github.com/TheMenageri3/deresearcher-program/internal/errors"
	"github.com/TheMenageri3/deresearcher-program/pkg/models"
)

// AccountMeta 外部账户句柄
// 签名与可写标志由宿主在调用前核验，程序核心只消费结果
type AccountMeta struct {
	Address    models.Pubkey `json:"address"`
	IsSigner   bool          `json:"is_signer"`
	IsWritable bool          `json:"is_writable"`
}

// Invocation 一次外部调用：定序的账户列表 + 指令载荷
// 账户按位置解析，没有按名称的解析
type Invocation struct {
	Accounts []AccountMeta `json:"accounts"`
	Data     []byte        `json:"data"`
}

// account 按位置取账户，缺失视为畸形指令
func (inv *Invocation) account(index int) (*AccountMeta, error) {
	if index >= len(inv.Accounts) {
		return nil, errors.ErrInvalidInstruction.WithContext("missing_account_index", index)
	}
	return &inv.Accounts[index], nil
}

// requireSigner 要求账户已签名
func requireSigner(acc *AccountMeta) error {
	if !acc.IsSigner {
		return errors.ErrInvalidSigner.WithAccount(acc.Address.String())
	}
	return nil
}

// requireWritable 要求账户可写（能力检查，被修改的账户必须以可写身份传入）
func requireWritable(acc *AccountMeta) error {
	if !acc.IsWritable {
		return errors.ErrImmutableAccount.WithAccount(acc.Address.String())
	}
	return nil
}
