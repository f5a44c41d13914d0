package models

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/mr-tron/base58"
)

// PubkeySize 公钥长度（字节）
const PubkeySize = 32

// DigestSize 内容哈希/元数据摘要长度（字节）
const DigestSize = 64

// Pubkey 32字节公钥，外部表示使用base58编码
type Pubkey [PubkeySize]byte

// Bytes 返回公钥的字节切片
func (p Pubkey) Bytes() []byte {
	return p[:]
}

// String 返回base58编码的公钥
func (p Pubkey) String() string {
	return base58.Encode(p[:])
}

// IsZero 判断是否为零值公钥
func (p Pubkey) IsZero() bool {
	return p == Pubkey{}
}

// Equal 判断两个公钥是否相等
func (p Pubkey) Equal(other Pubkey) bool {
	return p == other
}

// MarshalJSON 实现json.Marshaler
func (p Pubkey) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON 实现json.Unmarshaler
func (p *Pubkey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	pk, err := PubkeyFromBase58(s)
	if err != nil {
		return err
	}

	*p = pk
	return nil
}

// PubkeyFromBase58 从base58字符串解析公钥
func PubkeyFromBase58(s string) (Pubkey, error) {
	var p Pubkey

	decoded, err := base58.Decode(s)
	if err != nil {
		return p, fmt.Errorf("解析base58公钥失败: %w", err)
	}

	return PubkeyFromBytes(decoded)
}

// PubkeyFromBytes 从字节切片解析公钥
func PubkeyFromBytes(data []byte) (Pubkey, error) {
	var p Pubkey

	if len(data) != PubkeySize {
		return p, fmt.Errorf("公钥长度无效: %d", len(data))
	}

	copy(p[:], data)
	return p, nil
}

// Digest 64字节摘要（论文内容哈希、元数据默克尔根），外部表示使用十六进制编码
type Digest [DigestSize]byte

// Bytes 返回摘要的字节切片
func (d Digest) Bytes() []byte {
	return d[:]
}

// String 返回十六进制编码的摘要
func (d Digest) String() string {
	return hexutil.Encode(d[:])
}

// MarshalJSON 实现json.Marshaler
func (d Digest) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON 实现json.Unmarshaler
func (d *Digest) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	decoded, err := hexutil.Decode(s)
	if err != nil {
		return fmt.Errorf("解析十六进制摘要失败: %w", err)
	}

	dg, err := DigestFromBytes(decoded)
	if err != nil {
		return err
	}

	*d = dg
	return nil
}

// DigestFromBytes 从字节切片解析摘要
func DigestFromBytes(data []byte) (Digest, error) {
	var d Digest

	if len(data) != DigestSize {
		return d, fmt.Errorf("摘要长度无效: %d", len(data))
	}

	copy(d[:], data)
	return d, nil
}
