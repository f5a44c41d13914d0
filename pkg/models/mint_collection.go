package models

import (
	"github.com/TheMenageri3/deresearcher-program/pkg/codec"
)

// ResearchMintCollectionSize 读者铸造记录的固定大小（字节）
// reader_pubkey(32) + data_merkle_root(64) + bump(1)
const ResearchMintCollectionSize = 32 + 64 + 1

// ResearchMintCollection 读者访问/铸造记录
// 每个读者一条记录，首次访问时懒创建，之后只允许刷新元数据摘要
type ResearchMintCollection struct {
	ReaderPubkey   Pubkey `json:"reader_pubkey"`
	DataMerkleRoot Digest `json:"data_merkle_root"`
	Bump           uint8  `json:"bump"`
}

// Encode 编码为定宽二进制记录
func (m *ResearchMintCollection) Encode() ([]byte, error) {
	w := codec.NewWriter(ResearchMintCollectionSize)
	w.WriteBytes(m.ReaderPubkey.Bytes())
	w.WriteBytes(m.DataMerkleRoot.Bytes())
	w.WriteU8(m.Bump)

	return w.Bytes(), nil
}

// DecodeResearchMintCollection 从定宽二进制记录解码
func DecodeResearchMintCollection(data []byte) (*ResearchMintCollection, error) {
	r := codec.NewReader(data)

	m := &ResearchMintCollection{}
	copy(m.ReaderPubkey[:], r.ReadBytes(PubkeySize))
	copy(m.DataMerkleRoot[:], r.ReadBytes(DigestSize))
	m.Bump = r.ReadU8()

	if err := r.Finish(); err != nil {
		return nil, err
	}

	return m, nil
}
