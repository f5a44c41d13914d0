package models

import (
	"github.com/TheMenageri3/deresearcher-program/internal/errors"
	"github.com/TheMenageri3/deresearcher-program/pkg/codec"
)

// ResearchPaperSize 论文记录的固定大小（字节）
// address(32) + creator_pubkey(32) + state(1) + access_fee(4) + version(1) +
// paper_content_hash(64) + total_approvals(1) + total_citations(8) +
// total_mints(8) + meta_data_merkle_root(64) + bump(1)
const ResearchPaperSize = 32 + 32 + 1 + 4 + 1 + 64 + 1 + 8 + 8 + 64 + 1

// MaxApprovals 论文通过数上限（单字节计数）
const MaxApprovals = 255

// ResearchPaper 研究论文记录
type ResearchPaper struct {
	Address            Pubkey     `json:"address"`
	CreatorPubkey      Pubkey     `json:"creator_pubkey"`
	State              PaperState `json:"state"`
	AccessFee          uint32     `json:"access_fee"`
	Version            uint8      `json:"version"`
	PaperContentHash   Digest     `json:"paper_content_hash"`
	TotalApprovals     uint8      `json:"total_approvals"`
	TotalCitations     uint64     `json:"total_citations"`
	TotalMints         uint64     `json:"total_mints"`
	MetaDataMerkleRoot Digest     `json:"meta_data_merkle_root"`
	Bump               uint8      `json:"bump"`
}

// Encode 编码为定宽二进制记录
func (p *ResearchPaper) Encode() ([]byte, error) {
	w := codec.NewWriter(ResearchPaperSize)
	w.WriteBytes(p.Address.Bytes())
	w.WriteBytes(p.CreatorPubkey.Bytes())
	w.WriteU8(uint8(p.State))
	w.WriteU32(p.AccessFee)
	w.WriteU8(p.Version)
	w.WriteBytes(p.PaperContentHash.Bytes())
	w.WriteU8(p.TotalApprovals)
	w.WriteU64(p.TotalCitations)
	w.WriteU64(p.TotalMints)
	w.WriteBytes(p.MetaDataMerkleRoot.Bytes())
	w.WriteU8(p.Bump)

	return w.Bytes(), nil
}

// DecodeResearchPaper 从定宽二进制记录解码
func DecodeResearchPaper(data []byte) (*ResearchPaper, error) {
	r := codec.NewReader(data)

	p := &ResearchPaper{}
	copy(p.Address[:], r.ReadBytes(PubkeySize))
	copy(p.CreatorPubkey[:], r.ReadBytes(PubkeySize))
	p.State = PaperState(r.ReadU8())
	p.AccessFee = r.ReadU32()
	p.Version = r.ReadU8()
	copy(p.PaperContentHash[:], r.ReadBytes(DigestSize))
	p.TotalApprovals = r.ReadU8()
	p.TotalCitations = r.ReadU64()
	p.TotalMints = r.ReadU64()
	copy(p.MetaDataMerkleRoot[:], r.ReadBytes(DigestSize))
	p.Bump = r.ReadU8()

	if err := r.Finish(); err != nil {
		return nil, err
	}

	if !p.State.IsValid() {
		return nil, errors.ErrSerialization.WithContext("paper_state", uint8(p.State))
	}

	return p, nil
}
