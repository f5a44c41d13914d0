package models

import (
	"github.com/TheMenageri3/deresearcher-program/internal/errors"
	"github.com/TheMenageri3/deresearcher-program/pkg/codec"
)

// ResearcherProfileSize 研究者档案记录的固定大小（字节）
// address(32) + researcher_pubkey(32) + name(64) + state(1) +
// total_papers_published(8) + total_citations(8) + total_reviews(8) +
// reputation(1) + meta_data_merkle_root(64) + bump(1)
const ResearcherProfileSize = 32 + 32 + 64 + 1 + 8 + 8 + 8 + 1 + 64 + 1

// MaxReputation 声誉分数上限
const MaxReputation = 100

// MinReputationForPeerReview 参与同行评审的最低声誉分数
const MinReputationForPeerReview = 50

// ResearcherProfile 研究者档案记录
type ResearcherProfile struct {
	Address              Pubkey                 `json:"address"`
	ResearcherPubkey     Pubkey                 `json:"researcher_pubkey"`
	Name                 string                 `json:"name"`
	State                ResearcherProfileState `json:"state"`
	TotalPapersPublished uint64                 `json:"total_papers_published"`
	TotalCitations       uint64                 `json:"total_citations"`
	TotalReviews         uint64                 `json:"total_reviews"`
	Reputation           uint8                  `json:"reputation"`
	MetaDataMerkleRoot   Digest                 `json:"meta_data_merkle_root"`
	Bump                 uint8                  `json:"bump"`
}

// Encode 编码为定宽二进制记录
func (p *ResearcherProfile) Encode() ([]byte, error) {
	nameBytes, err := codec.PackString64(p.Name)
	if err != nil {
		return nil, err
	}

	w := codec.NewWriter(ResearcherProfileSize)
	w.WriteBytes(p.Address.Bytes())
	w.WriteBytes(p.ResearcherPubkey.Bytes())
	w.WriteBytes(nameBytes[:])
	w.WriteU8(uint8(p.State))
	w.WriteU64(p.TotalPapersPublished)
	w.WriteU64(p.TotalCitations)
	w.WriteU64(p.TotalReviews)
	w.WriteU8(p.Reputation)
	w.WriteBytes(p.MetaDataMerkleRoot.Bytes())
	w.WriteU8(p.Bump)

	return w.Bytes(), nil
}

// DecodeResearcherProfile 从定宽二进制记录解码
// 截断的输入是致命的反序列化错误
func DecodeResearcherProfile(data []byte) (*ResearcherProfile, error) {
	r := codec.NewReader(data)

	p := &ResearcherProfile{}
	copy(p.Address[:], r.ReadBytes(PubkeySize))
	copy(p.ResearcherPubkey[:], r.ReadBytes(PubkeySize))

	var nameBytes [codec.MaxStringSize]byte
	copy(nameBytes[:], r.ReadBytes(codec.MaxStringSize))
	p.Name = codec.UnpackString64(nameBytes)

	p.State = ResearcherProfileState(r.ReadU8())
	p.TotalPapersPublished = r.ReadU64()
	p.TotalCitations = r.ReadU64()
	p.TotalReviews = r.ReadU64()
	p.Reputation = r.ReadU8()
	copy(p.MetaDataMerkleRoot[:], r.ReadBytes(DigestSize))
	p.Bump = r.ReadU8()

	if err := r.Finish(); err != nil {
		return nil, err
	}

	if !p.State.IsValid() {
		return nil, errors.ErrSerialization.WithContext("profile_state", uint8(p.State))
	}

	return p, nil
}
