package models

import (
	"github.com/TheMenageri3/deresearcher-program/pkg/codec"
)

// PeerReviewSize 同行评审记录的固定大小（字节）
// address(32) + reviewer_pubkey(32) + paper_pubkey(32) + 四项评分(4) +
// meta_data_merkle_root(64) + bump(1)
const PeerReviewSize = 32 + 32 + 32 + 1 + 1 + 1 + 1 + 64 + 1

// MaxReviewScore 单项评分上限
const MaxReviewScore = 100

// ApprovalScoreCutoff 计入通过数的平均分门槛（严格大于）
const ApprovalScoreCutoff = 50

// PeerReview 同行评审记录
// 每个(论文, 评审人)组合最多一条记录，由派生地址的唯一性保证，创建后不再修改
type PeerReview struct {
	Address                      Pubkey `json:"address"`
	ReviewerPubkey               Pubkey `json:"reviewer_pubkey"`
	PaperPubkey                  Pubkey `json:"paper_pubkey"`
	QualityOfResearch            uint8  `json:"quality_of_research"`
	PotentialForRealWorldUseCase uint8  `json:"potential_for_real_world_use_case"`
	DomainKnowledge              uint8  `json:"domain_knowledge"`
	PracticalityOfResultObtained uint8  `json:"practicality_of_result_obtained"`
	MetaDataMerkleRoot           Digest `json:"meta_data_merkle_root"`
	Bump                         uint8  `json:"bump"`
}

// CumulativeScore 四项评分之和（用16位整数避免溢出）
func (r *PeerReview) CumulativeScore() uint16 {
	return uint16(r.QualityOfResearch) +
		uint16(r.PotentialForRealWorldUseCase) +
		uint16(r.DomainKnowledge) +
		uint16(r.PracticalityOfResultObtained)
}

// AverageScore 平均分，整数除法向零截断
func (r *PeerReview) AverageScore() uint16 {
	return r.CumulativeScore() / 4
}

// Encode 编码为定宽二进制记录
func (r *PeerReview) Encode() ([]byte, error) {
	w := codec.NewWriter(PeerReviewSize)
	w.WriteBytes(r.Address.Bytes())
	w.WriteBytes(r.ReviewerPubkey.Bytes())
	w.WriteBytes(r.PaperPubkey.Bytes())
	w.WriteU8(r.QualityOfResearch)
	w.WriteU8(r.PotentialForRealWorldUseCase)
	w.WriteU8(r.DomainKnowledge)
	w.WriteU8(r.PracticalityOfResultObtained)
	w.WriteBytes(r.MetaDataMerkleRoot.Bytes())
	w.WriteU8(r.Bump)

	return w.Bytes(), nil
}

// DecodePeerReview 从定宽二进制记录解码
func DecodePeerReview(data []byte) (*PeerReview, error) {
	rd := codec.NewReader(data)

	r := &PeerReview{}
	copy(r.Address[:], rd.ReadBytes(PubkeySize))
	copy(r.ReviewerPubkey[:], rd.ReadBytes(PubkeySize))
	copy(r.PaperPubkey[:], rd.ReadBytes(PubkeySize))
	r.QualityOfResearch = rd.ReadU8()
	r.PotentialForRealWorldUseCase = rd.ReadU8()
	r.DomainKnowledge = rd.ReadU8()
	r.PracticalityOfResultObtained = rd.ReadU8()
	copy(r.MetaDataMerkleRoot[:], rd.ReadBytes(DigestSize))
	r.Bump = rd.ReadU8()

	if err := rd.Finish(); err != nil {
		return nil, err
	}

	return r, nil
}
