package pda

import (
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"

	"github.com/TheMenageri3/deresearcher-program/internal/errors"
	"github.com/TheMenageri3/deresearcher-program/pkg/models"
)

// 各记录类型的派生种子标签
const (
	ResearcherProfileSeed = "deres_researcher_profile"
	ResearchPaperSeed     = "deres_research_paper"
	PeerReviewSeed        = "deres_peer_review"
	MintCollectionSeed    = "deres_mint_collection"
)

const (
	// maxSeedLen 单个种子的最大长度
	maxSeedLen = 32

	// maxSeeds 种子个数上限（不含bump）
	maxSeeds = 16

	// derivationMarker 域分隔符，保证派生地址与普通哈希值不会混淆
	derivationMarker = "ProgramDerivedAddress"
)

// Create 由种子+bump确定性派生记录地址
// 结果落在ed25519曲线上时返回错误（调用方换下一个bump重试），
// 从而保证派生地址永远不在合法签名密钥空间内
func Create(seeds [][]byte, bump uint8, programID models.Pubkey) (models.Pubkey, error) {
	var addr models.Pubkey

	if len(seeds) > maxSeeds {
		return addr, fmt.Errorf("种子数量超出上限: %d", len(seeds))
	}

	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > maxSeedLen {
			return addr, fmt.Errorf("种子长度超出上限: %d", len(seed))
		}
		h.Write(seed)
	}
	h.Write([]byte{bump})
	h.Write(programID.Bytes())
	h.Write([]byte(derivationMarker))

	sum := h.Sum(nil)

	// 合法曲线点意味着存在对应私钥，不能作为派生地址
	if _, err := new(edwards25519.Point).SetBytes(sum); err == nil {
		return addr, fmt.Errorf("派生结果落在曲线上，bump=%d不可用", bump)
	}

	copy(addr[:], sum)
	return addr, nil
}

// Find 从255开始向下搜索第一个可用的bump，返回地址和bump
func Find(seeds [][]byte, programID models.Pubkey) (models.Pubkey, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		addr, err := Create(seeds, uint8(bump), programID)
		if err == nil {
			return addr, uint8(bump), nil
		}
	}

	var zero models.Pubkey
	return zero, 0, fmt.Errorf("无法为给定种子找到可用的派生地址")
}

// Validate 用种子+bump重新派生地址并与调用方声称的地址比对
// 每个接受外部地址的处理器都必须先通过该校验，防止账户替换攻击
func Validate(seeds [][]byte, bump uint8, programID models.Pubkey, claimed models.Pubkey) error {
	derived, err := Create(seeds, bump, programID)
	if err != nil {
		return errors.ErrPdaMismatch.WithAccount(claimed.String()).WithContext("bump", bump)
	}

	if !derived.Equal(claimed) {
		return errors.ErrPdaMismatch.WithAccount(claimed.String()).WithContext("derived", derived.String())
	}

	return nil
}

// ResearcherProfileSeeds 研究者档案的派生种子: (标签, 研究者公钥)
func ResearcherProfileSeeds(researcher models.Pubkey) [][]byte {
	return [][]byte{[]byte(ResearcherProfileSeed), researcher.Bytes()}
}

// ResearchPaperSeeds 论文的派生种子: (标签, 内容哈希前32字节, 创建者公钥)
// 取前缀是因为单个种子最长32字节
func ResearchPaperSeeds(contentHash models.Digest, creator models.Pubkey) [][]byte {
	return [][]byte{[]byte(ResearchPaperSeed), contentHash[:maxSeedLen], creator.Bytes()}
}

// PeerReviewSeeds 同行评审的派生种子: (标签, 论文地址, 评审人公钥)
// 同时包含论文和评审人，保证每个组合唯一
func PeerReviewSeeds(paper, reviewer models.Pubkey) [][]byte {
	return [][]byte{[]byte(PeerReviewSeed), paper.Bytes(), reviewer.Bytes()}
}

// MintCollectionSeeds 读者铸造记录的派生种子: (标签, 读者公钥)
func MintCollectionSeeds(reader models.Pubkey) [][]byte {
	return [][]byte{[]byte(MintCollectionSeed), reader.Bytes()}
}
