package models

import (
	"github.com/TheMenageri3/deresearcher-program/internal/errors"
	"github.com/TheMenageri3/deresearcher-program/pkg/codec"
)

// Opcode 指令操作码
type Opcode uint8

const (
	OpCreateResearcherProfile Opcode = iota
	OpCreateResearchPaper
	OpPublishPaper
	OpAddPeerReview
	OpGetAccessToPaper
	OpCheckAndAssignReputation
)

// maxInstructionNameLen 指令载荷中变长姓名字段的解码上限
// 防御超大长度前缀，真正的容量检查（64字节）在处理器里做
const maxInstructionNameLen = 1024

// opcodeNames 操作码字符串映射
var opcodeNames = map[Opcode]string{
	OpCreateResearcherProfile:  "CreateResearcherProfile",
	OpCreateResearchPaper:      "CreateResearchPaper",
	OpPublishPaper:             "PublishPaper",
	OpAddPeerReview:            "AddPeerReview",
	OpGetAccessToPaper:         "GetAccessToPaper",
	OpCheckAndAssignReputation: "CheckAndAssignReputation",
}

// String 返回操作码的字符串表示
func (op Opcode) String() string {
	if name, exists := opcodeNames[op]; exists {
		return name
	}
	return "Unknown"
}

// Instruction 指令载荷（封闭的标签联合，路由器按类型显式分发）
type Instruction interface {
	Opcode() Opcode
}

// CreateResearcherProfileArgs 创建研究者档案的参数
type CreateResearcherProfileArgs struct {
	Name    string `json:"name"`
	PdaBump uint8  `json:"pda_bump"`
}

// Opcode 实现Instruction接口
func (a *CreateResearcherProfileArgs) Opcode() Opcode { return OpCreateResearcherProfile }

// CreateResearchPaperArgs 创建论文的参数
type CreateResearchPaperArgs struct {
	AccessFee          uint32 `json:"access_fee"`
	PaperContentHash   Digest `json:"paper_content_hash"`
	MetaDataMerkleRoot Digest `json:"meta_data_merkle_root"`
	PdaBump            uint8  `json:"pda_bump"`
}

// Opcode 实现Instruction接口
func (a *CreateResearchPaperArgs) Opcode() Opcode { return OpCreateResearchPaper }

// PublishPaperArgs 发布论文的参数（无字段）
type PublishPaperArgs struct{}

// Opcode 实现Instruction接口
func (a *PublishPaperArgs) Opcode() Opcode { return OpPublishPaper }

// AddPeerReviewArgs 添加同行评审的参数
type AddPeerReviewArgs struct {
	QualityOfResearch            uint8  `json:"quality_of_research"`
	PotentialForRealWorldUseCase uint8  `json:"potential_for_real_world_use_case"`
	DomainKnowledge              uint8  `json:"domain_knowledge"`
	PracticalityOfResultObtained uint8  `json:"practicality_of_result_obtained"`
	MetaDataMerkleRoot           Digest `json:"meta_data_merkle_root"`
	PdaBump                      uint8  `json:"pda_bump"`
}

// Opcode 实现Instruction接口
func (a *AddPeerReviewArgs) Opcode() Opcode { return OpAddPeerReview }

// GetAccessToPaperArgs 获取论文访问权的参数
type GetAccessToPaperArgs struct {
	MetaDataMerkleRoot Digest `json:"meta_data_merkle_root"`
	PdaBump            uint8  `json:"pda_bump"`
}

// Opcode 实现Instruction接口
func (a *GetAccessToPaperArgs) Opcode() Opcode { return OpGetAccessToPaper }

// CheckAndAssignReputationArgs 评定声誉的参数
type CheckAndAssignReputationArgs struct {
	Reputation uint8 `json:"reputation"`
}

// Opcode 实现Instruction接口
func (a *CheckAndAssignReputationArgs) Opcode() Opcode { return OpCheckAndAssignReputation }

// EncodeInstruction 编码指令载荷：1字节操作码 + 定宽参数
func EncodeInstruction(ix Instruction) ([]byte, error) {
	w := codec.NewWriter(1 + DigestSize*2)
	w.WriteU8(uint8(ix.Opcode()))

	switch args := ix.(type) {
	case *CreateResearcherProfileArgs:
		// 姓名是载荷中唯一的变长字段，带u32长度前缀
		w.WriteU32(uint32(len(args.Name)))
		w.WriteBytes([]byte(args.Name))
		w.WriteU8(args.PdaBump)
	case *CreateResearchPaperArgs:
		w.WriteU32(args.AccessFee)
		w.WriteBytes(args.PaperContentHash.Bytes())
		w.WriteBytes(args.MetaDataMerkleRoot.Bytes())
		w.WriteU8(args.PdaBump)
	case *PublishPaperArgs:
		// 无参数
	case *AddPeerReviewArgs:
		w.WriteU8(args.QualityOfResearch)
		w.WriteU8(args.PotentialForRealWorldUseCase)
		w.WriteU8(args.DomainKnowledge)
		w.WriteU8(args.PracticalityOfResultObtained)
		w.WriteBytes(args.MetaDataMerkleRoot.Bytes())
		w.WriteU8(args.PdaBump)
	case *GetAccessToPaperArgs:
		w.WriteBytes(args.MetaDataMerkleRoot.Bytes())
		w.WriteU8(args.PdaBump)
	case *CheckAndAssignReputationArgs:
		w.WriteU8(args.Reputation)
	default:
		return nil, errors.ErrInvalidInstruction
	}

	return w.Bytes(), nil
}

// DecodeInstruction 解码指令载荷
// 未知操作码或畸形载荷一律返回InvalidInstruction
func DecodeInstruction(data []byte) (Instruction, error) {
	r := codec.NewReader(data)
	op := Opcode(r.ReadU8())
	if r.Err() != nil {
		return nil, errors.ErrInvalidInstruction
	}

	var ix Instruction

	switch op {
	case OpCreateResearcherProfile:
		nameLen := r.ReadU32()
		if r.Err() != nil || nameLen > maxInstructionNameLen {
			return nil, errors.ErrInvalidInstruction
		}
		nameBytes := r.ReadBytes(int(nameLen))
		args := &CreateResearcherProfileArgs{
			Name:    string(nameBytes),
			PdaBump: r.ReadU8(),
		}
		ix = args
	case OpCreateResearchPaper:
		args := &CreateResearchPaperArgs{}
		args.AccessFee = r.ReadU32()
		copy(args.PaperContentHash[:], r.ReadBytes(DigestSize))
		copy(args.MetaDataMerkleRoot[:], r.ReadBytes(DigestSize))
		args.PdaBump = r.ReadU8()
		ix = args
	case OpPublishPaper:
		ix = &PublishPaperArgs{}
	case OpAddPeerReview:
		args := &AddPeerReviewArgs{}
		args.QualityOfResearch = r.ReadU8()
		args.PotentialForRealWorldUseCase = r.ReadU8()
		args.DomainKnowledge = r.ReadU8()
		args.PracticalityOfResultObtained = r.ReadU8()
		copy(args.MetaDataMerkleRoot[:], r.ReadBytes(DigestSize))
		args.PdaBump = r.ReadU8()
		ix = args
	case OpGetAccessToPaper:
		args := &GetAccessToPaperArgs{}
		copy(args.MetaDataMerkleRoot[:], r.ReadBytes(DigestSize))
		args.PdaBump = r.ReadU8()
		ix = args
	case OpCheckAndAssignReputation:
		ix = &CheckAndAssignReputationArgs{Reputation: r.ReadU8()}
	default:
		return nil, errors.ErrInvalidInstruction
	}

	if err := r.Finish(); err != nil {
		return nil, errors.ErrInvalidInstruction
	}

	return ix, nil
}
