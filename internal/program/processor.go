package program

import (
	"github.com/sirupsen/logrus"

	"github.com/TheMenageri3/deresearcher-program/internal/errors"
	"github.com/TheMenageri3/deresearcher-program/internal/ledger"
	"github.com/TheMenageri3/deresearcher-program/pkg/models"
)

// DefaultMinApprovals 默认的发布门槛（评审通过数）
const DefaultMinApprovals = 10

// Params 程序策略参数，进程启动时装载，之后不可变
type Params struct {
	// MinApprovals 论文进入可发布状态所需的评审通过数
	MinApprovals uint8

	// RequirePublishedForAccess 获取访问权时是否要求论文已发布
	RequirePublishedForAccess bool

	// ReputationAuthority 唯一有权评定声誉的预言机公钥
	ReputationAuthority models.Pubkey
}

// DefaultParams 默认策略参数
func DefaultParams(authority models.Pubkey) Params {
	return Params{
		MinApprovals:              DefaultMinApprovals,
		RequirePublishedForAccess: true,
		ReputationAuthority:       authority,
	}
}

// Processor 指令处理器
// 解码指令载荷，按操作码分发到唯一的处理函数；
// 处理函数在宿主提供的原子单元内读写记录，第一个失败的前置条件
// 立即中止整次调用，不产生部分写入
type Processor struct {
	programID models.Pubkey
	params    Params
	logger    *logrus.Logger
}

// NewProcessor 创建指令处理器
func NewProcessor(programID models.Pubkey, params Params, logger *logrus.Logger) *Processor {
	return &Processor{
		programID: programID,
		params:    params,
		logger:    logger,
	}
}

// ProgramID 返回程序标识
func (p *Processor) ProgramID() models.Pubkey {
	return p.programID
}

// Params 返回策略参数
func (p *Processor) Params() Params {
	return p.params
}

// Process 处理一次调用：解码、分发、原样传播处理结果
func (p *Processor) Process(host ledger.Host, inv *Invocation) error {
	ix, err := models.DecodeInstruction(inv.Data)
	if err != nil {
		return err
	}

	p.logger.Infof("Instruction: %s", ix.Opcode())

	switch args := ix.(type) {
	case *models.CreateResearcherProfileArgs:
		return p.createResearcherProfile(host, inv, args)
	case *models.CreateResearchPaperArgs:
		return p.createResearchPaper(host, inv, args)
	case *models.PublishPaperArgs:
		return p.publishPaper(host, inv)
	case *models.AddPeerReviewArgs:
		return p.addPeerReview(host, inv, args)
	case *models.GetAccessToPaperArgs:
		return p.getAccessToPaper(host, inv, args)
	case *models.CheckAndAssignReputationArgs:
		return p.checkAndAssignReputation(host, inv, args)
	default:
		return errors.ErrInvalidInstruction
	}
}
