package node

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/TheMenageri3/deresearcher-program/internal/config"
	"github.com/TheMenageri3/deresearcher-program/internal/errors"
	"github.com/TheMenageri3/deresearcher-program/internal/ledger"
	"github.com/TheMenageri3/deresearcher-program/internal/logging"
	"github.com/TheMenageri3/deresearcher-program/internal/output"
	"github.com/TheMenageri3/deresearcher-program/internal/pda"
	"github.com/TheMenageri3/deresearcher-program/internal/program"
	"github.com/TheMenageri3/deresearcher-program/internal/progress"
	"github.com/TheMenageri3/deresearcher-program/internal/retry"
	"github.com/TheMenageri3/deresearcher-program/internal/shutdown"
	"github.com/TheMenageri3/deresearcher-program/internal/validation"
	"github.com/TheMenageri3/deresearcher-program/pkg/models"
)

// 节点常量
const (
	// DefaultShutdownTimeout 优雅停机超时
	DefaultShutdownTimeout = 30 * time.Second
)

// SubmitResult 指令提交结果
type SubmitResult struct {
	Sequence uint64        `json:"sequence"`
	Opcode   string        `json:"opcode"`
	Event    *models.Event `json:"event,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Node 程序节点
// 把账本、指令处理器、验证器和事件输出串成一条提交管道：
// 验证 -> 原子执行 -> 记录进度 -> 发布事件
type Node struct {
	cfg              *config.Config
	processor        *program.Processor
	ledger           ledger.Ledger
	outputter        output.Output
	validator        *validation.Validator
	logger           *logrus.Logger
	structuredLogger *logging.StructuredLogger  // 结构化日志器
	progressManager  *progress.Manager          // 进度管理器
	retrier          *retry.Retrier             // 重试器
	errorHandler     *errors.ErrorHandler       // 错误处理器
	gracefulShutdown *shutdown.GracefulShutdown // 优雅停机管理器
	mu               sync.RWMutex
}

// validateConfig 验证配置参数
func validateConfig(cfg *config.Config, out output.Output, logger *logrus.Logger) error {
	if cfg == nil {
		return fmt.Errorf("配置不能为空")
	}
	if out == nil {
		return fmt.Errorf("输出器不能为空")
	}
	if logger == nil {
		return fmt.Errorf("日志器不能为空")
	}
	if cfg.Program == nil {
		return fmt.Errorf("程序配置不能为空")
	}
	if cfg.Program.ProgramID == "" {
		return fmt.Errorf("程序标识不能为空")
	}
	if cfg.Program.ReputationAuthority == "" {
		return fmt.Errorf("声誉预言机公钥不能为空")
	}
	if cfg.Program.MinApprovals < 1 || cfg.Program.MinApprovals > 255 {
		return fmt.Errorf("发布门槛必须在 1-255 之间: %d", cfg.Program.MinApprovals)
	}
	return nil
}

// NewNode 创建节点
func NewNode(cfg *config.Config, out output.Output, logger *logrus.Logger) (*Node, error) {
	return NewNodeWithLogging(cfg, out, logger, nil)
}

// NewNodeWithLogging 创建带结构化日志的节点
func NewNodeWithLogging(cfg *config.Config, out output.Output, logger *logrus.Logger, logConfig *logging.LogConfig) (*Node, error) {
	// 验证输入参数
	if err := validateConfig(cfg, out, logger); err != nil {
		return nil, errors.ErrConfigInvalid.WithContext("reason", err.Error())
	}

	programID, err := models.PubkeyFromBase58(cfg.Program.ProgramID)
	if err != nil {
		return nil, errors.ErrConfigInvalid.WithContext("program_id", cfg.Program.ProgramID)
	}

	authority, err := models.PubkeyFromBase58(cfg.Program.ReputationAuthority)
	if err != nil {
		return nil, errors.ErrConfigInvalid.WithContext("reputation_authority", cfg.Program.ReputationAuthority)
	}

	params := program.Params{
		MinApprovals:              uint8(cfg.Program.MinApprovals),
		RequirePublishedForAccess: cfg.Program.RequirePublishedForAccess,
		ReputationAuthority:       authority,
	}

	// 打开账本存储
	var led ledger.Ledger
	backend := "bolt"
	if cfg.Ledger != nil && cfg.Ledger.Backend != "" {
		backend = cfg.Ledger.Backend
	}
	switch backend {
	case "memory":
		led = ledger.NewMemoryLedger()
		logger.Info("使用内存账本")
	case "bolt":
		path := ""
		if cfg.Ledger != nil {
			path = cfg.Ledger.Path
		}
		boltLedger, err := ledger.NewBoltLedger(path, logger)
		if err != nil {
			return nil, fmt.Errorf("打开账本失败: %w", err)
		}
		led = boltLedger
		logger.Infof("使用bbolt账本: %s", boltLedger.Path())
	default:
		return nil, errors.ErrConfigInvalid.WithContext("ledger_backend", backend)
	}

	// 初始化进度管理器
	progressPath := ""
	if cfg.Ledger != nil {
		progressPath = cfg.Ledger.ProgressPath
	}
	progressManager, err := progress.NewManager(progressPath, logger)
	if err != nil {
		logger.Warnf("初始化进度管理器失败: %v，将不支持进度续用", err)
	}

	// 初始化结构化日志器
	var structuredLogger *logging.StructuredLogger
	if logConfig != nil {
		var err error
		structuredLogger, err = logging.NewStructuredLogger(logConfig)
		if err != nil {
			logger.Warnf("初始化结构化日志器失败: %v，将使用默认日志", err)
		}
	}

	// 初始化优雅停机管理器
	gracefulShutdown := shutdown.NewGracefulShutdown(DefaultShutdownTimeout, logger)

	n := &Node{
		cfg:              cfg,
		processor:        program.NewProcessor(programID, params, logger),
		ledger:           led,
		outputter:        out,
		validator:        validation.NewValidator(logger, true),
		logger:           logger,
		structuredLogger: structuredLogger,
		progressManager:  progressManager,
		retrier:          retry.NewRetrier(retry.NetworkRetryConfig, logger),
		errorHandler:     errors.NewErrorHandler(logger),
		gracefulShutdown: gracefulShutdown,
	}

	// 注册停机处理函数
	n.registerShutdownHandlers()

	return n, nil
}

// ProgramID 返回程序标识
func (n *Node) ProgramID() models.Pubkey {
	return n.processor.ProgramID()
}

// Params 返回程序策略参数
func (n *Node) Params() program.Params {
	return n.processor.Params()
}

// SubmitInstruction 提交一条指令
// 整条指令在账本的一个原子单元内执行，任意前置条件失败都不会留下部分写入；
// 执行成功后构建事件快照并异步发布
func (n *Node) SubmitInstruction(ctx context.Context, inv *program.Invocation) (*SubmitResult, error) {
	if inv == nil {
		return nil, errors.ErrInvalidInstruction.WithContext("reason", "调用为空")
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	start := time.Now()

	// 解码指令用于预验证和事件分类
	ix, err := models.DecodeInstruction(inv.Data)
	if err != nil {
		n.recordFailure()
		return nil, n.errorHandler.HandleError(ctx, err)
	}

	// 结构性预验证，把畸形请求挡在账本之前
	if result := n.validator.ValidateInstruction(ix); !result.Valid {
		n.recordFailure()
		return nil, n.errorHandler.HandleError(ctx, result.Errors[0])
	}

	// 原子执行：处理失败时所有修改回滚
	var ev *models.Event
	err = n.ledger.Execute(func(host ledger.Host) error {
		if err := n.processor.Process(host, inv); err != nil {
			return err
		}
		var buildErr error
		ev, buildErr = n.buildEvent(host, inv, ix)
		return buildErr
	})
	if err != nil {
		n.recordFailure()
		return nil, n.errorHandler.HandleError(ctx, err)
	}

	duration := time.Since(start)

	// 记录进度
	var sequence uint64
	if n.progressManager != nil {
		if err := n.progressManager.RecordInstruction(ix.Opcode().String()); err != nil {
			n.logger.Warnf("记录指令进度失败: %v", err)
		}
		sequence = n.progressManager.GetSequence()
	}

	n.logInstruction(ix.Opcode().String(), ev, duration)

	// 发布事件，Kafka抖动时带退避重试
	if ev != nil {
		if err := n.retrier.Execute(ctx, "publish_event", func() error {
			return n.outputter.WriteEvent(ev)
		}); err != nil {
			// 事件发布失败不回滚账本，只记录
			n.logger.Errorf("发布事件失败: %v", err)
		}
	}

	return &SubmitResult{
		Sequence: sequence,
		Opcode:   ix.Opcode().String(),
		Event:    ev,
		Duration: duration,
	}, nil
}

// buildEvent 在执行成功后的账本视图上构建事件快照
func (n *Node) buildEvent(host ledger.Host, inv *program.Invocation, ix models.Instruction) (*models.Event, error) {
	if len(inv.Accounts) == 0 {
		return nil, errors.ErrInvalidInstruction.WithContext("reason", "缺少签名账户")
	}
	signer := inv.Accounts[0].Address

	var ev *models.Event
	switch ix.(type) {
	case *models.CreateResearcherProfileArgs:
		ev = models.NewEvent(models.EventProfileCreated, n.ProgramID(), signer)
		profile, err := n.readProfile(host, inv.Accounts[1].Address)
		if err != nil {
			return nil, err
		}
		ev.Profile = profile

	case *models.CreateResearchPaperArgs:
		ev = models.NewEvent(models.EventPaperCreated, n.ProgramID(), signer)
		profile, err := n.readProfile(host, inv.Accounts[1].Address)
		if err != nil {
			return nil, err
		}
		paper, err := n.readPaper(host, inv.Accounts[2].Address)
		if err != nil {
			return nil, err
		}
		ev.Profile = profile
		ev.Paper = paper

	case *models.PublishPaperArgs:
		ev = models.NewEvent(models.EventPaperPublished, n.ProgramID(), signer)
		paper, err := n.readPaper(host, inv.Accounts[1].Address)
		if err != nil {
			return nil, err
		}
		ev.Paper = paper

	case *models.AddPeerReviewArgs:
		ev = models.NewEvent(models.EventReviewAdded, n.ProgramID(), signer)
		profile, err := n.readProfile(host, inv.Accounts[1].Address)
		if err != nil {
			return nil, err
		}
		paper, err := n.readPaper(host, inv.Accounts[2].Address)
		if err != nil {
			return nil, err
		}
		review, err := n.readReview(host, inv.Accounts[3].Address)
		if err != nil {
			return nil, err
		}
		ev.Profile = profile
		ev.Paper = paper
		ev.Review = review

	case *models.GetAccessToPaperArgs:
		ev = models.NewEvent(models.EventAccessGranted, n.ProgramID(), signer)
		profile, err := n.readProfile(host, inv.Accounts[1].Address)
		if err != nil {
			return nil, err
		}
		mint, err := n.readMintCollection(host, inv.Accounts[2].Address)
		if err != nil {
			return nil, err
		}
		paper, err := n.readPaper(host, inv.Accounts[3].Address)
		if err != nil {
			return nil, err
		}
		ev.Profile = profile
		ev.MintCollection = mint
		ev.Paper = paper

	case *models.CheckAndAssignReputationArgs:
		ev = models.NewEvent(models.EventReputationAssigned, n.ProgramID(), signer)
		profile, err := n.readProfile(host, inv.Accounts[1].Address)
		if err != nil {
			return nil, err
		}
		ev.Profile = profile

	default:
		return nil, errors.ErrInvalidInstruction
	}

	return ev, nil
}

// readProfile 读取研究者档案
func (n *Node) readProfile(host ledger.Host, addr models.Pubkey) (*models.ResearcherProfile, error) {
	acc, err := host.Account(addr)
	if err != nil {
		return nil, err
	}
	if !acc.Exists() {
		return nil, errors.ErrResearcherProfileNotFound.WithAccount(addr.String())
	}
	return models.DecodeResearcherProfile(acc.Data)
}

// readPaper 读取论文记录
func (n *Node) readPaper(host ledger.Host, addr models.Pubkey) (*models.ResearchPaper, error) {
	acc, err := host.Account(addr)
	if err != nil {
		return nil, err
	}
	if !acc.Exists() {
		return nil, errors.ErrPaperNotFound.WithAccount(addr.String())
	}
	return models.DecodeResearchPaper(acc.Data)
}

// readReview 读取同行评审记录
func (n *Node) readReview(host ledger.Host, addr models.Pubkey) (*models.PeerReview, error) {
	acc, err := host.Account(addr)
	if err != nil {
		return nil, err
	}
	if !acc.Exists() {
		return nil, errors.ErrSerialization.WithAccount(addr.String())
	}
	return models.DecodePeerReview(acc.Data)
}

// readMintCollection 读取读者铸造记录
func (n *Node) readMintCollection(host ledger.Host, addr models.Pubkey) (*models.ResearchMintCollection, error) {
	acc, err := host.Account(addr)
	if err != nil {
		return nil, err
	}
	if !acc.Exists() {
		return nil, errors.ErrSerialization.WithAccount(addr.String())
	}
	return models.DecodeResearchMintCollection(acc.Data)
}

// GetProfile 查询研究者档案
func (n *Node) GetProfile(addr models.Pubkey) (*models.ResearcherProfile, error) {
	var profile *models.ResearcherProfile
	err := n.ledger.View(func(host ledger.Host) error {
		var err error
		profile, err = n.readProfile(host, addr)
		return err
	})
	return profile, err
}

// GetPaper 查询论文记录
func (n *Node) GetPaper(addr models.Pubkey) (*models.ResearchPaper, error) {
	var paper *models.ResearchPaper
	err := n.ledger.View(func(host ledger.Host) error {
		var err error
		paper, err = n.readPaper(host, addr)
		return err
	})
	return paper, err
}

// GetReview 查询同行评审记录
func (n *Node) GetReview(addr models.Pubkey) (*models.PeerReview, error) {
	var review *models.PeerReview
	err := n.ledger.View(func(host ledger.Host) error {
		var err error
		review, err = n.readReview(host, addr)
		return err
	})
	return review, err
}

// GetMintCollection 查询读者铸造记录
func (n *Node) GetMintCollection(addr models.Pubkey) (*models.ResearchMintCollection, error) {
	var mint *models.ResearchMintCollection
	err := n.ledger.View(func(host ledger.Host) error {
		var err error
		mint, err = n.readMintCollection(host, addr)
		return err
	})
	return mint, err
}

// GetBalance 查询账户余额
func (n *Node) GetBalance(addr models.Pubkey) (uint64, error) {
	var balance uint64
	err := n.ledger.View(func(host ledger.Host) error {
		acc, err := host.Account(addr)
		if err != nil {
			return err
		}
		balance = acc.Balance
		return nil
	})
	return balance, err
}

// Fund 向账户注入余额（测试水龙头）
func (n *Node) Fund(addr models.Pubkey, amount uint64) error {
	return n.ledger.Credit(addr, amount)
}

// ProfileAddress 派生研究者档案地址
func (n *Node) ProfileAddress(researcher models.Pubkey) (models.Pubkey, uint8, error) {
	return pda.Find(pda.ResearcherProfileSeeds(researcher), n.ProgramID())
}

// PaperAddress 派生论文地址
func (n *Node) PaperAddress(contentHash models.Digest, creator models.Pubkey) (models.Pubkey, uint8, error) {
	return pda.Find(pda.ResearchPaperSeeds(contentHash, creator), n.ProgramID())
}

// ReviewAddress 派生同行评审地址
func (n *Node) ReviewAddress(paper, reviewer models.Pubkey) (models.Pubkey, uint8, error) {
	return pda.Find(pda.PeerReviewSeeds(paper, reviewer), n.ProgramID())
}

// MintCollectionAddress 派生读者铸造记录地址
func (n *Node) MintCollectionAddress(reader models.Pubkey) (models.Pubkey, uint8, error) {
	return pda.Find(pda.MintCollectionSeeds(reader), n.ProgramID())
}

// recordFailure 记录失败统计
func (n *Node) recordFailure() {
	if n.progressManager != nil {
		n.progressManager.RecordFailure()
	}
}

// logInstruction 记录指令处理日志
func (n *Node) logInstruction(opcode string, ev *models.Event, duration time.Duration) {
	if n.structuredLogger != nil {
		fields := map[string]any{
			"component":   "instruction_processor",
			"opcode":      opcode,
			"duration_ms": duration.Milliseconds(),
		}
		if ev != nil {
			fields["event_id"] = ev.ID
			fields["event_type"] = string(ev.Type)
		}
		n.structuredLogger.InfoWithFields("指令处理完成", fields)
	} else {
		n.logger.WithFields(logrus.Fields{
			"opcode":      opcode,
			"duration_ms": duration.Milliseconds(),
		}).Info("指令处理完成")
	}
}

// GetProgressInfo 获取当前进度信息
func (n *Node) GetProgressInfo() map[string]interface{} {
	if n.progressManager == nil {
		return map[string]interface{}{"enabled": false}
	}
	return n.progressManager.GetStats()
}

// ResetProgress 重置进度（谨慎使用）
func (n *Node) ResetProgress() error {
	if n.progressManager == nil {
		return fmt.Errorf("进度管理器未启用")
	}
	return n.progressManager.Reset()
}

// GetStats 获取节点统计信息
func (n *Node) GetStats() map[string]interface{} {
	stats := map[string]interface{}{
		"program_id":    n.ProgramID().String(),
		"min_approvals": n.Params().MinApprovals,
	}
	if n.progressManager != nil {
		stats["progress"] = n.progressManager.GetStats()
	}
	stats["errors"] = n.errorHandler.GetStats()
	stats["validation"] = n.validator.GetValidationStats()
	return stats
}

// registerShutdownHandlers 注册停机处理函数
func (n *Node) registerShutdownHandlers() {
	// 1. 刷新事件生产者缓冲区
	n.gracefulShutdown.RegisterShutdownFunc(
		"flush_event_producer",
		func(ctx context.Context) error {
			n.logger.Info("刷新事件生产者缓冲区...")
			if flusher, ok := n.outputter.(interface{ Flush() error }); ok {
				return flusher.Flush()
			}
			return nil
		},
		shutdown.OrderFlushProducers,
	)

	// 2. 关闭账本存储
	n.gracefulShutdown.RegisterShutdownFunc(
		"close_ledger",
		func(ctx context.Context) error {
			n.logger.Info("关闭账本存储...")
			return n.ledger.Close()
		},
		shutdown.OrderCloseLedger,
	)

	// 3. 保存进度检查点
	n.gracefulShutdown.RegisterShutdownFunc(
		"save_progress",
		func(ctx context.Context) error {
			n.logger.Info("保存进度检查点...")
			return n.SaveProgressCheckpoint()
		},
		shutdown.OrderSaveState,
	)

	// 4. 清理剩余资源
	n.gracefulShutdown.RegisterShutdownFunc(
		"cleanup_resources",
		func(ctx context.Context) error {
			n.closeResources()
			return nil
		},
		shutdown.OrderCleanupResources,
	)

	n.logger.Info("已注册优雅停机处理函数")
}

// SaveProgressCheckpoint 保存进度检查点
func (n *Node) SaveProgressCheckpoint() error {
	if n.progressManager == nil {
		return nil
	}
	return n.progressManager.SaveCheckpoint(n.progressManager.GetProgress())
}

// StartGracefulShutdown 启动优雅停机监听
func (n *Node) StartGracefulShutdown() {
	if n.gracefulShutdown != nil {
		n.gracefulShutdown.Start()
	}
}

// WaitForShutdown 等待停机完成
func (n *Node) WaitForShutdown() {
	if n.gracefulShutdown != nil {
		n.gracefulShutdown.Wait()
	}
}

// GetShutdownContext 获取停机上下文
func (n *Node) GetShutdownContext() context.Context {
	if n.gracefulShutdown != nil {
		return n.gracefulShutdown.Context()
	}
	return context.Background()
}

// Close 关闭节点
func (n *Node) Close() {
	// 触发优雅停机
	if n.gracefulShutdown != nil {
		n.gracefulShutdown.Shutdown()
	}

	// 手动关闭资源（如果优雅停机失败）
	n.closeResources()
}

// closeResources 关闭资源
func (n *Node) closeResources() {
	n.mu.Lock()
	defer n.mu.Unlock()

	// 关闭进度管理器
	if n.progressManager != nil {
		if err := n.progressManager.Close(); err != nil {
			n.logger.Errorf("关闭进度管理器失败: %v", err)
		}
		n.progressManager = nil
	}

	// 关闭输出器
	if n.outputter != nil {
		if err := n.outputter.Close(); err != nil {
			n.logger.Errorf("关闭输出器失败: %v", err)
		}
		n.outputter = nil
	}

	// 关闭账本
	if n.ledger != nil {
		if err := n.ledger.Close(); err != nil {
			n.logger.Errorf("关闭账本失败: %v", err)
		}
		n.ledger = nil
	}
}
