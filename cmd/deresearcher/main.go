package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/TheMenageri3/deresearcher-program/internal/config"
	"github.com/TheMenageri3/deresearcher-program/internal/node"
	"github.com/TheMenageri3/deresearcher-program/internal/output"
	"github.com/TheMenageri3/deresearcher-program/internal/pda"
	"github.com/TheMenageri3/deresearcher-program/internal/program"
	"github.com/TheMenageri3/deresearcher-program/pkg/models"
)

var (
	// 基础参数
	inputFile  string
	outputPath string
	format     string

	// 流处理参数
	stream bool

	// 高级参数
	configFile string
	verbose    bool
	compress   bool

	// 进度管理参数
	resetProgress bool // 是否重置进度
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "deresearcher",
		Short: "去中心化研究发布程序节点",
		Long:  `研究发布程序的本地执行节点，从文件或标准输入回放指令，维护账本并发布事件`,
		RunE:  run,
	}

	// 基础参数
	rootCmd.Flags().StringVar(&inputFile, "input", "", "指令回放文件（JSON行格式）")
	rootCmd.Flags().StringVar(&outputPath, "output", "./outputs", "事件输出路径")
	rootCmd.Flags().StringVar(&format, "format", "", "输出格式（覆盖配置文件）")

	// 流处理参数
	rootCmd.Flags().BoolVar(&stream, "stream", false, "从标准输入持续读取指令")

	// 高级参数
	rootCmd.Flags().StringVar(&configFile, "config", "configs/config.yaml", "配置文件路径")
	rootCmd.Flags().BoolVar(&verbose, "verbose", false, "详细输出")
	rootCmd.Flags().BoolVar(&compress, "compress", false, "启用压缩")

	// 进度管理参数
	rootCmd.Flags().BoolVar(&resetProgress, "reset-progress", false, "重置进度计数")

	// 进度查询子命令
	progressCmd := &cobra.Command{
		Use:   "progress",
		Short: "查看指令处理进度",
		RunE:  showProgress,
	}

	// 地址派生子命令
	deriveCmd := &cobra.Command{
		Use:   "derive [profile|paper|review|mint] [args...]",
		Short: "派生程序记录地址",
		Long: `派生程序记录地址：
  derive profile <researcher>
  derive paper <content-hash-hex> <creator>
  derive review <paper> <reviewer>
  derive mint <reader>`,
		Args: cobra.MinimumNArgs(2),
		RunE: deriveAddress,
	}

	// 本地注资子命令
	fundCmd := &cobra.Command{
		Use:   "fund <address> <amount>",
		Short: "向本地账本的账户注入余额",
		Args:  cobra.ExactArgs(2),
		RunE:  fundAccount,
	}

	// 随机地址生成子命令
	keygenCmd := &cobra.Command{
		Use:   "keygen",
		Short: "生成随机账户地址",
		RunE:  generateKey,
	}

	// 节点统计子命令
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "查看节点统计信息",
		RunE:  showStats,
	}

	rootCmd.AddCommand(progressCmd, deriveCmd, fundCmd, keygenCmd, statsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "执行失败: %v\n", err)
		os.Exit(1)
	}
}

func newLogger() *logrus.Logger {
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return logger
}

func newNode(logger *logrus.Logger) (*node.Node, error) {
	// 加载配置
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	if format != "" {
		cfg.Output.Format = format
	}
	if compress {
		cfg.Output.Compress = true
	}

	// 创建事件输出器
	var outputter output.Output
	switch cfg.Output.Format {
	case "kafka", "kafka_async":
		outputter, err = output.NewOutputWithConfig(outputPath, cfg.Output.Format, cfg.Output.Compress, cfg.Output.Kafka)
	default:
		outputter, err = output.NewOutput(outputPath, cfg.Output.Format, cfg.Output.Compress)
	}
	if err != nil {
		return nil, fmt.Errorf("创建输出器失败: %w", err)
	}

	// 创建节点（使用结构化日志）
	return node.NewNodeWithLogging(cfg, outputter, logger, cfg.Logging)
}

func run(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	n, err := newNode(logger)
	if err != nil {
		return err
	}
	defer n.Close()

	// 处理进度重置
	if resetProgress {
		logger.Info("重置指令处理进度...")
		if err := n.ResetProgress(); err != nil {
			logger.Warnf("重置进度失败: %v", err)
		} else {
			logger.Info("进度已重置")
		}
	}

	// 启动优雅停机监听
	n.StartGracefulShutdown()

	// 使用节点的停机上下文
	ctx := n.GetShutdownContext()

	// 执行回放任务
	var runErr error
	if stream {
		runErr = runStreamMode(ctx, n, logger)
	} else {
		runErr = runBatchMode(ctx, n, logger)
	}

	// 等待优雅停机完成
	logger.Info("等待优雅停机完成...")
	n.WaitForShutdown()

	return runErr
}

// invocationRequest 回放文件中的单条指令
type invocationRequest struct {
	Accounts []struct {
		Address    string `json:"address"`
		IsSigner   bool   `json:"is_signer"`
		IsWritable bool   `json:"is_writable"`
	} `json:"accounts"`
	Data string `json:"data"` // 0x前缀的十六进制指令载荷
}

// parseInvocation 解析一行回放记录
func parseInvocation(line []byte) (*program.Invocation, error) {
	var req invocationRequest
	if err := json.Unmarshal(line, &req); err != nil {
		return nil, fmt.Errorf("解析指令记录失败: %w", err)
	}

	data, err := hexutil.Decode(req.Data)
	if err != nil {
		return nil, fmt.Errorf("解码指令载荷失败: %w", err)
	}

	inv := &program.Invocation{Data: data}
	for _, a := range req.Accounts {
		addr, err := models.PubkeyFromBase58(a.Address)
		if err != nil {
			return nil, fmt.Errorf("解析账户地址失败: %w", err)
		}
		inv.Accounts = append(inv.Accounts, program.AccountMeta{
			Address:    addr,
			IsSigner:   a.IsSigner,
			IsWritable: a.IsWritable,
		})
	}
	return inv, nil
}

// replay 从r逐行读取指令并提交
func replay(ctx context.Context, n *node.Node, r io.Reader, logger *logrus.Logger) (processed, failed uint64, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return processed, failed, ctx.Err()
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		inv, err := parseInvocation([]byte(line))
		if err != nil {
			failed++
			logger.Warnf("第 %d 条记录无效: %v", processed+failed, err)
			continue
		}

		result, err := n.SubmitInstruction(ctx, inv)
		if err != nil {
			failed++
			logger.Warnf("第 %d 条指令执行失败: %v", processed+failed, err)
			continue
		}

		processed++
		logger.Debugf("指令 %s 执行成功，序号 %d", result.Opcode, result.Sequence)
	}

	return processed, failed, scanner.Err()
}

func runBatchMode(ctx context.Context, n *node.Node, logger *logrus.Logger) error {
	if inputFile == "" {
		return fmt.Errorf("批量模式需要指定 --input 回放文件")
	}

	f, err := os.Open(inputFile)
	if err != nil {
		return fmt.Errorf("打开回放文件失败: %w", err)
	}
	defer f.Close()

	logger.Infof("开始回放指令文件: %s", inputFile)
	start := time.Now()

	processed, failed, err := replay(ctx, n, f, logger)
	if err != nil {
		return fmt.Errorf("回放失败: %w", err)
	}

	duration := time.Since(start)

	// 输出统计信息
	logger.Info("回放完成，统计信息:")
	logger.Infof("  成功指令数: %d", processed)
	logger.Infof("  失败指令数: %d", failed)
	logger.Infof("  耗时: %s", duration)
	if duration > 0 {
		logger.Infof("  指令/秒: %.2f", float64(processed)/duration.Seconds())
	}

	return nil
}

func runStreamMode(ctx context.Context, n *node.Node, logger *logrus.Logger) error {
	logger.Info("从标准输入持续读取指令，Ctrl+D 结束")

	processed, failed, err := replay(ctx, n, os.Stdin, logger)
	if err != nil && err != context.Canceled {
		return err
	}

	logger.Infof("流处理结束: 成功 %d，失败 %d", processed, failed)
	return nil
}

// showProgress 显示指令处理进度
func showProgress(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	n, err := newNode(logger)
	if err != nil {
		return err
	}
	defer n.Close()

	// 获取进度信息
	progressInfo := n.GetProgressInfo()

	// 显示进度信息
	fmt.Println("📊 指令处理进度")
	fmt.Println(strings.Repeat("=", 50))

	for key, value := range progressInfo {
		fmt.Printf("%-20s: %v\n", key, value)
	}

	return nil
}

// deriveAddress 派生程序记录地址
func deriveAddress(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}

	programID, err := models.PubkeyFromBase58(cfg.Program.ProgramID)
	if err != nil {
		return fmt.Errorf("程序标识无效: %w", err)
	}

	var seeds [][]byte
	switch args[0] {
	case "profile":
		researcher, err := models.PubkeyFromBase58(args[1])
		if err != nil {
			return fmt.Errorf("研究者公钥无效: %w", err)
		}
		seeds = pda.ResearcherProfileSeeds(researcher)

	case "paper":
		if len(args) < 3 {
			return fmt.Errorf("用法: derive paper <content-hash-hex> <creator>")
		}
		hashBytes, err := hexutil.Decode(args[1])
		if err != nil {
			return fmt.Errorf("内容哈希无效: %w", err)
		}
		contentHash, err := models.DigestFromBytes(hashBytes)
		if err != nil {
			return err
		}
		creator, err := models.PubkeyFromBase58(args[2])
		if err != nil {
			return fmt.Errorf("创建者公钥无效: %w", err)
		}
		seeds = pda.ResearchPaperSeeds(contentHash, creator)

	case "review":
		if len(args) < 3 {
			return fmt.Errorf("用法: derive review <paper> <reviewer>")
		}
		paper, err := models.PubkeyFromBase58(args[1])
		if err != nil {
			return fmt.Errorf("论文地址无效: %w", err)
		}
		reviewer, err := models.PubkeyFromBase58(args[2])
		if err != nil {
			return fmt.Errorf("评审者公钥无效: %w", err)
		}
		seeds = pda.PeerReviewSeeds(paper, reviewer)

	case "mint":
		reader, err := models.PubkeyFromBase58(args[1])
		if err != nil {
			return fmt.Errorf("读者公钥无效: %w", err)
		}
		seeds = pda.MintCollectionSeeds(reader)

	default:
		return fmt.Errorf("未知的记录类型: %s", args[0])
	}

	addr, bump, err := pda.Find(seeds, programID)
	if err != nil {
		return fmt.Errorf("派生地址失败: %w", err)
	}

	fmt.Printf("address: %s\nbump: %d\n", addr, bump)
	return nil
}

// generateKey 生成随机账户地址
func generateKey(cmd *cobra.Command, args []string) error {
	var buf [models.PubkeySize]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return fmt.Errorf("生成随机地址失败: %w", err)
	}

	addr, err := models.PubkeyFromBytes(buf[:])
	if err != nil {
		return err
	}

	fmt.Printf("address: %s\n", addr)
	return nil
}

// showStats 显示节点统计信息
func showStats(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	n, err := newNode(logger)
	if err != nil {
		return err
	}
	defer n.Close()

	data, err := json.MarshalIndent(n.GetStats(), "", "  ")
	if err != nil {
		return fmt.Errorf("序列化统计信息失败: %w", err)
	}

	fmt.Println(string(data))
	return nil
}

// fundAccount 向本地账本注资
func fundAccount(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	addr, err := models.PubkeyFromBase58(args[0])
	if err != nil {
		return fmt.Errorf("地址无效: %w", err)
	}
	amount, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("金额无效: %w", err)
	}

	n, err := newNode(logger)
	if err != nil {
		return err
	}
	defer n.Close()

	if err := n.Fund(addr, amount); err != nil {
		return fmt.Errorf("注资失败: %w", err)
	}

	balance, err := n.GetBalance(addr)
	if err != nil {
		return err
	}

	fmt.Printf("address: %s\nbalance: %d\n", addr, balance)
	return nil
}
