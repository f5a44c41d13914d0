package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/TheMenageri3/deresearcher-program/internal/config"
	"github.com/TheMenageri3/deresearcher-program/internal/node"
	"github.com/TheMenageri3/deresearcher-program/internal/program"
	"github.com/TheMenageri3/deresearcher-program/pkg/models"
)

// Server API服务器
// 对外暴露指令提交和记录查询两类接口，节点本身不感知HTTP
type Server struct {
	node          *node.Node
	config        *config.Config
	logger        *logrus.Logger
	logManager    *LogManager
	configManager *ConfigManager
	server        *http.Server
	mu            sync.RWMutex
	startedAt     time.Time
	ctx           context.Context
	cancel        context.CancelFunc
	listen        string
}

// NewServer 创建新的API服务器
func NewServer(cfg *config.Config, n *node.Node, logger *logrus.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	// 创建日志管理器
	logManager := NewLogManager(1000) // 最多保存1000条日志

	// 添加日志钩子
	logger.AddHook(NewLogHook(logManager))

	listen := ":8080"
	if cfg.API != nil && cfg.API.Listen != "" {
		listen = cfg.API.Listen
	}

	return &Server{
		node:       n,
		config:     cfg,
		logger:     logger,
		logManager: logManager,
		ctx:        ctx,
		cancel:     cancel,
		listen:     listen,
	}
}

// Start 启动API服务器
func (s *Server) Start() error {
	if s.config.API == nil || s.config.API.Mode != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	// 添加CORS中间件
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// 添加中间件
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// 设置路由
	s.setupRoutes(router)

	// 创建HTTP服务器
	s.server = &http.Server{
		Addr:    s.listen,
		Handler: router,
	}

	s.startedAt = time.Now()
	s.logger.Infof("API服务器启动在 %s", s.listen)
	return s.server.ListenAndServe()
}

// Stop 停止API服务器
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancel()

	if s.server != nil {
		return s.server.Shutdown(context.Background())
	}
	return nil
}

// setupRoutes 设置路由
func (s *Server) setupRoutes(router *gin.Engine) {
	// 健康检查
	router.GET("/health", s.healthCheck)

	api := router.Group("/api/v1")
	{
		// 指令提交
		api.POST("/instructions", s.submitInstruction)

		// 记录查询
		api.GET("/profiles/:address", s.getProfile)
		api.GET("/papers/:address", s.getPaper)
		api.GET("/reviews/:address", s.getReview)
		api.GET("/mints/:address", s.getMintCollection)
		api.GET("/balances/:address", s.getBalance)

		// 地址派生
		pdaGroup := api.Group("/pda")
		{
			pdaGroup.GET("/profile", s.deriveProfileAddress)
			pdaGroup.GET("/paper", s.derivePaperAddress)
			pdaGroup.GET("/review", s.deriveReviewAddress)
			pdaGroup.GET("/mint", s.deriveMintAddress)
		}

		// 测试水龙头
		api.POST("/faucet", s.fund)

		// 配置管理
		api.GET("/config", s.getConfig)
		api.PUT("/config", s.updateConfig)

		// 统计信息
		api.GET("/stats", s.getStats)
		api.GET("/progress", s.getProgress)
		api.DELETE("/progress", s.resetProgress)

		// 日志管理
		api.GET("/logs", s.getLogs)
		api.DELETE("/logs", s.clearLogs)

		// 数据库配置管理（配置了PostgreSQL时可用）
		if s.configManager != nil {
			s.configManager.RegisterRoutes(api)
		}
	}
}

// EnableDatabaseConfig 启用数据库配置管理接口
// 必须在Start之前调用
func (s *Server) EnableDatabaseConfig(dbConfig *config.DatabaseConfig) {
	s.configManager = NewConfigManager(dbConfig, s.logger)
}

// healthCheck 健康检查
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"timestamp":  time.Now().Unix(),
		"service":    "deresearcher-api",
		"program_id": s.node.ProgramID().String(),
	})
}

// submitRequest 指令提交请求体
type submitRequest struct {
	Accounts []struct {
		Address    string `json:"address" binding:"required"`
		IsSigner   bool   `json:"is_signer"`
		IsWritable bool   `json:"is_writable"`
	} `json:"accounts" binding:"required"`
	Data string `json:"data" binding:"required"` // 0x前缀的十六进制指令载荷
}

// submitInstruction 提交指令
func (s *Server) submitInstruction(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	data, err := hexutil.Decode(req.Data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("指令载荷解码失败: %v", err)})
		return
	}

	inv := &program.Invocation{Data: data}
	for _, a := range req.Accounts {
		addr, err := models.PubkeyFromBase58(a.Address)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("账户地址无效: %s", a.Address)})
			return
		}
		inv.Accounts = append(inv.Accounts, program.AccountMeta{
			Address:    addr,
			IsSigner:   a.IsSigner,
			IsWritable: a.IsWritable,
		})
	}

	result, err := s.node.SubmitInstruction(c.Request.Context(), inv)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "指令执行成功",
		"result":  result,
	})
}

// parseAddress 解析路径中的base58地址
func (s *Server) parseAddress(c *gin.Context) (models.Pubkey, bool) {
	addr, err := models.PubkeyFromBase58(c.Param("address"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "地址格式无效"})
		return models.Pubkey{}, false
	}
	return addr, true
}

// getProfile 查询研究者档案
func (s *Server) getProfile(c *gin.Context) {
	addr, ok := s.parseAddress(c)
	if !ok {
		return
	}

	profile, err := s.node.GetProfile(addr)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": profile})
}

// getPaper 查询论文记录
func (s *Server) getPaper(c *gin.Context) {
	addr, ok := s.parseAddress(c)
	if !ok {
		return
	}

	paper, err := s.node.GetPaper(addr)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"paper": paper})
}

// getReview 查询同行评审记录
func (s *Server) getReview(c *gin.Context) {
	addr, ok := s.parseAddress(c)
	if !ok {
		return
	}

	review, err := s.node.GetReview(addr)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"review": review})
}

// getMintCollection 查询读者铸造记录
func (s *Server) getMintCollection(c *gin.Context) {
	addr, ok := s.parseAddress(c)
	if !ok {
		return
	}

	mint, err := s.node.GetMintCollection(addr)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"mint_collection": mint})
}

// getBalance 查询账户余额
func (s *Server) getBalance(c *gin.Context) {
	addr, ok := s.parseAddress(c)
	if !ok {
		return
	}

	balance, err := s.node.GetBalance(addr)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"address": addr.String(),
		"balance": balance,
	})
}

// queryPubkey 解析查询参数中的base58公钥
func (s *Server) queryPubkey(c *gin.Context, name string) (models.Pubkey, bool) {
	raw := c.Query(name)
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("缺少查询参数: %s", name)})
		return models.Pubkey{}, false
	}
	addr, err := models.PubkeyFromBase58(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("参数 %s 格式无效", name)})
		return models.Pubkey{}, false
	}
	return addr, true
}

// deriveProfileAddress 派生研究者档案地址
func (s *Server) deriveProfileAddress(c *gin.Context) {
	researcher, ok := s.queryPubkey(c, "researcher")
	if !ok {
		return
	}

	addr, bump, err := s.node.ProfileAddress(researcher)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": addr.String(), "bump": bump})
}

// derivePaperAddress 派生论文地址
func (s *Server) derivePaperAddress(c *gin.Context) {
	creator, ok := s.queryPubkey(c, "creator")
	if !ok {
		return
	}

	hashRaw := c.Query("content_hash")
	hashBytes, err := hexutil.Decode(hashRaw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数 content_hash 格式无效"})
		return
	}
	contentHash, err := models.DigestFromBytes(hashBytes)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	addr, bump, err := s.node.PaperAddress(contentHash, creator)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": addr.String(), "bump": bump})
}

// deriveReviewAddress 派生同行评审地址
func (s *Server) deriveReviewAddress(c *gin.Context) {
	paper, ok := s.queryPubkey(c, "paper")
	if !ok {
		return
	}
	reviewer, ok := s.queryPubkey(c, "reviewer")
	if !ok {
		return
	}

	addr, bump, err := s.node.ReviewAddress(paper, reviewer)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": addr.String(), "bump": bump})
}

// deriveMintAddress 派生读者铸造记录地址
func (s *Server) deriveMintAddress(c *gin.Context) {
	reader, ok := s.queryPubkey(c, "reader")
	if !ok {
		return
	}

	addr, bump, err := s.node.MintCollectionAddress(reader)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": addr.String(), "bump": bump})
}

// fund 测试水龙头注资
func (s *Server) fund(c *gin.Context) {
	var req struct {
		Address string `json:"address" binding:"required"`
		Amount  uint64 `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	addr, err := models.PubkeyFromBase58(req.Address)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "地址格式无效"})
		return
	}

	if err := s.node.Fund(addr, req.Amount); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "注资成功",
		"address": addr.String(),
		"amount":  req.Amount,
	})
}

// getConfig 获取配置
func (s *Server) getConfig(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"config": s.config,
	})
}

// updateConfig 更新程序配置
// 只更新进程内的策略展示，正在运行的节点参数不受影响
func (s *Server) updateConfig(c *gin.Context) {
	var newConfig config.ProgramConfig
	if err := c.ShouldBindJSON(&newConfig); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.config.Program = &newConfig

	c.JSON(http.StatusOK, gin.H{
		"message": "配置已更新，重启节点后生效",
		"config":  s.config,
	})
}

// getStats 获取统计信息
func (s *Server) getStats(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := s.node.GetStats()
	stats["uptime"] = time.Since(s.startedAt).String()

	c.JSON(http.StatusOK, stats)
}

// getProgress 获取指令处理进度
func (s *Server) getProgress(c *gin.Context) {
	c.JSON(http.StatusOK, s.node.GetProgressInfo())
}

// resetProgress 重置进度计数
func (s *Server) resetProgress(c *gin.Context) {
	if err := s.node.ResetProgress(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "进度已重置"})
}

// getLogs 获取日志
func (s *Server) getLogs(c *gin.Context) {
	level := c.Query("level")
	opcode := c.Query("opcode")
	pageStr := c.Query("page")
	pageSizeStr := c.Query("pageSize")

	page := 1 // 默认第1页
	if pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}

	pageSize := 20 // 默认每页20条
	if pageSizeStr != "" {
		if ps, err := strconv.Atoi(pageSizeStr); err == nil && ps > 0 {
			pageSize = ps
		}
	}

	logs, total := s.logManager.GetLogsWithPagination(level, opcode, page, pageSize)

	c.JSON(http.StatusOK, gin.H{
		"logs":     logs,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
		"level":    level,
		"opcode":   opcode,
	})
}

// clearLogs 清空日志
func (s *Server) clearLogs(c *gin.Context) {
	s.logManager.ClearLogs()

	c.JSON(http.StatusOK, gin.H{
		"message": "日志已清空",
	})
}
