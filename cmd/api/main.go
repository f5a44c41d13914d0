package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/TheMenageri3/deresearcher-program/internal/api"
	"github.com/TheMenageri3/deresearcher-program/internal/config"
	"github.com/TheMenageri3/deresearcher-program/internal/node"
	"github.com/TheMenageri3/deresearcher-program/internal/output"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "配置文件路径")
	outputPath = flag.String("output", "./outputs", "事件输出路径")
	listen     = flag.String("listen", "", "监听地址（覆盖配置文件）")
	verbose    = flag.Bool("verbose", false, "详细输出")
)

func main() {
	flag.Parse()

	// 设置日志级别
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	// 自动检测并加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("加载配置失败: %v", err)
	}
	if *listen != "" {
		if cfg.API == nil {
			cfg.API = &config.APIConfig{}
		}
		cfg.API.Listen = *listen
	}

	// 创建事件输出器
	var outputter output.Output
	switch cfg.Output.Format {
	case "kafka", "kafka_async":
		outputter, err = output.NewOutputWithConfig(*outputPath, cfg.Output.Format, cfg.Output.Compress, cfg.Output.Kafka)
	default:
		outputter, err = output.NewOutput(*outputPath, cfg.Output.Format, cfg.Output.Compress)
	}
	if err != nil {
		logger.Fatalf("创建输出器失败: %v", err)
	}

	// 创建程序节点
	n, err := node.NewNodeWithLogging(cfg, outputter, logger, cfg.Logging)
	if err != nil {
		logger.Fatalf("创建节点失败: %v", err)
	}
	defer n.Close()

	// 创建API服务器
	server := api.NewServer(cfg, n, logger)

	// 配置了PostgreSQL时挂载数据库配置管理接口
	if dsn := os.Getenv("DERESEARCHER_DB_DSN"); dsn != "" {
		dbConfig, err := config.NewDatabaseConfig(dsn, logger)
		if err != nil {
			logger.Warnf("连接配置数据库失败: %v，数据库配置接口不可用", err)
		} else {
			defer dbConfig.Close()
			server.EnableDatabaseConfig(dbConfig)
		}
	}

	// 启动服务器
	go func() {
		if err := server.Start(); err != nil {
			logger.Errorf("启动服务器失败: %v", err)
		}
	}()

	logger.Infof("API服务器已启动，程序标识: %s", n.ProgramID())

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("正在关闭服务器...")
	if err := server.Stop(); err != nil {
		logger.Errorf("关闭服务器失败: %v", err)
	}

	logger.Info("服务器已关闭")
}
