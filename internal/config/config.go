package config

import (
	"fmt"
	"os"

	"github.com/TheMenageri3/deresearcher-program/internal/logging"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config 主配置
type Config struct {
	Program *ProgramConfig     `mapstructure:"program"`
	Ledger  *LedgerConfig      `mapstructure:"ledger"`
	Output  *OutputConfig      `mapstructure:"output"`
	API     *APIConfig         `mapstructure:"api"`
	Logging *logging.LogConfig `mapstructure:"logging"`
}

// ProgramConfig 程序策略配置
type ProgramConfig struct {
	ProgramID                 string `mapstructure:"program_id"`
	MinApprovals              int    `mapstructure:"min_approvals"`
	RequirePublishedForAccess bool   `mapstructure:"require_published_for_access"`
	ReputationAuthority       string `mapstructure:"reputation_authority"`
}

// LedgerConfig 账本配置
type LedgerConfig struct {
	Backend      string `mapstructure:"backend"` // bolt 或 memory
	Path         string `mapstructure:"path"`
	ProgressPath string `mapstructure:"progress_path"`
}

// KafkaConfig Kafka配置
type KafkaConfig struct {
	Brokers []string          `mapstructure:"brokers"`
	Topics  map[string]string `mapstructure:"topics"`
}

// OutputConfig 事件输出配置
type OutputConfig struct {
	Format    string       `mapstructure:"format"`
	Directory string       `mapstructure:"directory"`
	Compress  bool         `mapstructure:"compress"`
	Kafka     *KafkaConfig `mapstructure:"kafka"`
}

// APIConfig API服务配置
type APIConfig struct {
	Listen string `mapstructure:"listen"`
	Mode   string `mapstructure:"mode"` // gin运行模式
}

// LoadConfig 加载配置（自动检测配置源）
func LoadConfig(configPath string) (*Config, error) {
	// 首先尝试从环境变量获取数据库配置
	dbDSN := os.Getenv("DERESEARCHER_DB_DSN")
	if dbDSN != "" {
		logger := logrus.New()
		dbConfig, err := NewDatabaseConfig(dbDSN, logger)
		if err != nil {
			return nil, fmt.Errorf("连接数据库失败: %w", err)
		}
		defer dbConfig.Close()

		config, err := dbConfig.LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("从数据库加载配置失败: %w", err)
		}

		logger.Info("已从数据库加载配置")
		return config, nil
	}

	// 检查是否存在数据库配置文件
	dbConfigFile := "configs/database.yaml"
	if _, err := os.Stat(dbConfigFile); err == nil {
		dbViper := viper.New()
		dbViper.SetConfigFile(dbConfigFile)
		dbViper.SetConfigType("yaml")

		if err := dbViper.ReadInConfig(); err == nil {
			dbDSN := dbViper.GetString("database.dsn")
			if dbDSN != "" {
				logger := logrus.New()
				dbConfig, err := NewDatabaseConfig(dbDSN, logger)
				if err == nil {
					defer dbConfig.Close()

					config, err := dbConfig.LoadConfig()
					if err == nil {
						logger.Info("已从数据库加载配置")
						return config, nil
					}
				}
			}
		}
	}

	// 如果数据库配置不可用，回退到YAML文件
	return LoadConfigFromFile(configPath)
}

// LoadConfigFromFile 从文件加载配置
func LoadConfigFromFile(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	return &config, nil
}

// GetDefaultConfig 获取默认配置
func GetDefaultConfig() *Config {
	return &Config{
		Program: &ProgramConfig{
			ProgramID:                 "", // 需要在YAML配置或数据库中指定
			MinApprovals:              10,
			RequirePublishedForAccess: true,
			ReputationAuthority:       "",
		},
		Ledger: &LedgerConfig{
			Backend:      "bolt",
			Path:         "./data/ledger.db",
			ProgressPath: "./data/progress.db",
		},
		Output: &OutputConfig{
			Format:    "kafka_async",
			Directory: "./outputs",
			Compress:  false,
			Kafka: &KafkaConfig{
				Brokers: []string{"localhost:9092"},
				Topics: map[string]string{
					"profiles":   "deresearch_profile_events",
					"papers":     "deresearch_paper_events",
					"reviews":    "deresearch_review_events",
					"access":     "deresearch_access_events",
					"reputation": "deresearch_reputation_events",
				},
			},
		},
		API: &APIConfig{
			Listen: ":8080",
			Mode:   "release",
		},
		Logging: &logging.LogConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			Rotation:   false,
			MaxSize:    100,
			MaxAge:     30,
			MaxBackups: 3,
			Compress:   true,
		},
	}
}
