package config

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// DatabaseConfig 数据库配置管理器
type DatabaseConfig struct {
	DB     *sql.DB
	logger *logrus.Logger
}

// NewDatabaseConfig 创建数据库配置管理器
func NewDatabaseConfig(dsn string, logger *logrus.Logger) (*DatabaseConfig, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	// 测试连接
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("数据库连接测试失败: %w", err)
	}

	return &DatabaseConfig{
		DB:     db,
		logger: logger,
	}, nil
}

// LoadConfig 从数据库加载完整配置
func (dc *DatabaseConfig) LoadConfig() (*Config, error) {
	config := &Config{}

	// 加载程序策略配置
	programConfig, err := dc.loadProgramConfig()
	if err != nil {
		return nil, fmt.Errorf("加载程序配置失败: %w", err)
	}
	config.Program = programConfig

	// 加载账本配置
	ledgerConfig, err := dc.loadLedgerConfig()
	if err != nil {
		return nil, fmt.Errorf("加载账本配置失败: %w", err)
	}
	config.Ledger = ledgerConfig

	// 加载输出配置
	outputConfig, err := dc.loadOutputConfig()
	if err != nil {
		return nil, fmt.Errorf("加载输出配置失败: %w", err)
	}
	config.Output = outputConfig

	return config, nil
}

// loadProgramConfig 加载程序策略配置
func (dc *DatabaseConfig) loadProgramConfig() (*ProgramConfig, error) {
	query := `SELECT config_key, config_value FROM program_config WHERE is_active = true`
	rows, err := dc.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	config := &ProgramConfig{
		MinApprovals:              10,
		RequirePublishedForAccess: true,
	}

	for rows.Next() {
		var key, value string
		err := rows.Scan(&key, &value)
		if err != nil {
			return nil, err
		}

		switch key {
		case "program_id":
			config.ProgramID = value
		case "min_approvals":
			if v, err := strconv.Atoi(value); err == nil {
				config.MinApprovals = v
			}
		case "require_published_for_access":
			config.RequirePublishedForAccess = strings.ToLower(value) == "true"
		case "reputation_authority":
			config.ReputationAuthority = value
		}
	}

	return config, nil
}

// loadLedgerConfig 加载账本配置
func (dc *DatabaseConfig) loadLedgerConfig() (*LedgerConfig, error) {
	query := `SELECT config_key, config_value FROM ledger_config WHERE is_active = true`
	rows, err := dc.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	config := &LedgerConfig{
		Backend: "bolt",
		Path:    "./data/ledger.db",
	}

	for rows.Next() {
		var key, value string
		err := rows.Scan(&key, &value)
		if err != nil {
			return nil, err
		}

		switch key {
		case "backend":
			config.Backend = value
		case "path":
			config.Path = value
		}
	}

	return config, nil
}

// loadOutputConfig 加载输出配置
func (dc *DatabaseConfig) loadOutputConfig() (*OutputConfig, error) {
	query := `SELECT config_key, config_value FROM output_config WHERE is_active = true`
	rows, err := dc.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	config := &OutputConfig{
		Format:    "json",
		Directory: "./outputs",
		Compress:  false,
	}

	for rows.Next() {
		var key, value string
		err := rows.Scan(&key, &value)
		if err != nil {
			return nil, err
		}

		switch key {
		case "format":
			config.Format = value
		case "directory":
			config.Directory = value
		case "compress":
			config.Compress = strings.ToLower(value) == "true"
		case "kafka_brokers":
			var brokers []string
			if err := json.Unmarshal([]byte(value), &brokers); err == nil {
				config.Kafka = &KafkaConfig{
					Brokers: brokers,
				}
			}
		}
	}

	// 加载Kafka主题配置
	if config.Format == "kafka" || config.Format == "kafka_async" {
		topics, err := dc.loadKafkaTopics()
		if err != nil {
			return nil, err
		}
		if config.Kafka == nil {
			config.Kafka = &KafkaConfig{}
		}
		config.Kafka.Topics = topics
	}

	return config, nil
}

// loadKafkaTopics 加载Kafka主题配置
func (dc *DatabaseConfig) loadKafkaTopics() (map[string]string, error) {
	query := `SELECT event_category, topic_name FROM kafka_topics WHERE is_active = true`
	rows, err := dc.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	topics := make(map[string]string)
	for rows.Next() {
		var category, topicName string
		err := rows.Scan(&category, &topicName)
		if err != nil {
			return nil, err
		}
		topics[category] = topicName
	}

	return topics, nil
}

// UpdateConfig 更新配置
func (dc *DatabaseConfig) UpdateConfig(configType, key, value string) error {
	var tableName string
	switch configType {
	case "program":
		tableName = "program_config"
	case "ledger":
		tableName = "ledger_config"
	case "output":
		tableName = "output_config"
	default:
		return fmt.Errorf("不支持的配置类型: %s", configType)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (config_key, config_value, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (config_key)
		DO UPDATE SET config_value = $2, updated_at = CURRENT_TIMESTAMP
	`, tableName)

	_, err := dc.DB.Exec(query, key, value)
	return err
}

// GetConfig 获取配置值
func (dc *DatabaseConfig) GetConfig(configType, key string) (string, error) {
	var tableName string
	switch configType {
	case "program":
		tableName = "program_config"
	case "ledger":
		tableName = "ledger_config"
	case "output":
		tableName = "output_config"
	default:
		return "", fmt.Errorf("不支持的配置类型: %s", configType)
	}

	query := fmt.Sprintf(`SELECT config_value FROM %s WHERE config_key = $1 AND is_active = true`, tableName)

	var value string
	err := dc.DB.QueryRow(query, key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("配置项不存在: %s.%s", configType, key)
		}
		return "", err
	}

	return value, nil
}

// ListConfigs 列出某类配置的全部键值
func (dc *DatabaseConfig) ListConfigs(configType string) (map[string]string, error) {
	var tableName string
	switch configType {
	case "program":
		tableName = "program_config"
	case "ledger":
		tableName = "ledger_config"
	case "output":
		tableName = "output_config"
	default:
		return nil, fmt.Errorf("不支持的配置类型: %s", configType)
	}

	query := fmt.Sprintf(`SELECT config_key, config_value FROM %s WHERE is_active = true ORDER BY config_key`, tableName)
	rows, err := dc.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	configs := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		configs[key] = value
	}

	return configs, rows.Err()
}

// Close 关闭数据库连接
func (dc *DatabaseConfig) Close() error {
	if dc.DB != nil {
		return dc.DB.Close()
	}
	return nil
}
