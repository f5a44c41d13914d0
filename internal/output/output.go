package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/TheMenageri3/deresearcher-program/internal/config"
	"github.com/TheMenageri3/deresearcher-program/pkg/models"

	"github.com/sirupsen/logrus"
)

// Output 事件输出接口
type Output interface {
	WriteEvent(ev *models.Event) error
	Close() error
}

// eventFileKeys 事件类型到文件/主题键的映射
var eventFileKeys = map[models.EventType]string{
	models.EventProfileCreated:     "profiles",
	models.EventPaperCreated:       "papers",
	models.EventPaperPublished:     "papers",
	models.EventReviewAdded:        "reviews",
	models.EventAccessGranted:      "access",
	models.EventReputationAssigned: "reputation",
}

// defaultTopics 默认topic映射
var defaultTopics = map[string]string{
	"profiles":   "deresearch_profile_events",
	"papers":     "deresearch_paper_events",
	"reviews":    "deresearch_review_events",
	"access":     "deresearch_access_events",
	"reputation": "deresearch_reputation_events",
}

// FileOutput 文件输出
// 每类事件写入独立的行分隔JSON文件
type FileOutput struct {
	outputDir string
	format    string
	compress  bool
	files     map[string]*os.File
}

// NewOutput 创建输出器
func NewOutput(outputPath, format string, compress bool) (Output, error) {
	return NewOutputWithConfig(outputPath, format, compress, nil)
}

// NewOutputWithConfig 创建输出器（带配置）
func NewOutputWithConfig(outputPath, format string, compress bool, kafkaConfig *config.KafkaConfig) (Output, error) {
	// 检查是否是Kafka输出
	if format == "kafka" || format == "kafka_async" {
		brokers := []string{"localhost:9092"}
		if kafkaBrokers := os.Getenv("KAFKA_BROKERS"); kafkaBrokers != "" {
			brokers = strings.Split(kafkaBrokers, ",")
		}

		topics := make(map[string]string, len(defaultTopics))
		for k, v := range defaultTopics {
			topics[k] = v
		}

		// 如果提供了Kafka配置，使用配置中的设置
		if kafkaConfig != nil {
			if len(kafkaConfig.Brokers) > 0 {
				brokers = kafkaConfig.Brokers
			}
			for k, v := range kafkaConfig.Topics {
				topics[k] = v
			}
		}

		logger := logrus.New()
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})

		if format == "kafka_async" {
			return NewAsyncKafkaOutput(brokers, topics, logger)
		}
		return NewKafkaOutput(brokers, topics, logger)
	}

	// 异步文件输出
	if format == "json_async" {
		logger := logrus.New()
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
		return NewAsyncFileOutput(outputPath, "json", compress, logger)
	}

	// 确保输出目录存在
	if err := os.MkdirAll(outputPath, 0755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}

	output := &FileOutput{
		outputDir: outputPath,
		format:    format,
		compress:  compress,
		files:     make(map[string]*os.File),
	}

	timestamp := time.Now().Format("20060102_150405")
	for _, key := range []string{"profiles", "papers", "reviews", "access", "reputation"} {
		file, err := os.Create(filepath.Join(outputPath, fmt.Sprintf("%s_%s.%s", key, timestamp, format)))
		if err != nil {
			output.Close()
			return nil, fmt.Errorf("创建事件文件 %s 失败: %w", key, err)
		}
		output.files[key] = file
	}

	return output, nil
}

// WriteEvent 写入事件数据
func (o *FileOutput) WriteEvent(ev *models.Event) error {
	if ev == nil {
		return nil
	}

	key, exists := eventFileKeys[ev.Type]
	if !exists {
		return fmt.Errorf("未知的事件类型: %s", ev.Type)
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("序列化事件数据失败: %w", err)
	}

	// 添加换行符
	data = append(data, '\n')

	file := o.files[key]
	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("写入事件文件失败: %w", err)
	}

	// 强制刷新到磁盘
	if err := file.Sync(); err != nil {
		return fmt.Errorf("刷新事件文件失败: %w", err)
	}

	return nil
}

// Close 关闭文件
func (o *FileOutput) Close() error {
	var errs []error

	for name, file := range o.files {
		if file == nil {
			continue
		}
		if err := file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("关闭事件文件 %s 失败: %w", name, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("关闭输出文件时发生错误: %v", errs)
	}

	return nil
}
