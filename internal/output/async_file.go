package output

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/TheMenageri3/deresearcher-program/pkg/models"

	"github.com/sirupsen/logrus"
)

// AsyncFileOutput 异步文件输出器
// 事件先进入缓冲通道，由按类别划分的写入工作器批量落盘
type AsyncFileOutput struct {
	outputDir string
	format    string
	compress  bool
	logger    *logrus.Logger

	// 文件句柄
	files map[string]*os.File

	// 异步写入通道，按事件类别划分
	channels map[string]chan *models.Event

	// 控制通道
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// 批量写入配置
	batchSize     int
	flushInterval time.Duration
}

// NewAsyncFileOutput 创建异步文件输出器
func NewAsyncFileOutput(outputPath, format string, compress bool, logger *logrus.Logger) (*AsyncFileOutput, error) {
	// 确保输出目录存在
	if err := os.MkdirAll(outputPath, 0755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	output := &AsyncFileOutput{
		outputDir:     outputPath,
		format:        format,
		compress:      compress,
		logger:        logger,
		files:         make(map[string]*os.File),
		channels:      make(map[string]chan *models.Event),
		ctx:           ctx,
		cancel:        cancel,
		batchSize:     100,         // 批量大小
		flushInterval: time.Second, // 刷新间隔
	}

	// 初始化通道 - 使用缓冲通道提高性能
	channelSize := 1000
	for _, key := range []string{"profiles", "papers", "reviews", "access", "reputation"} {
		output.channels[key] = make(chan *models.Event, channelSize)
	}

	// 创建文件
	if err := output.createFiles(); err != nil {
		cancel()
		return nil, err
	}

	// 启动异步写入处理器
	output.startWorkers()

	logger.Info("异步文件输出器已初始化")
	return output, nil
}

// createFiles 创建输出文件
func (o *AsyncFileOutput) createFiles() error {
	timestamp := time.Now().Format("20060102_150405")

	for key := range o.channels {
		fileName := fmt.Sprintf("%s_%s.%s", key, timestamp, o.format)
		file, err := os.Create(filepath.Join(o.outputDir, fileName))
		if err != nil {
			return fmt.Errorf("创建文件 %s 失败: %w", fileName, err)
		}
		o.files[key] = file
	}

	return nil
}

// startWorkers 启动异步写入工作器，每个事件类别一个
func (o *AsyncFileOutput) startWorkers() {
	for key := range o.channels {
		o.wg.Add(1)
		go func(key string) {
			defer o.wg.Done()
			o.eventWriter(key, o.channels[key], o.files[key])
		}(key)
	}
}

// eventWriter 事件写入工作器
func (o *AsyncFileOutput) eventWriter(key string, ch chan *models.Event, file *os.File) {
	batch := make([]*models.Event, 0, o.batchSize)
	ticker := time.NewTicker(o.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case ev := <-ch:
			batch = append(batch, ev)
			if len(batch) >= o.batchSize {
				o.flushBatch(file, key, batch)
				batch = batch[:0] // 重置切片
			}

		case <-ticker.C:
			if len(batch) > 0 {
				o.flushBatch(file, key, batch)
				batch = batch[:0]
			}

		case <-o.ctx.Done():
			// 排空通道并写入剩余数据
			for {
				select {
				case ev := <-ch:
					batch = append(batch, ev)
				default:
					if len(batch) > 0 {
						o.flushBatch(file, key, batch)
					}
					return
				}
			}
		}
	}
}

// flushBatch 批量写入事件数据
func (o *AsyncFileOutput) flushBatch(file *os.File, key string, batch []*models.Event) {
	for _, ev := range batch {
		if ev == nil {
			continue
		}

		data, err := json.Marshal(ev)
		if err != nil {
			o.logger.Errorf("序列化%s事件失败: %v", key, err)
			continue
		}

		data = append(data, '\n')
		if _, err := file.Write(data); err != nil {
			o.logger.Errorf("写入%s事件文件失败: %v", key, err)
		}
	}

	// 批量刷新
	if err := file.Sync(); err != nil {
		o.logger.Errorf("刷新%s事件文件失败: %v", key, err)
	}
}

// WriteEvent 写入事件数据
func (o *AsyncFileOutput) WriteEvent(ev *models.Event) error {
	if ev == nil {
		return nil
	}

	key, exists := eventFileKeys[ev.Type]
	if !exists {
		return fmt.Errorf("未知的事件类型: %s", ev.Type)
	}

	select {
	case o.channels[key] <- ev:
		return nil
	case <-o.ctx.Done():
		return fmt.Errorf("输出器已关闭")
	default:
		return fmt.Errorf("%s事件通道已满，丢弃数据", key)
	}
}

// Close 关闭异步文件输出器
func (o *AsyncFileOutput) Close() error {
	o.logger.Info("关闭异步文件输出器...")

	// 停止接收新数据
	o.cancel()

	// 等待所有工作器完成
	o.wg.Wait()

	// 关闭所有文件
	var errs []error
	for name, file := range o.files {
		if err := file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("关闭文件 %s 失败: %w", name, err))
		}
	}

	for _, ch := range o.channels {
		close(ch)
	}

	if len(errs) > 0 {
		return fmt.Errorf("关闭文件时发生错误: %v", errs)
	}

	o.logger.Info("异步文件输出器已关闭")
	return nil
}

// GetStats 获取输出器统计信息
func (o *AsyncFileOutput) GetStats() map[string]interface{} {
	stats := map[string]interface{}{
		"batch_size":     o.batchSize,
		"flush_interval": o.flushInterval.String(),
	}
	for key, ch := range o.channels {
		stats[key+"_queue_size"] = len(ch)
	}
	return stats
}
