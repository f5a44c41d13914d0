package errors

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrorHandler 错误处理器
type ErrorHandler struct {
	logger *logrus.Logger
	stats  *ErrorStats
	mu     sync.RWMutex

	// 错误回调
	callbacks []ErrorCallback

	// 阈值设置
	thresholds map[ErrorSeverity]ThresholdConfig
}

// ErrorCallback 错误回调函数
type ErrorCallback func(err *ProgramError)

// ThresholdConfig 阈值配置
type ThresholdConfig struct {
	MaxErrorsPerHour int           `json:"max_errors_per_hour"`
	CooldownPeriod   time.Duration `json:"cooldown_period"`
}

// NewErrorHandler 创建错误处理器
func NewErrorHandler(logger *logrus.Logger) *ErrorHandler {
	eh := &ErrorHandler{
		logger:     logger,
		stats:      NewErrorStats(),
		callbacks:  make([]ErrorCallback, 0),
		thresholds: make(map[ErrorSeverity]ThresholdConfig),
	}

	// 设置默认阈值
	eh.setupDefaultThresholds()

	return eh
}

// setupDefaultThresholds 设置默认阈值
func (eh *ErrorHandler) setupDefaultThresholds() {
	eh.thresholds[SeverityLow] = ThresholdConfig{
		MaxErrorsPerHour: 1000,
		CooldownPeriod:   5 * time.Minute,
	}

	eh.thresholds[SeverityMedium] = ThresholdConfig{
		MaxErrorsPerHour: 500,
		CooldownPeriod:   10 * time.Minute,
	}

	eh.thresholds[SeverityHigh] = ThresholdConfig{
		MaxErrorsPerHour: 100,
		CooldownPeriod:   30 * time.Minute,
	}

	eh.thresholds[SeverityCritical] = ThresholdConfig{
		MaxErrorsPerHour: 10,
		CooldownPeriod:   time.Hour,
	}
}

// RegisterCallback 注册错误回调
func (eh *ErrorHandler) RegisterCallback(cb ErrorCallback) {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.callbacks = append(eh.callbacks, cb)
}

// HandleError 处理错误
func (eh *ErrorHandler) HandleError(ctx context.Context, err error) error {
	var programErr *ProgramError

	// 转换为ProgramError
	if pe, ok := err.(*ProgramError); ok {
		programErr = pe
	} else {
		// 包装普通错误
		programErr = WrapError(err, ErrorTypeLedger, SeverityMedium, "UNKNOWN_ERROR", "未知错误")
	}

	// 记录错误统计
	eh.recordError(programErr)

	// 检查阈值
	if eh.checkThresholds(programErr) {
		eh.logger.Warnf("错误达到阈值限制: %s", programErr.Error())
	}

	// 执行回调
	eh.executeCallbacks(programErr)

	// 按严重级别记录日志
	eh.logError(programErr)

	return programErr
}

// recordError 记录错误
func (eh *ErrorHandler) recordError(err *ProgramError) {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.stats.RecordError(err)
}

// checkThresholds 检查阈值
func (eh *ErrorHandler) checkThresholds(err *ProgramError) bool {
	threshold, exists := eh.thresholds[err.Severity]
	if !exists {
		return false
	}

	// 检查每小时错误数
	eh.mu.RLock()
	hourlyRate := eh.stats.GetErrorRate(time.Hour)
	eh.mu.RUnlock()

	if hourlyRate > float64(threshold.MaxErrorsPerHour) {
		eh.logger.Warnf("每小时错误数超过阈值: %.2f > %d", hourlyRate, threshold.MaxErrorsPerHour)
		return true
	}

	return false
}

// executeCallbacks 执行错误回调
func (eh *ErrorHandler) executeCallbacks(err *ProgramError) {
	eh.mu.RLock()
	callbacks := make([]ErrorCallback, len(eh.callbacks))
	copy(callbacks, eh.callbacks)
	eh.mu.RUnlock()

	for _, callback := range callbacks {
		go func(cb ErrorCallback) {
			defer func() {
				if r := recover(); r != nil {
					eh.logger.Errorf("错误回调执行时发生panic: %v", r)
				}
			}()
			cb(err)
		}(callback)
	}
}

// logError 根据严重级别记录日志
func (eh *ErrorHandler) logError(err *ProgramError) {
	logEntry := eh.logger.WithFields(logrus.Fields{
		"error_type":  err.Type.String(),
		"error_code":  err.Code,
		"component":   err.Component,
		"retryable":   err.Retryable,
		"instruction": err.Instruction,
		"account":     err.Account,
		"context":     err.Context,
	})

	switch err.Severity {
	case SeverityLow:
		logEntry.Debug(err.Message)
	case SeverityMedium:
		logEntry.Warn(err.Message)
	case SeverityHigh:
		logEntry.Error(err.Message)
	case SeverityCritical:
		logEntry.Error(err.Message)
	}
}

// GetStats 获取错误统计
func (eh *ErrorHandler) GetStats() *ErrorStats {
	eh.mu.RLock()
	defer eh.mu.RUnlock()
	return eh.stats
}
