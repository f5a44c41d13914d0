package api

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// LogEntry 日志条目
// 指令处理日志携带操作码和账户地址，便于按指令维度检索
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Opcode    string                 `json:"opcode,omitempty"`
	Account   string                 `json:"account,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// LogManager 日志管理器
type LogManager struct {
	logs    []LogEntry
	maxLogs int
	mu      sync.RWMutex
}

// NewLogManager 创建日志管理器
func NewLogManager(maxLogs int) *LogManager {
	return &LogManager{
		logs:    make([]LogEntry, 0, maxLogs),
		maxLogs: maxLogs,
	}
}

// AddLog 添加日志
func (lm *LogManager) AddLog(entry *logrus.Entry) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	logEntry := LogEntry{
		Timestamp: entry.Time,
		Level:     entry.Level.String(),
		Message:   entry.Message,
	}

	// 把指令维度的字段提升为条目的一级属性，其余字段原样保留
	for key, value := range entry.Data {
		switch key {
		case "opcode":
			if opcode, ok := value.(string); ok {
				logEntry.Opcode = opcode
				continue
			}
		case "account":
			if account, ok := value.(string); ok {
				logEntry.Account = account
				continue
			}
		}
		if logEntry.Fields == nil {
			logEntry.Fields = make(map[string]interface{})
		}
		logEntry.Fields[key] = value
	}

	// 添加到日志列表
	lm.logs = append(lm.logs, logEntry)

	// 如果超过最大数量，移除最旧的日志
	if len(lm.logs) > lm.maxLogs {
		lm.logs = lm.logs[1:]
	}
}

// matches 判断条目是否符合级别和操作码过滤条件
func (e *LogEntry) matches(level, opcode string) bool {
	if level != "" && e.Level != level {
		return false
	}
	if opcode != "" && e.Opcode != opcode {
		return false
	}
	return true
}

// GetLogs 获取最新日志
func (lm *LogManager) GetLogs(level, opcode string, limit int) []LogEntry {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	if limit <= 0 || limit > len(lm.logs) {
		limit = len(lm.logs)
	}

	// 返回最新的日志
	logs := make([]LogEntry, 0, limit)
	for _, log := range lm.logs[len(lm.logs)-limit:] {
		if log.matches(level, opcode) {
			logs = append(logs, log)
		}
	}

	return logs
}

// GetLogsWithPagination 获取分页日志
func (lm *LogManager) GetLogsWithPagination(level, opcode string, page, pageSize int) ([]LogEntry, int) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	// 先过滤再分页
	filtered := make([]LogEntry, 0, len(lm.logs))
	for _, log := range lm.logs {
		if log.matches(level, opcode) {
			filtered = append(filtered, log)
		}
	}

	total := len(filtered)

	// 计算分页
	start := (page - 1) * pageSize
	end := start + pageSize

	if start >= total {
		return []LogEntry{}, total
	}

	if end > total {
		end = total
	}

	return filtered[start:end], total
}

// ClearLogs 清空日志
func (lm *LogManager) ClearLogs() {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.logs = make([]LogEntry, 0, lm.maxLogs)
}

// LogHook 日志钩子
type LogHook struct {
	manager *LogManager
}

// NewLogHook 创建日志钩子
func NewLogHook(manager *LogManager) *LogHook {
	return &LogHook{manager: manager}
}

// Fire 实现 logrus.Hook 接口
func (h *LogHook) Fire(entry *logrus.Entry) error {
	h.manager.AddLog(entry)
	return nil
}

// Levels 实现 logrus.Hook 接口
func (h *LogHook) Levels() []logrus.Level {
	return logrus.AllLevels
}
