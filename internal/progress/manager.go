package progress

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	// 默认数据库路径
	DefaultDBPath = "./data/progress.db"

	// 存储桶名称
	ProgressBucket = "progress"
	OpcodeBucket   = "opcodes"
	StatsBucket    = "stats"

	// 进度键
	SequenceKey       = "sequence"
	StartTimeKey      = "start_time"
	LastUpdateTimeKey = "last_update_time"
)

// ProgressInfo 进度信息
type ProgressInfo struct {
	Sequence              uint64            `json:"sequence"` // 已处理的指令序号
	StartTime             time.Time         `json:"start_time"`
	LastUpdateTime        time.Time         `json:"last_update_time"`
	TotalInstructions     uint64            `json:"total_instructions"`
	FailedInstructions    uint64            `json:"failed_instructions"`
	InstructionsPerSecond float64           `json:"instructions_per_second"`
	PerOpcode             map[string]uint64 `json:"per_opcode"`
}

// Manager 进度管理器
// 持久记录节点处理过的指令序号和各操作码的计数，重启后可以续用
type Manager struct {
	db     *bolt.DB
	logger *logrus.Logger
	dbPath string
	mu     sync.RWMutex

	// 内存缓存
	cache *ProgressInfo
}

// NewManager 创建进度管理器
func NewManager(dbPath string, logger *logrus.Logger) (*Manager, error) {
	if dbPath == "" {
		dbPath = DefaultDBPath
	}

	// 确保目录存在
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建进度数据库目录失败: %w", err)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("打开进度数据库失败: %w", err)
	}

	m := &Manager{
		db:     db,
		logger: logger,
		dbPath: dbPath,
	}

	if err := m.initDB(); err != nil {
		db.Close()
		return nil, err
	}

	if err := m.loadCache(); err != nil {
		db.Close()
		return nil, err
	}

	return m, nil
}

// initDB 初始化存储桶
func (m *Manager) initDB() error {
	return m.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{ProgressBucket, OpcodeBucket, StatsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("创建存储桶 %s 失败: %w", name, err)
			}
		}
		return nil
	})
}

// loadCache 从数据库加载缓存
func (m *Manager) loadCache() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cache := &ProgressInfo{
		StartTime: time.Now(),
		PerOpcode: make(map[string]uint64),
	}

	err := m.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(ProgressBucket))

		if v := b.Get([]byte(SequenceKey)); v != nil && len(v) == 8 {
			cache.Sequence = binary.LittleEndian.Uint64(v)
			cache.TotalInstructions = cache.Sequence
		}

		if v := b.Get([]byte(StartTimeKey)); v != nil {
			var t time.Time
			if err := t.UnmarshalBinary(v); err == nil {
				cache.StartTime = t
			}
		}

		if v := b.Get([]byte(LastUpdateTimeKey)); v != nil {
			var t time.Time
			if err := t.UnmarshalBinary(v); err == nil {
				cache.LastUpdateTime = t
			}
		}

		ops := tx.Bucket([]byte(OpcodeBucket))
		return ops.ForEach(func(k, v []byte) error {
			if len(v) == 8 {
				cache.PerOpcode[string(k)] = binary.LittleEndian.Uint64(v)
			}
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("加载进度缓存失败: %w", err)
	}

	m.cache = cache
	m.logger.Debugf("进度缓存已加载，序号: %d", cache.Sequence)
	return nil
}

// GetSequence 获取已处理的指令序号
func (m *Manager) GetSequence() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cache.Sequence
}

// RecordInstruction 记录一条成功处理的指令
func (m *Manager) RecordInstruction(opcode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.cache.Sequence++
	m.cache.TotalInstructions = m.cache.Sequence
	m.cache.LastUpdateTime = now
	m.cache.PerOpcode[opcode]++

	elapsed := now.Sub(m.cache.StartTime).Seconds()
	if elapsed > 0 {
		m.cache.InstructionsPerSecond = float64(m.cache.TotalInstructions) / elapsed
	}

	return m.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(ProgressBucket))

		seq := make([]byte, 8)
		binary.LittleEndian.PutUint64(seq, m.cache.Sequence)
		if err := b.Put([]byte(SequenceKey), seq); err != nil {
			return err
		}

		ts, err := now.MarshalBinary()
		if err != nil {
			return err
		}
		if err := b.Put([]byte(LastUpdateTimeKey), ts); err != nil {
			return err
		}

		ops := tx.Bucket([]byte(OpcodeBucket))
		count := make([]byte, 8)
		binary.LittleEndian.PutUint64(count, m.cache.PerOpcode[opcode])
		return ops.Put([]byte(opcode), count)
	})
}

// RecordFailure 记录一条处理失败的指令（只进内存统计）
func (m *Manager) RecordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.FailedInstructions++
}

// GetProgress 获取进度信息快照
func (m *Manager) GetProgress() *ProgressInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info := *m.cache
	info.PerOpcode = make(map[string]uint64, len(m.cache.PerOpcode))
	for k, v := range m.cache.PerOpcode {
		info.PerOpcode[k] = v
	}
	return &info
}

// Reset 重置进度
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{ProgressBucket, OpcodeBucket, StatsBucket} {
			if err := tx.DeleteBucket([]byte(name)); err != nil {
				return err
			}
			if _, err := tx.CreateBucket([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("重置进度失败: %w", err)
	}

	m.cache = &ProgressInfo{
		StartTime: time.Now(),
		PerOpcode: make(map[string]uint64),
	}

	m.logger.Info("进度已重置")
	return nil
}

// SaveCheckpoint 保存进度检查点
func (m *Manager) SaveCheckpoint(info *ProgressInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("序列化检查点失败: %w", err)
	}

	key := []byte(time.Now().Format(time.RFC3339))
	return m.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(StatsBucket)).Put(key, data)
	})
}

// GetDBPath 获取数据库路径
func (m *Manager) GetDBPath() string {
	return m.dbPath
}

// GetStats 获取统计信息
func (m *Manager) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"sequence":                m.cache.Sequence,
		"total_instructions":      m.cache.TotalInstructions,
		"failed_instructions":     m.cache.FailedInstructions,
		"instructions_per_second": m.cache.InstructionsPerSecond,
		"start_time":              m.cache.StartTime,
		"last_update_time":        m.cache.LastUpdateTime,
		"db_path":                 m.dbPath,
	}
}

// Close 关闭进度管理器
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
