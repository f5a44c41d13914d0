package errors

import (
	"fmt"
	"time"
)

// ErrorType 错误类型
type ErrorType int

const (
	// 指令相关错误
	ErrorTypeInstruction ErrorType = iota
	ErrorTypeAuthorization
	ErrorTypeAccount
	ErrorTypeState

	// 数据相关错误
	ErrorTypeSerialization
	ErrorTypeValidation

	// 系统相关错误
	ErrorTypeLedger
	ErrorTypeConfig

	// 外部服务错误
	ErrorTypeKafka
)

// ErrorSeverity 错误严重级别
type ErrorSeverity int

const (
	SeverityLow ErrorSeverity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// ProgramError 程序自定义错误类型
type ProgramError struct {
	Type        ErrorType              `json:"type"`
	Severity    ErrorSeverity          `json:"severity"`
	Code        string                 `json:"code"`
	Message     string                 `json:"message"`
	Details     interface{}            `json:"details,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Cause       error                  `json:"cause,omitempty"`
	Retryable   bool                   `json:"retryable"`
	Component   string                 `json:"component"`
	Instruction *string                `json:"instruction,omitempty"`
	Account     *string                `json:"account,omitempty"`
}

// Error 实现error接口
func (e *ProgramError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 支持errors.Unwrap
func (e *ProgramError) Unwrap() error {
	return e.Cause
}

// IsRetryable 判断是否可重试
func (e *ProgramError) IsRetryable() bool {
	return e.Retryable
}

// clone 复制错误（预定义错误是共享的，附加上下文前必须复制）
func (e *ProgramError) clone() *ProgramError {
	cp := *e
	if e.Context != nil {
		cp.Context = make(map[string]interface{}, len(e.Context))
		for k, v := range e.Context {
			cp.Context[k] = v
		}
	}
	cp.Timestamp = time.Now()
	return &cp
}

// WithContext 添加上下文信息
func (e *ProgramError) WithContext(key string, value interface{}) *ProgramError {
	cp := e.clone()
	if cp.Context == nil {
		cp.Context = make(map[string]interface{})
	}
	cp.Context[key] = value
	return cp
}

// WithInstruction 添加指令名称
func (e *ProgramError) WithInstruction(name string) *ProgramError {
	cp := e.clone()
	cp.Instruction = &name
	return cp
}

// WithAccount 添加相关账户地址
func (e *ProgramError) WithAccount(address string) *ProgramError {
	cp := e.clone()
	cp.Account = &address
	return cp
}

// NewProgramError 创建新的错误
func NewProgramError(errorType ErrorType, severity ErrorSeverity, code, message string) *ProgramError {
	return &ProgramError{
		Type:      errorType,
		Severity:  severity,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Retryable: determineRetryable(errorType),
	}
}

// WrapError 包装现有错误
func WrapError(err error, errorType ErrorType, severity ErrorSeverity, code, message string) *ProgramError {
	return &ProgramError{
		Type:      errorType,
		Severity:  severity,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Cause:     err,
		Retryable: determineRetryable(errorType),
	}
}

// determineRetryable 根据错误类型判断是否可重试
// 程序核心错误是确定性的，重新提交同样的指令必然再次失败
func determineRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeLedger, ErrorTypeKafka:
		return true
	default:
		return false
	}
}

// IsCode 判断错误链中是否包含指定错误码
func IsCode(err error, code string) bool {
	for err != nil {
		if pe, ok := err.(*ProgramError); ok && pe.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// 预定义错误（错误码与链上程序的错误枚举一一对应）
var (
	// 指令错误
	ErrInvalidInstruction = NewProgramError(
		ErrorTypeInstruction,
		SeverityHigh,
		"INVALID_INSTRUCTION",
		"无效的指令（不支持该操作码）",
	)

	// 授权错误
	ErrInvalidSigner = NewProgramError(
		ErrorTypeAuthorization,
		SeverityHigh,
		"INVALID_SIGNER",
		"缺少必需的签名者",
	)

	ErrInvalidReputationChecker = NewProgramError(
		ErrorTypeAuthorization,
		SeverityHigh,
		"INVALID_REPUTATION_CHECKER",
		"无权执行声誉评定",
	)

	ErrPublisherCannotAddPeerReview = NewProgramError(
		ErrorTypeAuthorization,
		SeverityMedium,
		"PUBLISHER_CANNOT_ADD_PEER_REVIEW",
		"论文作者不能评审自己的论文",
	)

	// 账户错误
	ErrPdaMismatch = NewProgramError(
		ErrorTypeAccount,
		SeverityHigh,
		"PDA_MISMATCH",
		"派生地址校验失败",
	)

	ErrPubkeyMismatch = NewProgramError(
		ErrorTypeAccount,
		SeverityHigh,
		"PUBKEY_MISMATCH",
		"公钥不匹配",
	)

	ErrResearcherProfileAlreadyExists = NewProgramError(
		ErrorTypeAccount,
		SeverityMedium,
		"PROFILE_ALREADY_EXISTS",
		"研究者档案已存在",
	)

	ErrResearcherProfileNotFound = NewProgramError(
		ErrorTypeAccount,
		SeverityMedium,
		"PROFILE_NOT_FOUND",
		"研究者档案不存在",
	)

	ErrPaperAlreadyExists = NewProgramError(
		ErrorTypeAccount,
		SeverityMedium,
		"PAPER_ALREADY_EXISTS",
		"论文已存在",
	)

	ErrPaperNotFound = NewProgramError(
		ErrorTypeAccount,
		SeverityMedium,
		"PAPER_NOT_FOUND",
		"论文不存在",
	)

	ErrPeerReviewAlreadyExists = NewProgramError(
		ErrorTypeAccount,
		SeverityMedium,
		"PEER_REVIEW_ALREADY_EXISTS",
		"该评审人已评审过这篇论文",
	)

	ErrImmutableAccount = NewProgramError(
		ErrorTypeAccount,
		SeverityHigh,
		"IMMUTABLE_ACCOUNT",
		"账户不可写",
	)

	ErrInvalidFeeReceiver = NewProgramError(
		ErrorTypeAccount,
		SeverityHigh,
		"INVALID_FEE_RECEIVER",
		"费用接收方无效",
	)

	// 状态错误
	ErrInvalidState = NewProgramError(
		ErrorTypeState,
		SeverityMedium,
		"INVALID_STATE",
		"当前状态不允许该操作",
	)

	ErrNotEnoughApprovals = NewProgramError(
		ErrorTypeState,
		SeverityMedium,
		"NOT_ENOUGH_APPROVALS",
		"评审通过数未达到发布门槛",
	)

	ErrNotAllowedForPeerReview = NewProgramError(
		ErrorTypeState,
		SeverityMedium,
		"NOT_ALLOWED_FOR_PEER_REVIEW",
		"评审人资质未通过，不允许参与评审",
	)

	// 数据错误
	ErrSerialization = NewProgramError(
		ErrorTypeSerialization,
		SeverityHigh,
		"SERIALIZATION_ERROR",
		"记录数据序列化失败",
	)

	ErrSizeOverflow = NewProgramError(
		ErrorTypeSerialization,
		SeverityMedium,
		"SIZE_OVERFLOW",
		"字段长度超出容量限制",
	)

	// 系统错误
	ErrLedgerFailure = NewProgramError(
		ErrorTypeLedger,
		SeverityCritical,
		"LEDGER_FAILURE",
		"账本存储操作失败",
	)

	ErrInsufficientFunds = NewProgramError(
		ErrorTypeLedger,
		SeverityMedium,
		"INSUFFICIENT_FUNDS",
		"账户余额不足",
	)

	ErrConfigInvalid = NewProgramError(
		ErrorTypeConfig,
		SeverityCritical,
		"CONFIG_INVALID",
		"配置无效",
	)

	ErrKafkaProduceFailed = NewProgramError(
		ErrorTypeKafka,
		SeverityHigh,
		"KAFKA_PRODUCE_FAILED",
		"Kafka消息发送失败",
	)
)

// 错误类型字符串映射
var errorTypeNames = map[ErrorType]string{
	ErrorTypeInstruction:   "Instruction",
	ErrorTypeAuthorization: "Authorization",
	ErrorTypeAccount:       "Account",
	ErrorTypeState:         "State",
	ErrorTypeSerialization: "Serialization",
	ErrorTypeValidation:    "Validation",
	ErrorTypeLedger:        "Ledger",
	ErrorTypeConfig:        "Config",
	ErrorTypeKafka:         "Kafka",
}

// String 返回错误类型的字符串表示
func (et ErrorType) String() string {
	if name, exists := errorTypeNames[et]; exists {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", et)
}

// 严重级别字符串映射
var severityNames = map[ErrorSeverity]string{
	SeverityLow:      "Low",
	SeverityMedium:   "Medium",
	SeverityHigh:     "High",
	SeverityCritical: "Critical",
}

// String 返回严重级别的字符串表示
func (es ErrorSeverity) String() string {
	if name, exists := severityNames[es]; exists {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", es)
}

// ErrorStats 错误统计
type ErrorStats struct {
	TotalErrors       int                   `json:"total_errors"`
	ErrorsByType      map[ErrorType]int     `json:"errors_by_type"`
	ErrorsBySeverity  map[ErrorSeverity]int `json:"errors_by_severity"`
	ErrorsByCode      map[string]int        `json:"errors_by_code"`
	RecentErrors      []*ProgramError       `json:"recent_errors"`
	LastError         *ProgramError         `json:"last_error"`
	LastErrorTime     time.Time             `json:"last_error_time"`
}

// NewErrorStats 创建错误统计
func NewErrorStats() *ErrorStats {
	return &ErrorStats{
		ErrorsByType:     make(map[ErrorType]int),
		ErrorsBySeverity: make(map[ErrorSeverity]int),
		ErrorsByCode:     make(map[string]int),
		RecentErrors:     make([]*ProgramError, 0),
	}
}

// RecordError 记录错误
func (es *ErrorStats) RecordError(err *ProgramError) {
	es.TotalErrors++
	es.ErrorsByType[err.Type]++
	es.ErrorsBySeverity[err.Severity]++
	es.ErrorsByCode[err.Code]++

	es.LastError = err
	es.LastErrorTime = err.Timestamp

	// 保留最近100个错误
	es.RecentErrors = append(es.RecentErrors, err)
	if len(es.RecentErrors) > 100 {
		es.RecentErrors = es.RecentErrors[1:]
	}
}

// GetErrorRate 获取错误率（错误/小时）
func (es *ErrorStats) GetErrorRate(duration time.Duration) float64 {
	if duration <= 0 {
		return 0
	}

	cutoff := time.Now().Add(-duration)
	recentCount := 0

	for _, err := range es.RecentErrors {
		if err.Timestamp.After(cutoff) {
			recentCount++
		}
	}

	hours := duration.Hours()
	if hours == 0 {
		return float64(recentCount)
	}

	return float64(recentCount) / hours
}
