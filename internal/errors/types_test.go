package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewProgramError(t *testing.T) {
	err := NewProgramError(ErrorTypeLedger, SeverityHigh, "TEST_ERROR", "测试错误")

	assert.NotNil(t, err)
	assert.Equal(t, ErrorTypeLedger, err.Type)
	assert.Equal(t, SeverityHigh, err.Severity)
	assert.Equal(t, "TEST_ERROR", err.Code)
	assert.Equal(t, "测试错误", err.Message)
	assert.True(t, err.Retryable) // 账本错误默认可重试
	assert.False(t, err.Timestamp.IsZero())
}

func TestWrapError(t *testing.T) {
	originalErr := errors.New("原始错误")
	wrappedErr := WrapError(originalErr, ErrorTypeSerialization, SeverityMedium, "WRAPPED_ERROR", "包装错误")

	assert.NotNil(t, wrappedErr)
	assert.Equal(t, ErrorTypeSerialization, wrappedErr.Type)
	assert.Equal(t, SeverityMedium, wrappedErr.Severity)
	assert.Equal(t, "WRAPPED_ERROR", wrappedErr.Code)
	assert.Equal(t, "包装错误", wrappedErr.Message)
	assert.Equal(t, originalErr, wrappedErr.Cause)
	assert.Contains(t, wrappedErr.Error(), "原始错误")
}

func TestProgramError_Error(t *testing.T) {
	// 测试没有原因的错误
	err := NewProgramError(ErrorTypeState, SeverityLow, "TEST_CODE", "测试消息")
	expected := "[TEST_CODE] 测试消息"
	assert.Equal(t, expected, err.Error())

	// 测试有原因的错误
	originalErr := errors.New("原始错误")
	wrappedErr := WrapError(originalErr, ErrorTypeState, SeverityLow, "TEST_CODE", "测试消息")
	expectedWithCause := "[TEST_CODE] 测试消息: 原始错误"
	assert.Equal(t, expectedWithCause, wrappedErr.Error())
}

func TestProgramError_Unwrap(t *testing.T) {
	originalErr := errors.New("原始错误")
	wrappedErr := WrapError(originalErr, ErrorTypeLedger, SeverityMedium, "WRAPPED", "包装")

	unwrapped := wrappedErr.Unwrap()
	assert.Equal(t, originalErr, unwrapped)

	// 测试没有原因的错误
	standaloneErr := NewProgramError(ErrorTypeState, SeverityLow, "STANDALONE", "独立错误")
	assert.Nil(t, standaloneErr.Unwrap())
}

func TestProgramError_IsRetryable(t *testing.T) {
	// 可重试的错误
	retryableErr := NewProgramError(ErrorTypeKafka, SeverityMedium, "KAFKA_ERROR", "Kafka错误")
	assert.True(t, retryableErr.IsRetryable())

	// 不可重试的错误
	nonRetryableErr := NewProgramError(ErrorTypeAuthorization, SeverityHigh, "AUTH_ERROR", "授权错误")
	assert.False(t, nonRetryableErr.IsRetryable())
}

func TestProgramError_WithContext(t *testing.T) {
	base := NewProgramError(ErrorTypeAccount, SeverityMedium, "ACCOUNT_ERROR", "账户错误")

	err := base.WithContext("address", "9ZyN").WithContext("attempt", 3)

	assert.NotNil(t, err.Context)
	assert.Equal(t, "9ZyN", err.Context["address"])
	assert.Equal(t, 3, err.Context["attempt"])

	// 预定义错误是共享的，附加上下文不得污染原值
	assert.Nil(t, base.Context)
}

func TestProgramError_WithInstruction(t *testing.T) {
	err := NewProgramError(ErrorTypeInstruction, SeverityMedium, "IX_ERROR", "指令错误").
		WithInstruction("CreateResearchPaper")

	assert.NotNil(t, err.Instruction)
	assert.Equal(t, "CreateResearchPaper", *err.Instruction)
}

func TestProgramError_WithAccount(t *testing.T) {
	base := NewProgramError(ErrorTypeAccount, SeverityHigh, "ACCOUNT_ERROR", "账户错误")

	err := base.WithAccount("5FHneW46xGXgs5mUiveU4sbTyGBzmstUspZC92UhjJM694ty")

	assert.NotNil(t, err.Account)
	assert.Equal(t, "5FHneW46xGXgs5mUiveU4sbTyGBzmstUspZC92UhjJM694ty", *err.Account)
	assert.Nil(t, base.Account)
}

func TestDetermineRetryable(t *testing.T) {
	tests := []struct {
		errorType ErrorType
		expected  bool
	}{
		{ErrorTypeLedger, true},
		{ErrorTypeKafka, true},
		{ErrorTypeInstruction, false},
		{ErrorTypeAuthorization, false},
		{ErrorTypeAccount, false},
		{ErrorTypeState, false},
		{ErrorTypeSerialization, false},
		{ErrorTypeValidation, false},
		{ErrorTypeConfig, false},
	}

	for _, tt := range tests {
		result := determineRetryable(tt.errorType)
		assert.Equal(t, tt.expected, result, "errorType=%v", tt.errorType)
	}
}

func TestIsCode(t *testing.T) {
	// 直接匹配
	assert.True(t, IsCode(ErrPdaMismatch, "PDA_MISMATCH"))
	assert.False(t, IsCode(ErrPdaMismatch, "INVALID_SIGNER"))

	// 带上下文的副本仍然匹配
	assert.True(t, IsCode(ErrPdaMismatch.WithContext("bump", 254), "PDA_MISMATCH"))

	// 经过fmt.Errorf包装后沿错误链匹配
	wrapped := fmt.Errorf("处理指令失败: %w", ErrInsufficientFunds)
	assert.True(t, IsCode(wrapped, "INSUFFICIENT_FUNDS"))

	// 普通错误和空错误
	assert.False(t, IsCode(errors.New("其他错误"), "PDA_MISMATCH"))
	assert.False(t, IsCode(nil, "PDA_MISMATCH"))
}

func TestErrorType_String(t *testing.T) {
	tests := []struct {
		errorType ErrorType
		expected  string
	}{
		{ErrorTypeInstruction, "Instruction"},
		{ErrorTypeAuthorization, "Authorization"},
		{ErrorTypeAccount, "Account"},
		{ErrorTypeState, "State"},
		{ErrorTypeSerialization, "Serialization"},
		{ErrorTypeLedger, "Ledger"},
		{ErrorType(999), "Unknown(999)"}, // 未知类型
	}

	for _, tt := range tests {
		result := tt.errorType.String()
		assert.Equal(t, tt.expected, result)
	}
}

func TestErrorSeverity_String(t *testing.T) {
	tests := []struct {
		severity ErrorSeverity
		expected string
	}{
		{SeverityLow, "Low"},
		{SeverityMedium, "Medium"},
		{SeverityHigh, "High"},
		{SeverityCritical, "Critical"},
		{ErrorSeverity(999), "Unknown(999)"}, // 未知严重级别
	}

	for _, tt := range tests {
		result := tt.severity.String()
		assert.Equal(t, tt.expected, result)
	}
}

func TestNewErrorStats(t *testing.T) {
	stats := NewErrorStats()

	assert.NotNil(t, stats)
	assert.Equal(t, 0, stats.TotalErrors)
	assert.NotNil(t, stats.ErrorsByType)
	assert.NotNil(t, stats.ErrorsBySeverity)
	assert.NotNil(t, stats.ErrorsByCode)
	assert.NotNil(t, stats.RecentErrors)
	assert.Empty(t, stats.RecentErrors)
	assert.Nil(t, stats.LastError)
}

func TestErrorStats_RecordError(t *testing.T) {
	stats := NewErrorStats()

	err1 := NewProgramError(ErrorTypeAccount, SeverityMedium, "PDA_MISMATCH", "派生地址校验失败")
	err2 := NewProgramError(ErrorTypeAuthorization, SeverityHigh, "INVALID_SIGNER", "缺少签名")
	err3 := NewProgramError(ErrorTypeAccount, SeverityLow, "PROFILE_NOT_FOUND", "档案不存在")

	stats.RecordError(err1)
	stats.RecordError(err2)
	stats.RecordError(err3)

	assert.Equal(t, 3, stats.TotalErrors)
	assert.Equal(t, 2, stats.ErrorsByType[ErrorTypeAccount])
	assert.Equal(t, 1, stats.ErrorsByType[ErrorTypeAuthorization])
	assert.Equal(t, 1, stats.ErrorsBySeverity[SeverityLow])
	assert.Equal(t, 1, stats.ErrorsBySeverity[SeverityMedium])
	assert.Equal(t, 1, stats.ErrorsBySeverity[SeverityHigh])
	assert.Equal(t, 1, stats.ErrorsByCode["PDA_MISMATCH"])
	assert.Equal(t, 1, stats.ErrorsByCode["INVALID_SIGNER"])
	assert.Equal(t, err3, stats.LastError)
	assert.Equal(t, 3, len(stats.RecentErrors))
}

func TestErrorStats_RecordError_RecentErrorsLimit(t *testing.T) {
	stats := NewErrorStats()

	// 添加超过100个错误
	for i := 0; i < 150; i++ {
		err := NewProgramError(ErrorTypeState, SeverityLow, "TEST_ERROR", "测试错误")
		stats.RecordError(err)
	}

	assert.Equal(t, 150, stats.TotalErrors)
	assert.Equal(t, 100, len(stats.RecentErrors)) // 应该限制在100个
}

func TestErrorStats_GetErrorRate(t *testing.T) {
	stats := NewErrorStats()

	now := time.Now()

	// 添加一些在过去1小时内的错误
	for i := 0; i < 10; i++ {
		err := NewProgramError(ErrorTypeState, SeverityLow, "TEST_ERROR", "测试错误")
		err.Timestamp = now.Add(-time.Duration(i*5) * time.Minute) // 每5分钟一个错误
		stats.RecentErrors = append(stats.RecentErrors, err)
	}

	// 添加一些超过1小时的错误
	for i := 0; i < 5; i++ {
		err := NewProgramError(ErrorTypeState, SeverityLow, "OLD_ERROR", "旧错误")
		err.Timestamp = now.Add(-time.Duration(70+i*10) * time.Minute) // 超过1小时前
		stats.RecentErrors = append(stats.RecentErrors, err)
	}

	// 测试1小时的错误率
	hourlyRate := stats.GetErrorRate(time.Hour)
	assert.Equal(t, 10.0, hourlyRate) // 应该只计算过去1小时内的10个错误

	// 测试0持续时间
	zeroRate := stats.GetErrorRate(0)
	assert.Equal(t, 0.0, zeroRate)

	// 测试30分钟的错误率
	halfHourRate := stats.GetErrorRate(30 * time.Minute)
	assert.Equal(t, 12.0, halfHourRate) // 30分钟内的6个错误 * 2 = 12错误/小时
}

func TestPredefinedErrors(t *testing.T) {
	// 测试预定义错误是否正确初始化
	assert.Equal(t, ErrorTypeAuthorization, ErrInvalidSigner.Type)
	assert.Equal(t, "INVALID_SIGNER", ErrInvalidSigner.Code)
	assert.False(t, ErrInvalidSigner.Retryable)

	assert.Equal(t, ErrorTypeLedger, ErrLedgerFailure.Type)
	assert.Equal(t, SeverityCritical, ErrLedgerFailure.Severity)
	assert.Equal(t, "LEDGER_FAILURE", ErrLedgerFailure.Code)
	assert.True(t, ErrLedgerFailure.Retryable)

	assert.Equal(t, ErrorTypeConfig, ErrConfigInvalid.Type)
	assert.Equal(t, SeverityCritical, ErrConfigInvalid.Severity)
	assert.False(t, ErrConfigInvalid.Retryable)
}

// 基准测试
func BenchmarkNewProgramError(b *testing.B) {
	for i := 0; i < b.N; i++ {
		NewProgramError(ErrorTypeState, SeverityMedium, "BENCH_ERROR", "基准测试错误")
	}
}

func BenchmarkErrorStats_RecordError(b *testing.B) {
	stats := NewErrorStats()
	err := NewProgramError(ErrorTypeState, SeverityMedium, "BENCH_ERROR", "基准测试错误")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		stats.RecordError(err)
	}
}

func BenchmarkProgramError_Error(b *testing.B) {
	err := NewProgramError(ErrorTypeState, SeverityMedium, "BENCH_ERROR", "基准测试错误")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = err.Error()
	}
}
