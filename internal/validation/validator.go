package validation

import (
	"fmt"

	"github.com/TheMenageri3/deresearcher-program/internal/errors"
	"github.com/TheMenageri3/deresearcher-program/pkg/codec"
	"github.com/TheMenageri3/deresearcher-program/pkg/models"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"
)

// Validator 数据验证器
// 在指令进入处理器之前做结构性检查，把明显畸形的请求挡在账本之外
type Validator struct {
	logger       *logrus.Logger
	strictMode   bool // 严格模式
	errorHandler *errors.ErrorHandler
	rules        map[string]ValidationRule
}

// ValidationRule 验证规则接口
type ValidationRule interface {
	Validate(data interface{}) error
	Name() string
	Description() string
}

// ValidationResult 验证结果
type ValidationResult struct {
	Valid    bool                   `json:"valid"`
	Errors   []*errors.ProgramError `json:"errors,omitempty"`
	Warnings []string               `json:"warnings,omitempty"`
	DataType string                 `json:"data_type"`
}

// NewValidator 创建数据验证器
func NewValidator(logger *logrus.Logger, strictMode bool) *Validator {
	v := &Validator{
		logger:       logger,
		strictMode:   strictMode,
		errorHandler: errors.NewErrorHandler(logger),
		rules:        make(map[string]ValidationRule),
	}

	// 注册默认验证规则
	v.registerDefaultRules()

	return v
}

// registerDefaultRules 注册默认验证规则
func (v *Validator) registerDefaultRules() {
	// 档案名称验证规则
	v.AddRule(NewProfileNameValidationRule())

	// 评审分数验证规则
	v.AddRule(NewReviewScoreValidationRule())

	// 公钥验证规则
	v.AddRule(NewPubkeyValidationRule())

	// 摘要验证规则
	v.AddRule(NewDigestValidationRule())
}

// AddRule 添加验证规则
func (v *Validator) AddRule(rule ValidationRule) {
	v.rules[rule.Name()] = rule
	v.logger.Debugf("已注册验证规则: %s", rule.Name())
}

// ValidateInstruction 验证指令参数
func (v *Validator) ValidateInstruction(ix models.Instruction) *ValidationResult {
	if ix == nil {
		return &ValidationResult{
			Valid:    false,
			Errors:   []*errors.ProgramError{errors.ErrInvalidInstruction.WithContext("reason", "指令为空")},
			DataType: "instruction",
		}
	}

	result := &ValidationResult{
		Valid:    true,
		DataType: "instruction",
		Errors:   make([]*errors.ProgramError, 0),
		Warnings: make([]string, 0),
	}

	switch args := ix.(type) {
	case *models.CreateResearcherProfileArgs:
		if rule, exists := v.rules["profile_name"]; exists {
			if err := rule.Validate(args.Name); err != nil {
				v.appendError(result, err)
			}
		}
	case *models.AddPeerReviewArgs:
		if rule, exists := v.rules["review_score"]; exists {
			if err := rule.Validate(args); err != nil {
				v.appendError(result, err)
			}
		}
	case *models.CheckAndAssignReputationArgs:
		if args.Reputation > models.MaxReputation {
			result.Valid = false
			result.Errors = append(result.Errors,
				errors.ErrSizeOverflow.WithContext("reputation", args.Reputation))
		}
	case *models.CreateResearchPaperArgs:
		if args.AccessFee == 0 {
			result.Warnings = append(result.Warnings, "论文访问费为零，访问时不会发生转账")
		}
	}

	return result
}

// ValidateEvent 验证待发布的事件
func (v *Validator) ValidateEvent(ev *models.Event) *ValidationResult {
	if ev == nil {
		return &ValidationResult{
			Valid:    false,
			Errors:   []*errors.ProgramError{errors.ErrSerialization.WithContext("reason", "事件为空")},
			DataType: "event",
		}
	}

	result := &ValidationResult{
		Valid:    true,
		DataType: "event",
		Errors:   make([]*errors.ProgramError, 0),
		Warnings: make([]string, 0),
	}

	if ev.ID == "" {
		result.Valid = false
		result.Errors = append(result.Errors,
			errors.ErrSerialization.WithContext("reason", "事件缺少ID"))
	}

	if ev.Type == "" {
		result.Valid = false
		result.Errors = append(result.Errors,
			errors.ErrSerialization.WithContext("reason", "事件缺少类型"))
	}

	if ev.Timestamp.IsZero() {
		result.Warnings = append(result.Warnings, "事件时间戳为零值")
	}

	if ev.Profile == nil && ev.Paper == nil && ev.Review == nil && ev.MintCollection == nil {
		result.Warnings = append(result.Warnings, "事件不携带任何记录快照")
	}

	return result
}

// ValidatePubkeyString 验证base58公钥字符串
func (v *Validator) ValidatePubkeyString(s string) *ValidationResult {
	result := &ValidationResult{
		Valid:    true,
		DataType: "pubkey",
		Errors:   make([]*errors.ProgramError, 0),
	}

	if rule, exists := v.rules["pubkey"]; exists {
		if err := rule.Validate(s); err != nil {
			v.appendError(result, err)
		}
	}

	return result
}

// appendError 归并验证错误
func (v *Validator) appendError(result *ValidationResult, err error) {
	result.Valid = false
	if programErr, ok := err.(*errors.ProgramError); ok {
		result.Errors = append(result.Errors, programErr)
	} else {
		result.Errors = append(result.Errors, errors.WrapError(err,
			errors.ErrorTypeValidation, errors.SeverityMedium,
			"VALIDATION_FAILED", "验证失败"))
	}
}

// ProfileNameValidationRule 档案名称验证规则
type ProfileNameValidationRule struct{}

func NewProfileNameValidationRule() *ProfileNameValidationRule {
	return &ProfileNameValidationRule{}
}

func (r *ProfileNameValidationRule) Name() string {
	return "profile_name"
}

func (r *ProfileNameValidationRule) Description() string {
	return "研究者档案名称验证规则"
}

func (r *ProfileNameValidationRule) Validate(data interface{}) error {
	name, ok := data.(string)
	if !ok {
		return fmt.Errorf("数据类型不是字符串")
	}

	if name == "" {
		return errors.NewProgramError(errors.ErrorTypeValidation, errors.SeverityMedium,
			"EMPTY_PROFILE_NAME", "档案名称为空")
	}

	if len(name) > codec.MaxStringSize {
		return errors.ErrSizeOverflow.WithContext("name_length", len(name))
	}

	return nil
}

// ReviewScoreValidationRule 评审分数验证规则
type ReviewScoreValidationRule struct{}

func NewReviewScoreValidationRule() *ReviewScoreValidationRule {
	return &ReviewScoreValidationRule{}
}

func (r *ReviewScoreValidationRule) Name() string {
	return "review_score"
}

func (r *ReviewScoreValidationRule) Description() string {
	return "同行评审分数验证规则"
}

func (r *ReviewScoreValidationRule) Validate(data interface{}) error {
	args, ok := data.(*models.AddPeerReviewArgs)
	if !ok {
		return fmt.Errorf("数据类型不是评审参数")
	}

	scores := map[string]uint8{
		"quality_of_research":               args.QualityOfResearch,
		"potential_for_real_world_use_case": args.PotentialForRealWorldUseCase,
		"domain_knowledge":                  args.DomainKnowledge,
		"practicality_of_result_obtained":   args.PracticalityOfResultObtained,
	}

	for field, score := range scores {
		if score > models.MaxReviewScore {
			return errors.ErrSizeOverflow.
				WithContext("field", field).
				WithContext("score", score)
		}
	}

	return nil
}

// PubkeyValidationRule 公钥验证规则
type PubkeyValidationRule struct{}

func NewPubkeyValidationRule() *PubkeyValidationRule {
	return &PubkeyValidationRule{}
}

func (r *PubkeyValidationRule) Name() string {
	return "pubkey"
}

func (r *PubkeyValidationRule) Description() string {
	return "base58公钥验证规则"
}

func (r *PubkeyValidationRule) Validate(data interface{}) error {
	s, ok := data.(string)
	if !ok {
		return fmt.Errorf("数据类型不是字符串")
	}

	raw, err := base58.Decode(s)
	if err != nil {
		return errors.NewProgramError(errors.ErrorTypeValidation, errors.SeverityHigh,
			"INVALID_PUBKEY_ENCODING", "公钥不是合法的base58编码")
	}

	if len(raw) != models.PubkeySize {
		return errors.NewProgramError(errors.ErrorTypeValidation, errors.SeverityHigh,
			"INVALID_PUBKEY_LENGTH", fmt.Sprintf("公钥长度无效: %d", len(raw)))
	}

	return nil
}

// DigestValidationRule 摘要验证规则
type DigestValidationRule struct{}

func NewDigestValidationRule() *DigestValidationRule {
	return &DigestValidationRule{}
}

func (r *DigestValidationRule) Name() string {
	return "digest"
}

func (r *DigestValidationRule) Description() string {
	return "十六进制摘要验证规则"
}

func (r *DigestValidationRule) Validate(data interface{}) error {
	s, ok := data.(string)
	if !ok {
		return fmt.Errorf("数据类型不是字符串")
	}

	raw, err := hexutil.Decode(s)
	if err != nil {
		return errors.NewProgramError(errors.ErrorTypeValidation, errors.SeverityHigh,
			"INVALID_DIGEST_ENCODING", "摘要不是合法的十六进制编码")
	}

	if len(raw) != models.DigestSize {
		return errors.NewProgramError(errors.ErrorTypeValidation, errors.SeverityHigh,
			"INVALID_DIGEST_LENGTH", fmt.Sprintf("摘要长度无效: %d", len(raw)))
	}

	return nil
}

// GetValidationStats 获取验证统计信息
func (v *Validator) GetValidationStats() map[string]interface{} {
	return map[string]interface{}{
		"strict_mode":      v.strictMode,
		"registered_rules": len(v.rules),
		"error_stats":      v.errorHandler.GetStats(),
	}
}

// SetStrictMode 设置严格模式
func (v *Validator) SetStrictMode(strict bool) {
	v.strictMode = strict
	v.logger.Infof("验证器严格模式设置为: %t", strict)
}
