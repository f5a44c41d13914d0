package validation

import (
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMenageri3/deresearcher-program/pkg/codec"
	"github.com/TheMenageri3/deresearcher-program/pkg/models"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewValidator(logger, true)
}

func TestValidateInstructionNil(t *testing.T) {
	v := newTestValidator(t)

	result := v.ValidateInstruction(nil)
	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)
}

func TestValidateCreateProfileName(t *testing.T) {
	v := newTestValidator(t)

	result := v.ValidateInstruction(&models.CreateResearcherProfileArgs{Name: "Alice", PdaBump: 1})
	assert.True(t, result.Valid)

	// 空名称
	result = v.ValidateInstruction(&models.CreateResearcherProfileArgs{Name: ""})
	assert.False(t, result.Valid)
	assert.Equal(t, "EMPTY_PROFILE_NAME", result.Errors[0].Code)

	// 超出64字节容量
	result = v.ValidateInstruction(&models.CreateResearcherProfileArgs{
		Name: strings.Repeat("a", codec.MaxStringSize+1),
	})
	assert.False(t, result.Valid)
	assert.Equal(t, "SIZE_OVERFLOW", result.Errors[0].Code)
}

func TestValidateReviewScores(t *testing.T) {
	v := newTestValidator(t)

	result := v.ValidateInstruction(&models.AddPeerReviewArgs{
		QualityOfResearch:            100,
		PotentialForRealWorldUseCase: 0,
		DomainKnowledge:              50,
		PracticalityOfResultObtained: 99,
	})
	assert.True(t, result.Valid)

	result = v.ValidateInstruction(&models.AddPeerReviewArgs{DomainKnowledge: 101})
	assert.False(t, result.Valid)
	assert.Equal(t, "SIZE_OVERFLOW", result.Errors[0].Code)
}

func TestValidateReputation(t *testing.T) {
	v := newTestValidator(t)

	result := v.ValidateInstruction(&models.CheckAndAssignReputationArgs{Reputation: 100})
	assert.True(t, result.Valid)

	result = v.ValidateInstruction(&models.CheckAndAssignReputationArgs{Reputation: 101})
	assert.False(t, result.Valid)
}

func TestValidatePaperZeroFeeWarning(t *testing.T) {
	v := newTestValidator(t)

	result := v.ValidateInstruction(&models.CreateResearchPaperArgs{AccessFee: 0})
	assert.True(t, result.Valid)
	assert.NotEmpty(t, result.Warnings)

	result = v.ValidateInstruction(&models.CreateResearchPaperArgs{AccessFee: 100})
	assert.Empty(t, result.Warnings)
}

func TestValidateEvent(t *testing.T) {
	v := newTestValidator(t)

	var programID, signer models.Pubkey
	ev := models.NewEvent(models.EventProfileCreated, programID, signer)
	ev.Profile = &models.ResearcherProfile{}

	result := v.ValidateEvent(ev)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Warnings)

	// 缺少ID和类型
	result = v.ValidateEvent(&models.Event{Timestamp: time.Now()})
	assert.False(t, result.Valid)
	assert.Len(t, result.Errors, 2)

	// 不携带记录快照只是警告
	result = v.ValidateEvent(models.NewEvent(models.EventPaperPublished, programID, signer))
	assert.True(t, result.Valid)
	assert.NotEmpty(t, result.Warnings)

	result = v.ValidateEvent(nil)
	assert.False(t, result.Valid)
}

func TestValidatePubkeyString(t *testing.T) {
	v := newTestValidator(t)

	var p models.Pubkey
	p[0] = 1

	result := v.ValidatePubkeyString(p.String())
	assert.True(t, result.Valid)

	result = v.ValidatePubkeyString("0OIl-not-base58")
	assert.False(t, result.Valid)

	// 合法base58但长度不是32字节
	result = v.ValidatePubkeyString("abc")
	assert.False(t, result.Valid)
}

func TestValidatorStats(t *testing.T) {
	v := newTestValidator(t)

	stats := v.GetValidationStats()
	assert.NotNil(t, stats)

	v.SetStrictMode(false)
	v.ValidateInstruction(&models.CreateResearcherProfileArgs{Name: "ok"})
}
