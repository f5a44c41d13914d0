package node

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMenageri3/deresearcher-program/internal/config"
	"github.com/TheMenageri3/deresearcher-program/internal/errors"
	"github.com/TheMenageri3/deresearcher-program/internal/output"
	"github.com/TheMenageri3/deresearcher-program/internal/program"
	"github.com/TheMenageri3/deresearcher-program/pkg/models"
)

// testPubkey 生成填充固定字节的测试公钥
func testPubkey(fill byte) models.Pubkey {
	var pk models.Pubkey
	for i := range pk {
		pk[i] = fill
	}
	return pk
}

// newTestNode 创建内存后端的测试节点，事件写入临时目录
func newTestNode(t *testing.T) *Node {
	t.Helper()

	dir := t.TempDir()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := &config.Config{
		Program: &config.ProgramConfig{
			ProgramID:                 testPubkey(0xEE).String(),
			MinApprovals:              2,
			RequirePublishedForAccess: true,
			ReputationAuthority:       testPubkey(0xAA).String(),
		},
		Ledger: &config.LedgerConfig{
			Backend:      "memory",
			ProgressPath: filepath.Join(dir, "progress.db"),
		},
	}

	out, err := output.NewOutput(filepath.Join(dir, "events"), "json", false)
	require.NoError(t, err)

	n, err := NewNode(cfg, out, logger)
	require.NoError(t, err)
	t.Cleanup(n.Close)
	return n
}

// submitCreateProfile 构建并提交一条创建档案指令
func submitCreateProfile(t *testing.T, n *Node, researcher models.Pubkey, name string) (*SubmitResult, models.Pubkey, error) {
	t.Helper()

	profileAddr, bump, err := n.ProfileAddress(researcher)
	require.NoError(t, err)

	data, err := models.EncodeInstruction(&models.CreateResearcherProfileArgs{Name: name, PdaBump: bump})
	require.NoError(t, err)

	result, err := n.SubmitInstruction(context.Background(), &program.Invocation{
		Accounts: []program.AccountMeta{
			{Address: researcher, IsSigner: true, IsWritable: true},
			{Address: profileAddr, IsWritable: true},
		},
		Data: data,
	})
	return result, profileAddr, err
}

func TestSubmitCreateProfile(t *testing.T) {
	n := newTestNode(t)
	researcher := testPubkey(1)
	require.NoError(t, n.Fund(researcher, 100_000_000))

	result, profileAddr, err := submitCreateProfile(t, n, researcher, "alice")
	require.NoError(t, err)

	assert.Equal(t, uint64(1), result.Sequence)
	assert.Equal(t, "CreateResearcherProfile", result.Opcode)

	// 事件携带执行后的档案快照
	require.NotNil(t, result.Event)
	assert.Equal(t, models.EventProfileCreated, result.Event.Type)
	assert.Equal(t, researcher, result.Event.Signer)
	require.NotNil(t, result.Event.Profile)
	assert.Equal(t, "alice", result.Event.Profile.Name)

	// 档案可通过查询接口读回
	profile, err := n.GetProfile(profileAddr)
	require.NoError(t, err)
	assert.Equal(t, researcher, profile.ResearcherPubkey)

	// 创建账户扣除了租金
	balance, err := n.GetBalance(researcher)
	require.NoError(t, err)
	assert.Less(t, balance, uint64(100_000_000))
}

func TestSubmitInstructionRejectsMalformed(t *testing.T) {
	n := newTestNode(t)

	// 空调用
	_, err := n.SubmitInstruction(context.Background(), nil)
	assert.True(t, errors.IsCode(err, "INVALID_INSTRUCTION"))

	// 无法解码的指令数据
	_, err = n.SubmitInstruction(context.Background(), &program.Invocation{
		Data: []byte{0xFF},
	})
	assert.Error(t, err)
}

func TestSubmitInstructionPreValidation(t *testing.T) {
	n := newTestNode(t)
	researcher := testPubkey(2)
	require.NoError(t, n.Fund(researcher, 100_000_000))

	// 空姓名被预验证挡下，不进入账本
	_, _, err := submitCreateProfile(t, n, researcher, "")
	assert.True(t, errors.IsCode(err, "EMPTY_PROFILE_NAME"))

	profileAddr, _, deriveErr := n.ProfileAddress(researcher)
	require.NoError(t, deriveErr)
	_, err = n.GetProfile(profileAddr)
	assert.True(t, errors.IsCode(err, "PROFILE_NOT_FOUND"))
}

func TestSubmitInstructionRollsBack(t *testing.T) {
	n := newTestNode(t)
	researcher := testPubkey(3)
	require.NoError(t, n.Fund(researcher, 100_000_000))

	profileAddr, bump, err := n.ProfileAddress(researcher)
	require.NoError(t, err)

	// 错误的bump导致处理失败，账本不留任何痕迹
	data, err := models.EncodeInstruction(&models.CreateResearcherProfileArgs{Name: "bob", PdaBump: bump - 1})
	require.NoError(t, err)

	_, err = n.SubmitInstruction(context.Background(), &program.Invocation{
		Accounts: []program.AccountMeta{
			{Address: researcher, IsSigner: true, IsWritable: true},
			{Address: profileAddr, IsWritable: true},
		},
		Data: data,
	})
	assert.True(t, errors.IsCode(err, "PDA_MISMATCH"))

	_, err = n.GetProfile(profileAddr)
	assert.Error(t, err)

	balance, err := n.GetBalance(researcher)
	require.NoError(t, err)
	assert.Equal(t, uint64(100_000_000), balance)
}

func TestSubmitInstructionCanceledContext(t *testing.T) {
	n := newTestNode(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := n.SubmitInstruction(ctx, &program.Invocation{Data: []byte{0}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSequenceAdvancesPerInstruction(t *testing.T) {
	n := newTestNode(t)

	for i, fill := range []byte{0x11, 0x12, 0x13} {
		researcher := testPubkey(fill)
		require.NoError(t, n.Fund(researcher, 100_000_000))
		result, _, err := submitCreateProfile(t, n, researcher, "r")
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), result.Sequence)
	}

	info := n.GetProgressInfo()
	assert.Equal(t, uint64(3), info["sequence"])
}

func TestDeriveAddresses(t *testing.T) {
	n := newTestNode(t)
	researcher := testPubkey(4)

	addr1, bump1, err := n.ProfileAddress(researcher)
	require.NoError(t, err)
	addr2, bump2, err := n.ProfileAddress(researcher)
	require.NoError(t, err)
	assert.Equal(t, addr1, addr2)
	assert.Equal(t, bump1, bump2)

	// 不同记录类型派生出不同地址
	mintAddr, _, err := n.MintCollectionAddress(researcher)
	require.NoError(t, err)
	assert.NotEqual(t, addr1, mintAddr)
}

func TestFundAndBalance(t *testing.T) {
	n := newTestNode(t)
	addr := testPubkey(5)

	balance, err := n.GetBalance(addr)
	require.NoError(t, err)
	assert.Zero(t, balance)

	require.NoError(t, n.Fund(addr, 500))
	require.NoError(t, n.Fund(addr, 250))

	balance, err = n.GetBalance(addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(750), balance)
}

func TestNewNodeRejectsInvalidConfig(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	dir := t.TempDir()
	out, err := output.NewOutput(filepath.Join(dir, "events"), "json", false)
	require.NoError(t, err)
	defer out.Close()

	valid := func() *config.Config {
		return &config.Config{
			Program: &config.ProgramConfig{
				ProgramID:           testPubkey(0xEE).String(),
				MinApprovals:        1,
				ReputationAuthority: testPubkey(0xAA).String(),
			},
			Ledger: &config.LedgerConfig{
				Backend:      "memory",
				ProgressPath: filepath.Join(dir, "progress.db"),
			},
		}
	}

	// 非法的程序标识
	cfg := valid()
	cfg.Program.ProgramID = "not-base58!"
	_, err = NewNode(cfg, out, logger)
	assert.True(t, errors.IsCode(err, "CONFIG_INVALID"))

	// 发布门槛越界
	cfg = valid()
	cfg.Program.MinApprovals = 0
	_, err = NewNode(cfg, out, logger)
	assert.True(t, errors.IsCode(err, "CONFIG_INVALID"))

	// 未知的账本后端
	cfg = valid()
	cfg.Ledger.Backend = "etcd"
	_, err = NewNode(cfg, out, logger)
	assert.True(t, errors.IsCode(err, "CONFIG_INVALID"))
}

func TestGetStats(t *testing.T) {
	n := newTestNode(t)

	stats := n.GetStats()
	assert.Equal(t, testPubkey(0xEE).String(), stats["program_id"])
	assert.Equal(t, uint8(2), stats["min_approvals"])
	assert.Contains(t, stats, "progress")
	assert.Contains(t, stats, "errors")
	assert.Contains(t, stats, "validation")
}
