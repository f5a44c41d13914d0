package program

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMenageri3/deresearcher-program/internal/errors"
	"github.com/TheMenageri3/deresearcher-program/internal/ledger"
	"github.com/TheMenageri3/deresearcher-program/internal/pda"
	"github.com/TheMenageri3/deresearcher-program/pkg/models"
)

func testPubkey(fill byte) models.Pubkey {
	var p models.Pubkey
	for i := range p {
		p[i] = fill
	}
	return p
}

func testDigest(fill byte) models.Digest {
	var d models.Digest
	for i := range d {
		d[i] = fill
	}
	return d
}

// testEnv 处理器测试环境：内存账本 + 发布门槛为2的策略
type testEnv struct {
	t         *testing.T
	processor *Processor
	ledger    *ledger.MemoryLedger
	programID models.Pubkey
	authority models.Pubkey
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	programID := testPubkey(0xEE)
	authority := testPubkey(0xAA)
	params := Params{
		MinApprovals:              2,
		RequirePublishedForAccess: true,
		ReputationAuthority:       authority,
	}

	return &testEnv{
		t:         t,
		processor: NewProcessor(programID, params, logger),
		ledger:    ledger.NewMemoryLedger(),
		programID: programID,
		authority: authority,
	}
}

// 账户句柄快捷方式
func signer(addr models.Pubkey) AccountMeta {
	return AccountMeta{Address: addr, IsSigner: true, IsWritable: true}
}

func writable(addr models.Pubkey) AccountMeta {
	return AccountMeta{Address: addr, IsWritable: true}
}

func readonly(addr models.Pubkey) AccountMeta {
	return AccountMeta{Address: addr}
}

func (e *testEnv) execute(ix models.Instruction, accounts ...AccountMeta) error {
	data, err := models.EncodeInstruction(ix)
	require.NoError(e.t, err)

	inv := &Invocation{Accounts: accounts, Data: data}
	return e.ledger.Execute(func(host ledger.Host) error {
		return e.processor.Process(host, inv)
	})
}

func (e *testEnv) fund(addr models.Pubkey, amount uint64) {
	require.NoError(e.t, e.ledger.Credit(addr, amount))
}

func (e *testEnv) balance(addr models.Pubkey) uint64 {
	var balance uint64
	require.NoError(e.t, e.ledger.View(func(host ledger.Host) error {
		acc, err := host.Account(addr)
		if err != nil {
			return err
		}
		balance = acc.Balance
		return nil
	}))
	return balance
}

func (e *testEnv) accountData(addr models.Pubkey) []byte {
	var data []byte
	require.NoError(e.t, e.ledger.View(func(host ledger.Host) error {
		acc, err := host.Account(addr)
		if err != nil {
			return err
		}
		data = acc.Data
		return nil
	}))
	return data
}

func (e *testEnv) find(seeds [][]byte) (models.Pubkey, uint8) {
	addr, bump, err := pda.Find(seeds, e.programID)
	require.NoError(e.t, err)
	return addr, bump
}

func (e *testEnv) getProfile(addr models.Pubkey) *models.ResearcherProfile {
	profile, err := models.DecodeResearcherProfile(e.accountData(addr))
	require.NoError(e.t, err)
	return profile
}

func (e *testEnv) getPaper(addr models.Pubkey) *models.ResearchPaper {
	paper, err := models.DecodeResearchPaper(e.accountData(addr))
	require.NoError(e.t, err)
	return paper
}

// createProfile 创建研究者档案并返回档案地址
func (e *testEnv) createProfile(researcher models.Pubkey, name string) models.Pubkey {
	e.fund(researcher, 100_000_000)

	profileAddr, bump := e.find(pda.ResearcherProfileSeeds(researcher))
	err := e.execute(
		&models.CreateResearcherProfileArgs{Name: name, PdaBump: bump},
		signer(researcher), writable(profileAddr),
	)
	require.NoError(e.t, err)
	return profileAddr
}

// assignReputation 以预言机身份评定声誉
func (e *testEnv) assignReputation(profileAddr models.Pubkey, reputation uint8) error {
	return e.execute(
		&models.CheckAndAssignReputationArgs{Reputation: reputation},
		signer(e.authority), writable(profileAddr),
	)
}

// createPaper 创建论文并返回论文地址
func (e *testEnv) createPaper(creator, profileAddr models.Pubkey, contentHash models.Digest, fee uint32) models.Pubkey {
	paperAddr, bump := e.find(pda.ResearchPaperSeeds(contentHash, creator))
	err := e.execute(
		&models.CreateResearchPaperArgs{
			AccessFee:          fee,
			PaperContentHash:   contentHash,
			MetaDataMerkleRoot: testDigest(0x01),
			PdaBump:            bump,
		},
		signer(creator), writable(profileAddr), writable(paperAddr),
	)
	require.NoError(e.t, err)
	return paperAddr
}

// newReviewer 创建一个已批准的评审者，返回其档案地址
func (e *testEnv) newReviewer(reviewer models.Pubkey) models.Pubkey {
	profileAddr := e.createProfile(reviewer, "Reviewer")
	require.NoError(e.t, e.assignReputation(profileAddr, 80))
	return profileAddr
}

// addReview 提交同行评审，四项评分相同
func (e *testEnv) addReview(reviewer, reviewerProfile, paperAddr models.Pubkey, score uint8) error {
	reviewAddr, bump := e.find(pda.PeerReviewSeeds(paperAddr, reviewer))
	return e.execute(
		&models.AddPeerReviewArgs{
			QualityOfResearch:            score,
			PotentialForRealWorldUseCase: score,
			DomainKnowledge:              score,
			PracticalityOfResultObtained: score,
			MetaDataMerkleRoot:           testDigest(0x02),
			PdaBump:                      bump,
		},
		signer(reviewer), writable(reviewerProfile), writable(paperAddr), writable(reviewAddr),
	)
}

func TestCreateResearcherProfile(t *testing.T) {
	e := newTestEnv(t)
	researcher := testPubkey(1)

	profileAddr := e.createProfile(researcher, "Alan Turing")

	profile := e.getProfile(profileAddr)
	assert.Equal(t, "Alan Turing", profile.Name)
	assert.Equal(t, models.ProfileStateAwaitingApproval, profile.State)
	assert.True(t, profile.ResearcherPubkey.Equal(researcher))
	assert.Equal(t, uint64(0), profile.TotalPapersPublished)

	// 创建者被扣除免租最低余额
	assert.Less(t, e.balance(researcher), uint64(100_000_000))
}

func TestCreateResearcherProfileRejections(t *testing.T) {
	e := newTestEnv(t)
	researcher := testPubkey(2)
	e.fund(researcher, 100_000_000)

	profileAddr, bump := e.find(pda.ResearcherProfileSeeds(researcher))
	args := &models.CreateResearcherProfileArgs{Name: "X", PdaBump: bump}

	// 未签名
	err := e.execute(args, readonly(researcher), writable(profileAddr))
	assert.True(t, errors.IsCode(err, "INVALID_SIGNER"))

	// 档案账户未按可写传入
	err = e.execute(args, signer(researcher), readonly(profileAddr))
	assert.True(t, errors.IsCode(err, "IMMUTABLE_ACCOUNT"))

	// 错误的bump
	err = e.execute(
		&models.CreateResearcherProfileArgs{Name: "X", PdaBump: bump - 1},
		signer(researcher), writable(profileAddr),
	)
	assert.True(t, errors.IsCode(err, "PDA_MISMATCH"))

	// 姓名超出64字节容量，且失败后不留下任何账户
	longName := string(make([]byte, 65))
	err = e.execute(
		&models.CreateResearcherProfileArgs{Name: longName, PdaBump: bump},
		signer(researcher), writable(profileAddr),
	)
	assert.True(t, errors.IsCode(err, "SIZE_OVERFLOW"))
	assert.Empty(t, e.accountData(profileAddr))

	// 重复创建
	require.NoError(t, e.execute(args, signer(researcher), writable(profileAddr)))
	err = e.execute(args, signer(researcher), writable(profileAddr))
	assert.True(t, errors.IsCode(err, "PROFILE_ALREADY_EXISTS"))
}

func TestCheckAndAssignReputation(t *testing.T) {
	e := newTestEnv(t)
	researcher := testPubkey(3)
	profileAddr := e.createProfile(researcher, "Rosalind Franklin")

	// 只有预言机能评定
	err := e.execute(
		&models.CheckAndAssignReputationArgs{Reputation: 60},
		signer(testPubkey(4)), writable(profileAddr),
	)
	assert.True(t, errors.IsCode(err, "INVALID_REPUTATION_CHECKER"))

	// 超出声誉上限
	err = e.assignReputation(profileAddr, 101)
	assert.True(t, errors.IsCode(err, "SIZE_OVERFLOW"))

	// 高于评审门槛则批准
	require.NoError(t, e.assignReputation(profileAddr, 60))
	profile := e.getProfile(profileAddr)
	assert.Equal(t, uint8(60), profile.Reputation)
	assert.Equal(t, models.ProfileStateApproved, profile.State)

	// 恰好等于门槛不够，必须严格大于
	require.NoError(t, e.assignReputation(profileAddr, 50))
	profile = e.getProfile(profileAddr)
	assert.Equal(t, models.ProfileStateRejected, profile.State)

	// 预言机可以重新评定
	require.NoError(t, e.assignReputation(profileAddr, 90))
	assert.Equal(t, models.ProfileStateApproved, e.getProfile(profileAddr).State)
}

func TestCreateResearchPaper(t *testing.T) {
	e := newTestEnv(t)
	creator := testPubkey(5)
	profileAddr := e.createProfile(creator, "Katherine Johnson")

	paperAddr := e.createPaper(creator, profileAddr, testDigest(0x10), 2000)

	paper := e.getPaper(paperAddr)
	assert.Equal(t, models.PaperStateAwaitingPeerReview, paper.State)
	// 初始版本号为0
	assert.Equal(t, uint8(0), paper.Version)
	assert.Equal(t, uint32(2000), paper.AccessFee)
	assert.True(t, paper.CreatorPubkey.Equal(creator))

	// 发表计数写回到创建者档案
	assert.Equal(t, uint64(1), e.getProfile(profileAddr).TotalPapersPublished)

	// 同一内容哈希不能重复创建
	_, bump := e.find(pda.ResearchPaperSeeds(testDigest(0x10), creator))
	err := e.execute(
		&models.CreateResearchPaperArgs{
			PaperContentHash: testDigest(0x10),
			PdaBump:          bump,
		},
		signer(creator), writable(profileAddr), writable(paperAddr),
	)
	assert.True(t, errors.IsCode(err, "PAPER_ALREADY_EXISTS"))
}

func TestCreateResearchPaperWrongProfile(t *testing.T) {
	e := newTestEnv(t)
	creator := testPubkey(6)
	other := testPubkey(7)
	otherProfile := e.createProfile(other, "Other")
	e.fund(creator, 100_000_000)

	// 用别人的档案创建论文
	paperAddr, bump := e.find(pda.ResearchPaperSeeds(testDigest(0x11), creator))
	err := e.execute(
		&models.CreateResearchPaperArgs{
			PaperContentHash: testDigest(0x11),
			PdaBump:          bump,
		},
		signer(creator), writable(otherProfile), writable(paperAddr),
	)
	assert.True(t, errors.IsCode(err, "PUBKEY_MISMATCH"))
}

func TestAddPeerReviewLifecycle(t *testing.T) {
	e := newTestEnv(t)
	creator := testPubkey(8)
	creatorProfile := e.createProfile(creator, "Creator")
	paperAddr := e.createPaper(creator, creatorProfile, testDigest(0x12), 0)

	reviewer1 := testPubkey(9)
	reviewer1Profile := e.newReviewer(reviewer1)

	// 第一条高分评审：进入评审中，通过数1
	require.NoError(t, e.addReview(reviewer1, reviewer1Profile, paperAddr, 80))

	paper := e.getPaper(paperAddr)
	assert.Equal(t, models.PaperStateInPeerReview, paper.State)
	assert.Equal(t, uint8(1), paper.TotalApprovals)
	assert.Equal(t, uint64(1), paper.TotalCitations)
	assert.Equal(t, uint64(1), e.getProfile(reviewer1Profile).TotalReviews)

	// 同一评审人不能重复评审
	err := e.addReview(reviewer1, reviewer1Profile, paperAddr, 90)
	assert.True(t, errors.IsCode(err, "PEER_REVIEW_ALREADY_EXISTS"))

	// 第二条高分评审：达到发布门槛
	reviewer2 := testPubkey(10)
	reviewer2Profile := e.newReviewer(reviewer2)
	require.NoError(t, e.addReview(reviewer2, reviewer2Profile, paperAddr, 75))

	paper = e.getPaper(paperAddr)
	assert.Equal(t, models.PaperStateApprovedToPublish, paper.State)
	assert.Equal(t, uint8(2), paper.TotalApprovals)

	// 评审记录本身不可再变，内容与提交一致
	reviewAddr, _ := e.find(pda.PeerReviewSeeds(paperAddr, reviewer1))
	review, err := models.DecodePeerReview(e.accountData(reviewAddr))
	require.NoError(t, err)
	assert.Equal(t, uint8(80), review.QualityOfResearch)
	assert.True(t, review.PaperPubkey.Equal(paperAddr))
}

func TestAddPeerReviewAverageCutoff(t *testing.T) {
	e := newTestEnv(t)
	creator := testPubkey(11)
	creatorProfile := e.createProfile(creator, "Creator")
	paperAddr := e.createPaper(creator, creatorProfile, testDigest(0x13), 0)

	// 平均分恰好50不计入通过（门槛是严格大于）
	reviewer := testPubkey(12)
	reviewerProfile := e.newReviewer(reviewer)
	require.NoError(t, e.addReview(reviewer, reviewerProfile, paperAddr, 50))

	paper := e.getPaper(paperAddr)
	assert.Equal(t, uint8(0), paper.TotalApprovals)
	assert.Equal(t, models.PaperStateInPeerReview, paper.State)
	assert.Equal(t, uint64(1), paper.TotalCitations)
}

func TestAddPeerReviewRejections(t *testing.T) {
	e := newTestEnv(t)
	creator := testPubkey(13)
	creatorProfile := e.createProfile(creator, "Creator")
	require.NoError(t, e.assignReputation(creatorProfile, 80))
	paperAddr := e.createPaper(creator, creatorProfile, testDigest(0x14), 0)

	// 未批准的档案不能评审
	pending := testPubkey(14)
	pendingProfile := e.createProfile(pending, "Pending")
	err := e.addReview(pending, pendingProfile, paperAddr, 80)
	assert.True(t, errors.IsCode(err, "NOT_ALLOWED_FOR_PEER_REVIEW"))

	// 作者不能评审自己的论文
	err = e.addReview(creator, creatorProfile, paperAddr, 80)
	assert.True(t, errors.IsCode(err, "PUBLISHER_CANNOT_ADD_PEER_REVIEW"))

	// 单项评分超出上限
	reviewer := testPubkey(15)
	reviewerProfile := e.newReviewer(reviewer)
	err = e.addReview(reviewer, reviewerProfile, paperAddr, 101)
	assert.True(t, errors.IsCode(err, "SIZE_OVERFLOW"))

	// 失败的评审不留任何痕迹
	paper := e.getPaper(paperAddr)
	assert.Equal(t, uint64(0), paper.TotalCitations)
	assert.Equal(t, uint8(0), paper.TotalApprovals)
}

func TestPublishPaper(t *testing.T) {
	e := newTestEnv(t)
	creator := testPubkey(16)
	creatorProfile := e.createProfile(creator, "Creator")
	paperAddr := e.createPaper(creator, creatorProfile, testDigest(0x15), 0)

	// 通过数不足：先报NOT_ENOUGH_APPROVALS
	err := e.execute(&models.PublishPaperArgs{}, signer(creator), writable(paperAddr))
	assert.True(t, errors.IsCode(err, "NOT_ENOUGH_APPROVALS"))

	// 攒够两条高分评审
	for i, fill := range []byte{17, 18} {
		reviewer := testPubkey(fill)
		reviewerProfile := e.newReviewer(reviewer)
		require.NoError(t, e.addReview(reviewer, reviewerProfile, paperAddr, 80), "reviewer %d", i)
	}

	// 非创建者不能发布
	err = e.execute(&models.PublishPaperArgs{}, signer(testPubkey(19)), writable(paperAddr))
	assert.True(t, errors.IsCode(err, "PUBKEY_MISMATCH"))

	require.NoError(t, e.execute(&models.PublishPaperArgs{}, signer(creator), writable(paperAddr)))
	assert.Equal(t, models.PaperStatePublished, e.getPaper(paperAddr).State)
}

// publishTestPaper 建好一篇已发布的论文
func (e *testEnv) publishTestPaper(creator models.Pubkey, fee uint32) (creatorProfile, paperAddr models.Pubkey) {
	creatorProfile = e.createProfile(creator, "Creator")
	paperAddr = e.createPaper(creator, creatorProfile, testDigest(0x16), fee)

	for _, fill := range []byte{0xB1, 0xB2} {
		reviewer := testPubkey(fill)
		reviewerProfile := e.newReviewer(reviewer)
		require.NoError(e.t, e.addReview(reviewer, reviewerProfile, paperAddr, 80))
	}
	require.NoError(e.t, e.execute(&models.PublishPaperArgs{}, signer(creator), writable(paperAddr)))
	return creatorProfile, paperAddr
}

func TestGetAccessToPaper(t *testing.T) {
	e := newTestEnv(t)
	creator := testPubkey(20)
	_, paperAddr := e.publishTestPaper(creator, 2000)

	reader := testPubkey(21)
	readerProfile := e.createProfile(reader, "Reader")
	mintAddr, bump := e.find(pda.MintCollectionSeeds(reader))

	creatorBalanceBefore := e.balance(creator)
	args := &models.GetAccessToPaperArgs{MetaDataMerkleRoot: testDigest(0x30), PdaBump: bump}

	require.NoError(t, e.execute(args,
		signer(reader), writable(readerProfile), writable(mintAddr),
		writable(paperAddr), writable(creator),
	))

	// 访问费转给创建者
	assert.Equal(t, creatorBalanceBefore+2000, e.balance(creator))

	// 铸造记录创建并携带本次摘要
	mint, err := models.DecodeResearchMintCollection(e.accountData(mintAddr))
	require.NoError(t, err)
	assert.True(t, mint.ReaderPubkey.Equal(reader))
	assert.Equal(t, testDigest(0x30), mint.DataMerkleRoot)

	paper := e.getPaper(paperAddr)
	assert.Equal(t, uint64(1), paper.TotalMints)
	assert.Equal(t, uint64(1), e.getProfile(readerProfile).TotalCitations)

	// 重复访问：刷新摘要、再次收费，但bump保持首次创建时的值
	require.NoError(t, e.execute(
		&models.GetAccessToPaperArgs{MetaDataMerkleRoot: testDigest(0x31), PdaBump: bump},
		signer(reader), writable(readerProfile), writable(mintAddr),
		writable(paperAddr), writable(creator),
	))

	mint, err = models.DecodeResearchMintCollection(e.accountData(mintAddr))
	require.NoError(t, err)
	assert.Equal(t, testDigest(0x31), mint.DataMerkleRoot)
	assert.Equal(t, bump, mint.Bump)
	assert.Equal(t, creatorBalanceBefore+4000, e.balance(creator))
	assert.Equal(t, uint64(2), e.getPaper(paperAddr).TotalMints)
}

func TestGetAccessToPaperRejections(t *testing.T) {
	e := newTestEnv(t)
	creator := testPubkey(22)
	creatorProfile := e.createProfile(creator, "Creator")
	paperAddr := e.createPaper(creator, creatorProfile, testDigest(0x17), 2000)

	reader := testPubkey(23)
	readerProfile := e.createProfile(reader, "Reader")
	mintAddr, bump := e.find(pda.MintCollectionSeeds(reader))
	args := &models.GetAccessToPaperArgs{MetaDataMerkleRoot: testDigest(0x32), PdaBump: bump}

	// 费用接收方必须是论文创建者
	err := e.execute(args,
		signer(reader), writable(readerProfile), writable(mintAddr),
		writable(paperAddr), writable(testPubkey(24)),
	)
	assert.True(t, errors.IsCode(err, "INVALID_FEE_RECEIVER"))

	// 未发布的论文不可访问
	err = e.execute(args,
		signer(reader), writable(readerProfile), writable(mintAddr),
		writable(paperAddr), writable(creator),
	)
	assert.True(t, errors.IsCode(err, "INVALID_STATE"))

	// 两次失败都不留下铸造记录，论文计数也不变
	assert.Empty(t, e.accountData(mintAddr))
	paper := e.getPaper(paperAddr)
	assert.Equal(t, uint64(0), paper.TotalMints)
	assert.Equal(t, uint64(0), paper.TotalCitations)
}

func TestProcessUnknownInstruction(t *testing.T) {
	e := newTestEnv(t)
	err := e.ledger.Execute(func(host ledger.Host) error {
		return e.processor.Process(host, &Invocation{Data: []byte{0xFF}})
	})
	assert.True(t, errors.IsCode(err, "INVALID_INSTRUCTION"))
}
