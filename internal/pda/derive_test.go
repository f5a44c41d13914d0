package pda

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMenageri3/deresearcher-program/internal/errors"
	"github.com/TheMenageri3/deresearcher-program/pkg/models"
)

func testPubkey(fill byte) models.Pubkey {
	var p models.Pubkey
	for i := range p {
		p[i] = fill
	}
	return p
}

func TestFindIsDeterministic(t *testing.T) {
	programID := testPubkey(1)
	seeds := ResearcherProfileSeeds(testPubkey(2))

	addr1, bump1, err := Find(seeds, programID)
	require.NoError(t, err)

	addr2, bump2, err := Find(seeds, programID)
	require.NoError(t, err)

	assert.Equal(t, addr1, addr2)
	assert.Equal(t, bump1, bump2)

	// bump从255向下搜索，结果可以用Create重现
	recreated, err := Create(seeds, bump1, programID)
	require.NoError(t, err)
	assert.Equal(t, addr1, recreated)
}

func TestFindDiffersByProgramAndSeeds(t *testing.T) {
	seeds := ResearcherProfileSeeds(testPubkey(2))

	addr1, _, err := Find(seeds, testPubkey(1))
	require.NoError(t, err)
	addr2, _, err := Find(seeds, testPubkey(3))
	require.NoError(t, err)
	assert.NotEqual(t, addr1, addr2)

	addr3, _, err := Find(ResearcherProfileSeeds(testPubkey(4)), testPubkey(1))
	require.NoError(t, err)
	assert.NotEqual(t, addr1, addr3)
}

func TestValidate(t *testing.T) {
	programID := testPubkey(1)
	seeds := MintCollectionSeeds(testPubkey(5))

	addr, bump, err := Find(seeds, programID)
	require.NoError(t, err)

	require.NoError(t, Validate(seeds, bump, programID, addr))

	// 错误的bump或错误的地址都必须被拒绝
	err = Validate(seeds, bump-1, programID, addr)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, "PDA_MISMATCH"))

	err = Validate(seeds, bump, programID, testPubkey(6))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, "PDA_MISMATCH"))
}

func TestCreateRejectsOversizedSeed(t *testing.T) {
	programID := testPubkey(1)

	_, err := Create([][]byte{make([]byte, maxSeedLen+1)}, 255, programID)
	assert.Error(t, err)

	tooMany := make([][]byte, maxSeeds+1)
	for i := range tooMany {
		tooMany[i] = []byte{byte(i)}
	}
	_, err = Create(tooMany, 255, programID)
	assert.Error(t, err)
}

func TestSeedHelpers(t *testing.T) {
	researcher := testPubkey(7)
	creator := testPubkey(8)
	var contentHash models.Digest
	for i := range contentHash {
		contentHash[i] = byte(i)
	}

	seeds := ResearcherProfileSeeds(researcher)
	require.Len(t, seeds, 2)
	assert.Equal(t, []byte(ResearcherProfileSeed), seeds[0])

	// 论文种子只取内容哈希前32字节
	seeds = ResearchPaperSeeds(contentHash, creator)
	require.Len(t, seeds, 3)
	assert.Len(t, seeds[1], maxSeedLen)
	assert.True(t, bytes.Equal(contentHash[:maxSeedLen], seeds[1]))

	seeds = PeerReviewSeeds(testPubkey(9), testPubkey(10))
	require.Len(t, seeds, 3)

	seeds = MintCollectionSeeds(testPubkey(11))
	require.Len(t, seeds, 2)

	// 所有种子都不超过单种子长度上限
	for _, group := range [][][]byte{
		ResearcherProfileSeeds(researcher),
		ResearchPaperSeeds(contentHash, creator),
		PeerReviewSeeds(testPubkey(9), testPubkey(10)),
		MintCollectionSeeds(testPubkey(11)),
	} {
		for _, seed := range group {
			assert.LessOrEqual(t, len(seed), maxSeedLen)
		}
	}
}
