package output

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMenageri3/deresearcher-program/pkg/models"
)

func testEvent(eventType models.EventType) *models.Event {
	var programID, signer models.Pubkey
	programID[0] = 1
	signer[0] = 2

	ev := models.NewEvent(eventType, programID, signer)
	ev.Profile = &models.ResearcherProfile{Name: "Test", State: models.ProfileStateApproved}
	return ev
}

func TestEventFileKeysCoverAllTypes(t *testing.T) {
	// 节点产生的每一类事件都必须有归属
	for _, eventType := range []models.EventType{
		models.EventProfileCreated,
		models.EventPaperCreated,
		models.EventPaperPublished,
		models.EventReviewAdded,
		models.EventAccessGranted,
		models.EventReputationAssigned,
	} {
		key, exists := eventFileKeys[eventType]
		assert.True(t, exists, "事件类型 %s 没有映射", eventType)
		_, exists = defaultTopics[key]
		assert.True(t, exists, "类别 %s 没有默认主题", key)
	}
}

func TestFileOutputWriteEvent(t *testing.T) {
	dir := t.TempDir()

	out, err := NewOutput(dir, "json", false)
	require.NoError(t, err)

	require.NoError(t, out.WriteEvent(testEvent(models.EventProfileCreated)))
	require.NoError(t, out.WriteEvent(testEvent(models.EventProfileCreated)))
	require.NoError(t, out.WriteEvent(testEvent(models.EventPaperPublished)))
	require.NoError(t, out.Close())

	// profiles文件两行，papers文件一行
	profileLines := readEventLines(t, dir, "profiles_")
	require.Len(t, profileLines, 2)

	var ev models.Event
	require.NoError(t, json.Unmarshal([]byte(profileLines[0]), &ev))
	assert.Equal(t, models.EventProfileCreated, ev.Type)
	assert.NotEmpty(t, ev.ID)
	require.NotNil(t, ev.Profile)
	assert.Equal(t, "Test", ev.Profile.Name)

	assert.Len(t, readEventLines(t, dir, "papers_"), 1)
	assert.Empty(t, readEventLines(t, dir, "reviews_"))
}

func TestFileOutputNilEvent(t *testing.T) {
	out, err := NewOutput(t.TempDir(), "json", false)
	require.NoError(t, err)
	defer out.Close()

	assert.NoError(t, out.WriteEvent(nil))
}

func TestFileOutputUnknownEventType(t *testing.T) {
	out, err := NewOutput(t.TempDir(), "json", false)
	require.NoError(t, err)
	defer out.Close()

	var programID, signer models.Pubkey
	ev := models.NewEvent(models.EventType("bogus"), programID, signer)
	assert.Error(t, out.WriteEvent(ev))
}

func TestAsyncFileOutput(t *testing.T) {
	dir := t.TempDir()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	out, err := NewAsyncFileOutput(dir, "json", false, logger)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, out.WriteEvent(testEvent(models.EventReviewAdded)))
	}

	// Close会排空通道并刷新所有批次
	require.NoError(t, out.Close())

	assert.Len(t, readEventLines(t, dir, "reviews_"), 10)
}

// readEventLines 读取指定前缀事件文件的全部行
func readEventLines(t *testing.T, dir, prefix string) []string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), prefix) {
			data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
			require.NoError(t, err)

			content := strings.TrimSpace(string(data))
			if content == "" {
				return nil
			}
			return strings.Split(content, "\n")
		}
	}

	t.Fatalf("没有找到前缀为 %s 的事件文件", prefix)
	return nil
}
