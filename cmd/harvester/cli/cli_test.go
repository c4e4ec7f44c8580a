package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harvester-dev/harvester/internal/model"
	"github.com/harvester-dev/harvester/internal/store"
)

func execCmd(t *testing.T, args ...string) string {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func seedStore(t *testing.T, root, platform string) {
	t.Helper()
	s := store.New(root, platform)
	conv := model.Conversation{
		ID:       "c1",
		Platform: platform,
		Title:    "design chat",
		Messages: []model.Message{
			{Role: model.RoleUser, Content: "let's talk about the launch plan", Timestamp: time.Now()},
			{Role: model.RoleAssistant, Content: "sounds good", Timestamp: time.Now()},
		},
	}
	require.NoError(t, s.WriteConversation(conv))
	idx := store.Index{}
	idx.UpsertIndexEntry(conv.ToIndexEntry())
	require.NoError(t, s.WriteIndex(idx))
}

func TestRootCmd_HelpListsCoreCommands(t *testing.T) {
	out := execCmd(t)
	assert.Contains(t, out, "harvester history scan")
	assert.Contains(t, out, "harvester search")
}

func TestVersionCmd_PrintsVersion(t *testing.T) {
	out := execCmd(t, "version")
	assert.Contains(t, out, "harvester")
}

func TestListCmd_ReportsSeededConversation(t *testing.T) {
	root := t.TempDir()
	seedStore(t, root, "wechat")

	out := execCmd(t, "list", "--root", root, "--platform", "wechat")
	assert.Contains(t, out, "c1")
	assert.Contains(t, out, "1 conversation(s)")
}

func TestStatsCmd_SummarizesStore(t *testing.T) {
	root := t.TempDir()
	seedStore(t, root, "wechat")

	out := execCmd(t, "stats", "--root", root, "--platform", "wechat")
	assert.Contains(t, out, "conversations:     1")
	assert.Contains(t, out, "total messages:    2")
}

func TestSearchCmd_LinearScanFindsANDMatch(t *testing.T) {
	root := t.TempDir()
	seedStore(t, root, "wechat")

	out := execCmd(t, "search", "--root", root, "--platform", "wechat", "--use-index=false", "launch", "plan")
	assert.Contains(t, out, "c1[0]")
	assert.Contains(t, out, "1 match(es)")
}

func TestSearchCmd_NoMatchReportsZero(t *testing.T) {
	root := t.TempDir()
	seedStore(t, root, "wechat")

	out := execCmd(t, "search", "--root", root, "--platform", "wechat", "--use-index=false", "nonexistent")
	assert.Contains(t, out, "0 match(es)")
}
