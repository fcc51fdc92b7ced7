package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"CommentThread/internal/models"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Flags live on the global pflag set, so loadConfig runs once per process.
func TestLoadConfig_SetFlagsWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
client:
  base_url: "http://comments.local"
  user_id: from-file
`), 0o600))

	args := os.Args
	t.Cleanup(func() { os.Args = args })
	os.Args = []string{"threadctl", "--config", path, "-p", "p1", "--user", "u9", "list"}

	cfg, settings, err := loadConfig()
	require.NoError(t, err)

	assert.Equal(t, "p1", cfg.GetString("threadctl.post"))
	assert.Equal(t, 1, cfg.GetInt("threadctl.pages"))
	assert.Equal(t, "u9", settings.Client.UserID)
	assert.Equal(t, "debug", settings.LogLevel, "unset flag leaves the file value")
	assert.Equal(t, "http://comments.local", settings.Client.BaseURL)
	assert.Equal(t, 20, settings.Comments.PageSize)
	assert.Equal(t, []string{"list"}, pflag.Args())
}

func TestPrintTree(t *testing.T) {
	nodes := []*models.CommentNode{{
		ID: "a", Author: models.CommentAuthor{DisplayName: "ann"}, Content: "hi", LikesCount: 2, IsLiked: true,
		Replies: []*models.CommentNode{{
			ID: "b", Author: models.CommentAuthor{DisplayName: "bob"}, Depth: 1, IsDeleted: true,
			Replies: []*models.CommentNode{},
		}},
	}}

	var buf bytes.Buffer
	printTree(&buf, nodes)

	assert.Equal(t, "- a  ann: hi  [2 likes (liked)]\n  - b  bob: [deleted]  [0 likes]\n", buf.String())
}
