package migrate

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverUpMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_history_up.sql":   {Data: []byte("SELECT 2")},
		"0001_init_up.sql":      {Data: []byte("SELECT 1")},
		"0001_init_down.sql":    {Data: []byte("DROP")},
		"notes_up.sql":          {Data: []byte("-- 无版本前缀")},
		"README.md":             {Data: []byte("")},
		"sub/0010_extra_up.sql": {Data: []byte("SELECT 10")},
	}
	files, err := discoverUpMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, []int64{1, 2, 10}, []int64{files[0].Version, files[1].Version, files[2].Version})
	assert.Equal(t, "sub/0010_extra_up.sql", files[2].Path)
}

func TestUpRequiresDir(t *testing.T) {
	assert.ErrorIs(t, Runner{}.Up(context.Background(), nil), ErrNoDir)
}
