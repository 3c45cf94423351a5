package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcriess/clubchat/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type TestModel struct {
	gorm.Model
	Reactions types.ReactionMap
	ReadBy    types.ReadSet
}

func TestJSONColumns(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Migrator().AutoMigrate(&TestModel{}))

	at := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	m := TestModel{
		Reactions: types.ReactionMap{"p1": "👍", "p2": "🎉"},
		ReadBy:    types.ReadSet{"p1": at},
	}
	require.NoError(t, db.Create(&m).Error)

	loaded := TestModel{}
	require.NoError(t, db.First(&loaded, m.ID).Error)
	assert.Equal(t, m.Reactions, loaded.Reactions)
	assert.True(t, loaded.ReadBy["p1"].Equal(at))

	// nil maps are stored as empty objects
	empty := TestModel{}
	require.NoError(t, db.Create(&empty).Error)
	reloaded := TestModel{}
	require.NoError(t, db.First(&reloaded, empty.ID).Error)
	assert.Empty(t, reloaded.Reactions)
	assert.NotNil(t, reloaded.Reactions)
}
