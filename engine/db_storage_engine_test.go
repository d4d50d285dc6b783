package engine

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zjuerme/MiniSQL/common"
	"github.com/zjuerme/MiniSQL/conf"
	"github.com/zjuerme/MiniSQL/record"
)

func testCfg(t *testing.T) *conf.Cfg {
	t.Helper()
	cfg := conf.NewCfg()
	cfg.DataFile = filepath.Join(t.TempDir(), "engine.db")
	cfg.BufferPoolPages = 64
	return cfg
}

func TestEngineOpenCloseReopen(t *testing.T) {
	cfg := testCfg(t)

	db, err := Open(cfg)
	require.NoError(t, err)

	schema := record.NewSchema([]*record.Column{
		record.NewColumn("id", record.TypeInt, 0, false),
	})
	info, err := db.Catalog.CreateTable("accounts", schema, nil)
	require.NoError(t, err)

	idx, err := db.Catalog.CreateIndex("accounts", "idx_id", []string{"id"}, nil)
	require.NoError(t, err)

	row := record.NewRow([]*record.Field{record.NewIntField(1)})
	rid, err := info.Heap.InsertTuple(row, nil)
	require.NoError(t, err)
	require.NoError(t, idx.Index.InsertEntry(row, rid, nil))

	require.NoError(t, db.Close())

	// Everything comes back across a restart.
	db, err = Open(cfg)
	require.NoError(t, err)
	defer db.Close()

	info, err = db.Catalog.GetTable("accounts")
	require.NoError(t, err)
	got, err := info.Heap.GetTuple(rid, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), got.GetField(0).Int)

	idx, err = db.Catalog.GetIndex("accounts", "idx_id")
	require.NoError(t, err)
	keyRow := record.NewRow([]*record.Field{record.NewIntField(1)})
	rids, err := idx.Index.ScanKey(keyRow, common.CmpEqual, nil)
	require.NoError(t, err)
	require.Len(t, rids, 1)
	assert.Equal(t, rid, rids[0])
}
