package page

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zjuerme/MiniSQL/common"
)

func TestTablePageInsertAndGet(t *testing.T) {
	tp := AsTablePage(NewPage())
	tp.Init()

	assert.Equal(t, common.InvalidPageID, tp.GetNextPageId())

	s0, ok := tp.InsertTuple([]byte("first tuple"))
	require.True(t, ok)
	s1, ok := tp.InsertTuple([]byte("second"))
	require.True(t, ok)
	assert.Equal(t, uint32(0), s0)
	assert.Equal(t, uint32(1), s1)

	got, ok := tp.GetTuple(s0)
	require.True(t, ok)
	assert.Equal(t, []byte("first tuple"), got)
	got, ok = tp.GetTuple(s1)
	require.True(t, ok)
	assert.Equal(t, []byte("second"), got)

	_, ok = tp.GetTuple(7)
	assert.False(t, ok)
}

func TestTablePageFillsUp(t *testing.T) {
	tp := AsTablePage(NewPage())
	tp.Init()

	tuple := bytes.Repeat([]byte{0xAB}, 100)
	inserted := 0
	for {
		if _, ok := tp.InsertTuple(tuple); !ok {
			break
		}
		inserted++
	}
	assert.Greater(t, inserted, 30)

	// Every stored tuple stays readable after the page fills.
	for slot := 0; slot < inserted; slot++ {
		got, ok := tp.GetTuple(uint32(slot))
		require.True(t, ok)
		assert.Equal(t, tuple, got)
	}
}
