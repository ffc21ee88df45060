package wal

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldra/versadb/internal/txn"
	"github.com/veldra/versadb/internal/undo"
)

func TestSerializerDiskWriter_FlushMarksLogProcessedAndFiresCallback(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "wal-*.log")
	require.NoError(t, err)
	defer f.Close()

	dw := NewDiskWriter(f, nil, DefaultPersistInterval, DefaultPersistThresholdBytes, DefaultNumLogBuffers)
	ser := NewSerializer(dw, nil, DefaultSerializationInterval)

	mgr := txn.NewManager(ser, nil)
	tx := mgr.Begin()

	// A fake undo record, so ReadOnly() is false and Commit takes the
	// logging path instead of the read-only fast path.
	tx.Undo.Append(undo.NewRecord(undo.Insert, tx.TxnID, nil, 0, nil, tx.AbortedFlag()))
	tx.Redo.Write(EncodeRedo(tx.TxnID, 1, 1, 0, nil))

	var fired bool
	mgr.Commit(tx, func() { fired = true })

	ser.DrainOnce()
	dw.FlushOnce()

	assert.True(t, fired)
	assert.True(t, tx.LogProcessed())

	info, err := f.Stat()
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestDiskWriter_SubmitBlocksAtRingCapacityUntilFlushed(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "wal-*.log")
	require.NoError(t, err)
	defer f.Close()

	const capacity = 2
	dw := NewDiskWriter(f, nil, DefaultPersistInterval, DefaultPersistThresholdBytes, capacity)

	// Fill the ring to capacity: these must not block.
	dw.Submit([]byte("a"), nil)
	dw.Submit([]byte("b"), nil)

	submitted := make(chan struct{})
	go func() {
		dw.Submit([]byte("c"), nil) // must block: ring is at capacity
		close(submitted)
	}()

	select {
	case <-submitted:
		t.Fatal("Submit returned before a ring slot was freed")
	case <-time.After(20 * time.Millisecond):
	}

	dw.FlushOnce() // drains the two queued batches, freeing their ring slots

	select {
	case <-submitted:
	case <-time.After(time.Second):
		t.Fatal("Submit never unblocked after FlushOnce freed a slot")
	}
}

func TestSerializerDiskWriter_ReadOnlyCommitNeverTouchesLog(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "wal-*.log")
	require.NoError(t, err)
	defer f.Close()

	dw := NewDiskWriter(f, nil, DefaultPersistInterval, DefaultPersistThresholdBytes, DefaultNumLogBuffers)
	ser := NewSerializer(dw, nil, DefaultSerializationInterval)

	mgr := txn.NewManager(ser, nil)
	tx := mgr.Begin()

	var fired bool
	mgr.Commit(tx, func() { fired = true })

	assert.True(t, fired)
	assert.True(t, tx.LogProcessed())

	ser.DrainOnce()
	dw.FlushOnce()

	info, err := f.Stat()
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}
