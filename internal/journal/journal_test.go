package journal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ctoken/internal/address"
	"ctoken/internal/proof"
)

func openMem(t *testing.T) *Journal {
	j, err := Open("", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestPutGet(t *testing.T) {
	j := openMem(t)
	r := &Record{
		OperationID: NewOperationID(),
		Label:       "withdraw",
		State:       "contexts_ready",
		Authority:   address.FromSeed("authority"),
		Contexts: []Context{
			{Kind: proof.KindEquality, Address: address.FromSeed("eq"), Status: "created"},
			{Kind: proof.KindRange, Address: address.FromSeed("range"), Status: "created"},
		},
	}
	require.NoError(t, j.Put(r))

	got, err := j.Get(r.OperationID)
	require.NoError(t, err)
	assert.Equal(t, r.Contexts, got.Contexts)
	assert.Equal(t, r.Authority, got.Authority)
	assert.False(t, got.Updated().IsZero())

	require.NoError(t, j.Delete(r.OperationID))
	_, err = j.Get(r.OperationID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, j.Put(&Record{}))
}

func TestUnfinished(t *testing.T) {
	j := openMem(t)
	mine, other := address.FromSeed("mine"), address.FromSeed("other")
	open := &Record{OperationID: "a", Authority: mine}
	done := &Record{OperationID: "b", Authority: mine, Finished: true}
	foreign := &Record{OperationID: "c", Authority: other}
	for _, r := range []*Record{open, done, foreign} {
		require.NoError(t, j.Put(r))
	}

	got, err := j.Unfinished(mine)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].OperationID)
}

func TestPrune(t *testing.T) {
	j := openMem(t)
	require.NoError(t, j.Put(&Record{OperationID: "done", Finished: true}))
	require.NoError(t, j.Put(&Record{OperationID: "open"}))

	n, err := j.Prune(time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = j.Get("done")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = j.Get("open")
	assert.NoError(t, err)
}
