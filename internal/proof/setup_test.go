package proof

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rawKey []byte

func (k rawKey) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(k)
	return int64(n), err
}

type brokenKey struct{}

func (brokenKey) WriteTo(io.Writer) (int64, error) {
	return 0, errors.New("disk gone")
}

func TestWriteKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "range_withdraw.vk")

	require.NoError(t, writeKey(path, "verifying key", rawKey("vk-bytes")))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("vk-bytes"), got)

	err = writeKey(path, "verifying key", brokenKey{})
	assert.ErrorContains(t, err, "write verifying key")

	err = writeKey(filepath.Join(dir, "missing", "k.pk"), "proving key", rawKey("x"))
	assert.ErrorContains(t, err, "create proving key")
}

func TestWriteKeyReportsDeviceErrors(t *testing.T) {
	if _, err := os.Stat("/dev/full"); err != nil {
		t.Skip("no /dev/full")
	}
	err := writeKey("/dev/full", "proving key", rawKey(bytes.Repeat([]byte{1}, 4096)))
	assert.Error(t, err)
}

func TestKeyFingerprint(t *testing.T) {
	a, err := KeyFingerprint(rawKey("one"))
	require.NoError(t, err)
	b, err := KeyFingerprint(rawKey("one"))
	require.NoError(t, err)
	c, err := KeyFingerprint(rawKey("two"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)

	_, err = KeyFingerprint(brokenKey{})
	assert.Error(t, err)
}

func TestMatchFingerprints(t *testing.T) {
	local := map[RangeLayout]string{WithdrawRange: "aa", TransferRange: "bb"}

	assert.NoError(t, MatchFingerprints(local, map[RangeLayout]string{WithdrawRange: "aa", TransferRange: "bb"}))

	err := MatchFingerprints(local, map[RangeLayout]string{WithdrawRange: "aa", TransferRange: "cc"})
	assert.ErrorIs(t, err, ErrKeyMismatch)
	assert.ErrorContains(t, err, "transfer")
	assert.NotContains(t, err.Error(), "withdraw")

	err = MatchFingerprints(local, nil)
	assert.ErrorIs(t, err, ErrKeyMismatch)
	assert.ErrorContains(t, err, "[transfer withdraw]")
}
