package ledger

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctoken/internal/address"
	"ctoken/internal/signer"
	"ctoken/internal/token"
)

func TestTransactionSigning(t *testing.T) {
	payer, err := signer.NewEd448()
	require.NoError(t, err)
	owner, err := signer.NewEd448()
	require.NoError(t, err)

	anchor := Anchor{Slot: 3}
	anchor.Hash[0] = 9
	ix := token.Deposit(address.FromSeed("acct"), address.FromSeed("mint"), owner.Address(), 10, 0)

	tx, err := NewTransaction(anchor, payer, []token.Instruction{ix}, owner, payer)
	require.NoError(t, err)
	assert.Len(t, tx.Signatures, 2)

	signed, err := tx.VerifySignatures()
	require.NoError(t, err)
	assert.True(t, signed[payer.Address()])
	assert.True(t, signed[owner.Address()])

	id1, err := tx.ID()
	require.NoError(t, err)
	raw, err := tx.Encode()
	require.NoError(t, err)
	back, err := DecodeTransaction(raw)
	require.NoError(t, err)
	id2, err := back.ID()
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	_, err = back.VerifySignatures()
	require.NoError(t, err)

	t.Run("tampered", func(t *testing.T) {
		bad, err := DecodeTransaction(raw)
		require.NoError(t, err)
		bad.Message.Anchor.Slot++
		_, err = bad.VerifySignatures()
		assert.Equal(t, CodeInvalidSignature, RejectionCode(err))
	})
	t.Run("fee payer must sign", func(t *testing.T) {
		bad, err := NewTransaction(anchor, payer, []token.Instruction{ix}, owner)
		require.NoError(t, err)
		bad.Signatures = bad.Signatures[1:]
		_, err = bad.VerifySignatures()
		assert.Equal(t, CodeMissingSignature, RejectionCode(err))
	})
}

func TestTxError(t *testing.T) {
	err := errors.Wrap(Reject(CodeStaleCiphertext, 0, "available changed"), "withdraw")
	assert.True(t, errors.Is(err, ErrTransactionRejected))
	assert.Equal(t, CodeStaleCiphertext, RejectionCode(err))
	assert.Contains(t, err.Error(), "instruction 0")
	assert.Equal(t, Code(""), RejectionCode(errors.New("other")))
}

func TestStatus(t *testing.T) {
	assert.False(t, StatusUnknown.Final())
	for _, s := range []Status{StatusConfirmed, StatusFailed, StatusExpired} {
		assert.True(t, s.Final(), s.String())
	}
}

func TestParseAnchorAndStatus(t *testing.T) {
	a := Anchor{Slot: 42}
	a.Hash[0], a.Hash[31] = 7, 9
	parsed, err := ParseAnchor(a.String())
	require.NoError(t, err)
	assert.Equal(t, a, parsed)

	for _, bad := range []string{"", "abc", "abc@1", a.String() + "x"} {
		_, err := ParseAnchor(bad)
		assert.Error(t, err, bad)
	}

	for _, s := range []Status{StatusUnknown, StatusConfirmed, StatusFailed, StatusExpired} {
		parsed, err := ParseStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	_, err = ParseStatus("landed")
	assert.Error(t, err)
}
