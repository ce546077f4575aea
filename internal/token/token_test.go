package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctoken/internal/address"
	"ctoken/internal/elgamal"
)

func TestAmountScaling(t *testing.T) {
	tests := []struct {
		ui       string
		decimals uint8
		want     uint64
		wantErr  bool
	}{
		{"1", 0, 1, false},
		{"12.5", 2, 1250, false},
		{"0.000001", 6, 1, false},
		{"1.2345", 2, 0, true},
		{"-3", 0, 0, true},
		{"abc", 2, 0, true},
		{"18446744073709551616", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.ui, func(t *testing.T) {
			got, err := ToBaseUnits(tt.ui, tt.decimals)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "12.50", FromBaseUnits(1250, 2))
	assert.Equal(t, "7", FromBaseUnits(7, 0))
}

func TestInstructionData(t *testing.T) {
	account := address.FromSeed("acct")
	mint := address.FromSeed("mint")
	owner := address.FromSeed("owner")

	ix := Deposit(account, mint, owner, 500, 2)
	assert.Equal(t, ProgramID, ix.Program)
	assert.Equal(t, OpDeposit, ix.Op)
	require.Len(t, ix.Accounts, 3)
	assert.True(t, ix.Accounts[2].Signer)
	assert.True(t, ix.Accounts[0].Writable)

	data, err := DecodeData[DepositData](ix)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), data.Amount)
	assert.Equal(t, uint8(2), data.Decimals)

	_, err = ix.Account(3)
	assert.ErrorIs(t, err, ErrInvalidInstruction)
}

func TestStateCodec(t *testing.T) {
	kp, err := elgamal.NewKeypair()
	require.NoError(t, err)
	ct, _, err := elgamal.Encrypt(kp.Public, 12)
	require.NoError(t, err)

	s := &State{Kind: StateAccount, Account: &Account{
		Mint:  address.FromSeed("mint"),
		Owner: address.FromSeed("owner"),
		Confidential: &ConfidentialExtension{
			Pubkey:            kp.Public,
			Available:         ct,
			MaxPendingCounter: 8,
		},
	}}
	raw, err := s.Encode()
	require.NoError(t, err)

	acc, err := DecodeAccount(raw)
	require.NoError(t, err)
	require.NotNil(t, acc.Confidential)
	assert.True(t, acc.Confidential.Pubkey.Equal(kp.Public))
	assert.True(t, acc.Confidential.Available.Equal(ct))
	assert.True(t, acc.Confidential.PendingLo.Equal(elgamal.ZeroCiphertext()))

	_, err = DecodeMint(raw)
	assert.ErrorIs(t, err, ErrWrongState)
}
