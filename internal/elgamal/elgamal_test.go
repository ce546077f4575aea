package elgamal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt(t *testing.T) {
	kp, err := NewKeypair()
	require.NoError(t, err)

	for _, amount := range []uint64{0, 1, 65535, 65536, 1_000_000, DiscreteLogBound - 1} {
		ct, _, err := Encrypt(kp.Public, amount)
		require.NoError(t, err)
		got, err := kp.Secret.Decrypt(ct)
		require.NoError(t, err)
		assert.Equal(t, amount, got)
	}
}

func TestDecryptOutOfRange(t *testing.T) {
	kp, err := NewKeypair()
	require.NoError(t, err)
	ct, _, err := Encrypt(kp.Public, DiscreteLogBound)
	require.NoError(t, err)
	_, err = kp.Secret.Decrypt(ct)
	assert.ErrorIs(t, err, ErrDiscreteLog)
}

func TestHomomorphism(t *testing.T) {
	kp, err := NewKeypair()
	require.NoError(t, err)

	a, _, err := Encrypt(kp.Public, 700)
	require.NoError(t, err)
	b, _, err := Encrypt(kp.Public, 300)
	require.NoError(t, err)

	t.Run("add", func(t *testing.T) {
		got, err := kp.Secret.Decrypt(a.Add(b))
		require.NoError(t, err)
		assert.Equal(t, uint64(1000), got)
	})
	t.Run("sub", func(t *testing.T) {
		got, err := kp.Secret.Decrypt(a.Sub(b))
		require.NoError(t, err)
		assert.Equal(t, uint64(400), got)
	})
	t.Run("public amounts", func(t *testing.T) {
		got, err := kp.Secret.Decrypt(a.AddAmount(50).SubAmount(25))
		require.NoError(t, err)
		assert.Equal(t, uint64(725), got)
	})
	t.Run("zero ciphertext", func(t *testing.T) {
		got, err := kp.Secret.Decrypt(ZeroCiphertext().AddAmount(9))
		require.NoError(t, err)
		assert.Equal(t, uint64(9), got)
	})
	t.Run("lo hi", func(t *testing.T) {
		lo, _, err := Encrypt(kp.Public, 0x1234)
		require.NoError(t, err)
		hi, _, err := Encrypt(kp.Public, 0x56)
		require.NoError(t, err)
		got, err := kp.Secret.Decrypt(CombineLoHi(lo, hi, 16))
		require.NoError(t, err)
		assert.Equal(t, uint64(0x561234), got)
	})
}

func TestGroupedCiphertext(t *testing.T) {
	src, err := NewKeypair()
	require.NoError(t, err)
	dst, err := NewKeypair()
	require.NoError(t, err)

	g, r, err := EncryptGrouped(src.Public, dst.Public, 4242)
	require.NoError(t, err)

	for i, kp := range []*Keypair{src, dst} {
		got, err := kp.Secret.Decrypt(g.Ciphertext(i))
		require.NoError(t, err)
		assert.Equal(t, uint64(4242), got)
	}
	assert.True(t, Commitment{Point: g.Commitment}.Verify(4242, r))
	assert.False(t, Commitment{Point: g.Commitment}.Verify(4241, r))
}

func TestWrongKeyDoesNotDecrypt(t *testing.T) {
	a, err := NewKeypair()
	require.NoError(t, err)
	b, err := NewKeypair()
	require.NoError(t, err)

	ct, _, err := Encrypt(a.Public, 5)
	require.NoError(t, err)
	got, err := b.Secret.Decrypt(ct)
	if err == nil {
		assert.NotEqual(t, uint64(5), got)
	}
}

func TestAeKey(t *testing.T) {
	k, err := NewAeKey()
	require.NoError(t, err)

	ct, err := k.Encrypt(123456789)
	require.NoError(t, err)
	got, err := k.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, uint64(123456789), got)

	other, err := NewAeKey()
	require.NoError(t, err)
	_, err = other.Decrypt(ct)
	assert.ErrorIs(t, err, ErrDecryption)

	ct[len(ct)-1] ^= 1
	_, err = k.Decrypt(ct)
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestCodecs(t *testing.T) {
	kp, err := NewKeypair()
	require.NoError(t, err)
	ct, _, err := Encrypt(kp.Public, 77)
	require.NoError(t, err)

	raw, err := ct.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, raw, CiphertextSize)
	var back Ciphertext
	require.NoError(t, back.UnmarshalBinary(raw))
	assert.True(t, ct.Equal(back))

	var zero Ciphertext
	raw, err = ZeroCiphertext().MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, zero.UnmarshalBinary(raw))
	assert.True(t, zero.Equal(ZeroCiphertext()))

	doc, err := json.Marshal(struct {
		Key PublicKey `json:"key"`
	}{kp.Public})
	require.NoError(t, err)
	var decoded struct {
		Key PublicKey `json:"key"`
	}
	require.NoError(t, json.Unmarshal(doc, &decoded))
	assert.True(t, kp.Public.Equal(decoded.Key))

	var pk PublicKey
	assert.Error(t, pk.UnmarshalBinary(make([]byte, PublicKeySize)))
}
