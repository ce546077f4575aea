package address

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	a := FromSeed("token-program")
	parsed, err := Parse(a.String())
	require.NoError(t, err)
	assert.Equal(t, a, parsed)
	assert.False(t, a.IsZero())
	assert.True(t, Zero.IsZero())

	for _, bad := range []string{"", "0OIl", "3mJr7AoUXx2Wqd"} {
		_, err := Parse(bad)
		assert.True(t, errors.Is(err, ErrInvalidAddress), bad)
	}
}

func TestAssociatedIsDeterministic(t *testing.T) {
	owner, mint, program := FromSeed("owner"), FromSeed("mint"), FromSeed("program")
	assert.Equal(t, Associated(owner, mint, program), Associated(owner, mint, program))
	assert.NotEqual(t, Associated(owner, mint, program), Associated(mint, owner, program))
}

func TestJSON(t *testing.T) {
	in := struct {
		Account Address `json:"account"`
	}{Account: FromSeed("a")}
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), in.Account.String())

	out := in
	out.Account = Zero
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}
