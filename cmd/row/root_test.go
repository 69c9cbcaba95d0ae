package row

import (
	"testing"

	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMutations(t *testing.T) {
	mutations, err := ParseMutations([]string{"info:name=alice", "-info:age", "info:empty="})
	require.NoError(t, err)
	assert.Equal(t, []store.Mutation{
		{Column: []byte("info:name"), Value: []byte("alice")},
		{IsDelete: true, Column: []byte("info:age")},
		{Column: []byte("info:empty"), Value: []byte{}},
	}, mutations)

	_, err = ParseMutations([]string{"info:name"})
	assert.Error(t, err)
}
