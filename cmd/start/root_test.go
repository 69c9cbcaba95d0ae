package start

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ValentinKolb/rKV/lib/db/util"
	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseShards(t *testing.T) {
	shards, err := parseShards("0=lstore, 7=dstore")
	require.NoError(t, err)
	assert.Equal(t, []common.ServerShard{
		{ShardID: 0, Type: common.ShardTypeLocalIStore},
		{ShardID: 7, Type: common.ShardTypeRemoteIStore},
	}, shards)

	for _, invalid := range []string{"", "0", "x=lstore", "0=btree", "1=lstore,1=dstore"} {
		_, err := parseShards(invalid)
		assert.Error(t, err, invalid)
	}
}

func TestParseClusterMembers(t *testing.T) {
	members, err := parseClusterMembers("node-1=localhost:63001,node-2=localhost:63002")
	require.NoError(t, err)
	assert.Len(t, members, 2)
	assert.Equal(t, "localhost:63002", members[util.ReplicaID("node-2")])

	_, err = parseClusterMembers("node-1")
	assert.Error(t, err)
	_, err = parseClusterMembers("node-1=localhost:63001,node-1=localhost:63002")
	assert.Error(t, err)
}

func TestStopPrintsGuidance(t *testing.T) {
	var out bytes.Buffer
	StopCmd.SetOut(&out)
	StopCmd.Run(StopCmd, nil)
	assert.Equal(t, StopMessage, strings.TrimSpace(out.String()))
}
