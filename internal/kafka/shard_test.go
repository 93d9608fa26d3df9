package kafka

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShardIsStablePerKey(t *testing.T) {
	key := []byte("ord-4f1c")
	first := shard(key, 4)
	for i := 0; i < 100; i++ {
		require.Equal(t, first, shard(key, 4))
	}
}

func TestShardStaysInRange(t *testing.T) {
	for workers := 1; workers <= 8; workers++ {
		for i := 0; i < 200; i++ {
			w := shard([]byte(fmt.Sprintf("ord-%d", i)), workers)
			assert.GreaterOrEqual(t, w, 0)
			assert.Less(t, w, workers)
		}
	}
}

func TestShardKeylessGoesToWorkerZero(t *testing.T) {
	assert.Equal(t, 0, shard(nil, 8))
	assert.Equal(t, 0, shard([]byte("anything"), 1))
}
