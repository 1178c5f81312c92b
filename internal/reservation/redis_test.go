package reservation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func hashTag(key string) string {
	start := strings.IndexByte(key, '{')
	if start < 0 {
		return key
	}
	end := strings.IndexByte(key[start+1:], '}')
	if end <= 0 {
		return key
	}
	return key[start+1 : start+1+end]
}

func TestRedisStoreKeysShareSlot(t *testing.T) {
	s := NewRedisStore(nil, "test", nil)

	index := s.indexKey("res-1")
	entry := s.entryKey("res-1", "alice")

	assert.Equal(t, "res-1", hashTag(index))
	assert.Equal(t, hashTag(index), hashTag(entry))
	// RemoveAll rebuilds entry keys from this prefix plus the index member.
	assert.Equal(t, entry, s.entryKey("res-1", "")+"alice")
	assert.NotEqual(t, hashTag(index), hashTag(s.indexKey("res-2")))
}
