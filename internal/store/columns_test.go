package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeColumn(t *testing.T) {
	var ids []string
	require.NoError(t, decodeColumn("article_ids", encodeColumn([]string{"a1", "a2"}), &ids))
	assert.Equal(t, []string{"a1", "a2"}, ids)

	for _, empty := range []string{"", "null"} {
		keep := []string{"x"}
		require.NoError(t, decodeColumn("article_ids", empty, &keep))
		assert.Equal(t, []string{"x"}, keep)
	}

	var log []DeliveryLogEntry
	err := decodeColumn("delivery_log", `[{"channel":"email"`, &log)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode delivery_log column")
}

func TestEncodeColumnUnencodable(t *testing.T) {
	assert.Equal(t, "null", encodeColumn(map[string]any{"ch": make(chan int)}))
	assert.Equal(t, `{"k":"v"}`, encodeColumn(map[string]string{"k": "v"}))
}
