package serde

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"memokit/pkg/core"
)

// TestJSONSerializer_RoundTrip 验证 JSON 编解码往返还原
func TestJSONSerializer_RoundTrip(t *testing.T) {
	s := &JSONSerializer{}

	values := []interface{}{
		"hello",
		float64(42),
		true,
		[]interface{}{float64(1), "two", false},
		map[string]interface{}{"a": float64(1), "b": "two"},
		nil,
	}

	for _, v := range values {
		data, err := s.Marshal(v)
		assert.NoError(t, err)

		got, err := s.Unmarshal(data)
		assert.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

// 无法序列化的值返回 SERIALIZE_FAILED
func TestJSONSerializer_MarshalFailure(t *testing.T) {
	s := &JSONSerializer{}

	_, err := s.Marshal(make(chan int))
	assert.Error(t, err)
	assert.Equal(t, core.ErrSerializeFailed, core.CodeOf(err))
}

// 损坏的字节序列返回 ENTRY_CORRUPT
func TestJSONSerializer_UnmarshalCorrupt(t *testing.T) {
	s := &JSONSerializer{}

	_, err := s.Unmarshal([]byte("{not json"))
	assert.Error(t, err)
	assert.Equal(t, core.ErrEntryCorrupt, core.CodeOf(err))
}

// TestGobSerializer_RoundTrip 验证 gob 编解码往返还原
func TestGobSerializer_RoundTrip(t *testing.T) {
	s := &GobSerializer{}

	values := []interface{}{
		"hello",
		42,
		3.14,
		[]string{"a", "b"},
	}

	for _, v := range values {
		data, err := s.Marshal(v)
		assert.NoError(t, err)

		got, err := s.Unmarshal(data)
		assert.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

// 损坏的 gob 数据返回 ENTRY_CORRUPT
func TestGobSerializer_UnmarshalCorrupt(t *testing.T) {
	s := &GobSerializer{}

	_, err := s.Unmarshal([]byte{0x00, 0x01, 0x02})
	assert.Error(t, err)
	assert.Equal(t, core.ErrEntryCorrupt, core.CodeOf(err))
}

// 工厂函数按名称选择编解码器，未知名称回退 JSON
func TestNew(t *testing.T) {
	assert.Equal(t, "json", New("json").Name())
	assert.Equal(t, "gob", New("gob").Name())
	assert.Equal(t, "json", New("").Name())
	assert.Equal(t, "json", New("unknown").Name())
}
