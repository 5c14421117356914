// Package serde 定义了存储后端使用的值编解码契约。
// 后端对值的形状不做任何假设，只要求经过编解码后能够往返还原。
package serde

import (
	"bytes"
	"encoding/gob"
	"encoding/json"

	"memokit/pkg/core"
)

// Serializer 定义了值的序列化/反序列化接口。
type Serializer interface {
	// Marshal 将值编码为字节序列。
	Marshal(value interface{}) ([]byte, error)
	// Unmarshal 将字节序列解码为值。
	Unmarshal(data []byte) (interface{}, error)
	// Name 返回编解码器的名称，用于日志和配置。
	Name() string
}

// JSONSerializer 基于 encoding/json 的默认编解码器。
// 数值会以 float64 形式还原，与 JSON 的语义一致。
type JSONSerializer struct{}

// Marshal 实现 Serializer 接口。
func (s *JSONSerializer) Marshal(value interface{}) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, core.WrapError(core.ErrSerializeFailed, "JSON 序列化失败", err)
	}
	return data, nil
}

// Unmarshal 实现 Serializer 接口。
func (s *JSONSerializer) Unmarshal(data []byte) (interface{}, error) {
	var value interface{}
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, core.WrapError(core.ErrEntryCorrupt, "JSON 反序列化失败", err)
	}
	return value, nil
}

// Name 实现 Serializer 接口。
func (s *JSONSerializer) Name() string { return "json" }

// GobSerializer 基于 encoding/gob 的编解码器，适合 Go 进程之间共享的缓存。
// 非基础类型需要调用方先通过 gob.Register 注册。
type GobSerializer struct{}

// gob 无法直接编码 interface{} 的裸值，统一用信封包装。
type gobEnvelope struct {
	Value interface{}
}

// Marshal 实现 Serializer 接口。
func (s *GobSerializer) Marshal(value interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(gobEnvelope{Value: value}); err != nil {
		return nil, core.WrapError(core.ErrSerializeFailed, "gob 序列化失败", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal 实现 Serializer 接口。
func (s *GobSerializer) Unmarshal(data []byte) (interface{}, error) {
	var env gobEnvelope
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&env); err != nil {
		return nil, core.WrapError(core.ErrEntryCorrupt, "gob 反序列化失败", err)
	}
	return env.Value, nil
}

// Name 实现 Serializer 接口。
func (s *GobSerializer) Name() string { return "gob" }

// New 根据名称创建编解码器，未知名称回退到 JSON。
func New(name string) Serializer {
	switch name {
	case "gob":
		return &GobSerializer{}
	default:
		return &JSONSerializer{}
	}
}

var (
	_ Serializer = (*JSONSerializer)(nil)
	_ Serializer = (*GobSerializer)(nil)
)
