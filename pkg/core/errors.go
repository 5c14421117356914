package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode 是一个字符串类型，用于表示 memokit 中所有预定义的错误类别。
type ErrorCode string

// 标准错误代码常量定义了记忆化过程中可能出现的各种错误。
const (
	// ErrCacheMiss 表示在存储后端中未找到请求的条目。未命中是一等结果，不是故障。
	ErrCacheMiss ErrorCode = "CACHE_MISS"
	// ErrKeyUnhashable 表示 KeyCodec 无法从调用参数派生出稳定的缓存键。
	ErrKeyUnhashable ErrorCode = "KEY_UNHASHABLE"
	// ErrComputeFailed 表示被包装的函数本身执行失败，原始错误保存在 Cause 中。
	ErrComputeFailed ErrorCode = "COMPUTE_FAILED"
	// ErrEntryCorrupt 表示后端读取成功但条目解码失败。
	ErrEntryCorrupt ErrorCode = "ENTRY_CORRUPT"
	// ErrStorageUnavailable 表示后端不可达（I/O 或网络故障），与未命中必须可区分。
	ErrStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"
	// ErrWaitTimeout 表示等待在途计算或后端操作超出了配置的时间上限。
	ErrWaitTimeout ErrorCode = "WAIT_TIMEOUT"

	// ErrSerializeFailed 表示序列化操作失败。
	ErrSerializeFailed ErrorCode = "SERIALIZE_FAILED"
	// ErrConfigInvalid 表示配置无效。
	ErrConfigInvalid ErrorCode = "CONFIG_INVALID"
	// ErrResourceClosed 表示尝试访问已关闭的资源。
	ErrResourceClosed ErrorCode = "RESOURCE_CLOSED"
)

// MemoError 是 memokit 的自定义错误类型。
// 它包含了错误代码、消息、可选的原始错误(cause)和附加上下文信息。
type MemoError struct {
	Code      ErrorCode              `json:"code"`              // 错误的分类代码
	Message   string                 `json:"message"`           // 人类可读的错误信息
	Cause     error                  `json:"-"`                 // 导致此错误的原始错误
	Context   map[string]interface{} `json:"context,omitempty"` // 额外的上下文信息
	Timestamp time.Time              `json:"timestamp"`         // 错误发生的时间戳
}

// Error 实现了 Go 内置的 error 接口。
func (e *MemoError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %s)", e.Code, e.Message, e.Cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap 实现了 Go 1.13+ 的错误包装接口，允许访问被包装的原始错误(Cause)。
func (e *MemoError) Unwrap() error {
	return e.Cause
}

// Is 实现了错误判断接口，用于判断一个错误是否与目标错误具有相同的错误代码。
func (e *MemoError) Is(target error) bool {
	var memoErr *MemoError
	if errors.As(target, &memoErr) {
		return e.Code == memoErr.Code
	}
	return false
}

// WithContext 为错误附加一个键值对形式的上下文信息。
func (e *MemoError) WithContext(key string, value interface{}) *MemoError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewError 创建一个新的 MemoError。
func NewError(code ErrorCode, message string) *MemoError {
	return &MemoError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// WrapError 包装现有错误，保留原始 cause。
func WrapError(code ErrorCode, message string, cause error) *MemoError {
	return &MemoError{
		Code:      code,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// NewMiss 创建一个表示缓存未命中的错误。
func NewMiss(key CacheKey) *MemoError {
	return NewError(ErrCacheMiss, "cache miss").WithContext("key", key.String())
}

// CodeOf 返回错误携带的错误代码；若不是 MemoError 则返回空字符串。
func CodeOf(err error) ErrorCode {
	var memoErr *MemoError
	if errors.As(err, &memoErr) {
		return memoErr.Code
	}
	return ""
}

// IsMiss 判断错误是否为缓存未命中。
func IsMiss(err error) bool {
	return CodeOf(err) == ErrCacheMiss
}

// IsCorrupt 判断错误是否为条目损坏。
func IsCorrupt(err error) bool {
	return CodeOf(err) == ErrEntryCorrupt
}

// IsUnavailable 判断错误是否为后端不可用。
func IsUnavailable(err error) bool {
	return CodeOf(err) == ErrStorageUnavailable
}

// IsTimeout 判断错误是否为等待超时。
func IsTimeout(err error) bool {
	return CodeOf(err) == ErrWaitTimeout
}
