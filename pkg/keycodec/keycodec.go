// Package keycodec 负责从函数标识和调用参数派生出稳定、抗碰撞的缓存键。
//
// 派生规则：
//   - 位置参数是顺序敏感的；
//   - 命名参数是顺序无关的（内部按名称排序后参与摘要）；
//   - 函数标识必须是限定名（如 "pricing.Quote"），以避免不同作用域的
//     同名函数互相污染缓存。
package keycodec

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"memokit/pkg/core"
)

// 摘要输入中各段之间的分隔符，防止 ("ab","c") 与 ("a","bc") 产生相同的规范形式。
const (
	sepSection = 0x1f // 标识 / 位置参数 / 命名参数 三段之间
	sepItem    = 0x1e // 同段内各参数之间
)

// KeyCodec 定义了缓存键派生器的接口。
type KeyCodec interface {
	// Derive 从函数标识、位置参数和命名参数派生缓存键。
	// 无法序列化的参数（函数、通道等）返回 KEY_UNHASHABLE 错误。
	Derive(identity string, args []interface{}, named map[string]interface{}) (core.CacheKey, error)
}

// CanonicalCodec 是默认的键派生实现：将参数序列化为规范字节序列后
// 计算 SHA-256 摘要。256 位摘要在 10^6 量级的缓存规模下，
// 碰撞概率远低于 2^-40。
type CanonicalCodec struct{}

// NewCanonicalCodec 创建默认的键派生器。
func NewCanonicalCodec() *CanonicalCodec {
	return &CanonicalCodec{}
}

// Derive 实现 KeyCodec 接口。
func (c *CanonicalCodec) Derive(identity string, args []interface{}, named map[string]interface{}) (core.CacheKey, error) {
	if identity == "" {
		return "", core.NewError(core.ErrKeyUnhashable, "函数标识不能为空")
	}

	h := sha256.New()
	h.Write([]byte(identity))
	h.Write([]byte{sepSection})

	// 位置参数：顺序敏感，逐个序列化
	for i, arg := range args {
		data, err := marshalArg(arg)
		if err != nil {
			return "", core.WrapError(core.ErrKeyUnhashable,
				fmt.Sprintf("位置参数 %d 无法序列化", i), err)
		}
		h.Write(data)
		h.Write([]byte{sepItem})
	}
	h.Write([]byte{sepSection})

	// 命名参数：按名称排序后序列化，保证顺序无关
	names := make([]string, 0, len(named))
	for name := range named {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := marshalArg(named[name])
		if err != nil {
			return "", core.WrapError(core.ErrKeyUnhashable,
				fmt.Sprintf("命名参数 %q 无法序列化", name), err)
		}
		h.Write([]byte(name))
		h.Write([]byte{'='})
		h.Write(data)
		h.Write([]byte{sepItem})
	}

	return core.CacheKey(hex.EncodeToString(h.Sum(nil))), nil
}

// marshalArg 将单个参数序列化为规范字节形式。
// encoding/json 对 map 键做字典序排序，因此嵌套 map 的输出也是确定的。
func marshalArg(arg interface{}) ([]byte, error) {
	return json.Marshal(arg)
}

var _ KeyCodec = (*CanonicalCodec)(nil)
