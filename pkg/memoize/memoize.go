// Package memoize 实现记忆化的编排核心：包装一个昂贵的确定性函数，
// 以键为索引走"读穿透 / 写穿透"协议，并保证同一个键同一时刻至多只有
// 一次底层计算在执行（single-flight）。
//
// 每个键的生命周期是一个三态状态机：Absent → Computing → Present。
// 首个请求缺失键的调用方成为该键的领导者并执行计算；计算期间到达的
// 追随者不重复执行函数，而是等待领导者的结果。计算失败时键回到
// Absent，不缓存任何内容；失败如何传递给追随者由 FailureMode 配置。
package memoize

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"memokit/pkg/core"
	"memokit/pkg/keycodec"
	"memokit/pkg/logger"
)

// Func 是被记忆化函数的标准形态：只接受位置参数。
type Func func(ctx context.Context, args ...interface{}) (interface{}, error)

// NamedFunc 是同时接受位置参数和命名参数的函数形态。
type NamedFunc func(ctx context.Context, args []interface{}, named map[string]interface{}) (interface{}, error)

// FailureMode 决定领导者计算失败时追随者的行为。
type FailureMode int

const (
	// FailurePropagate 领导者的失败原样传播给所有追随者（默认）。
	FailurePropagate FailureMode = iota
	// FailureRetry 收到共享失败的追随者各自独立重试一次计算。
	FailureRetry
)

// Options 记忆化配置。
type Options struct {
	// Codec 缓存键派生器，为 nil 时使用默认的规范派生器。
	Codec keycodec.KeyCodec
	// DisableSingleFlight 为 true 时放弃单飞保证：并发调用各自独立计算，
	// 以重复工作换取不等待（宽松模式）。
	DisableSingleFlight bool
	// Timeout 限制追随者等待在途计算的时长，超出返回 WAIT_TIMEOUT。
	// 0 表示不限制。
	Timeout time.Duration
	// FailureMode 领导者失败时追随者的行为，见常量说明。
	FailureMode FailureMode
	// PropagateUnavailable 为 true 时后端不可用直接作为错误返回；
	// 默认（false）退化为本次调用只计算不缓存。
	PropagateUnavailable bool
}

// Memoizer 将一个函数与存储后端、键派生器组合成可复用的记忆化实例。
type Memoizer struct {
	identity string
	fn       NamedFunc
	store    core.Storage
	codec    keycodec.KeyCodec
	opts     Options
	flight   singleflight.Group
	log      *logrus.Entry
}

// New 创建位置参数函数的记忆化实例。
// identity 是函数的限定名（如 "pricing.Quote"），必须全局唯一，
// 否则不同函数会互相污染缓存。
func New(identity string, fn Func, store core.Storage, opts Options) (*Memoizer, error) {
	if fn == nil {
		return nil, core.NewError(core.ErrConfigInvalid, "被记忆化函数不能为 nil")
	}
	return NewNamed(identity, func(ctx context.Context, args []interface{}, _ map[string]interface{}) (interface{}, error) {
		return fn(ctx, args...)
	}, store, opts)
}

// NewNamed 创建支持命名参数的记忆化实例。
func NewNamed(identity string, fn NamedFunc, store core.Storage, opts Options) (*Memoizer, error) {
	if identity == "" {
		return nil, core.NewError(core.ErrConfigInvalid, "函数标识不能为空")
	}
	if fn == nil {
		return nil, core.NewError(core.ErrConfigInvalid, "被记忆化函数不能为 nil")
	}
	if store == nil {
		return nil, core.NewError(core.ErrConfigInvalid, "存储后端不能为 nil")
	}

	codec := opts.Codec
	if codec == nil {
		codec = keycodec.NewCanonicalCodec()
	}

	return &Memoizer{
		identity: identity,
		fn:       fn,
		store:    store,
		codec:    codec,
		opts:     opts,
		log:      logger.WithFunc(identity),
	}, nil
}

// Wrap 返回一个与原函数签名一致的记忆化闭包。
func Wrap(identity string, fn Func, store core.Storage, opts Options) (Func, error) {
	m, err := New(identity, fn, store, opts)
	if err != nil {
		return nil, err
	}
	return m.Invoke, nil
}

// Identity 返回函数标识。
func (m *Memoizer) Identity() string {
	return m.identity
}

// KeyFor 返回一组参数对应的缓存键，供手动缓存管理使用。
func (m *Memoizer) KeyFor(args []interface{}, named map[string]interface{}) (core.CacheKey, error) {
	return m.codec.Derive(m.identity, args, named)
}

// Invoke 以位置参数调用记忆化函数：命中返回存储的值，
// 未命中计算后写入存储再返回。
func (m *Memoizer) Invoke(ctx context.Context, args ...interface{}) (interface{}, error) {
	return m.invoke(ctx, args, nil)
}

// InvokeNamed 以位置参数加命名参数调用记忆化函数。
// 命名参数顺序无关：{a:1,b:2} 与 {b:2,a:1} 命中同一个条目。
func (m *Memoizer) InvokeNamed(ctx context.Context, args []interface{}, named map[string]interface{}) (interface{}, error) {
	return m.invoke(ctx, args, named)
}

// Refresh 强制重算并覆盖写入（显式再记忆化），不经过 Computing 状态
// 对读者可见：并发的 Get 要么看到旧值要么看到新值。
func (m *Memoizer) Refresh(ctx context.Context, args ...interface{}) (interface{}, error) {
	key, err := m.codec.Derive(m.identity, args, nil)
	if err != nil {
		return nil, err
	}
	return m.computeAndStore(ctx, key, args, nil, false)
}

// Forget 显式淘汰一组参数对应的条目，返回是否确实删除了条目。
func (m *Memoizer) Forget(ctx context.Context, args ...interface{}) (bool, error) {
	key, err := m.codec.Derive(m.identity, args, nil)
	if err != nil {
		return false, err
	}
	return m.store.Evict(ctx, key), nil
}

// invoke 读穿透主路径。
func (m *Memoizer) invoke(ctx context.Context, args []interface{}, named map[string]interface{}) (interface{}, error) {
	key, err := m.codec.Derive(m.identity, args, named)
	if err != nil {
		return nil, err
	}

	skipStore := false
	value, err := m.store.Get(ctx, key)
	switch {
	case err == nil:
		return value, nil
	case core.IsMiss(err):
		// 正常未命中，进入计算
	case core.IsCorrupt(err):
		// 条目损坏按未命中处理，重算后覆盖（自愈）
		m.log.WithField("key", key.String()).Warn("条目损坏，将重算覆盖")
	case core.IsUnavailable(err):
		if m.opts.PropagateUnavailable {
			return nil, err
		}
		// 后端不可用：本次调用退化为只计算不缓存
		m.log.WithField("key", key.String()).WithError(err).Warn("后端不可用，本次调用绕过缓存")
		skipStore = true
	default:
		return nil, err
	}

	if m.opts.DisableSingleFlight {
		return m.computeAndStore(ctx, key, args, named, skipStore)
	}

	// 单飞：同键并发调用只有领导者执行计算，其余等待共享结果。
	// 锁域按键划分，不同键的计算互不串行。闭包是每次调用自己的，
	// 只有实际执行了计算的那次调用会把 leader 置位。
	leader := false
	ch := m.flight.DoChan(key.String(), func() (interface{}, error) {
		leader = true
		return m.computeAndStore(ctx, key, args, named, skipStore)
	})

	var timeoutCh <-chan time.Time
	if m.opts.Timeout > 0 {
		timer := time.NewTimer(m.opts.Timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case res := <-ch:
		if res.Err != nil {
			// 失败后键回到 Absent，下一个调用方重新成为领导者
			m.flight.Forget(key.String())
			if m.opts.FailureMode == FailureRetry && !leader {
				m.log.WithField("key", key.String()).Debug("收到共享失败，追随者独立重试")
				return m.computeAndStore(ctx, key, args, named, skipStore)
			}
			return nil, res.Err
		}
		return res.Val, nil
	case <-timeoutCh:
		return nil, core.NewError(core.ErrWaitTimeout, "等待在途计算超时").
			WithContext("key", key.String())
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// computeAndStore 执行底层函数并在成功后写入存储。
// 函数失败时不写入任何内容，原始错误保存在 COMPUTE_FAILED 的 cause 中。
func (m *Memoizer) computeAndStore(ctx context.Context, key core.CacheKey, args []interface{}, named map[string]interface{}, skipStore bool) (interface{}, error) {
	value, err := m.fn(ctx, args, named)
	if err != nil {
		return nil, core.WrapError(core.ErrComputeFailed, "被记忆化函数执行失败", err).
			WithContext("key", key.String())
	}

	if !skipStore {
		if putErr := m.store.Put(ctx, key, value); putErr != nil {
			if m.opts.PropagateUnavailable && core.IsUnavailable(putErr) {
				return nil, putErr
			}
			// 值已算出，存储故障不应吞掉结果
			m.log.WithField("key", key.String()).WithError(putErr).Warn("缓存写入失败，返回已计算的值")
		}
	}
	return value, nil
}
