// Package policy 提供了可与任意存储后端组合的淘汰策略：
// LRU（容量上限）、TTL（生存时间）以及二者的组合。
// 策略只负责记账和选出牺牲者，真正的删除由 Bounded 包装器
// 在同一个互斥域内完成，保证策略状态与后端键集合一致。
package policy

import (
	"container/list"
	"time"

	"memokit/pkg/core"
)

// EvictionPolicy 定义了淘汰策略的能力集。
// 实现不要求自身并发安全：Bounded 包装器保证所有调用在同一互斥域内串行执行。
type EvictionPolicy interface {
	// OnAdd 在条目写入后端后调用。
	OnAdd(key core.CacheKey, now time.Time)
	// Touch 在条目被成功访问后调用。
	Touch(key core.CacheKey, now time.Time)
	// OnRemove 在条目从后端删除后调用。
	OnRemove(key core.CacheKey)
	// Expired 判断条目是否已过期（用于 Get 时的惰性检查）。
	Expired(key core.CacheKey, now time.Time) bool
	// SelectVictims 返回当前应被淘汰的键集合。
	SelectVictims(now time.Time) []core.CacheKey
	// Reset 清空策略的全部记账状态。
	Reset()
}

// LRUPolicy 最近最少使用策略：条目数超过容量时，淘汰最久未被访问的键。
type LRUPolicy struct {
	capacity int
	lruList  *list.List // 前端为最近使用
	lruIndex map[core.CacheKey]*list.Element
}

// NewLRUPolicy 创建 LRU 策略。capacity 必须大于 0。
func NewLRUPolicy(capacity int) *LRUPolicy {
	if capacity <= 0 {
		capacity = 1
	}
	return &LRUPolicy{
		capacity: capacity,
		lruList:  list.New(),
		lruIndex: make(map[core.CacheKey]*list.Element),
	}
}

// Capacity 返回容量上限。
func (lru *LRUPolicy) Capacity() int {
	return lru.capacity
}

// OnAdd 将新键置于最近使用端。
func (lru *LRUPolicy) OnAdd(key core.CacheKey, now time.Time) {
	if elem, exists := lru.lruIndex[key]; exists {
		lru.lruList.MoveToFront(elem)
		return
	}
	lru.lruIndex[key] = lru.lruList.PushFront(key)
}

// Touch 将键移动到最近使用端。
func (lru *LRUPolicy) Touch(key core.CacheKey, now time.Time) {
	if elem, exists := lru.lruIndex[key]; exists {
		lru.lruList.MoveToFront(elem)
	}
}

// OnRemove 从记账中移除键。
func (lru *LRUPolicy) OnRemove(key core.CacheKey) {
	if elem, exists := lru.lruIndex[key]; exists {
		lru.lruList.Remove(elem)
		delete(lru.lruIndex, key)
	}
}

// Expired LRU 策略不判断过期。
func (lru *LRUPolicy) Expired(key core.CacheKey, now time.Time) bool {
	return false
}

// SelectVictims 返回超出容量部分的最久未使用键。
func (lru *LRUPolicy) SelectVictims(now time.Time) []core.CacheKey {
	var victims []core.CacheKey
	excess := lru.lruList.Len() - lru.capacity
	for elem := lru.lruList.Back(); elem != nil && excess > 0; excess-- {
		victims = append(victims, elem.Value.(core.CacheKey))
		elem = elem.Prev()
	}
	return victims
}

// Reset 清空记账状态。
func (lru *LRUPolicy) Reset() {
	lru.lruList.Init()
	lru.lruIndex = make(map[core.CacheKey]*list.Element)
}

// TTLPolicy 生存时间策略：条目在写入（或访问，见 SlideOnAccess）一段时间后过期。
// 过期条目既会被 Get 时的惰性检查当场清除，也会被周期性的 SelectVictims 批量选出。
type TTLPolicy struct {
	ttl           time.Duration
	slideOnAccess bool // 为 true 时访问会顺延过期时间（expire-after-access 语义）
	expiries      map[core.CacheKey]time.Time
}

// NewTTLPolicy 创建 TTL 策略（expire-after-write 语义）。
func NewTTLPolicy(ttl time.Duration) *TTLPolicy {
	return &TTLPolicy{
		ttl:      ttl,
		expiries: make(map[core.CacheKey]time.Time),
	}
}

// NewSlidingTTLPolicy 创建访问顺延的 TTL 策略（expire-after-access 语义）。
func NewSlidingTTLPolicy(ttl time.Duration) *TTLPolicy {
	p := NewTTLPolicy(ttl)
	p.slideOnAccess = true
	return p
}

// OnAdd 记录过期时间戳。
func (tp *TTLPolicy) OnAdd(key core.CacheKey, now time.Time) {
	tp.expiries[key] = now.Add(tp.ttl)
}

// Touch 访问顺延模式下刷新过期时间戳。
func (tp *TTLPolicy) Touch(key core.CacheKey, now time.Time) {
	if tp.slideOnAccess {
		if _, exists := tp.expiries[key]; exists {
			tp.expiries[key] = now.Add(tp.ttl)
		}
	}
}

// OnRemove 从记账中移除键。
func (tp *TTLPolicy) OnRemove(key core.CacheKey) {
	delete(tp.expiries, key)
}

// Expired 判断条目是否已过期。
func (tp *TTLPolicy) Expired(key core.CacheKey, now time.Time) bool {
	expiry, exists := tp.expiries[key]
	return exists && now.After(expiry)
}

// SelectVictims 返回所有已过期的键。
func (tp *TTLPolicy) SelectVictims(now time.Time) []core.CacheKey {
	var victims []core.CacheKey
	for key, expiry := range tp.expiries {
		if now.After(expiry) {
			victims = append(victims, key)
		}
	}
	return victims
}

// Reset 清空记账状态。
func (tp *TTLPolicy) Reset() {
	tp.expiries = make(map[core.CacheKey]time.Time)
}

// CompositePolicy 组合策略：各子策略独立评估，任意一个判定淘汰即淘汰。
type CompositePolicy struct {
	policies []EvictionPolicy
}

// NewCompositePolicy 组合多个策略（如容量上限 + TTL）。
func NewCompositePolicy(policies ...EvictionPolicy) *CompositePolicy {
	return &CompositePolicy{policies: policies}
}

// OnAdd 通知所有子策略。
func (cp *CompositePolicy) OnAdd(key core.CacheKey, now time.Time) {
	for _, p := range cp.policies {
		p.OnAdd(key, now)
	}
}

// Touch 通知所有子策略。
func (cp *CompositePolicy) Touch(key core.CacheKey, now time.Time) {
	for _, p := range cp.policies {
		p.Touch(key, now)
	}
}

// OnRemove 通知所有子策略。
func (cp *CompositePolicy) OnRemove(key core.CacheKey) {
	for _, p := range cp.policies {
		p.OnRemove(key)
	}
}

// Expired 任意子策略判定过期即过期。
func (cp *CompositePolicy) Expired(key core.CacheKey, now time.Time) bool {
	for _, p := range cp.policies {
		if p.Expired(key, now) {
			return true
		}
	}
	return false
}

// SelectVictims 返回所有子策略选出的牺牲者（去重）。
func (cp *CompositePolicy) SelectVictims(now time.Time) []core.CacheKey {
	seen := make(map[core.CacheKey]struct{})
	var victims []core.CacheKey
	for _, p := range cp.policies {
		for _, key := range p.SelectVictims(now) {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			victims = append(victims, key)
		}
	}
	return victims
}

// Reset 重置所有子策略。
func (cp *CompositePolicy) Reset() {
	for _, p := range cp.policies {
		p.Reset()
	}
}

var (
	_ EvictionPolicy = (*LRUPolicy)(nil)
	_ EvictionPolicy = (*TTLPolicy)(nil)
	_ EvictionPolicy = (*CompositePolicy)(nil)
)
