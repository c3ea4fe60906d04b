// Package mempool provides size-classed buffer pools for the per-row and
// per-image scratch buffers used on the decode hot path.
package mempool

import (
	"sync"
)

var (
	uint16Pools sync.Map // key: size class (int), value: *sync.Pool
	boolPools   sync.Map // key: size class (int), value: *sync.Pool
)

const classStep = 1024

// sizeClass rounds n up to the next multiple of 1024 (minimum 1024).
func sizeClass(n int) int {
	if n <= classStep {
		return classStep
	}
	return (n + classStep - 1) / classStep * classStep
}

func poolFor[T any](pools *sync.Map, cls int) *sync.Pool {
	pAny, _ := pools.LoadOrStore(cls, &sync.Pool{New: func() any { return make([]T, cls) }})
	p, _ := pAny.(*sync.Pool)
	return p
}

func get[T any](pools *sync.Map, n int) []T {
	if n < 0 {
		n = 0
	}
	cls := sizeClass(n)
	p := poolFor[T](pools, cls)
	if p == nil {
		return make([]T, cls)[:n]
	}
	buf, ok := p.Get().([]T)
	if !ok || cap(buf) < cls {
		buf = make([]T, cls)
	}
	return buf[:n]
}

func put[T any](pools *sync.Map, buf []T) {
	if buf == nil {
		return
	}
	// Buffers smaller than a class would be handed out short; drop them.
	if cap(buf)%classStep != 0 {
		return
	}
	p := poolFor[T](pools, cap(buf))
	if p == nil {
		return
	}
	p.Put(buf[:cap(buf)]) //nolint:staticcheck // slices are the pooled value type
}

// GetUint16 returns a []uint16 of length n. Contents are unspecified; the
// caller must return it via PutUint16.
func GetUint16(n int) []uint16 { return get[uint16](&uint16Pools, n) }

// PutUint16 returns a buffer to the pool. Nil is ignored.
func PutUint16(buf []uint16) { put(&uint16Pools, buf) }

// GetBool returns a []bool of length n with every element false.
func GetBool(n int) []bool {
	buf := get[bool](&boolPools, n)
	clear(buf)
	return buf
}

// PutBool returns a buffer to the pool. Nil is ignored.
func PutBool(buf []bool) { put(&boolPools, buf) }
