package utils

import "sync/atomic"

type AtomicBool int32

func (a *AtomicBool) Set(value bool) (swapped bool) {
	if value {
		return atomic.SwapInt32((*int32)(a), 1) == 0
	}
	return atomic.SwapInt32((*int32)(a), 0) == 1
}

func (a *AtomicBool) Get() bool {
	return atomic.LoadInt32((*int32)(a)) != 0
}

type AtomicUInt32 uint32

func (ai *AtomicUInt32) Set(value uint32) (result uint32) {
	return atomic.SwapUint32((*uint32)(ai), value)
}

func (ai *AtomicUInt32) Get() uint32 {
	return atomic.LoadUint32((*uint32)(ai))
}

// Incr returns the incremented value.
func (ai *AtomicUInt32) Incr() uint32 {
	return atomic.AddUint32((*uint32)(ai), 1)
}

func (ai *AtomicUInt32) Decr() uint32 {
	return atomic.AddUint32((*uint32)(ai), ^uint32(0))
}
