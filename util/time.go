package util

import (
	"sync/atomic"
	"time"
)

var lastTimestamp int64

// NextTimestamp returns a microsecond-resolution timestamp that is strictly
// greater than any timestamp previously returned by this process, even when
// called concurrently or when the wall clock steps backwards. Every batch of
// one logical storage operation shares one of these values, and the backend
// resolves racing writes to the same column by the larger timestamp.
func NextTimestamp() int64 {
	now := time.Now().UnixNano() / 1000
	for {
		last := atomic.LoadInt64(&lastTimestamp)
		next := now
		if next <= last {
			next = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastTimestamp, last, next) {
			return next
		}
	}
}
