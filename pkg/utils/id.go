package utils

import (
	"fmt"
	"sync/atomic"
	"time"
)

var idSeq uint64

// GenID generates a unique message ID using the current UTC nanosecond
// timestamp and an atomic sequence number. The format is "msg-<ts>-<seq>".
func GenID() string {
	n := time.Now().UTC().UnixNano()
	s := atomic.AddUint64(&idSeq, 1)
	return fmt.Sprintf("msg-%d-%d", n, s)
}

// GenThreadID generates a unique thread ID in the format "thread-<ts>-<seq>".
func GenThreadID() string {
	n := time.Now().UTC().UnixNano()
	s := atomic.AddUint64(&idSeq, 1)
	return fmt.Sprintf("thread-%d-%d", n, s)
}
