package protocol

import (
	"strconv"
	"sync/atomic"
	"time"
)

// lastSN holds the most recently issued sequence token value.
var lastSN atomic.Int64

// NextSN returns a fresh sequence token: the current time in milliseconds,
// bumped past the previous token when two requests land in the same
// millisecond. Tokens are strictly increasing within the process, which is
// what makes stale-response detection by sn comparison sound.
func NextSN() string {
	now := time.Now().UnixMilli()
	for {
		prev := lastSN.Load()
		if now <= prev {
			now = prev + 1
		}
		if lastSN.CompareAndSwap(prev, now) {
			return strconv.FormatInt(now, 10)
		}
	}
}
