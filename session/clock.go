package session

import "time"

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func millisToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
