package timeutil

import "time"

func NowUnix() int64 {
	return time.Now().Unix()
}

// NowMillis returns the current wall clock in milliseconds, the unit used
// by wavelet operation timestamps.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
