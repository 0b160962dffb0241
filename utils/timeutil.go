package utils

import "time"

var ist = time.FixedZone("IST", 5*60*60+30*60)

// IST returns the IST timezone location object.
func IST() *time.Location {
	return ist
}

// NowIST returns the current time in IST.
func NowIST() time.Time {
	return time.Now().In(IST())
}

// ToIST converts any time.Time to IST.
func ToIST(t time.Time) time.Time {
	return t.In(IST())
}
