package db

import "time"

// MinuteSnapshot is one combined call+put record for an
// (instrument, expiry, strike, minute) key. Leg fields are pointers so a
// missing upstream leg stays NULL in storage; the derived GEX fields treat
// missing gamma/OI as zero.
type MinuteSnapshot struct {
	Timestamp       time.Time
	ISTMinute       time.Time
	Instrument      string
	Expiry          time.Time
	UnderlyingPrice float64
	Strike          float64

	CallDelta     *float64
	CallTheta     *float64
	CallGamma     *float64
	CallVega      *float64
	CallIV        *float64
	CallOI        *int64
	CallVolume    *int64
	CallLastPrice *float64

	PutDelta     *float64
	PutTheta     *float64
	PutGamma     *float64
	PutVega      *float64
	PutIV        *float64
	PutOI        *int64
	PutVolume    *int64
	PutLastPrice *float64

	CallGex float64
	PutGex  float64
	NetGex  float64
	AbsGex  float64
}

// Summary aggregates one minute's snapshots for an (instrument, expiry) pair
type Summary struct {
	ISTMinute       time.Time
	Instrument      string
	Expiry          time.Time
	UnderlyingPrice float64
	TotalNetGex     float64
	GammaFlipLevel  *float64
	OtmCallVega     float64
	OtmPutVega      float64
	OtmCallTheta    float64
	OtmPutTheta     float64
	OtmCallDelta    float64
	OtmPutDelta     float64
}

// InstrumentDay identifies one instrument's accumulated data for one IST
// calendar day, the unit of historical compaction.
type InstrumentDay struct {
	Instrument string
	Day        time.Time
}
