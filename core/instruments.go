package core

// Instrument represents a tracked underlying with its option-chain parameters
type Instrument struct {
	SecurityID      string
	UnderlyingScrip int
	Segment         string
	LotSize         int
	StrikeRange     float64
	ExpiryLimit     int
	Enabled         bool
}

// Instruments represents all configured underlyings
type Instruments struct {
	NIFTY     Instrument
	BANKNIFTY Instrument
}

// GetInstruments returns the instrument registry
var GetInstruments = func() Instruments {
	return Instruments{
		NIFTY: Instrument{
			SecurityID:      "NIFTY",
			UnderlyingScrip: 13,
			Segment:         "IDX_I",
			LotSize:         75,
			StrikeRange:     50,
			ExpiryLimit:     7,
			Enabled:         true,
		},
		BANKNIFTY: Instrument{
			SecurityID:      "BANKNIFTY",
			UnderlyingScrip: 25,
			Segment:         "IDX_I",
			LotSize:         25,
			StrikeRange:     100,
			ExpiryLimit:     3,
			Enabled:         true,
		},
	}
}

// GetAll returns a slice of all enabled instruments
func (i Instruments) GetAll() []Instrument {
	instruments := make([]Instrument, 0, 2)

	if i.NIFTY.Enabled {
		instruments = append(instruments, i.NIFTY)
	}
	if i.BANKNIFTY.Enabled {
		instruments = append(instruments, i.BANKNIFTY)
	}

	return instruments
}

// GetByID returns an Instrument by its security ID
func (i Instruments) GetByID(id string) *Instrument {
	switch id {
	case "NIFTY":
		return &i.NIFTY
	case "BANKNIFTY":
		return &i.BANKNIFTY
	default:
		return nil
	}
}
