package domain

// PriceObservation is one polled spot price of a mint.
type PriceObservation struct {
	Mint        string
	VsToken     string
	Price       float64
	Source      string
	TimestampMs int64
}
