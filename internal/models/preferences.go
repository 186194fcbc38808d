package models

// Preferences is the user preference record read once at startup. A missing
// or unreadable record falls back to DefaultPreferences.
type Preferences struct {
	Notifications    bool `json:"notifications"`
	ReadReceipts     bool `json:"read_receipts"`
	TypingIndicators bool `json:"typing_indicators"`
}

// DefaultPreferences returns the safe defaults used when no record exists.
func DefaultPreferences() Preferences {
	return Preferences{
		Notifications:    true,
		ReadReceipts:     true,
		TypingIndicators: true,
	}
}
