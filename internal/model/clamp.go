package model

// Clamp status bits carried on every location sample. The clamp controller
// reports "clamps open" and "clamps closed" as independent bits; a pickup is
// the falling edge of the open bit, a drop the rising edge of the closed bit.
const (
	ClampOpenBit   byte = 0x80
	ClampClosedBit byte = 0x40
)

// ClampSignal is the result of comparing two consecutive clamp status bytes.
// Both edges can fire on the same sample; the monitor processes pickup first.
type ClampSignal struct {
	Pickup bool
	Drop   bool
}

// None reports whether neither edge fired.
func (s ClampSignal) None() bool { return !s.Pickup && !s.Drop }

// DetectClampEdges compares the previous and current clamp status bytes and
// returns which signals fired. The detector is purely functional; the caller
// owns the previous-status state.
func DetectClampEdges(prev, curr byte) ClampSignal {
	return ClampSignal{
		Pickup: prev&ClampOpenBit != 0 && curr&ClampOpenBit == 0,
		Drop:   prev&ClampClosedBit == 0 && curr&ClampClosedBit != 0,
	}
}
