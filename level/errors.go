package level

import "errors"

// Sentinel errors returned while building a level.
var (
	// ErrInvalidGeometry is returned when the domain cannot be split into
	// equal cubic boxes (non-positive sizes, or Dim not a multiple of BoxDim).
	ErrInvalidGeometry = errors.New("level: invalid geometry")

	// ErrRankOutOfRange is returned when a rank outside [0, NumRanks) is requested.
	ErrRankOutOfRange = errors.New("level: rank out of range")
)
