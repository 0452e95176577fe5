// Package quality implements the stepped quality reduction used when a first
// encode overshoots its byte budget.
package quality

import (
	"context"
	"errors"
)

// Quality values are handled as integer tenths so the ladder never drifts.
const (
	restartTenths = 7
	floorTenths   = 1
)

const (
	// RestartQuality is where the search starts, independent of the quality
	// used for the first encode.
	RestartQuality = float64(restartTenths) / 10
	// FloorQuality is the lowest quality ever tried.
	FloorQuality = float64(floorTenths) / 10
	// Step is the decrement between attempts.
	Step = 0.1
	// MaxAttempts bounds the number of encodes a search performs.
	MaxAttempts = restartTenths - floorTenths + 1
)

// ErrEmptyEncode is returned when an encode attempt produced no bytes.
var ErrEmptyEncode = errors.New("encoder produced no output")

// EncodeFunc encodes the working image at the given quality in [0,1].
type EncodeFunc func(quality float64) ([]byte, error)

// Attempt is the encode a search settled on.
type Attempt struct {
	Data         []byte
	Quality      float64
	Attempts     int
	WithinBudget bool
}

// Ladder returns the qualities ReduceToBudget tries, in order.
func Ladder() []float64 {
	out := make([]float64, 0, MaxAttempts)
	for t := restartTenths; t >= floorTenths; t-- {
		out = append(out, float64(t)/10)
	}
	return out
}

// ReduceToBudget re-encodes at decreasing quality until the output fits in
// targetBytes or the floor quality has been tried. The floor encode is returned
// even when it is still over budget.
func ReduceToBudget(ctx context.Context, encode EncodeFunc, targetBytes int64) (*Attempt, error) {
	attempts := 0
	for t := restartTenths; t >= floorTenths; t-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		q := float64(t) / 10
		data, err := encode(q)
		attempts++
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, ErrEmptyEncode
		}

		within := int64(len(data)) <= targetBytes
		if within || t == floorTenths {
			return &Attempt{
				Data:         data,
				Quality:      q,
				Attempts:     attempts,
				WithinBudget: within,
			}, nil
		}
	}
	// unreachable: the floor iteration always returns
	return nil, ErrEmptyEncode
}
