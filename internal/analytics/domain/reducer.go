package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownReducer is returned when a reducer name cannot be parsed.
var ErrUnknownReducer = errors.New("analytics: unknown reducer")

// Reducer collapses a group of duration values into one scalar.
type Reducer func(values []float64) float64

// Sum adds all values. This is the default reducer.
func Sum(values []float64) float64 {
	var total float64
	for _, value := range values {
		total += value
	}
	return total
}

// Mean averages all values; zero for an empty group.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return Sum(values) / float64(len(values))
}

// Max returns the largest value; zero for an empty group.
func Max(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	max := values[0]
	for _, value := range values[1:] {
		if value > max {
			max = value
		}
	}
	return max
}

// Min returns the smallest value; zero for an empty group.
func Min(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	min := values[0]
	for _, value := range values[1:] {
		if value < min {
			min = value
		}
	}
	return min
}

// Count returns the number of values.
func Count(values []float64) float64 {
	return float64(len(values))
}

// ParseReducer maps a configuration name to a reducer. The empty
// string selects the default (sum).
func ParseReducer(name string) (Reducer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sum":
		return Sum, nil
	case "mean", "average":
		return Mean, nil
	case "max":
		return Max, nil
	case "min":
		return Min, nil
	case "count":
		return Count, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownReducer, name)
	}
}
