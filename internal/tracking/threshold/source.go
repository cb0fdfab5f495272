// Package threshold normalizes the collaborator shapes that can feed
// indicator values into the event tracker. Resolution happens once at
// construction; after that every source satisfies the same contract:
// one value per scenario for the current timestep, non-zero meaning
// active.
package threshold

import (
	"errors"
	"fmt"
)

// ErrUnsupportedSource is returned when a collaborator is none of the
// recognized shapes. There is no silent fallback.
var ErrUnsupportedSource = errors.New("threshold: unsupported source type")

// Source yields the current indicator value for every scenario.
type Source interface {
	CurrentValues() []float64
}

// Recorder exposes recorded values per scenario.
type Recorder interface {
	Values() []float64
}

// Parameter exposes continuous values per scenario.
type Parameter interface {
	AllValues() []float64
}

// IndexParameter exposes discrete index values per scenario.
type IndexParameter interface {
	AllIndices() []int
}

// Resolve adapts a collaborator to the normalized Source contract.
// IndexParameter is checked before Parameter so collaborators
// implementing both report their indices.
func Resolve(collaborator any) (Source, error) {
	switch c := collaborator.(type) {
	case Source:
		return c, nil
	case IndexParameter:
		return indexSource{parameter: c}, nil
	case Recorder:
		return recorderSource{recorder: c}, nil
	case Parameter:
		return parameterSource{parameter: c}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedSource, collaborator)
	}
}

type recorderSource struct {
	recorder Recorder
}

func (s recorderSource) CurrentValues() []float64 {
	return s.recorder.Values()
}

type parameterSource struct {
	parameter Parameter
}

func (s parameterSource) CurrentValues() []float64 {
	return s.parameter.AllValues()
}

type indexSource struct {
	parameter IndexParameter
}

func (s indexSource) CurrentValues() []float64 {
	indices := s.parameter.AllIndices()
	values := make([]float64, len(indices))
	for i, index := range indices {
		values[i] = float64(index)
	}
	return values
}
