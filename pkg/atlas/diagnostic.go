package atlas

import (
	"fmt"
	"image"
)

// Kind is the outcome of a single slot.
type Kind int

const (
	// Composited means the slot's source was placed in the atlas.
	Composited Kind = iota
	// MissingSource means the loader could not resolve the identifier.
	MissingSource
	// SourceDecodeError means the source resolved but did not decode.
	SourceDecodeError
	// NormalizeFailure means the decoded image could not be converted to RGBA8.
	NormalizeFailure
)

var kindNames = [...]string{
	Composited:        "Composited",
	MissingSource:     "MissingSource",
	SourceDecodeError: "SourceDecodeError",
	NormalizeFailure:  "NormalizeFailure",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	if k < 0 || int(k) >= len(kindNames) {
		return nil, fmt.Errorf("unknown kind %d", int(k))
	}
	return []byte(kindNames[k]), nil
}

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(text []byte) error {
	for i, name := range kindNames {
		if name == string(text) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown kind %q", text)
}

// Failed reports whether the kind is one of the diagnostic kinds.
func (k Kind) Failed() bool { return k != Composited }

// Diagnostic records a slot that could not be composited.
type Diagnostic struct {
	Slot   int    `json:"slot"`
	Source string `json:"source"`
	Kind   Kind   `json:"kind"`
	Detail string `json:"detail"`
	Err    error  `json:"-"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("slot %d (%s): %s: %s", d.Slot, d.Source, d.Kind, d.Detail)
}

// SlotReport describes what happened to one slot during a build.
type SlotReport struct {
	Index      int
	Source     string
	Kind       Kind
	Origin     image.Point
	SourceSize image.Point // decoded size; zero when nothing decoded
	Clipped    bool        // source was larger than the tile
	Err        error
}

func (r SlotReport) diagnostic() Diagnostic {
	d := Diagnostic{Slot: r.Index, Source: r.Source, Kind: r.Kind, Err: r.Err}
	if r.Err != nil {
		d.Detail = r.Err.Error()
	}
	return d
}
