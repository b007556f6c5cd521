package vector

import (
	"errors"
	"fmt"
	"strings"

	"github.com/qdrant/go-client/qdrant"
)

var (
	// ErrInvalidVectorSpec is returned when a collection schema fails validation.
	ErrInvalidVectorSpec = errors.New("invalid vector spec")

	// ErrUnsupportedDistance is returned for an unknown distance name.
	ErrUnsupportedDistance = errors.New("unsupported distance")
)

// ParseDistance resolves a distance name. Accepted, case-insensitively: COSINE or COS,
// DOT, IP or INNER, EUCLID or L2.
func ParseDistance(name string) (qdrant.Distance, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "COSINE", "COS":
		return qdrant.Distance_Cosine, nil
	case "DOT", "IP", "INNER":
		return qdrant.Distance_Dot, nil
	case "EUCLID", "L2":
		return qdrant.Distance_Euclid, nil
	default:
		return qdrant.Distance_UnknownDistance, fmt.Errorf("%w: %q", ErrUnsupportedDistance, name)
	}
}

// VectorSpace is the dimension and metric of one vector slot.
type VectorSpace struct {
	Size     uint64
	Distance qdrant.Distance
}

// NamedSpace is a vector slot of a multi-vector collection.
type NamedSpace struct {
	Name string
	VectorSpace
}

// VectorSpec is a collection schema: either one unnamed space or a set of named ones.
type VectorSpec struct {
	Single *VectorSpace
	Named  []NamedSpace
}

// SingleSpec declares a collection with one unnamed vector.
func SingleSpec(size uint64, distance qdrant.Distance) VectorSpec {
	return VectorSpec{Single: &VectorSpace{Size: size, Distance: distance}}
}

// NamedSpec declares a collection with named vector slots.
func NamedSpec(spaces ...NamedSpace) VectorSpec {
	return VectorSpec{Named: spaces}
}

// Space looks up the space for a slot name. The empty name selects the unnamed vector.
func (s VectorSpec) Space(name string) (VectorSpace, bool) {
	if s.Single != nil {
		if name != "" {
			return VectorSpace{}, false
		}
		return *s.Single, true
	}
	for _, ns := range s.Named {
		if ns.Name == name {
			return ns.VectorSpace, true
		}
	}
	return VectorSpace{}, false
}

// IsNamed reports whether the schema uses named slots.
func (s VectorSpec) IsNamed() bool {
	return s.Single == nil
}

// Validate checks that dimensions are positive, distances known, and slot names
// non-empty and unique.
func (s VectorSpec) Validate() error {
	if s.Single != nil && len(s.Named) > 0 {
		return fmt.Errorf("%w: both a single and named vectors declared", ErrInvalidVectorSpec)
	}
	if s.Single != nil {
		return s.Single.validate("")
	}
	if len(s.Named) == 0 {
		return fmt.Errorf("%w: at least one vector must be declared", ErrInvalidVectorSpec)
	}

	seen := make(map[string]bool, len(s.Named))
	for _, ns := range s.Named {
		if ns.Name == "" {
			return fmt.Errorf("%w: vector name must be non-empty", ErrInvalidVectorSpec)
		}
		if seen[ns.Name] {
			return fmt.Errorf("%w: duplicate vector name %q", ErrInvalidVectorSpec, ns.Name)
		}
		seen[ns.Name] = true
		if err := ns.validate(ns.Name); err != nil {
			return err
		}
	}
	return nil
}

func (v VectorSpace) validate(name string) error {
	label := "vector"
	if name != "" {
		label = fmt.Sprintf("vector %q", name)
	}
	if v.Size == 0 {
		return fmt.Errorf("%w: %s size must be positive", ErrInvalidVectorSpec, label)
	}
	switch v.Distance {
	case qdrant.Distance_Cosine, qdrant.Distance_Dot, qdrant.Distance_Euclid, qdrant.Distance_Manhattan:
		return nil
	default:
		return fmt.Errorf("%w: %s has no distance", ErrInvalidVectorSpec, label)
	}
}

func (v VectorSpace) params() *qdrant.VectorParams {
	return &qdrant.VectorParams{Size: v.Size, Distance: v.Distance}
}

// vectorsConfig converts a validated spec into the collection's vectors config.
func (s VectorSpec) vectorsConfig() *qdrant.VectorsConfig {
	if s.Single != nil {
		return &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{Params: s.Single.params()},
		}
	}
	m := make(map[string]*qdrant.VectorParams, len(s.Named))
	for _, ns := range s.Named {
		m[ns.Name] = ns.params()
	}
	return &qdrant.VectorsConfig{
		Config: &qdrant.VectorsConfig_ParamsMap{ParamsMap: &qdrant.VectorParamsMap{Map: m}},
	}
}

// specFromConfig reads a schema back from a collection's vectors config. Named slots
// come back in map order.
func specFromConfig(cfg *qdrant.VectorsConfig) VectorSpec {
	if p := cfg.GetParams(); p != nil {
		return SingleSpec(p.GetSize(), p.GetDistance())
	}
	var spec VectorSpec
	for name, p := range cfg.GetParamsMap().GetMap() {
		spec.Named = append(spec.Named, NamedSpace{
			Name:        name,
			VectorSpace: VectorSpace{Size: p.GetSize(), Distance: p.GetDistance()},
		})
	}
	return spec
}
