// Package particles implements the columnar marker-particle store. Each
// registered attribute is a typed column; all columns always share the
// same length once Update has committed pending growth.
package particles

import (
	"errors"
	"fmt"

	"github.com/pthm-cable/riptide/vecmath"
)

// Errors reported by the store.
var (
	ErrAttributeRedefined = errors.New("particles: attribute redefined with a different type")
	ErrUnknownAttribute   = errors.New("particles: unknown attribute")
)

// DataType identifies a column's element type.
type DataType uint8

const (
	TypeUndefined DataType = iota
	TypeVector3
	TypeFloat
	TypeInt
	TypeUInt16
	TypeUInt8
)

func (t DataType) String() string {
	switch t {
	case TypeVector3:
		return "vector3"
	case TypeFloat:
		return "float"
	case TypeInt:
		return "int"
	case TypeUInt16:
		return "uint16"
	case TypeUInt8:
		return "uint8"
	default:
		return "undefined"
	}
}

// Attribute is a handle to a registered column.
type Attribute struct {
	ID   int
	Name string
	Type DataType
}

// Canonical attribute names used across the pipeline.
const (
	AttrPosition  = "POSITION"
	AttrVelocity  = "VELOCITY"
	AttrAffineX   = "AFFINEX"
	AttrAffineY   = "AFFINEY"
	AttrAffineZ   = "AFFINEZ"
	AttrAge       = "AGE"
	AttrLifetime  = "LIFETIME"
	AttrColor     = "COLOR"
	AttrSourceID  = "SOURCEID"
	AttrViscosity = "VISCOSITY"
	AttrID        = "ID"
)

type column struct {
	attr Attribute

	vec3Values   []vecmath.Vec3
	floatValues  []float32
	intValues    []int32
	uint16Values []uint16
	uint8Values  []uint8

	vec3Default   vecmath.Vec3
	floatDefault  float32
	intDefault    int32
	uint16Default uint16
	uint8Default  uint8
}

func (c *column) length() int {
	switch c.attr.Type {
	case TypeVector3:
		return len(c.vec3Values)
	case TypeFloat:
		return len(c.floatValues)
	case TypeInt:
		return len(c.intValues)
	case TypeUInt16:
		return len(c.uint16Values)
	case TypeUInt8:
		return len(c.uint8Values)
	}
	return 0
}

// System is the particle store. It is single-owner: only the main
// simulation goroutine mutates it.
type System struct {
	columns []*column
	byName  map[string]*column
	size    int
}

// NewSystem creates an empty store.
func NewSystem() *System {
	return &System{byName: make(map[string]*column)}
}

func (s *System) addAttribute(name string, t DataType) (*column, error) {
	if c, ok := s.byName[name]; ok {
		if c.attr.Type != t {
			return nil, fmt.Errorf("%w: %q is %s, requested %s",
				ErrAttributeRedefined, name, c.attr.Type, t)
		}
		return c, nil
	}
	c := &column{attr: Attribute{ID: len(s.columns), Name: name, Type: t}}
	s.columns = append(s.columns, c)
	s.byName[name] = c
	// New columns start padded to the current size with defaults.
	s.padColumn(c, s.size)
	return c, nil
}

func (s *System) padColumn(c *column, n int) {
	for c.length() < n {
		switch c.attr.Type {
		case TypeVector3:
			c.vec3Values = append(c.vec3Values, c.vec3Default)
		case TypeFloat:
			c.floatValues = append(c.floatValues, c.floatDefault)
		case TypeInt:
			c.intValues = append(c.intValues, c.intDefault)
		case TypeUInt16:
			c.uint16Values = append(c.uint16Values, c.uint16Default)
		case TypeUInt8:
			c.uint8Values = append(c.uint8Values, c.uint8Default)
		}
	}
}

// AddAttributeVector3 registers (or re-fetches) a vec3 column.
func (s *System) AddAttributeVector3(name string, def vecmath.Vec3) (Attribute, error) {
	c, err := s.addAttribute(name, TypeVector3)
	if err != nil {
		return Attribute{}, err
	}
	c.vec3Default = def
	return c.attr, nil
}

// AddAttributeFloat registers (or re-fetches) a float column.
func (s *System) AddAttributeFloat(name string, def float32) (Attribute, error) {
	c, err := s.addAttribute(name, TypeFloat)
	if err != nil {
		return Attribute{}, err
	}
	c.floatDefault = def
	return c.attr, nil
}

// AddAttributeInt registers (or re-fetches) an int column.
func (s *System) AddAttributeInt(name string, def int32) (Attribute, error) {
	c, err := s.addAttribute(name, TypeInt)
	if err != nil {
		return Attribute{}, err
	}
	c.intDefault = def
	return c.attr, nil
}

// AddAttributeUInt16 registers (or re-fetches) a uint16 column.
func (s *System) AddAttributeUInt16(name string, def uint16) (Attribute, error) {
	c, err := s.addAttribute(name, TypeUInt16)
	if err != nil {
		return Attribute{}, err
	}
	c.uint16Default = def
	return c.attr, nil
}

// AddAttributeUInt8 registers (or re-fetches) a uint8 column.
func (s *System) AddAttributeUInt8(name string, def uint8) (Attribute, error) {
	c, err := s.addAttribute(name, TypeUInt8)
	if err != nil {
		return Attribute{}, err
	}
	c.uint8Default = def
	return c.attr, nil
}

// HasAttribute reports whether a column named name exists.
func (s *System) HasAttribute(name string) bool {
	_, ok := s.byName[name]
	return ok
}

// GetAttribute returns the handle for a registered column.
func (s *System) GetAttribute(name string) (Attribute, error) {
	c, ok := s.byName[name]
	if !ok {
		return Attribute{}, fmt.Errorf("%w: %q", ErrUnknownAttribute, name)
	}
	return c.attr, nil
}

// Attributes lists all registered column handles in registration order.
func (s *System) Attributes() []Attribute {
	out := make([]Attribute, len(s.columns))
	for i, c := range s.columns {
		out[i] = c.attr
	}
	return out
}

func (s *System) mustColumn(name string, t DataType) *column {
	c, ok := s.byName[name]
	if !ok {
		panic(fmt.Sprintf("particles: unknown attribute %q", name))
	}
	if c.attr.Type != t {
		panic(fmt.Sprintf("particles: attribute %q is %s, accessed as %s",
			name, c.attr.Type, t))
	}
	return c
}

// ValuesVector3 returns a mutable reference to a vec3 column. Callers that
// append must call Update before the next read of Size-dependent state.
func (s *System) ValuesVector3(name string) *[]vecmath.Vec3 {
	return &s.mustColumn(name, TypeVector3).vec3Values
}

// ValuesFloat returns a mutable reference to a float column.
func (s *System) ValuesFloat(name string) *[]float32 {
	return &s.mustColumn(name, TypeFloat).floatValues
}

// ValuesInt returns a mutable reference to an int column.
func (s *System) ValuesInt(name string) *[]int32 {
	return &s.mustColumn(name, TypeInt).intValues
}

// ValuesUInt16 returns a mutable reference to a uint16 column.
func (s *System) ValuesUInt16(name string) *[]uint16 {
	return &s.mustColumn(name, TypeUInt16).uint16Values
}

// ValuesUInt8 returns a mutable reference to a uint8 column.
func (s *System) ValuesUInt8(name string) *[]uint8 {
	return &s.mustColumn(name, TypeUInt8).uint8Values
}

// Size returns the committed particle count.
func (s *System) Size() int {
	return s.size
}

// Empty reports whether the store has no particles.
func (s *System) Empty() bool {
	return s.size == 0
}

// Reserve grows every column's capacity to at least n.
func (s *System) Reserve(n int) {
	for _, c := range s.columns {
		switch c.attr.Type {
		case TypeVector3:
			if cap(c.vec3Values) < n {
				grown := make([]vecmath.Vec3, len(c.vec3Values), n)
				copy(grown, c.vec3Values)
				c.vec3Values = grown
			}
		case TypeFloat:
			if cap(c.floatValues) < n {
				grown := make([]float32, len(c.floatValues), n)
				copy(grown, c.floatValues)
				c.floatValues = grown
			}
		case TypeInt:
			if cap(c.intValues) < n {
				grown := make([]int32, len(c.intValues), n)
				copy(grown, c.intValues)
				c.intValues = grown
			}
		case TypeUInt16:
			if cap(c.uint16Values) < n {
				grown := make([]uint16, len(c.uint16Values), n)
				copy(grown, c.uint16Values)
				c.uint16Values = grown
			}
		case TypeUInt8:
			if cap(c.uint8Values) < n {
				grown := make([]uint8, len(c.uint8Values), n)
				copy(grown, c.uint8Values)
				c.uint8Values = grown
			}
		}
	}
}

// Update commits pending column growth: the new size is the longest
// column, and shorter columns are padded with their defaults.
func (s *System) Update() {
	maxLen := 0
	for _, c := range s.columns {
		if l := c.length(); l > maxLen {
			maxLen = l
		}
	}
	for _, c := range s.columns {
		s.padColumn(c, maxLen)
	}
	s.size = maxLen
}

// RemoveParticles deletes every slot whose mask entry is true, preserving
// the relative order of kept slots. The mask must cover the committed
// size.
func (s *System) RemoveParticles(remove []bool) {
	if len(remove) != s.size {
		panic(fmt.Sprintf("particles: removal mask length %d != size %d",
			len(remove), s.size))
	}
	kept := 0
	for _, r := range remove {
		if !r {
			kept++
		}
	}
	if kept == s.size {
		return
	}

	for _, c := range s.columns {
		switch c.attr.Type {
		case TypeVector3:
			c.vec3Values = compact(c.vec3Values, remove)
		case TypeFloat:
			c.floatValues = compact(c.floatValues, remove)
		case TypeInt:
			c.intValues = compact(c.intValues, remove)
		case TypeUInt16:
			c.uint16Values = compact(c.uint16Values, remove)
		case TypeUInt8:
			c.uint8Values = compact(c.uint8Values, remove)
		}
	}
	s.size = kept
}

func compact[T any](values []T, remove []bool) []T {
	out := 0
	for i, r := range remove {
		if !r {
			values[out] = values[i]
			out++
		}
	}
	return values[:out]
}

// IsSchemaEqual reports whether other has identical columns in the same
// order.
func (s *System) IsSchemaEqual(other *System) bool {
	if len(s.columns) != len(other.columns) {
		return false
	}
	for i, c := range s.columns {
		o := other.columns[i]
		if c.attr.Name != o.attr.Name || c.attr.Type != o.attr.Type {
			return false
		}
	}
	return true
}

// GenerateEmptyCopy returns a new store with the same schema and no
// particles.
func (s *System) GenerateEmptyCopy() *System {
	out := NewSystem()
	for _, c := range s.columns {
		nc := &column{attr: Attribute{ID: len(out.columns), Name: c.attr.Name, Type: c.attr.Type}}
		nc.vec3Default = c.vec3Default
		nc.floatDefault = c.floatDefault
		nc.intDefault = c.intDefault
		nc.uint16Default = c.uint16Default
		nc.uint8Default = c.uint8Default
		out.columns = append(out.columns, nc)
		out.byName[nc.attr.Name] = nc
	}
	return out
}

// Merge appends all of other's particles. Schemas must be equal.
func (s *System) Merge(other *System) error {
	if !s.IsSchemaEqual(other) {
		return errors.New("particles: merge schema mismatch")
	}
	for i, c := range s.columns {
		o := other.columns[i]
		c.vec3Values = append(c.vec3Values, o.vec3Values...)
		c.floatValues = append(c.floatValues, o.floatValues...)
		c.intValues = append(c.intValues, o.intValues...)
		c.uint16Values = append(c.uint16Values, o.uint16Values...)
		c.uint8Values = append(c.uint8Values, o.uint8Values...)
	}
	s.size += other.size
	return nil
}
