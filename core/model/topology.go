package model

import "maps"

// Triple is a position in millimetres.
type Triple struct {
	X int64 `json:"x" yaml:"x"`
	Y int64 `json:"y" yaml:"y"`
	Z int64 `json:"z" yaml:"z"`
}

// Point is a node of the driving course.
type Point struct {
	Name       string            `json:"name" yaml:"name"`
	Type       PointType         `json:"type" yaml:"type"`
	Position   Triple            `json:"position" yaml:"position"`
	Properties map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// Clone returns a deep copy of p.
func (p Point) Clone() Point {
	p.Properties = maps.Clone(p.Properties)
	return p
}

// Path is a directed connection between two points.
type Path struct {
	Name               string            `json:"name" yaml:"name"`
	Source             string            `json:"source" yaml:"source"`
	Destination        string            `json:"destination" yaml:"destination"`
	Length             int64             `json:"length" yaml:"length"`
	MaxVelocity        int               `json:"max_velocity" yaml:"max_velocity"`
	MaxReverseVelocity int               `json:"max_reverse_velocity" yaml:"max_reverse_velocity"`
	Locked             bool              `json:"locked" yaml:"locked"`
	Properties         map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// Clone returns a deep copy of p.
func (p Path) Clone() Path {
	p.Properties = maps.Clone(p.Properties)
	return p
}

// Reversible reports whether vehicles may travel p from destination to source.
func (p Path) Reversible() bool {
	return p.MaxReverseVelocity > 0
}

// LocationType lists the operations allowed at locations of that type.
type LocationType struct {
	Name              string   `json:"name" yaml:"name"`
	AllowedOperations []string `json:"allowed_operations" yaml:"allowed_operations"`
}

// Clone returns a deep copy of t.
func (t LocationType) Clone() LocationType {
	t.AllowedOperations = append([]string(nil), t.AllowedOperations...)
	return t
}

// Allows reports whether op may be executed at locations of this type. The
// empty operation (a pure move) is always allowed.
func (t LocationType) Allows(op string) bool {
	if op == "" || op == OperationNop {
		return true
	}
	for _, a := range t.AllowedOperations {
		if a == op || a == "*" {
			return true
		}
	}
	return false
}

// Location is a station reachable through one or more linked points.
type Location struct {
	Name       string            `json:"name" yaml:"name"`
	Type       string            `json:"type" yaml:"type"`
	Position   Triple            `json:"position" yaml:"position"`
	Links      []string          `json:"links" yaml:"links"`
	Locked     bool              `json:"locked" yaml:"locked"`
	Properties map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// Clone returns a deep copy of l.
func (l Location) Clone() Location {
	l.Links = append([]string(nil), l.Links...)
	l.Properties = maps.Clone(l.Properties)
	return l
}

// PlantModel is a complete, detached copy of the plant topology and vehicles.
type PlantModel struct {
	Name          string            `json:"name" yaml:"name"`
	Properties    map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
	Points        []Point           `json:"points" yaml:"points"`
	Paths         []Path            `json:"paths" yaml:"paths"`
	LocationTypes []LocationType    `json:"location_types" yaml:"location_types"`
	Locations     []Location        `json:"locations" yaml:"locations"`
	Vehicles      []Vehicle         `json:"vehicles" yaml:"vehicles"`
}

// Clone returns a deep copy of m.
func (m PlantModel) Clone() PlantModel {
	c := PlantModel{Name: m.Name, Properties: maps.Clone(m.Properties)}
	for _, p := range m.Points {
		c.Points = append(c.Points, p.Clone())
	}
	for _, p := range m.Paths {
		c.Paths = append(c.Paths, p.Clone())
	}
	for _, t := range m.LocationTypes {
		c.LocationTypes = append(c.LocationTypes, t.Clone())
	}
	for _, l := range m.Locations {
		c.Locations = append(c.Locations, l.Clone())
	}
	for _, v := range m.Vehicles {
		c.Vehicles = append(c.Vehicles, v.Clone())
	}
	return c
}
