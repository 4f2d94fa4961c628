package plantmodel

import (
	"fmt"

	"github.com/kilianp07/agvkernel/core/errs"
	"github.com/kilianp07/agvkernel/core/model"
)

// Validate checks the referential integrity of a complete plant model without
// touching any store. It returns the first violation found.
func Validate(m model.PlantModel) error {
	points := make(map[string]struct{}, len(m.Points))
	for _, p := range m.Points {
		if err := checkName("point", p.Name); err != nil {
			return err
		}
		if _, dup := points[p.Name]; dup {
			return errs.NewObjectExistsError("point", p.Name)
		}
		points[p.Name] = struct{}{}
	}

	paths := make(map[string]struct{}, len(m.Paths))
	for _, p := range m.Paths {
		if _, dup := paths[p.Name]; dup {
			return errs.NewObjectExistsError("path", p.Name)
		}
		if err := validatePath(p, func(n string) bool { _, ok := points[n]; return ok }); err != nil {
			return err
		}
		paths[p.Name] = struct{}{}
	}

	types := make(map[string]struct{}, len(m.LocationTypes))
	for _, t := range m.LocationTypes {
		if err := checkName("location type", t.Name); err != nil {
			return err
		}
		if _, dup := types[t.Name]; dup {
			return errs.NewObjectExistsError("location type", t.Name)
		}
		types[t.Name] = struct{}{}
	}

	locations := make(map[string]struct{}, len(m.Locations))
	for _, l := range m.Locations {
		if _, dup := locations[l.Name]; dup {
			return errs.NewObjectExistsError("location", l.Name)
		}
		err := validateLocation(l,
			func(n string) bool { _, ok := types[n]; return ok },
			func(n string) bool { _, ok := points[n]; return ok })
		if err != nil {
			return err
		}
		locations[l.Name] = struct{}{}
	}

	vehicles := make(map[string]struct{}, len(m.Vehicles))
	for _, v := range m.Vehicles {
		if _, dup := vehicles[v.Name]; dup {
			return errs.NewObjectExistsError("vehicle", v.Name)
		}
		if err := validateVehicle(v); err != nil {
			return err
		}
		vehicles[v.Name] = struct{}{}
	}
	return nil
}

func checkName(kind, name string) error {
	if name == "" {
		return errs.NewIllegalArgumentError("name", kind+" name must not be empty")
	}
	return nil
}

func validatePath(p model.Path, pointExists func(string) bool) error {
	if err := checkName("path", p.Name); err != nil {
		return err
	}
	if p.Length <= 0 {
		return errs.NewIllegalArgumentError("length", fmt.Sprintf("path %q length must be positive", p.Name))
	}
	if p.MaxVelocity < 0 || p.MaxReverseVelocity < 0 {
		return errs.NewIllegalArgumentError("velocity", fmt.Sprintf("path %q velocity must not be negative", p.Name))
	}
	if !pointExists(p.Source) {
		return errs.NewObjectUnknownError("point", p.Source)
	}
	if !pointExists(p.Destination) {
		return errs.NewObjectUnknownError("point", p.Destination)
	}
	return nil
}

func validateLocation(l model.Location, typeExists, pointExists func(string) bool) error {
	if err := checkName("location", l.Name); err != nil {
		return err
	}
	if !typeExists(l.Type) {
		return errs.NewObjectUnknownError("location type", l.Type)
	}
	for _, link := range l.Links {
		if !pointExists(link) {
			return errs.NewObjectUnknownError("point", link)
		}
	}
	return nil
}

func validateVehicle(v model.Vehicle) error {
	if err := checkName("vehicle", v.Name); err != nil {
		return err
	}
	if v.Length < 0 {
		return errs.NewIllegalArgumentError("length", fmt.Sprintf("vehicle %q length must not be negative", v.Name))
	}
	for _, lvl := range []int{v.EnergyLevelCritical, v.EnergyLevelGood, v.EnergyLevelFullyRecharged, v.EnergyLevelSufficientlyRecharged} {
		if lvl < 0 || lvl > 100 {
			return errs.NewIllegalArgumentError("energy_level", fmt.Sprintf("vehicle %q thresholds must be within 0..100", v.Name))
		}
	}
	if v.EnergyLevelCritical > v.EnergyLevelGood {
		return errs.NewIllegalArgumentError("energy_level", fmt.Sprintf("vehicle %q critical threshold above good threshold", v.Name))
	}
	return nil
}
