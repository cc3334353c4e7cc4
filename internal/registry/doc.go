// Package registry reads the Home Assistant area, device, entity and floor
// registries from the .storage directory.
//
// The registries are read fresh for every run and exposed through Reader,
// a read-only view with three lookups:
//
//	reader.Entities()      // every entity, in registry order
//	reader.Device(id)      // owning device, if any
//	reader.Area(id)        // area by ID
//
// Nothing in this package writes to the registries.
package registry
