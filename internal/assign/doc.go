// Package assign places filtered Home Assistant entities into HomeKit bridges
// by area and checks every bridge against the accessory capacity.
//
// Assignment is deterministic: entities are visited in registry order and
// appended to their bridge in that order, so unchanged registries always
// produce the same artifact.
//
// An area may belong to at most one bridge. Claiming an area twice, whether
// by the same reference or once by ID and once by name, is a *ConfigError.
//
// Capacity violations never truncate the result. Every overfull bridge is
// reported as a *CapacityError and the artifact still lists every entity so
// the operator can see what to move.
package assign
