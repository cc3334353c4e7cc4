package registry

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Area is a room or zone. Bridge membership is decided per area.
type Area struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	FloorID string `json:"floor_id,omitempty"`
}

// Floor groups areas. Only used for planning suggestions.
type Floor struct {
	ID    string `json:"floor_id"`
	Name  string `json:"name"`
	Level *int   `json:"level,omitempty"`
}

// Device is a physical or logical device owning entities.
type Device struct {
	ID     string
	Name   string
	AreaID string

	// Integration is the domain of the integration that created the device.
	Integration string
}

// Entity is a single entity registry entry.
type Entity struct {
	EntityID     string
	DeviceID     string
	AreaID       string
	Platform     string
	Name         string
	OriginalName string
	DisabledBy   string
}

// Domain returns the part of the entity ID before the first dot.
func (e Entity) Domain() string {
	domain, _, _ := strings.Cut(e.EntityID, ".")
	return domain
}

// ObjectID returns the part of the entity ID after the first dot.
func (e Entity) ObjectID() string {
	_, object, found := strings.Cut(e.EntityID, ".")
	if !found {
		return e.EntityID
	}
	return object
}

// Disabled reports whether Home Assistant has the entity disabled.
func (e Entity) Disabled() bool {
	return e.DisabledBy != ""
}

// FriendlyName returns the user-facing name: the user override, then the
// integration-provided name, then a title-cased object ID.
func (e Entity) FriendlyName() string {
	if e.Name != "" {
		return e.Name
	}
	if e.OriginalName != "" {
		return e.OriginalName
	}

	words := strings.Fields(strings.ReplaceAll(e.ObjectID(), "_", " "))
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToTitle(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}

// Reader is a read-only view of the registries.
type Reader interface {
	// Entities returns every entity in registry order.
	Entities() []Entity

	// Device returns the device with the given ID.
	Device(id string) (Device, bool)

	// Area returns the area with the given ID.
	Area(id string) (Area, bool)
}

// AreaLister is implemented by readers that can enumerate every area.
type AreaLister interface {
	Areas() []Area
}

// AreaRef returns the area reference for an entity: its own override if set,
// otherwise its device's area. Empty when neither is set.
func AreaRef(e Entity, d *Device) string {
	if e.AreaID != "" {
		return e.AreaID
	}
	if d != nil {
		return d.AreaID
	}
	return ""
}

// ResolveArea returns the entity's area if the reference points at an area
// present in the registry.
func ResolveArea(r Reader, e Entity) (Area, bool) {
	var device *Device
	if e.DeviceID != "" {
		if d, ok := r.Device(e.DeviceID); ok {
			device = &d
		}
	}

	ref := AreaRef(e, device)
	if ref == "" {
		return Area{}, false
	}
	return r.Area(ref)
}
