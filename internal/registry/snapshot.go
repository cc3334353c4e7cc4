package registry

// Snapshot is an in-memory copy of the registries. It implements Reader.
//
// Snapshots are immutable after construction and safe for concurrent reads.
type Snapshot struct {
	areas    []Area
	floors   []Floor
	devices  []Device
	entities []Entity

	areaByID   map[string]int
	floorByID  map[string]int
	deviceByID map[string]int
}

// NewSnapshot builds a Snapshot from already-decoded registry contents.
// Entity order is preserved as given.
func NewSnapshot(areas []Area, floors []Floor, devices []Device, entities []Entity) *Snapshot {
	s := &Snapshot{
		areas:      append([]Area(nil), areas...),
		floors:     append([]Floor(nil), floors...),
		devices:    append([]Device(nil), devices...),
		entities:   append([]Entity(nil), entities...),
		areaByID:   make(map[string]int, len(areas)),
		floorByID:  make(map[string]int, len(floors)),
		deviceByID: make(map[string]int, len(devices)),
	}

	for i, a := range s.areas {
		s.areaByID[a.ID] = i
	}
	for i, f := range s.floors {
		s.floorByID[f.ID] = i
	}
	for i, d := range s.devices {
		s.deviceByID[d.ID] = i
	}

	return s
}

// Entities returns a copy of every entity in registry order.
func (s *Snapshot) Entities() []Entity {
	return append([]Entity(nil), s.entities...)
}

// Device returns the device with the given ID.
func (s *Snapshot) Device(id string) (Device, bool) {
	i, ok := s.deviceByID[id]
	if !ok {
		return Device{}, false
	}
	return s.devices[i], true
}

// Area returns the area with the given ID.
func (s *Snapshot) Area(id string) (Area, bool) {
	i, ok := s.areaByID[id]
	if !ok {
		return Area{}, false
	}
	return s.areas[i], true
}

// Areas returns a copy of every area in registry order.
func (s *Snapshot) Areas() []Area {
	return append([]Area(nil), s.areas...)
}

// Floor returns the floor with the given ID.
func (s *Snapshot) Floor(id string) (Floor, bool) {
	i, ok := s.floorByID[id]
	if !ok {
		return Floor{}, false
	}
	return s.floors[i], true
}

// Counts returns the number of areas, devices and entities.
func (s *Snapshot) Counts() (areas, devices, entities int) {
	return len(s.areas), len(s.devices), len(s.entities)
}
