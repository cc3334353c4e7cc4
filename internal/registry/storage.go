package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Registry file names inside the .storage directory.
const (
	AreaRegistryFile   = "core.area_registry"
	DeviceRegistryFile = "core.device_registry"
	EntityRegistryFile = "core.entity_registry"
	FloorRegistryFile  = "core.floor_registry"
)

// WatchedFiles lists the registry files whose changes affect generation.
var WatchedFiles = []string{AreaRegistryFile, DeviceRegistryFile, EntityRegistryFile, FloorRegistryFile}

// storageFile is the envelope Home Assistant wraps every .storage file in.
type storageFile[T any] struct {
	Version int    `json:"version"`
	Key     string `json:"key"`
	Data    T      `json:"data"`
}

type areaData struct {
	Areas []Area `json:"areas"`
}

type floorData struct {
	Floors []Floor `json:"floors"`
}

type deviceData struct {
	Devices []deviceRecord `json:"devices"`
}

type deviceRecord struct {
	ID          string  `json:"id"`
	AreaID      string  `json:"area_id"`
	Name        string  `json:"name"`
	NameByUser  string  `json:"name_by_user"`
	Identifiers [][]any `json:"identifiers"`
}

type entityData struct {
	Entities []entityRecord `json:"entities"`
}

type entityRecord struct {
	EntityID     string `json:"entity_id"`
	DeviceID     string `json:"device_id"`
	AreaID       string `json:"area_id"`
	Platform     string `json:"platform"`
	Name         string `json:"name"`
	OriginalName string `json:"original_name"`
	DisabledBy   string `json:"disabled_by"`
}

// LoadStorage reads the registries from a Home Assistant .storage directory.
// The floor registry is optional (older installs do not have one).
func LoadStorage(dir string) (*Snapshot, error) {
	var areas storageFile[areaData]
	if err := readStorageFile(dir, AreaRegistryFile, &areas); err != nil {
		return nil, err
	}

	var devices storageFile[deviceData]
	if err := readStorageFile(dir, DeviceRegistryFile, &devices); err != nil {
		return nil, err
	}

	var entities storageFile[entityData]
	if err := readStorageFile(dir, EntityRegistryFile, &entities); err != nil {
		return nil, err
	}

	var floors storageFile[floorData]
	if err := readStorageFile(dir, FloorRegistryFile, &floors); err != nil && !errors.Is(err, ErrRegistryNotFound) {
		return nil, err
	}

	return NewSnapshot(
		areas.Data.Areas,
		floors.Data.Floors,
		convertDevices(devices.Data.Devices),
		convertEntities(entities.Data.Entities),
	), nil
}

func readStorageFile(dir, name string, v any) error {
	path := filepath.Join(dir, name)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrRegistryNotFound, path)
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMalformedRegistry, path, err)
	}
	return nil
}

func convertDevices(records []deviceRecord) []Device {
	devices := make([]Device, 0, len(records))
	for _, r := range records {
		d := Device{
			ID:     r.ID,
			Name:   r.Name,
			AreaID: r.AreaID,
		}
		if r.NameByUser != "" {
			d.Name = r.NameByUser
		}
		// identifiers is a list of [domain, id] pairs; the first names the integration.
		if len(r.Identifiers) > 0 && len(r.Identifiers[0]) > 0 {
			d.Integration, _ = r.Identifiers[0][0].(string)
		}
		devices = append(devices, d)
	}
	return devices
}

func convertEntities(records []entityRecord) []Entity {
	entities := make([]Entity, 0, len(records))
	for _, r := range records {
		entities = append(entities, Entity(r))
	}
	return entities
}
