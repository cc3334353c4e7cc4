package apply

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/zeebo/blake3"

	"github.com/nerrad567/homekit-bridge-manager/internal/atomicfile"
)

// backupTimeFormat matches the backup names operators already know.
const backupTimeFormat = "20060102_150405"

// maxBackupSuffix bounds the search for a free backup name within one second.
const maxBackupSuffix = 100

// digest is the BLAKE3-256 sum of a file's bytes.
type digest [32]byte

func digestOf(data []byte) digest {
	return blake3.Sum256(data)
}

// backup is a verified copy of the config taken before mutation.
type backup struct {
	path   string
	digest digest
}

// BackupPath returns the backup name for a config file at the given time.
func BackupPath(configPath string, at time.Time) string {
	return configPath + ".backup." + at.Format(backupTimeFormat)
}

// writeBackup creates a new backup of data next to configPath. It never
// overwrites an existing file; a name collision within the same second gets
// a numeric suffix. The written copy is re-read and its digest checked.
func writeBackup(configPath string, data []byte, mode os.FileMode, at time.Time) (*backup, error) {
	base := BackupPath(configPath, at)
	want := digestOf(data)

	for i := 0; i < maxBackupSuffix; i++ {
		path := base
		if i > 0 {
			path = fmt.Sprintf("%s_%d", base, i)
		}

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("creating backup: %w", err)
		}

		if _, err := f.Write(data); err != nil {
			f.Close()
			return nil, fmt.Errorf("writing backup %s: %w", path, err)
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return nil, fmt.Errorf("syncing backup %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return nil, fmt.Errorf("closing backup %s: %w", path, err)
		}

		written, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("re-reading backup %s: %w", path, err)
		}
		if digestOf(written) != want {
			return nil, fmt.Errorf("%w: %s", ErrBackupCorrupt, path)
		}

		return &backup{path: path, digest: want}, nil
	}

	return nil, fmt.Errorf("no free backup name after %d attempts: %s", maxBackupSuffix, base)
}

// restoreTo writes the backup over configPath and checks the result.
func (b *backup) restoreTo(configPath string, mode os.FileMode) error {
	data, err := os.ReadFile(b.path)
	if err != nil {
		return fmt.Errorf("reading backup: %w", err)
	}
	if digestOf(data) != b.digest {
		return fmt.Errorf("%w: %s", ErrBackupCorrupt, b.path)
	}

	if err := atomicfile.Write(configPath, data, mode); err != nil {
		return err
	}

	restored, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("re-reading restored file: %w", err)
	}
	if digestOf(restored) != b.digest {
		return fmt.Errorf("%w: restored %s differs from backup", ErrBackupCorrupt, configPath)
	}
	return nil
}
