package database

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// magic is the leading 4-byte tag every persisted file on disk carries
// (spec §6: "all formats are versioned by a leading magic number and schema
// version; readers refuse unknown versions").
var magic = [4]byte{'S', 'N', 'T', 'L'}

// ErrBadMagic is returned when a file does not start with the expected
// magic number — i.e. it isn't one of ours, or it's corrupted.
var ErrBadMagic = fmt.Errorf("unrecognised file magic")

// ErrUnknownVersion is returned when the schema version is higher than
// this build knows how to read.
var ErrUnknownVersion = fmt.Errorf("unknown schema version")

// WriteVersioned atomically writes a magic+version+payload file: it writes
// to a temp file in the same directory, then renames over the destination,
// so a crash mid-write never corrupts the previous durable state (spec
// §4.2 registry persistence: "write-new-then-swap, or equivalent").
func WriteVersioned(path string, version uint32, payload []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	var buf bytes.Buffer
	buf.Write(magic[:])
	if err := binary.Write(&buf, binary.BigEndian, version); err != nil {
		tmp.Close()
		return err
	}
	buf.Write(payload)

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to swap into place: %w", err)
	}
	return nil
}

// ReadVersioned reads and validates a magic+version+payload file. maxVersion
// is the highest schema version this build understands; anything higher
// fails with ErrUnknownVersion (spec §6: "readers refuse unknown versions").
func ReadVersioned(path string, maxVersion uint32) (version uint32, payload []byte, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, nil, err
	}
	defer f.Close()

	var gotMagic [4]byte
	if _, err := io.ReadFull(f, gotMagic[:]); err != nil {
		return 0, nil, fmt.Errorf("reading magic: %w", err)
	}
	if gotMagic != magic {
		return 0, nil, ErrBadMagic
	}

	if err := binary.Read(f, binary.BigEndian, &version); err != nil {
		return 0, nil, fmt.Errorf("reading version: %w", err)
	}
	if version > maxVersion {
		return 0, nil, fmt.Errorf("%w: file version %d, max supported %d", ErrUnknownVersion, version, maxVersion)
	}

	payload, err = io.ReadAll(f)
	if err != nil {
		return 0, nil, fmt.Errorf("reading payload: %w", err)
	}
	return version, payload, nil
}
