// Package checkpointer implements versioned snapshots of serializable
// objects and policies deciding when snapshots are taken
package checkpointer

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Version is the current checkpoint file format version
const Version = 1

// Serializable is an object that can be saved/serialized
type Serializable interface {
	gob.GobEncoder
	gob.GobDecoder
}

// Checkpointer checkpoints serializable objects based on the results
// of training iterations. Checkpoint returns whether a checkpoint was
// written.
type Checkpointer interface {
	Checkpoint(iteration int, reward float64) (bool, error)
}

// Header describes a checkpoint
type Header struct {
	Version   int
	Iteration int
	Reward    float64
	Created   time.Time
}

// Save writes the header followed by the gob encoding of object to
// path. The file is written to a temporary file in the same directory
// first and then renamed, so that an existing checkpoint at path is
// only replaced by a complete one.
func Save(path string, h Header, object Serializable) error {
	h.Version = Version
	if h.Created.IsZero() {
		h.Created = time.Now()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	enc := gob.NewEncoder(w)
	if err := enc.Encode(h); err != nil {
		tmp.Close()
		return fmt.Errorf("save: could not encode header: %v", err)
	}
	if err := enc.Encode(object); err != nil {
		tmp.Close()
		return fmt.Errorf("save: could not encode object: %v", err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("save: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

// Load decodes the checkpoint at path into object and returns its
// header
func Load(path string, object Serializable) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, fmt.Errorf("load: %w", err)
	}
	defer f.Close()

	dec := gob.NewDecoder(bufio.NewReader(f))
	var h Header
	if err := dec.Decode(&h); err != nil {
		return Header{}, fmt.Errorf("load: could not decode header: %v", err)
	}
	if h.Version != Version {
		return h, fmt.Errorf("load: unsupported checkpoint version %v, "+
			"expected %v", h.Version, Version)
	}
	if err := dec.Decode(object); err != nil {
		return h, fmt.Errorf("load: could not decode object: %v", err)
	}
	return h, nil
}
