package checkpointer

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

// counter is a Serializable holding a single value
type counter struct {
	value int
}

func (c *counter) GobEncode() ([]byte, error) {
	return []byte(strconv.Itoa(c.value)), nil
}

func (c *counter) GobDecode(in []byte) error {
	v, err := strconv.Atoi(string(in))
	c.value = v
	return err
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obj.ckpt")
	if err := Save(path, Header{Iteration: 3, Reward: 1.5}, &counter{42}); err != nil {
		t.Fatal(err)
	}

	var c counter
	h, err := Load(path, &c)
	if err != nil {
		t.Fatal(err)
	}
	if c.value != 42 {
		t.Errorf("value: want(42) have(%v)", c.value)
	}
	if h.Version != Version || h.Iteration != 3 || h.Reward != 1.5 {
		t.Errorf("unexpected header %+v", h)
	}
	if h.Created.IsZero() {
		t.Error("creation time not set")
	}

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Errorf("expected only the checkpoint file, have %v", matches)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "none.ckpt"), &counter{})
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, have %v", err)
	}
}

func TestBestStrictImprovement(t *testing.T) {
	path := filepath.Join(t.TempDir(), "best.ckpt")
	c := &counter{}
	b := NewBest(path, c)

	rewards := []float64{-2, 1, 1, 0.5, 3, 3, -1}
	wantSaved := []bool{true, true, false, false, true, false, false}
	for i, r := range rewards {
		c.value = i
		saved, err := b.Checkpoint(i, r)
		if err != nil {
			t.Fatal(err)
		}
		if saved != wantSaved[i] {
			t.Errorf("iteration %v (reward %v): saved want(%v) have(%v)", i,
				r, wantSaved[i], saved)
		}
	}

	best, iter := b.Reward()
	if best != 3 || iter != 4 {
		t.Errorf("best: want(3, 4) have(%v, %v)", best, iter)
	}

	var loaded counter
	h, err := Load(b.Path(), &loaded)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.value != 4 || h.Reward != 3 {
		t.Errorf("best checkpoint holds value %v reward %v, want 4 and 3",
			loaded.value, h.Reward)
	}
}

func TestNStep(t *testing.T) {
	dir := t.TempDir()
	c := &counter{}
	n := NewNStep(2, c, FilenameEnumerator(0, filepath.Join(dir, "iter"),
		".ckpt"))

	for i := 0; i < 5; i++ {
		c.value = i
		saved, err := n.Checkpoint(i, 0)
		if err != nil {
			t.Fatal(err)
		}
		if want := i%2 == 1; saved != want {
			t.Errorf("iteration %v: saved want(%v) have(%v)", i, want, saved)
		}
	}

	var loaded counter
	if _, err := Load(filepath.Join(dir, "iter2.ckpt"), &loaded); err != nil {
		t.Fatal(err)
	}
	if loaded.value != 3 {
		t.Errorf("second checkpoint value: want(3) have(%v)", loaded.value)
	}
}
