package randsrc

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSeedSourceDeterministic(t *testing.T) {
	a := NewSeedSource(42)
	b := NewSeedSource(42)

	for i := 0; i < 50; i++ {
		if a.D20() != b.D20() {
			t.Fatalf("same seed produced divergent draws at iteration %d", i)
		}
	}
}

func TestSeedSourceDxRange(t *testing.T) {
	s := NewSeedSource(1)
	for i := 0; i < 1000; i++ {
		v := s.Dx(12)
		if v < 1 || v > 12 {
			t.Fatalf("Dx(12) = %d, out of range", v)
		}
	}
}

func TestSeedSourceIdentUnique(t *testing.T) {
	s := NewSeedSource(1)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := s.Ident("ref")
		if seen[id] {
			t.Fatalf("duplicate identifier %s", id)
		}
		seen[id] = true
	}
}

func TestSeedSourcePickRespectsWeights(t *testing.T) {
	s := NewSeedSource(7)
	counts := make([]int, 3)
	for i := 0; i < 1000; i++ {
		counts[s.Pick([]int{0, 1, 0})]++
	}
	if counts[0] != 0 || counts[2] != 0 {
		t.Fatalf("Pick chose a zero-weight index: %v", counts)
	}
	if counts[1] != 1000 {
		t.Fatalf("Pick should always choose the only nonzero weight: %v", counts)
	}
}

func TestFileSourceWrapsOnExhaustion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corpus.bin")
	if err := os.WriteFile(path, []byte{0x05}, 0o600); err != nil {
		t.Fatal(err)
	}

	fs, err := NewFileSource(path)
	if err != nil {
		t.Fatal(err)
	}
	defer fs.Close()

	for i := 0; i < 10; i++ {
		v := fs.Dx(6)
		if v < 1 || v > 6 {
			t.Fatalf("Dx(6) = %d out of range on wraparound draw %d", v, i)
		}
	}
}

func TestFileSourceRejectsEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.bin")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := NewFileSource(path); err == nil {
		t.Fatal("expected NewFileSource to reject an empty corpus file")
	}
}

func TestBytesForScalesWithRange(t *testing.T) {
	cases := []struct {
		n    int
		want int
	}{
		{6, 1}, {255, 1}, {1 << 8, 1},
		{(1 << 8) + 1, 2}, {1 << 16, 2},
		{(1 << 16) + 1, 3}, {1 << 24, 3},
		{(1 << 24) + 1, 4},
	}
	for _, c := range cases {
		if got := bytesFor(c.n); got != c.want {
			t.Errorf("bytesFor(%d) = %d, want %d", c.n, got, c.want)
		}
	}
}
