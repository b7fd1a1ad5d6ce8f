package randsrc

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// FileSource reads bytes from a fixed file, consuming 1, 2, 3, or 4 bytes
// per draw depending on the requested range, and wrapping to the start of
// the file when it is exhausted. A fsnotify watcher invalidates the cached
// byte snapshot whenever the file is rewritten, so a coverage-guided front
// end (AFL-style) can drive generation by overwriting the file mid-run
// without the fuzzer process restarting.
type FileSource struct {
	path string

	mu   sync.Mutex
	data []byte
	pos  int

	watcher *fsnotify.Watcher
	dirty   atomic.Bool
	counter atomic.Uint64
}

// NewFileSource opens path and starts watching it for rewrites. Close
// should be called when the source is no longer needed to stop the
// watcher goroutine.
func NewFileSource(path string) (*FileSource, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is operator-supplied replay input
	if err != nil {
		return nil, fmt.Errorf("randsrc: open replay file: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("randsrc: replay file %s is empty", path)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("randsrc: watch replay file: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("randsrc: watch replay file: %w", err)
	}

	fs := &FileSource{path: path, data: data, watcher: watcher}
	go fs.watchLoop()
	return fs, nil
}

// Close stops the file watcher.
func (f *FileSource) Close() error {
	return f.watcher.Close()
}

func (f *FileSource) watchLoop() {
	for {
		select {
		case ev, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				f.dirty.Store(true)
			}
		case _, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// reloadIfDirty re-reads the file under lock if the watcher observed a
// rewrite since the last draw. The read position is kept, and wraps to 0
// only when the new file is shorter than it, so a front end appending
// bytes does not lose the fuzzer's place.
func (f *FileSource) reloadIfDirty() {
	if !f.dirty.CompareAndSwap(true, false) {
		return
	}
	data, err := os.ReadFile(f.path) // #nosec G304 -- path is operator-supplied replay input
	if err != nil || len(data) == 0 {
		return
	}
	f.data = data
	if f.pos >= len(f.data) {
		f.pos = 0
	}
}

// consume reads n bytes, wrapping to the start of the file on exhaustion,
// and returns them as an unsigned integer.
func (f *FileSource) consume(n int) uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reloadIfDirty()

	var v uint32
	for i := 0; i < n; i++ {
		if f.pos >= len(f.data) {
			f.pos = 0
		}
		v = v<<8 | uint32(f.data[f.pos])
		f.pos++
	}
	return v
}

// bytesFor returns how many bytes a draw over [1, n] should consume: 1 byte
// up to 256 choices, 2 up to 65536, 3 up to ~16.7M, else 4.
func bytesFor(n int) int {
	switch {
	case n <= 1<<8:
		return 1
	case n <= 1<<16:
		return 2
	case n <= 1<<24:
		return 3
	default:
		return 4
	}
}

func (f *FileSource) D6() int   { return f.Dx(6) }
func (f *FileSource) D9() int   { return f.Dx(9) }
func (f *FileSource) D12() int  { return f.Dx(12) }
func (f *FileSource) D20() int  { return f.Dx(20) }
func (f *FileSource) D42() int  { return f.Dx(42) }
func (f *FileSource) D100() int { return f.Dx(100) }

// Dx returns a value in [1, n], inclusive, consuming 1-4 bytes sized to n.
func (f *FileSource) Dx(n int) int {
	if n <= 0 {
		return 0
	}
	v := f.consume(bytesFor(n))
	return int(v%uint32(n)) + 1
}

// Pick returns the index of a weighted choice among weights.
func (f *FileSource) Pick(weights []int) int {
	total := 0
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return 0
	}
	roll := int(f.consume(bytesFor(total))) % total
	acc := 0
	for i, w := range weights {
		acc += w
		if roll < acc {
			return i
		}
	}
	return len(weights) - 1
}

// Ident returns an identifier unique within this source; the counter, not the byte
// stream, guarantees uniqueness so replay determinism is unaffected.
func (f *FileSource) Ident(prefix string) string {
	n := f.counter.Add(1)
	return fmt.Sprintf("%s_%d", prefix, n)
}
