package maskfx

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io/fs"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/webp" // register WebP decoder
	"golang.org/x/sync/semaphore"
)

const defaultLoaderWorkers = 4

// decoded is a finished background decode waiting for the game tick.
type decoded struct {
	path string
	img  image.Image
	err  error
}

// Loader decodes images in the background and resolves their Textures on
// the game goroutine. Call Update once per tick; load notifications fire
// from inside Update, never from a decode goroutine.
type Loader struct {
	fsys fs.FS
	sem  *semaphore.Weighted
	wg   sync.WaitGroup

	mu       sync.Mutex
	done     []decoded
	inFlight int

	textures map[string]*Texture
	errs     map[string]error
}

// NewLoader creates a loader reading from fsys with at most workers
// concurrent decodes. workers <= 0 selects a default.
func NewLoader(fsys fs.FS, workers int) *Loader {
	if workers <= 0 {
		workers = defaultLoaderWorkers
	}
	return &Loader{
		fsys:     fsys,
		sem:      semaphore.NewWeighted(int64(workers)),
		textures: make(map[string]*Texture),
		errs:     make(map[string]error),
	}
}

// Load returns the texture for path, starting a background decode the first
// time a path is requested. The texture is pending until a later Update.
func (l *Loader) Load(path string) *Texture {
	if t, ok := l.textures[path]; ok {
		return t
	}
	t := NewPendingTexture()
	l.textures[path] = t
	l.start(path)
	return t
}

// Reload decodes path again and resolves the existing texture a second
// time. Listeners still subscribed to the texture are notified again.
func (l *Loader) Reload(path string) *Texture {
	t, ok := l.textures[path]
	if !ok {
		return l.Load(path)
	}
	delete(l.errs, path)
	l.start(path)
	return t
}

func (l *Loader) start(path string) {
	l.mu.Lock()
	l.inFlight++
	l.mu.Unlock()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		// Acquire with Background never fails.
		_ = l.sem.Acquire(context.Background(), 1)
		img, err := l.decode(path)
		l.sem.Release(1)

		l.mu.Lock()
		l.done = append(l.done, decoded{path: path, img: img, err: err})
		l.mu.Unlock()
	}()
}

func (l *Loader) decode(path string) (image.Image, error) {
	f, err := l.fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// Update uploads every finished decode and resolves its texture, which
// fires the texture's load listeners. Returns the number of textures
// resolved this call. Failed loads leave the texture pending and record
// the error for Err.
func (l *Loader) Update() int {
	l.mu.Lock()
	batch := l.done
	l.done = nil
	l.inFlight -= len(batch)
	l.mu.Unlock()

	resolved := 0
	for _, d := range batch {
		if d.err != nil {
			l.errs[d.path] = d.err
			debugf("load: %v", d.err)
			continue
		}
		t := l.textures[d.path]
		t.Resolve(ebiten.NewImageFromImage(d.img))
		resolved++
	}
	return resolved
}

// Pending returns the number of decodes not yet delivered by Update.
func (l *Loader) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight
}

// Wait blocks until every started decode has finished. Results are still
// delivered by the next Update.
func (l *Loader) Wait() {
	l.wg.Wait()
}

// Err returns the error from the most recent failed load of path, if any.
func (l *Loader) Err(path string) error {
	return l.errs[path]
}
