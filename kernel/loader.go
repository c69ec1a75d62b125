package kernel

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/sarchlab/nachosim/noff"
)

// A Binary is a loaded executable: the NOFF file that backs the pages of the
// address space and the program that runs in it.
type Binary struct {
	*noff.Executable

	Name    string
	Program Program
	closer  io.Closer
}

// Close releases the file behind the executable.
func (b *Binary) Close() error {
	if b.closer == nil {
		return nil
	}

	return b.closer.Close()
}

// A Loader finds executables by name.
type Loader interface {
	Load(name string) (*Binary, error)
}

type memEntry struct {
	content []byte
	program Program
}

// A MemLoader serves executables kept in memory.
type MemLoader struct {
	entries map[string]memEntry
}

// NewMemLoader creates an empty loader.
func NewMemLoader() *MemLoader {
	return &MemLoader{
		entries: make(map[string]memEntry),
	}
}

// Register adds an executable, encoded little-endian.
func (l *MemLoader) Register(name string, img noff.Image, p Program) {
	l.RegisterEncoded(name, img.Encode(binary.LittleEndian), p)
}

// RegisterEncoded adds an executable from its raw file content.
func (l *MemLoader) RegisterEncoded(name string, content []byte, p Program) {
	l.entries[name] = memEntry{content: content, program: p}
}

// Names returns the registered executables in alphabetical order.
func (l *MemLoader) Names() []string {
	names := make([]string, 0, len(l.entries))
	for name := range l.entries {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Load opens a registered executable.
func (l *MemLoader) Load(name string) (*Binary, error) {
	e, found := l.entries[name]
	if !found {
		return nil, fmt.Errorf("executable %q not found", name)
	}

	exe, err := noff.Open(bytes.NewReader(e.content))
	if err != nil {
		return nil, fmt.Errorf("loading %q: %w", name, err)
	}

	return &Binary{
		Executable: exe,
		Name:       name,
		Program:    e.program,
	}, nil
}

// A DirLoader opens NOFF files from a directory. The program of each file is
// looked up by the base name of the file, so that the same program can run
// over different images.
type DirLoader struct {
	Dir      string
	Programs map[string]Program
}

// Load opens dir/name.
func (l DirLoader) Load(name string) (*Binary, error) {
	p, found := l.Programs[filepath.Base(name)]
	if !found {
		return nil, fmt.Errorf("no program registered for %q", name)
	}

	f, err := os.Open(filepath.Join(l.Dir, name))
	if err != nil {
		return nil, err
	}

	exe, err := noff.Open(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("loading %q: %w", name, err)
	}

	return &Binary{
		Executable: exe,
		Name:       name,
		Program:    p,
		closer:     f,
	}, nil
}
