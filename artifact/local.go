package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/opencontainers/go-digest"
)

// metaSuffix names the JSON sidecar holding an artifact's metadata.
const metaSuffix = ".meta.json"

// sniffLen bounds how much of the payload is read back for content-type
// detection.
const sniffLen = 3072

// LocalStore is a Store backed by a billy filesystem directory. Production
// runs use an osfs rooted at the run's scratch directory; tests use memfs.
type LocalStore struct {
	fs  billy.Filesystem
	dir string

	mu        sync.Mutex
	discarded bool
}

// NewLocal creates a local store writing under dir within fs. The directory
// is created on first publish.
func NewLocal(fs billy.Filesystem, dir string) *LocalStore {
	return &LocalStore{fs: fs, dir: dir}
}

// Publish implements the Store interface.
func (s *LocalStore) Publish(ctx context.Context, name string, r io.Reader) (*Info, error) {
	if err := s.usable(ctx); err != nil {
		return nil, err
	}
	if !validName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	path := s.fs.Join(s.dir, name)
	file, err := s.fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact file: %w", err)
	}

	digester := digest.SHA256.Digester()
	size, err := io.Copy(io.MultiWriter(file, digester.Hash()), r)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = s.fs.Remove(path)
		return nil, fmt.Errorf("failed to write artifact %q: %w", name, err)
	}

	mediaType, err := s.sniff(path)
	if err != nil {
		return nil, err
	}

	info := &Info{
		Name:      name,
		MediaType: mediaType,
		Size:      size,
		Digest:    digester.Digest(),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.writeMeta(path, info); err != nil {
		return nil, err
	}
	return info, nil
}

// Fetch implements the Store interface.
func (s *LocalStore) Fetch(ctx context.Context, name string) (io.ReadCloser, *Info, error) {
	info, err := s.Stat(ctx, name)
	if err != nil {
		return nil, nil, err
	}

	file, err := s.fs.Open(s.fs.Join(s.dir, name))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open artifact %q: %w", name, err)
	}
	return file, info, nil
}

// Stat implements the Store interface.
func (s *LocalStore) Stat(ctx context.Context, name string) (*Info, error) {
	if err := s.usable(ctx); err != nil {
		return nil, err
	}
	if !validName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	path := s.fs.Join(s.dir, name)
	if _, err := s.fs.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to stat artifact %q: %w", name, err)
	}
	return s.readMeta(path, name)
}

// List implements the Store interface.
func (s *LocalStore) List(ctx context.Context) ([]*Info, error) {
	if err := s.usable(ctx); err != nil {
		return nil, err
	}

	entries, err := s.fs.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read artifact directory: %w", err)
	}

	var infos []*Info
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), metaSuffix) {
			continue
		}
		info, err := s.readMeta(s.fs.Join(s.dir, entry.Name()), entry.Name())
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Discard implements the Store interface.
func (s *LocalStore) Discard(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.discarded {
		return nil
	}
	s.discarded = true

	if err := util.RemoveAll(s.fs, s.dir); err != nil {
		return fmt.Errorf("failed to remove artifact directory: %w", err)
	}
	return nil
}

func (s *LocalStore) usable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.discarded {
		return ErrDiscarded
	}
	return nil
}

func (s *LocalStore) sniff(path string) (string, error) {
	file, err := s.fs.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to reopen artifact for detection: %w", err)
	}
	defer file.Close()

	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(file, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("failed to read artifact for detection: %w", err)
	}
	return mimetype.Detect(buf[:n]).String(), nil
}

func (s *LocalStore) writeMeta(path string, info *Info) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to encode artifact metadata: %w", err)
	}
	if err := util.WriteFile(s.fs, path+metaSuffix, data, 0o644); err != nil {
		return fmt.Errorf("failed to write artifact metadata: %w", err)
	}
	return nil
}

func (s *LocalStore) readMeta(path, name string) (*Info, error) {
	data, err := util.ReadFile(s.fs, path+metaSuffix)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata for artifact %q: %w", name, err)
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to decode metadata for artifact %q: %w", name, err)
	}
	return &info, nil
}
