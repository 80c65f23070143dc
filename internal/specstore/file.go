package specstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/fyrsmithlabs/switchboard/internal/registry"
)

const maxFileSize = 4 * 1024 * 1024

// ErrFileTooLarge is returned for specialist files above the size limit.
var ErrFileTooLarge = errors.New("specialists file too large")

// FileStore reads specialists from a YAML file on every call, so edits are
// visible on the next refresh without a restart.
//
//	specialists:
//	  - id: sql
//	    role: Database Expert
//	    domain: technical
//	    keywords: [sql, database]
//	    instructions: Prefer standard SQL.
//	    updated_at: 2025-06-01T12:00:00Z
type FileStore struct {
	path string
}

// NewFileStore creates a store over path. The file need not exist yet.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

type fileDocument struct {
	Specialists []registry.Record `koanf:"specialists"`
}

func (s *FileStore) load(ctx context.Context) ([]registry.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", s.path, err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, info.Size(), maxFileSize)
	}

	content, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}
	if strings.TrimSpace(string(content)) == "" {
		return nil, nil
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", s.path, err)
	}

	var doc fileDocument
	if err := k.Unmarshal("", &doc); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", s.path, err)
	}
	return doc.Specialists, nil
}

// ListSpecialists returns every record in the file. A missing file yields
// an empty list.
func (s *FileStore) ListSpecialists(ctx context.Context) ([]registry.Record, error) {
	return s.load(ctx)
}

// GetSpecialist returns the record with id, or nil, nil when absent.
func (s *FileStore) GetSpecialist(ctx context.Context, id string) (*registry.Record, error) {
	records, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if strings.TrimSpace(records[i].ID) == id {
			return &records[i], nil
		}
	}
	return nil, nil
}
