package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"support-agent/internal/domain"
)

const businessFileExt = ".json"

// FileStore serves businesses from a directory of <businessID>.json files,
// each holding one domain.BusinessContext document. It is meant for local
// development and demos.
type FileStore struct {
	dir string
}

// NewFileStore creates a FileStore rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("repository: knowledge dir must not be empty")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("repository: stat knowledge dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("repository: %s is not a directory", dir)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the watched directory.
func (f *FileStore) Dir() string {
	return f.dir
}

func (f *FileStore) FetchBusinessConfig(ctx context.Context, businessID string) (domain.BusinessContext, error) {
	biz, err := f.load(ctx, businessID)
	if err != nil {
		return domain.BusinessContext{}, err
	}
	biz.KnowledgeBase = nil
	return biz, nil
}

func (f *FileStore) FetchKnowledgeBase(ctx context.Context, businessID string) ([]domain.KnowledgeEntry, error) {
	biz, err := f.load(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if biz.KnowledgeBase == nil {
		return []domain.KnowledgeEntry{}, nil
	}
	return biz.KnowledgeBase, nil
}

func (f *FileStore) load(ctx context.Context, businessID string) (domain.BusinessContext, error) {
	if err := ctx.Err(); err != nil {
		return domain.BusinessContext{}, err
	}
	if !validBusinessID(businessID) {
		return domain.BusinessContext{}, ErrBusinessNotFound
	}
	raw, err := os.ReadFile(filepath.Join(f.dir, businessID+businessFileExt))
	if errors.Is(err, fs.ErrNotExist) {
		return domain.BusinessContext{}, ErrBusinessNotFound
	}
	if err != nil {
		return domain.BusinessContext{}, fmt.Errorf("repository: read business %q: %w", businessID, err)
	}
	var biz domain.BusinessContext
	if err := json.Unmarshal(raw, &biz); err != nil {
		return domain.BusinessContext{}, fmt.Errorf("repository: decode business %q: %w", businessID, err)
	}
	biz.ID = businessID
	return biz, nil
}

// validBusinessID rejects ids that could escape the store directory.
func validBusinessID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`)
}

// BusinessIDFromPath maps a store file path back to its business id.
func BusinessIDFromPath(path string) (string, bool) {
	base := filepath.Base(path)
	if filepath.Ext(base) != businessFileExt {
		return "", false
	}
	id := strings.TrimSuffix(base, businessFileExt)
	return id, validBusinessID(id)
}
