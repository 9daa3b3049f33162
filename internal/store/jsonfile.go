package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/inkmark/inkmark-backend/internal/logger"
	"github.com/inkmark/inkmark-backend/internal/types"
)

// JSONFileStore persists all conversions in a single JSON document: an array
// of records plus a monotonic next-id counter. Dates serialize as ISO-8601
// (RFC 3339) strings. It backs PERSISTENCE_MODE=jsonfile for deployments
// without a database.
type JSONFileStore struct {
	mu   sync.Mutex
	path string
	log  *logger.Logger
	doc  fileDoc
}

type fileDoc struct {
	NextID      int64         `json:"nextId"`
	Conversions []*fileRecord `json:"conversions"`
}

type fileRecord struct {
	Seq    int64             `json:"id"`
	Record *types.Conversion `json:"record"`
}

func NewJSONFileStore(path string, baseLog *logger.Logger) (*JSONFileStore, error) {
	s := &JSONFileStore{
		path: path,
		log:  baseLog.With("store", "JSONFileStore"),
		doc:  fileDoc{NextID: 1},
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *JSONFileStore) load() error {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.log.Info("No existing store file, starting empty", "path", s.path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read store file %s: %w", s.path, err)
	}
	var doc fileDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse store file %s: %w", s.path, err)
	}
	if doc.NextID < 1 {
		doc.NextID = 1
	}
	s.doc = doc
	s.log.Info("Loaded store file", "path", s.path, "conversions", len(doc.Conversions))
	return nil
}

// persist writes the whole document via temp-file rename so a crash mid-write
// never truncates the store.
func (s *JSONFileStore) persist() error {
	raw, err := json.MarshalIndent(&s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir store dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".conversions-*.json")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp store file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace store file: %w", err)
	}
	return nil
}

func (s *JSONFileStore) Create(ctx context.Context, c *types.Conversion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.doc.Conversions = append(s.doc.Conversions, &fileRecord{
		Seq:    s.doc.NextID,
		Record: &cp,
	})
	s.doc.NextID++
	return s.persist()
}

func (s *JSONFileStore) GetByID(ctx context.Context, id string) (*types.Conversion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.find(id)
	if rec == nil {
		return nil, ErrNotFound
	}
	cp := *rec.Record
	return &cp, nil
}

func (s *JSONFileStore) List(ctx context.Context, limit, offset int) ([]*types.Conversion, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]*fileRecord, len(s.doc.Conversions))
	copy(all, s.doc.Conversions)
	sort.Slice(all, func(i, j int) bool {
		if !all[i].Record.CreatedAt.Equal(all[j].Record.CreatedAt) {
			return all[i].Record.CreatedAt.After(all[j].Record.CreatedAt)
		}
		return all[i].Seq > all[j].Seq
	})

	total := int64(len(all))
	if offset >= len(all) {
		return []*types.Conversion{}, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	page := make([]*types.Conversion, 0, end-offset)
	for _, rec := range all[offset:end] {
		cp := *rec.Record
		page = append(page, &cp)
	}
	return page, total, nil
}

func (s *JSONFileStore) Update(ctx context.Context, c *types.Conversion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.find(c.ID)
	if rec == nil {
		return ErrNotFound
	}
	cp := *c
	rec.Record = &cp
	return s.persist()
}

func (s *JSONFileStore) DeleteByID(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, rec := range s.doc.Conversions {
		if rec.Record.ID == id {
			s.doc.Conversions = append(s.doc.Conversions[:i], s.doc.Conversions[i+1:]...)
			return s.persist()
		}
	}
	return ErrNotFound
}

func (s *JSONFileStore) find(id string) *fileRecord {
	for _, rec := range s.doc.Conversions {
		if rec.Record.ID == id {
			return rec
		}
	}
	return nil
}
