// Package blobstore stores the health information pages received over the
// exchange. Each page lands as one JSON file tied to the consent artefact it
// was shared under; when that artefact is revoked or expires, the files are
// archived rather than served.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var (
	ErrFileNotFound    = errors.New("health information file not found")
	ErrFileArchived    = errors.New("health information file is archived")
	ErrMissingFileName = errors.New("file name is required")
	ErrFileTooLarge    = errors.New("file exceeds maximum allowed size")
)

// MaxFileSize is the maximum allowed page size in bytes (50 MB).
const MaxFileSize = 50 * 1024 * 1024

// FileName renders the canonical name for a received page:
// "<pageNumber>/<pageCount>-<artefactID>.json".
func FileName(pageNumber, pageCount int, artefactID string) string {
	return fmt.Sprintf("%d/%d-%s.json", pageNumber, pageCount, artefactID)
}

// FileMetadata describes one stored page of health information.
type FileMetadata struct {
	ID          string     `json:"id"`
	FileName    string     `json:"file_name"`
	ArtefactID  string     `json:"artefact_id"`
	PageNumber  int        `json:"page_number"`
	PageCount   int        `json:"page_count"`
	ContentType string     `json:"content_type"`
	Size        int64      `json:"size"`
	Hash        string     `json:"hash"`
	CreatedAt   time.Time  `json:"created_at"`
	Archived    bool       `json:"archived"`
	ArchivedAt  *time.Time `json:"archived_at,omitempty"`
}

// Store is the contract for health information file backends.
type Store interface {
	Put(ctx context.Context, meta FileMetadata, content io.Reader) (*FileMetadata, error)
	Get(ctx context.Context, id string) (io.ReadCloser, *FileMetadata, error)
	ListByArtefact(ctx context.Context, artefactID string) ([]*FileMetadata, error)

	// Archive flags every file stored under the artefact and returns how
	// many were flagged. Archived files stay on disk but are no longer
	// served.
	Archive(ctx context.Context, artefactID string) (int, error)
}

type storedFile struct {
	metadata FileMetadata
	content  []byte
}

// InMemoryStore is a thread-safe in-process Store. Single-instance
// deployments use it directly; it also backs the tests.
type InMemoryStore struct {
	mu    sync.RWMutex
	files map[string]*storedFile
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{files: make(map[string]*storedFile)}
}

// Put reads the content, computes a SHA-256 hash and stores the page.
func (s *InMemoryStore) Put(_ context.Context, meta FileMetadata, content io.Reader) (*FileMetadata, error) {
	if meta.FileName == "" {
		return nil, ErrMissingFileName
	}

	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return nil, ErrFileTooLarge
	}

	h := sha256.Sum256(data)

	meta.ID = uuid.New().String()
	meta.Size = int64(len(data))
	meta.Hash = fmt.Sprintf("%x", h)
	meta.CreatedAt = time.Now().UTC()
	if meta.ContentType == "" {
		meta.ContentType = "application/json"
	}

	s.mu.Lock()
	s.files[meta.ID] = &storedFile{metadata: meta, content: data}
	s.mu.Unlock()

	out := meta // copy
	return &out, nil
}

// Get returns the page content and metadata. Archived files are withheld.
func (s *InMemoryStore) Get(_ context.Context, id string) (io.ReadCloser, *FileMetadata, error) {
	s.mu.RLock()
	file, ok := s.files[id]
	s.mu.RUnlock()

	if !ok {
		return nil, nil, ErrFileNotFound
	}
	if file.metadata.Archived {
		return nil, nil, ErrFileArchived
	}

	meta := file.metadata // copy
	return io.NopCloser(bytes.NewReader(file.content)), &meta, nil
}

// ListByArtefact returns metadata for every non-archived page of an artefact.
func (s *InMemoryStore) ListByArtefact(_ context.Context, artefactID string) ([]*FileMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*FileMetadata
	for _, f := range s.files {
		if f.metadata.ArtefactID != artefactID || f.metadata.Archived {
			continue
		}
		m := f.metadata // copy
		matched = append(matched, &m)
	}
	return matched, nil
}

// Archive flags all files stored under the artefact.
func (s *InMemoryStore) Archive(_ context.Context, artefactID string) (int, error) {
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, f := range s.files {
		if f.metadata.ArtefactID != artefactID || f.metadata.Archived {
			continue
		}
		f.metadata.Archived = true
		f.metadata.ArchivedAt = &now
		count++
	}
	return count, nil
}

type listResponse struct {
	Items []*FileMetadata `json:"items"`
	Total int             `json:"total"`
}

// Handler exposes received health information files on the host API.
type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes mounts file routes on the supplied Echo group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/health-information/files/artefact/:artefactId", h.handleListByArtefact)
	g.GET("/health-information/files/:id", h.handleDownload)
}

func (h *Handler) handleListByArtefact(c echo.Context) error {
	items, err := h.store.ListByArtefact(c.Request().Context(), c.Param("artefactId"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"detail": err.Error()})
	}
	if items == nil {
		items = []*FileMetadata{}
	}
	return c.JSON(http.StatusOK, listResponse{Items: items, Total: len(items)})
}

func (h *Handler) handleDownload(c echo.Context) error {
	rc, meta, err := h.store.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrFileNotFound):
			return c.JSON(http.StatusNotFound, map[string]string{"detail": err.Error()})
		case errors.Is(err, ErrFileArchived):
			return c.JSON(http.StatusGone, map[string]string{"detail": err.Error()})
		default:
			return c.JSON(http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		}
	}
	defer rc.Close()

	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, meta.FileName))
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}
