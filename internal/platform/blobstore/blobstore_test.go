package blobstore

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func putPage(t *testing.T, s Store, artefactID string, page, count int, body string) *FileMetadata {
	t.Helper()
	meta, err := s.Put(context.Background(), FileMetadata{
		FileName:   FileName(page, count, artefactID),
		ArtefactID: artefactID,
		PageNumber: page,
		PageCount:  count,
	}, strings.NewReader(body))
	if err != nil {
		t.Fatalf("put page: %v", err)
	}
	return meta
}

func TestFileName(t *testing.T) {
	got := FileName(2, 5, "artefact-1")
	if got != "2/5-artefact-1.json" {
		t.Errorf("unexpected file name: %s", got)
	}
}

func TestInMemoryStore_PutAndGet(t *testing.T) {
	s := NewInMemoryStore()
	meta := putPage(t, s, "art-1", 1, 1, `{"entries":[]}`)

	if meta.ID == "" {
		t.Error("expected generated id")
	}
	if meta.Size != int64(len(`{"entries":[]}`)) {
		t.Errorf("unexpected size %d", meta.Size)
	}
	if meta.Hash == "" {
		t.Error("expected content hash")
	}

	rc, got, err := s.Get(context.Background(), meta.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer rc.Close()

	data, _ := io.ReadAll(rc)
	if string(data) != `{"entries":[]}` {
		t.Errorf("unexpected content: %s", data)
	}
	if got.FileName != "1/1-art-1.json" {
		t.Errorf("unexpected file name: %s", got.FileName)
	}
}

func TestInMemoryStore_PutRequiresFileName(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.Put(context.Background(), FileMetadata{ArtefactID: "a"}, strings.NewReader("x"))
	if !errors.Is(err, ErrMissingFileName) {
		t.Errorf("expected ErrMissingFileName, got %v", err)
	}
}

func TestInMemoryStore_ListByArtefact(t *testing.T) {
	s := NewInMemoryStore()
	putPage(t, s, "art-1", 1, 2, "page one")
	putPage(t, s, "art-1", 2, 2, "page two")
	putPage(t, s, "art-2", 1, 1, "other artefact")

	items, err := s.ListByArtefact(context.Background(), "art-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("expected 2 files, got %d", len(items))
	}
}

func TestInMemoryStore_ArchiveHidesFiles(t *testing.T) {
	s := NewInMemoryStore()
	meta := putPage(t, s, "art-1", 1, 1, "record")
	putPage(t, s, "art-2", 1, 1, "unrelated")

	n, err := s.Archive(context.Background(), "art-1")
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 archived file, got %d", n)
	}

	if _, _, err := s.Get(context.Background(), meta.ID); !errors.Is(err, ErrFileArchived) {
		t.Errorf("expected ErrFileArchived, got %v", err)
	}

	items, _ := s.ListByArtefact(context.Background(), "art-1")
	if len(items) != 0 {
		t.Errorf("archived files should not be listed, got %d", len(items))
	}

	// Archiving again is a no-op.
	n, _ = s.Archive(context.Background(), "art-1")
	if n != 0 {
		t.Errorf("expected 0 newly archived files, got %d", n)
	}
}

func TestHandler_DownloadAndList(t *testing.T) {
	s := NewInMemoryStore()
	meta := putPage(t, s, "art-1", 1, 1, `{"bundle":true}`)
	h := NewHandler(s)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(meta.ID)

	if err := h.handleDownload(c); err != nil {
		t.Fatalf("download: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"bundle":true`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("artefactId")
	c.SetParamValues("art-1")

	if err := h.handleListByArtefact(c); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"total":1`) {
		t.Errorf("unexpected list body: %s", rec.Body.String())
	}
}

func TestHandler_ArchivedFileGone(t *testing.T) {
	s := NewInMemoryStore()
	meta := putPage(t, s, "art-1", 1, 1, "record")
	s.Archive(context.Background(), "art-1")
	h := NewHandler(s)

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(meta.ID)

	if err := h.handleDownload(c); err != nil {
		t.Fatalf("download: %v", err)
	}
	if rec.Code != http.StatusGone {
		t.Errorf("expected 410 for archived file, got %d", rec.Code)
	}
}
