package filestore

import (
	"io"
	"strings"
	"testing"
)

func TestLocalFileStore_SaveGetDelete(t *testing.T) {
	s, err := NewLocalFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalFileStore failed: %v", err)
	}

	hash := "abcdef0123456789"
	if err := s.Save(strings.NewReader("payload"), hash); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	// saving the same content again is a no-op
	if err := s.Save(strings.NewReader("payload"), hash); err != nil {
		t.Fatalf("repeated Save failed: %v", err)
	}

	r, err := s.Get(hash)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	data, err := io.ReadAll(r)
	_ = r.Close()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("expected payload, got %q", data)
	}

	if err := s.Delete(URL(hash)); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(hash); err == nil {
		t.Error("blob still readable after delete")
	}

	// deleting a gone blob is not an error
	if err := s.Delete(URL(hash)); err != nil {
		t.Errorf("repeated Delete failed: %v", err)
	}
}

func TestLocalFileStore_DeleteRejectsForeignURL(t *testing.T) {
	s, err := NewLocalFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalFileStore failed: %v", err)
	}

	for _, url := range []string{"https://elsewhere/x", "blob://", ""} {
		if err := s.Delete(url); err == nil {
			t.Errorf("expected error for %q", url)
		}
	}
}
