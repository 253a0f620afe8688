package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"clinicflow/internal/blob/core"
)

func TestStore_PutGetOverwrite(t *testing.T) {
	ctx := context.Background()
	s := New()
	md := map[string]string{"run-id": "a"}
	if _, err := s.Put(ctx, "k", bytes.NewReader([]byte("one")), core.PutOptions{Metadata: md}); err != nil {
		t.Fatalf("put: %v", err)
	}
	md["run-id"] = "mutated"
	if _, err := s.Put(ctx, "k", bytes.NewReader([]byte("two")), core.PutOptions{Metadata: map[string]string{"run-id": "b"}}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	info, rc, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	if string(b) != "two" || info.Metadata["run-id"] != "b" {
		t.Fatalf("unexpected %q %v", b, info.Metadata)
	}
	if s.Puts() != 2 {
		t.Fatalf("expected 2 puts, got %d", s.Puts())
	}
	info.Metadata["run-id"] = "x"
	h, _ := s.Head(ctx, "k")
	if h.Metadata["run-id"] != "b" {
		t.Fatalf("metadata aliased: %v", h.Metadata)
	}
}

func TestStore_MissingAndUnsupported(t *testing.T) {
	ctx := context.Background()
	s := New()
	if _, _, err := s.Get(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("get: %v", err)
	}
	if _, err := s.Head(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("head: %v", err)
	}
	if _, err := s.PresignURL(ctx, "nope", core.SignedURLOptions{}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("presign: %v", err)
	}
	if _, err := s.Put(ctx, " ", bytes.NewReader(nil), core.PutOptions{}); err == nil {
		t.Fatalf("expected empty key error")
	}
	list, _ := s.List(ctx, "")
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %+v", list)
	}
}
