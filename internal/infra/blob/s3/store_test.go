package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"clinicflow/internal/blob/core"
)

func TestMockStore_RoundTripWithMetadata(t *testing.T) {
	ctx := context.Background()
	s := NewMockForTests()
	// plain io.Reader exercises the buffering path
	body := io.MultiReader(strings.NewReader("work"), strings.NewReader("book"))
	info, err := s.Put(ctx, "cleanedBook.xlsx", body, core.PutOptions{
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Metadata:    map[string]string{"run-id": "r1"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 8 || info.Metadata["run-id"] != "r1" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := s.Put(ctx, "cleanedBook.xlsx", bytes.NewReader([]byte("v2")), core.PutOptions{Metadata: map[string]string{"run-id": "r2"}}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, rc, err := s.Get(ctx, "cleanedBook.xlsx")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != "v2" || got.Metadata["run-id"] != "r2" {
		t.Fatalf("unexpected get %q %+v", b, got)
	}
}

func TestMockStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMockForTests()
	if _, err := s.Head(ctx, "absent"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("head: expected ErrNotFound, got %v", err)
	}
	if _, _, err := s.Get(ctx, "absent"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("get: expected ErrNotFound, got %v", err)
	}
}

func TestMockStore_ListAndPresign(t *testing.T) {
	ctx := context.Background()
	s := NewMockForTests()
	for _, k := range []string{"b.xlsx", "a.xlsx"} {
		if _, err := s.Put(ctx, k, bytes.NewReader([]byte(k)), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	list, err := s.List(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != "a.xlsx" || list[1].Size != 6 {
		t.Fatalf("unexpected list %+v", list)
	}
	u, err := s.PresignURL(ctx, "a.xlsx", core.SignedURLOptions{})
	if err != nil || !strings.Contains(u, "a.xlsx") || !strings.Contains(u, "X-Amz-Signature") {
		t.Fatalf("presign: %v %s", err, u)
	}
	if _, err := s.PresignURL(ctx, "a.xlsx", core.SignedURLOptions{Method: "DELETE"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
}

func TestDecodeAWSChunked(t *testing.T) {
	payload := "4;chunk-signature=abc\r\nwork\r\n4\r\nbook\r\n0\r\nx-amz-checksum-crc32:AAAA\r\n\r\n"
	b, err := decodeAWSChunked([]byte(payload))
	if err != nil || string(b) != "workbook" {
		t.Fatalf("decode: %q %v", b, err)
	}
	if _, err := decodeAWSChunked([]byte("zz\r\n")); err == nil {
		t.Fatalf("expected error for bad size")
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected bucket error")
	}
}
