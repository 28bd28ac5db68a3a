package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestUploadFile_SendsSignedContentType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walk.mp4")
	payload := []byte("not really a video")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	var gotContentType string
	var gotLength int64
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotLength = r.ContentLength
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	if err := uploadFile(srv.URL+"/folder-1/walk.mp4", path); err != nil {
		t.Fatalf("uploadFile: %v", err)
	}
	// The upload URL is signed over the content type, so the PUT must
	// carry it or the storage backend rejects the signature.
	if gotContentType != "video/mp4" {
		t.Errorf("Content-Type = %q, want video/mp4", gotContentType)
	}
	if gotLength != int64(len(payload)) {
		t.Errorf("Content-Length = %d, want %d", gotLength, len(payload))
	}
	if string(gotBody) != string(payload) {
		t.Errorf("body = %q, want %q", gotBody, payload)
	}
}

func TestUploadFile_RejectedUpload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walk.mp4")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "SignatureDoesNotMatch", http.StatusForbidden)
	}))
	defer srv.Close()

	if err := uploadFile(srv.URL+"/folder-1/walk.mp4", path); err == nil {
		t.Fatal("expected error for rejected upload")
	}
}

func TestUploadContentType(t *testing.T) {
	if got := uploadContentType("clip.mp4"); got != "video/mp4" {
		t.Errorf("uploadContentType(clip.mp4) = %q, want video/mp4", got)
	}
	if got := uploadContentType("video"); got != "application/octet-stream" {
		t.Errorf("uploadContentType(video) = %q, want application/octet-stream", got)
	}
}
