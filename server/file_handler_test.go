package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
)

func fileRequest(path string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/file/x", nil)
	return mux.SetURLVars(r, map[string]string{"path": path})
}

func writeCover(t *testing.T, h *APIHandler, name string) {
	t.Helper()
	coverDir := filepath.Join(h.cfg.UploadDir, "covers")
	if err := os.MkdirAll(coverDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(coverDir, name), []byte("jpegdata"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestFileHandlerBlocksAudio(t *testing.T) {
	h, _, _ := newTestHandler(t)

	// 文件真实存在也必须拒绝，音频只能走流端点
	rec := httptest.NewRecorder()
	h.FileHandler(rec, fileRequest("audio/track-1.mp3"))

	if rec.Code != 403 {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad error body: %v", err)
	}
	if body["error"] != "Audio files must be accessed through the stream endpoint" {
		t.Fatalf("error = %q", body["error"])
	}
}

func TestFileHandlerBlocksAudioExtensionsCaseInsensitive(t *testing.T) {
	h, _, _ := newTestHandler(t)

	for _, name := range []string{"audio/a.MP3", "audio/b.Wav", "audio/c.flac", "audio/d.m4a", "audio/e.OGG"} {
		rec := httptest.NewRecorder()
		h.FileHandler(rec, fileRequest(name))
		if rec.Code != 403 {
			t.Fatalf("%s: status = %d, want 403", name, rec.Code)
		}
	}
}

func TestFileHandlerServesCoverForKnownTrack(t *testing.T) {
	h, _, _ := newTestHandler(t)
	writeCover(t, h, "track-1_cover.jpg")

	rec := httptest.NewRecorder()
	h.FileHandler(rec, fileRequest("covers/track-1_cover.jpg"))

	if rec.Code != 200 {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "image/jpeg" {
		t.Fatalf("Content-Type = %s", got)
	}
	if rec.Body.String() != "jpegdata" {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestFileHandlerCoverExtensionBypassesAudioBlock(t *testing.T) {
	h, _, _ := newTestHandler(t)
	writeCover(t, h, "track-1_cover.mp3")

	// 带 _cover 标记的文件不按音频拦截
	rec := httptest.NewRecorder()
	h.FileHandler(rec, fileRequest("covers/track-1_cover.mp3"))

	if rec.Code != 200 {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestFileHandlerCoverUnknownTrack(t *testing.T) {
	h, _, _ := newTestHandler(t)
	writeCover(t, h, "ghost_cover.jpg")

	rec := httptest.NewRecorder()
	h.FileHandler(rec, fileRequest("covers/ghost_cover.jpg"))

	if rec.Code != 404 {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad error body: %v", err)
	}
	if body["error"] != "Track not found" {
		t.Fatalf("error = %q", body["error"])
	}
}

func TestFileHandlerBlocksTraversal(t *testing.T) {
	h, _, _ := newTestHandler(t)

	secret := filepath.Join(h.cfg.UploadDir, "..", "secret.txt")
	if err := os.WriteFile(secret, []byte("top secret"), 0644); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{"../secret.txt", "covers/../../secret.txt"} {
		rec := httptest.NewRecorder()
		h.FileHandler(rec, fileRequest(path))
		if rec.Code != 403 {
			t.Fatalf("%s: status = %d, want 403", path, rec.Code)
		}
	}
}

func TestFileHandlerMissingFile(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.FileHandler(rec, fileRequest("covers/track-1_cover.jpg"))

	if rec.Code != 404 {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestFileHandlerCoverRangeRequest(t *testing.T) {
	h, _, _ := newTestHandler(t)
	writeCover(t, h, "track-1_cover.jpg")

	r := fileRequest("covers/track-1_cover.jpg")
	r.Header.Set("Range", "bytes=0-3")

	rec := httptest.NewRecorder()
	h.FileHandler(rec, r)

	if rec.Code != 206 {
		t.Fatalf("status = %d, want 206", rec.Code)
	}
	if rec.Body.String() != "jpeg" {
		t.Fatalf("body = %q", rec.Body.String())
	}
}
