package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"media-catalog/internal/database"
	"media-catalog/internal/indexer"
	"media-catalog/internal/mediatypes"

	"github.com/gorilla/mux"
)

type fakeScanner struct {
	mu        sync.Mutex
	result    *indexer.ScanResult
	err       error
	triggered int
	scanCtx   context.Context
	health    indexer.HealthStatus
	last      *indexer.ScanResult
}

func (f *fakeScanner) FullScan(ctx context.Context) (*indexer.ScanResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanCtx = ctx
	return f.result, f.err
}

func (f *fakeScanner) TriggerScan() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.triggered++
	return nil
}

func (f *fakeScanner) GetHealthStatus() indexer.HealthStatus { return f.health }
func (f *fakeScanner) LastResult() *indexer.ScanResult       { return f.last }

type fakeWatch struct {
	watching bool
	pending  int
}

func (f fakeWatch) IsWatching() bool { return f.watching }
func (f fakeWatch) Pending() int     { return f.pending }

type catalogFixture struct {
	db      *database.Database
	root    string
	thumbs  string
	folders map[string]*database.Folder
}

func newCatalogFixture(t *testing.T) *catalogFixture {
	t.Helper()

	root := t.TempDir()
	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "catalog.db"), database.Options{MediaRoot: root})
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	f := &catalogFixture{db: db, root: root, thumbs: t.TempDir(), folders: map[string]*database.Folder{}}
	for _, rel := range []string{"", "a", "a/b", "c"} {
		folder, err := db.GetOrCreateFolder(context.Background(), filepath.Join(root, rel))
		if err != nil {
			t.Fatalf("GetOrCreateFolder(%q) error = %v", rel, err)
		}
		f.folders[rel] = folder
	}
	return f
}

// addMedia writes a source file and its thumbnail and catalogs them.
func (f *catalogFixture) addMedia(t *testing.T, rel string, content string, converted string) *database.MediaItem {
	t.Helper()

	src := filepath.Join(f.root, rel)
	writeTestFile(t, src, content)
	thumb := filepath.Join(f.thumbs, filepath.Base(rel)+"_thumb.jpg")
	writeTestFile(t, thumb, "thumb:"+rel)

	kind := mediatypes.KindStill
	if converted != "" {
		kind = mediatypes.KindRaw
	}
	folder := f.folders[filepath.ToSlash(filepath.Dir(rel))]
	if filepath.Dir(rel) == "." {
		folder = f.folders[""]
	}

	ok, err := f.db.InsertIfAbsent(context.Background(), database.NewMediaItem{
		SourcePath:    src,
		FolderID:      folder.ID,
		Type:          kind,
		MimeType:      mediatypes.MimeType(mediatypes.Ext(src)),
		ThumbnailPath: thumb,
		ConvertedPath: converted,
		Metadata:      map[string]string{"Model": "test"},
	})
	if err != nil || !ok {
		t.Fatalf("InsertIfAbsent(%s) = %v, %v", rel, ok, err)
	}

	page, err := f.db.ListFolderMedia(context.Background(), folder.ID, 1, 500)
	if err != nil {
		t.Fatalf("ListFolderMedia() error = %v", err)
	}
	for i := range page.Items {
		if page.Items[i].SourcePath == src {
			return &page.Items[i]
		}
	}
	t.Fatalf("%s not listed after insert", rel)
	return nil
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// serve routes req through a router so that {id} is populated the same way
// it is in production.
func serve(h *Handlers, method, target string) *httptest.ResponseRecorder {
	r := mux.NewRouter()
	r.HandleFunc("/api/folders", h.ListFolders).Methods(http.MethodGet)
	r.HandleFunc("/api/folders/{id}/subfolders", h.ListSubfolders).Methods(http.MethodGet)
	r.HandleFunc("/api/folders/{id}/media", h.ListFolderMedia).Methods(http.MethodGet)
	r.HandleFunc("/api/media/{id}", h.GetMediaItem).Methods(http.MethodGet)
	r.HandleFunc("/api/media/{id}/full", h.GetFullResolution).Methods(http.MethodGet)
	r.HandleFunc("/api/media/{id}/thumbnail", h.GetThumbnail).Methods(http.MethodGet)
	r.HandleFunc("/api/scan", h.TriggerScan).Methods(http.MethodPost)
	r.HandleFunc("/api/scan/status", h.ScanStatus).Methods(http.MethodGet)

	req := httptest.NewRequest(method, target, http.NoBody)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return v
}

func TestNewDefaultsPageSize(t *testing.T) {
	t.Parallel()

	if h := New(nil, nil, nil, 0); h.pageSize != database.DefaultPageSize {
		t.Errorf("pageSize = %d, want %d", h.pageSize, database.DefaultPageSize)
	}
	if h := New(nil, nil, nil, 7); h.pageSize != 7 {
		t.Errorf("pageSize = %d, want 7", h.pageSize)
	}
}

func TestListFolders(t *testing.T) {
	t.Parallel()

	f := newCatalogFixture(t)
	h := New(f.db, &fakeScanner{}, nil, 0)

	w := serve(h, http.MethodGet, "/api/folders")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	folders := decode[[]database.Folder](t, w)
	if len(folders) != 4 {
		t.Fatalf("got %d folders, want 4", len(folders))
	}
	if !folders[0].IsRoot() {
		t.Errorf("first folder = %q, want root", folders[0].Path)
	}
}

func TestListSubfolders(t *testing.T) {
	t.Parallel()

	f := newCatalogFixture(t)
	h := New(f.db, &fakeScanner{}, nil, 1)

	tests := []struct {
		name      string
		target    string
		wantCode  int
		wantNames []string
		wantTotal int
	}{
		{"root children first page", "/api/folders/0/subfolders", http.StatusOK, []string{"a"}, 2},
		{"root children second page", "/api/folders/0/subfolders?page=2", http.StatusOK, []string{"c"}, 2},
		{"explicit page size", "/api/folders/0/subfolders?pageSize=10", http.StatusOK, []string{"a", "c"}, 2},
		{"nested", "/api/folders/" + strconv.FormatInt(f.folders["a"].ID, 10) + "/subfolders", http.StatusOK, []string{"b"}, 1},
		{"leaf", "/api/folders/" + strconv.FormatInt(f.folders["a/b"].ID, 10) + "/subfolders", http.StatusOK, nil, 0},
		{"malformed id", "/api/folders/abc/subfolders", http.StatusBadRequest, nil, 0},
		{"negative id", "/api/folders/-1/subfolders", http.StatusBadRequest, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(h, http.MethodGet, tt.target)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantCode, w.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				return
			}

			page := decode[database.Page[database.Folder]](t, w)
			if page.Total != tt.wantTotal {
				t.Errorf("Total = %d, want %d", page.Total, tt.wantTotal)
			}
			var names []string
			for _, folder := range page.Items {
				names = append(names, folder.Name)
			}
			if len(names) != len(tt.wantNames) {
				t.Fatalf("names = %v, want %v", names, tt.wantNames)
			}
			for i := range names {
				if names[i] != tt.wantNames[i] {
					t.Errorf("names = %v, want %v", names, tt.wantNames)
				}
			}
		})
	}
}

func TestListFolderMedia(t *testing.T) {
	t.Parallel()

	f := newCatalogFixture(t)
	f.addMedia(t, "a/one.jpg", "one", "")
	f.addMedia(t, "a/two.jpg", "two", "")
	h := New(f.db, &fakeScanner{}, nil, 0)

	w := serve(h, http.MethodGet, "/api/folders/"+strconv.FormatInt(f.folders["a"].ID, 10)+"/media")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	page := decode[database.Page[database.MediaItem]](t, w)
	if page.Total != 2 || len(page.Items) != 2 {
		t.Fatalf("page = %+v, want 2 items", page)
	}
	if page.PageSize != database.DefaultPageSize {
		t.Errorf("PageSize = %d, want %d", page.PageSize, database.DefaultPageSize)
	}
	if page.Items[0].Metadata["Model"] != "test" {
		t.Errorf("metadata = %v", page.Items[0].Metadata)
	}
}

func TestGetMediaItem(t *testing.T) {
	t.Parallel()

	f := newCatalogFixture(t)
	item := f.addMedia(t, "c/pic.jpg", "pixels", "")
	h := New(f.db, &fakeScanner{}, nil, 0)

	w := serve(h, http.MethodGet, "/api/media/"+strconv.FormatInt(item.ID, 10))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	got := decode[database.MediaItem](t, w)
	if got.SourcePath != item.SourcePath || got.MediaType != mediatypes.KindStill.String() {
		t.Errorf("item = %+v", got)
	}

	w = serve(h, http.MethodGet, "/api/media/99999")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", w.Code)
	}
	if body := decode[map[string]string](t, w); body["error"] == "" {
		t.Errorf("404 body has no error message")
	}

	w = serve(h, http.MethodGet, "/api/media/x")
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed id status = %d, want 400", w.Code)
	}
}

func TestGetFullResolution(t *testing.T) {
	t.Parallel()

	f := newCatalogFixture(t)
	plain := f.addMedia(t, "a/plain.jpg", "source bytes", "")

	converted := filepath.Join(t.TempDir(), "raw_converted.jpg")
	writeTestFile(t, converted, "converted bytes")
	raw := f.addMedia(t, "a/raw.heic", "raw bytes", converted)

	gone := f.addMedia(t, "a/gone.jpg", "soon deleted", "")
	if err := os.Remove(gone.SourcePath); err != nil {
		t.Fatal(err)
	}

	h := New(f.db, &fakeScanner{}, nil, 0)

	tests := []struct {
		name     string
		id       int64
		wantCode int
		wantBody string
	}{
		{"source served", plain.ID, http.StatusOK, "source bytes"},
		{"converted copy preferred", raw.ID, http.StatusOK, "converted bytes"},
		{"vanished file", gone.ID, http.StatusNotFound, ""},
		{"unknown id", 424242, http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(h, http.MethodGet, "/api/media/"+strconv.FormatInt(tt.id, 10)+"/full")
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if tt.wantBody != "" {
				body, _ := io.ReadAll(w.Body)
				if string(body) != tt.wantBody {
					t.Errorf("body = %q, want %q", body, tt.wantBody)
				}
			}
		})
	}
}

func TestGetThumbnail(t *testing.T) {
	t.Parallel()

	f := newCatalogFixture(t)
	item := f.addMedia(t, "pic.jpg", "pixels", "")
	h := New(f.db, &fakeScanner{}, nil, 0)

	w := serve(h, http.MethodGet, "/api/media/"+strconv.FormatInt(item.ID, 10)+"/thumbnail")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := w.Body.String(); got != "thumb:pic.jpg" {
		t.Errorf("body = %q", got)
	}
	if cc := w.Header().Get("Cache-Control"); cc == "" {
		t.Error("thumbnail response has no Cache-Control")
	}
}

func TestTriggerScan(t *testing.T) {
	t.Parallel()

	done := &indexer.ScanResult{Status: "completed", FoldersProcessed: 4, ImagesProcessed: 3}
	rootGone := &indexer.ScanResult{Status: "error", Error: "root unreadable"}

	tests := []struct {
		name          string
		target        string
		result        *indexer.ScanResult
		err           error
		wantCode      int
		wantTriggered int
	}{
		{"sync completes", "/api/scan", done, nil, http.StatusOK, 0},
		{"sync already running", "/api/scan", nil, indexer.ErrScanInProgress, http.StatusConflict, 0},
		{"sync root unreadable", "/api/scan", rootGone, errors.Join(indexer.ErrRootUnreadable, os.ErrNotExist), http.StatusServiceUnavailable, 0},
		{"sync other failure", "/api/scan", nil, errors.New("disk on fire"), http.StatusInternalServerError, 0},
		{"async starts", "/api/scan?async=true", nil, nil, http.StatusAccepted, 1},
		{"async already running", "/api/scan?async=1", nil, indexer.ErrScanInProgress, http.StatusConflict, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scanner := &fakeScanner{result: tt.result, err: tt.err}
			h := New(nil, scanner, nil, 0)

			w := serve(h, http.MethodPost, tt.target)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantCode, w.Body.String())
			}
			if scanner.triggered != tt.wantTriggered {
				t.Errorf("triggered = %d, want %d", scanner.triggered, tt.wantTriggered)
			}
			if tt.result != nil {
				got := decode[indexer.ScanResult](t, w)
				if got.Status != tt.result.Status || got.FoldersProcessed != tt.result.FoldersProcessed ||
					got.ImagesProcessed != tt.result.ImagesProcessed {
					t.Errorf("result = %+v, want %+v", got, tt.result)
				}
			}
		})
	}
}

func TestTriggerScanOutlivesClient(t *testing.T) {
	t.Parallel()

	scanner := &fakeScanner{result: &indexer.ScanResult{Status: "completed"}}
	h := New(nil, scanner, nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/scan", http.NoBody).WithContext(ctx)
	h.TriggerScan(httptest.NewRecorder(), req)

	if scanner.scanCtx == nil {
		t.Fatal("FullScan was not called")
	}
	if err := scanner.scanCtx.Err(); err != nil {
		t.Errorf("scan context was cancelled with the request: %v", err)
	}
}

func TestScanStatus(t *testing.T) {
	t.Parallel()

	last := &indexer.ScanResult{
		Status:   "completed",
		Failed:   1,
		Failures: []indexer.Failure{{Path: "/m/bad.png", Kind: "generation_failed", Reason: "corrupt"}},
	}
	scanner := &fakeScanner{
		health: indexer.HealthStatus{
			Scanning: true,
			Progress: &indexer.ProgressSnapshot{Total: 10, Processed: 4, Running: true},
		},
		last: last,
	}
	h := New(nil, scanner, fakeWatch{watching: true, pending: 3}, 0)

	w := serve(h, http.MethodGet, "/api/scan/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	got := decode[ScanStatusResponse](t, w)
	if !got.Scanning || got.Progress == nil || got.Progress.Processed != 4 {
		t.Errorf("progress = %+v", got)
	}
	if got.LastResult == nil || len(got.LastResult.Failures) != 1 {
		t.Errorf("lastResult = %+v", got.LastResult)
	}
	if !got.Watching || got.Pending != 3 {
		t.Errorf("watch status = %v/%d, want true/3", got.Watching, got.Pending)
	}
}

func TestScanStatusWithoutWatcher(t *testing.T) {
	t.Parallel()

	h := New(nil, &fakeScanner{}, nil, 0)
	w := serve(h, http.MethodGet, "/api/scan/status")

	got := decode[ScanStatusResponse](t, w)
	if got.Watching || got.Progress != nil || got.LastResult != nil {
		t.Errorf("idle status = %+v", got)
	}
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	f := newCatalogFixture(t)
	f.addMedia(t, "a/one.jpg", "one", "")

	tests := []struct {
		name       string
		health     indexer.HealthStatus
		wantCode   int
		wantStatus string
	}{
		{"starting", indexer.HealthStatus{Ready: false, Scanning: true}, http.StatusServiceUnavailable, statusStarting},
		{"healthy", indexer.HealthStatus{Ready: true, LastScanned: time.Now()}, http.StatusOK, statusHealthy},
		{"degraded", indexer.HealthStatus{Ready: true, InitialScanError: "root unreadable"}, http.StatusOK, statusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(f.db, &fakeScanner{health: tt.health}, fakeWatch{watching: true}, 0)

			w := httptest.NewRecorder()
			h.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}

			got := decode[HealthResponse](t, w)
			if got.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", got.Status, tt.wantStatus)
			}
			if got.TotalFolders != 4 || got.TotalMedia != 1 {
				t.Errorf("totals = %d folders, %d media; want 4, 1", got.TotalFolders, got.TotalMedia)
			}
			if !got.Watching {
				t.Error("Watching = false")
			}
			if tt.health.LastScanned.IsZero() != (got.LastScanned == "") {
				t.Errorf("LastScanned = %q", got.LastScanned)
			}
		})
	}
}

func TestLivenessCheck(t *testing.T) {
	t.Parallel()

	h := &Handlers{}
	for _, method := range []string{http.MethodGet, http.MethodHead} {
		w := httptest.NewRecorder()
		h.LivenessCheck(w, httptest.NewRequest(method, "/livez", http.NoBody))

		if w.Code != http.StatusOK {
			t.Errorf("%s status = %d", method, w.Code)
		}
		if method == http.MethodHead && w.Body.Len() != 0 {
			t.Errorf("HEAD wrote a body: %q", w.Body.String())
		}
	}
}

func TestReadinessCheck(t *testing.T) {
	t.Parallel()

	for _, ready := range []bool{true, false} {
		h := New(nil, &fakeScanner{health: indexer.HealthStatus{Ready: ready}}, nil, 0)
		w := httptest.NewRecorder()
		h.ReadinessCheck(w, httptest.NewRequest(http.MethodGet, "/readyz", http.NoBody))

		want := http.StatusOK
		if !ready {
			want = http.StatusServiceUnavailable
		}
		if w.Code != want {
			t.Errorf("ready=%v: status = %d, want %d", ready, w.Code, want)
		}
	}
}

func TestGetVersion(t *testing.T) {
	t.Parallel()

	h := &Handlers{}
	w := httptest.NewRecorder()
	h.GetVersion(w, httptest.NewRequest(http.MethodGet, "/version", http.NoBody))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q", cc)
	}
	if got := decode[map[string]string](t, w); got["goVersion"] == "" {
		t.Errorf("version body = %v", got)
	}
}
