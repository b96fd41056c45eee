// Package viewer serves the bundled viewer UI's static assets plus the
// /_local data endpoint it polls for a cooked bundle, per spec.md §6's
// "viewer <TRACE>" contract. The actual UI is an external collaborator
// (spec.md §1, Non-goals) — this package only serves whatever asset
// directory it's pointed at, the data endpoint, and an ambient
// live-reload convenience the spec doesn't require but doesn't forbid.
package viewer

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tracecook/tracecook/internal/cook"
)

// Options configures a Viewer.
type Options struct {
	// AssetsDir is the static directory served at "/". Empty serves
	// nothing but 404s there — the bundled UI is supplied externally.
	AssetsDir string

	// TracePath is the file the viewer was started against. If it ends
	// in ".jsonl" it's treated as a raw capture log: New cooks it once
	// up front, and a background watcher re-cooks it on every change,
	// writing the result next to it with a ".json" extension. Otherwise
	// it's served as-is (already a cooked bundle).
	TracePath string

	CookOptions cook.Options
}

// Viewer serves the static UI plus the /_local and /_local/ws endpoints.
type Viewer struct {
	assetsDir string
	servePath string // resolved path /_local with no ?path serves
	root      string // directory relative "path" query params resolve against
	hub       *reloadHub
	watcher   *fileWatcher
	mu        sync.Mutex
}

// New constructs a Viewer and, if TracePath is a raw capture log, cooks
// it once before returning.
func New(opts Options) (*Viewer, error) {
	root, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	v := &Viewer{
		assetsDir: opts.AssetsDir,
		root:      root,
		hub:       newReloadHub(),
	}
	go v.hub.run()

	if strings.HasSuffix(opts.TracePath, ".jsonl") {
		outPath := strings.TrimSuffix(opts.TracePath, ".jsonl") + ".json"
		if err := v.cookInto(opts.TracePath, outPath, opts.CookOptions); err != nil {
			return nil, err
		}
		v.servePath = outPath

		w, err := watchFile(opts.TracePath, func() {
			if err := v.cookInto(opts.TracePath, outPath, opts.CookOptions); err != nil {
				slog.Error("viewer auto-cook failed", "error", err)
				return
			}
			v.hub.broadcastReload()
		})
		if err != nil {
			return nil, err
		}
		v.watcher = w
	} else {
		v.servePath = opts.TracePath
	}

	return v, nil
}

// cookInto runs the cook pipeline over src and writes the resulting
// bundle as JSON to dst.
func (v *Viewer) cookInto(src, dst string, opts cook.Options) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	bundle, err := cook.Run(src, opts, func(s cook.Skip) {
		slog.Warn("skipped record during viewer auto-cook", "record_id", s.RecordID, "reason", s.Reason)
	})
	if err != nil {
		return err
	}
	return writeJSONFile(dst, bundle)
}

// Close stops the background file watcher, if any.
func (v *Viewer) Close() error {
	if v.watcher != nil {
		return v.watcher.Close()
	}
	return nil
}

// Handler returns the http.Handler serving the viewer's three routes:
// static assets at "/", the data endpoint at "/_local", and the
// live-reload websocket at "/_local/ws".
func (v *Viewer) Handler() http.Handler {
	mux := http.NewServeMux()

	if v.assetsDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(v.assetsDir)))
	}

	mux.HandleFunc("/_local", v.handleLocal)
	mux.HandleFunc("/_local/ws", v.hub.handle)

	return mux
}

// handleLocal implements spec.md §6's "GET /_local?path=<relative>"
// contract: returns the JSON at path resolved against the server's
// working directory, 404 if it doesn't exist, 400 if it escapes the
// server root. No ?path defaults to the trace the viewer was started
// against.
func (v *Viewer) handleLocal(w http.ResponseWriter, r *http.Request) {
	rel := r.URL.Query().Get("path")
	if rel == "" {
		rel = v.servePath
	}

	resolved := filepath.Clean(filepath.Join(v.root, rel))
	if !withinRoot(v.root, resolved) {
		http.Error(w, "path escapes server root", http.StatusBadRequest)
		return
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func writeJSONFile(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func withinRoot(root, resolved string) bool {
	rel, err := filepath.Rel(root, resolved)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
