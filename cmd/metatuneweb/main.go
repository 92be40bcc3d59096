package main

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/r3labs/sse/v2"

	"go.noctark.ai/metatune"
	"go.noctark.ai/metatune/analytics"
	"go.noctark.ai/metatune/cmd/internal/logging"
	"go.noctark.ai/metatune/cmd/internal/metatuneflag"
	"go.noctark.ai/metatune/fileutil"
	"go.noctark.ai/metatune/zipfiles"
)

func main() {
	exit := logging.Logging()
	defer exit()

	cfg := metatuneflag.Config()
	notifs := metatuneflag.Notifications()
	confListenAddr := flag.String("listen-addr", ":7373", "Listen address")
	confAPIKey := flag.String("api-key", "", "API key")
	confUploadDir := flag.String("upload-dir", "", "Directory for uploads (default under system temp dir)")
	confMaxUpload := flag.Int64("max-upload-size", 256<<20, "Max upload body size in bytes")
	confSweepAge := flag.Duration("sweep-age", time.Hour, "Remove uploads older than this")
	analyticsDB := flag.String("analytics-db", "metatune.db", "Path to analytics SQLite database")
	metatuneflag.Parse()
	metatuneflag.DefaultClient()

	if *confAPIKey == "" {
		log.Fatal("need api key")
	}

	uploadDir := *confUploadDir
	if uploadDir == "" {
		uploadDir = filepath.Join(os.TempDir(), "metatune-uploads")
	}
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		log.Fatalf("create upload dir: %v", err)
	}

	store, err := analytics.Open(*analyticsDB)
	if err != nil {
		log.Fatalf("open analytics db: %v", err)
	}
	defer store.Close()

	cfg.Notifications = notifs
	cfg.Reporter = store
	if cfg.WorkDir == "" {
		cfg.WorkDir = uploadDir
	}

	proc, err := metatune.New(*cfg)
	if err != nil {
		log.Fatalf("init: %v", err)
	}

	sseServ := sse.New()
	sseServ.AutoStream = true
	sseServ.AutoReplay = false
	defer sseServ.Close()

	fileStream := sseServ.CreateStream("files")
	emit := func(event string, data any) {
		b, _ := json.Marshal(data)
		sseServ.Publish(fileStream.ID, &sse.Event{Event: []byte(event), Data: b})
	}

	go func() {
		for range time.Tick(5 * time.Minute) {
			if n, err := fileutil.SweepOlder(uploadDir, *confSweepAge); err != nil {
				slog.Error("sweep uploads", "err", err)
			} else if n > 0 {
				slog.Info("swept old uploads", "count", n)
			}
		}
	}()

	saveUpload := func(r *http.Request, field string) ([]string, error) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return nil, fmt.Errorf("parse form: %w", err)
		}
		var paths []string
		for _, hdr := range r.MultipartForm.File[field] {
			f, err := hdr.Open()
			if err != nil {
				return nil, fmt.Errorf("open part: %w", err)
			}
			name := fileutil.SafePath(filepath.Base(hdr.Filename))
			dest := filepath.Join(uploadDir, uuid.NewString()+"-"+name)
			out, err := os.Create(dest)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("create upload: %w", err)
			}
			_, err = io.Copy(out, f)
			f.Close()
			if cerr := out.Close(); cerr != nil && err == nil {
				err = cerr
			}
			if err != nil {
				return nil, fmt.Errorf("save upload: %w", err)
			}
			paths = append(paths, dest)
		}
		if len(paths) == 0 {
			return nil, errors.New("no files provided")
		}
		return paths, nil
	}

	type fileResponse struct {
		Filename  string             `json:"filename"`
		Score     float64            `json:"score"`
		Label     string             `json:"label"`
		Breakdown map[string]float64 `json:"breakdown"`
		Title     string             `json:"title,omitempty"`
		Artist    string             `json:"artist,omitempty"`
		Album     string             `json:"album,omitempty"`
		WroteTags bool               `json:"wrote_tags"`
		Error     string             `json:"error,omitempty"`
	}
	toResponse := func(e metatune.BatchEntry) fileResponse {
		fr := fileResponse{
			Filename:  filepath.Base(e.Result.Path),
			Score:     e.Result.Fusion.Score,
			Label:     string(e.Result.Fusion.Label),
			Breakdown: e.Result.Fusion.Breakdown,
			Title:     e.Result.Tags.Title,
			Artist:    e.Result.Tags.Artist,
			Album:     e.Result.Tags.Album,
			WroteTags: e.Result.WroteTags,
		}
		if e.Err != nil {
			fr.Error = e.Err.Error()
		}
		return fr
	}

	mux := http.NewServeMux()
	mux.Handle("GET /events", sseServ)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	mux.HandleFunc("GET /api/stats", func(w http.ResponseWriter, r *http.Request) {
		stats, err := store.Stats(r.Context())
		if err != nil {
			http.Error(w, fmt.Sprintf("stats: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(stats)
	})

	mux.HandleFunc("POST /api/tag", func(w http.ResponseWriter, r *http.Request) {
		paths, err := saveUpload(r, "file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer removeAll(paths)

		res, perr := proc.ProcessFile(r.Context(), paths[0])
		entry := metatune.BatchEntry{Path: paths[0], Result: res, Err: perr}
		emit("file-complete", toResponse(entry))

		if perr != nil {
			http.Error(w, fmt.Sprintf("process: %v", perr), http.StatusUnprocessableEntity)
			return
		}

		w.Header().Set("X-Metatune-Score", fmt.Sprintf("%.3f", res.Fusion.Score))
		w.Header().Set("X-Metatune-Label", string(res.Fusion.Label))
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(res.Path)))
		http.ServeFile(w, r, res.Path)
	})

	mux.HandleFunc("POST /api/batch", func(w http.ResponseWriter, r *http.Request) {
		paths, err := saveUpload(r, "files")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer removeAll(paths)

		entries := proc.Batch(r.Context(), paths)

		var tagged []string
		for _, e := range entries {
			emit("file-complete", toResponse(e))
			if e.Err == nil {
				tagged = append(tagged, e.Result.Path)
			}
		}
		if len(tagged) == 0 {
			http.Error(w, "no files tagged", http.StatusUnprocessableEntity)
			return
		}

		zipPath := filepath.Join(uploadDir, uuid.NewString()+".zip")
		defer os.Remove(zipPath)
		if err := zipfiles.Create(zipPath, tagged); err != nil {
			http.Error(w, fmt.Sprintf("package zip: %v", err), http.StatusInternalServerError)
			return
		}
		removeAll(tagged)

		w.Header().Set("Content-Disposition", `attachment; filename="tagged.zip"`)
		http.ServeFile(w, r, zipPath)
	})

	log.Printf("starting on %s", *confListenAddr)
	log.Panicln(http.ListenAndServe(*confListenAddr, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			mux.ServeHTTP(w, r)
			return
		}
		w.Header().Set("WWW-Authenticate", "Basic")
		if _, key, _ := r.BasicAuth(); subtle.ConstantTimeCompare([]byte(key), []byte(*confAPIKey)) != 1 {
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, *confMaxUpload)
		mux.ServeHTTP(w, r)
	})))
}

func removeAll(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("remove upload", "path", p, "err", err)
		}
	}
}
