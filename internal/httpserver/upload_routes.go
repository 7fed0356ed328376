package httpserver

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"keikkaduuni/internal/config"
)

// uploadURLPrefix is the public path stored in message attachments.
const uploadURLPrefix = "/uploads/"

// UploadRoutes serves stored attachments: GET /{filename}.
func UploadRoutes(cfg *config.Config) chi.Router {
	r := chi.NewRouter()

	r.Get("/{filename}", func(w http.ResponseWriter, r *http.Request) {
		filename := chi.URLParam(r, "filename")
		// Prevent path traversal by not allowing separators.
		if filename == "" || filepath.Base(filename) != filename || strings.HasPrefix(filename, ".") {
			http.Error(w, "invalid filename", http.StatusBadRequest)
			return
		}
		http.ServeFile(w, r, filepath.Join(cfg.UploadDir, filename))
	})

	return r
}

// saveUploads stores each file under dir with a random name and returns the
// public URLs and the paths written.
func saveUploads(dir string, files []*multipart.FileHeader) ([]string, []string, error) {
	urls := make([]string, 0, len(files))
	paths := make([]string, 0, len(files))
	for _, fh := range files {
		name := uuid.NewString() + strings.ToLower(filepath.Ext(filepath.Base(fh.Filename)))
		dest := filepath.Join(dir, name)
		if err := saveUpload(fh, dest); err != nil {
			removeUploads(paths)
			return nil, nil, err
		}
		urls = append(urls, uploadURLPrefix+name)
		paths = append(paths, dest)
	}
	return urls, paths, nil
}

func saveUpload(fh *multipart.FileHeader, dest string) error {
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload %q: %w", fh.Filename, err)
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(dest)
		return fmt.Errorf("save upload %q: %w", fh.Filename, err)
	}
	return out.Close()
}

func removeUploads(paths []string) {
	for _, p := range paths {
		_ = os.Remove(p)
	}
}
