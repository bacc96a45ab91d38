package staging

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
)

// File is a locally selected file.
type File struct {
	Path     string
	Name     string
	MIMEType string
	Size     int64
}

// NewFileFromPath stats path and detects its MIME type from the extension,
// falling back to content sniffing.
func NewFileFromPath(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("stat attachment: %w", err)
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("%w: %s is a directory", ErrInvalidFile, path)
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType, err = sniff(path)
		if err != nil {
			return File{}, err
		}
	}

	return File{
		Path:     path,
		Name:     filepath.Base(path),
		MIMEType: mimeType,
		Size:     info.Size(),
	}, nil
}

func sniff(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open attachment: %w", err)
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read attachment: %w", err)
	}
	return http.DetectContentType(buf[:n]), nil
}

// Open opens the file for upload.
func (f File) Open() (io.ReadCloser, error) {
	return os.Open(f.Path)
}
