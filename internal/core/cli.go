package core

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
)

type ValidationError struct {
	Arg   string
	Cause string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Arg, e.Cause)
}

type ParsedPath struct {
	FullPath string
	Size     int64
}

// ParseArgs validates CLI file arguments. Each argument must name a regular
// file; a protection always covers exactly one file.
func ParseArgs(args []string) ([]ParsedPath, error) {
	if len(args) == 0 {
		return nil, &ValidationError{Arg: "<files>", Cause: "no files provided"}
	}

	var out []ParsedPath

	for _, raw := range args {
		p := filepath.Clean(raw)
		info, err := os.Stat(p)
		if err != nil {
			return nil, &ValidationError{Arg: raw, Cause: "not found or not accessible"}
		}
		if info.IsDir() {
			return nil, &ValidationError{Arg: raw, Cause: "is a directory"}
		}

		out = append(out, ParsedPath{FullPath: p, Size: info.Size()})
	}

	return out, nil
}

// FileInput is a file read fully into memory together with its metadata.
type FileInput struct {
	Meta FileMeta
	Data []byte
}

// LoadFile reads the file at path and fills in its metadata. The MIME type
// comes from the extension and falls back to content sniffing.
func LoadFile(path string) (*FileInput, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return &FileInput{
		Meta: FileMeta{
			Name:         filepath.Base(path),
			Size:         int64(len(data)),
			MimeType:     DetectMimeType(path, data),
			LastModified: info.ModTime(),
		},
		Data: data,
	}, nil
}

// DetectMimeType guesses the MIME type of a file from its name, then its bytes.
func DetectMimeType(name string, data []byte) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	if len(data) == 0 {
		return "application/octet-stream"
	}
	return http.DetectContentType(data)
}
