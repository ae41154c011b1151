package utils

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/matthewtan01/pdf-rag/types"
)

// GetFileNameWithoutExt extracts filename without extension from a file path
func GetFileNameWithoutExt(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// IsPDF reports whether name carries a .pdf extension.
func IsPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// ReadMultipartFile reads an uploaded form file fully into memory, refusing
// files larger than maxSize bytes (0 means no limit).
func ReadMultipartFile(header *multipart.FileHeader, maxSize int64) (types.UploadedFile, error) {
	if maxSize > 0 && header.Size > maxSize {
		return types.UploadedFile{}, fmt.Errorf("%w: %s is larger than %d bytes", types.ErrInvalidInput, header.Filename, maxSize)
	}
	src, err := header.Open()
	if err != nil {
		return types.UploadedFile{}, fmt.Errorf("failed to open uploaded file: %v", err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return types.UploadedFile{}, fmt.Errorf("failed to read uploaded file: %v", err)
	}
	return types.UploadedFile{Name: filepath.Base(header.Filename), Data: data}, nil
}

// ReadLocalFiles loads the given paths plus every PDF directly inside
// directory (if set). Directory entries are read in name order.
func ReadLocalFiles(paths []string, directory string) ([]types.UploadedFile, error) {
	all := append([]string(nil), paths...)
	if directory != "" {
		entries, err := os.ReadDir(directory)
		if err != nil {
			return nil, fmt.Errorf("failed to read directory: %v", err)
		}
		var names []string
		for _, entry := range entries {
			if entry.IsDir() || !IsPDF(entry.Name()) {
				continue
			}
			names = append(names, filepath.Join(directory, entry.Name()))
		}
		sort.Strings(names)
		all = append(all, names...)
	}

	files := make([]types.UploadedFile, 0, len(all))
	for _, path := range all {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open source file: %v", err)
		}
		files = append(files, types.UploadedFile{Name: filepath.Base(path), Data: data})
	}
	return files, nil
}
