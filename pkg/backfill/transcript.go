package backfill

import (
	"os"
	"path/filepath"
	"strings"
)

// ScanTranscriptDir finds all JSONL files under the given directory,
// recursively.
func ScanTranscriptDir(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(path, ".jsonl") {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
