package operations

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/habedi/uniboard/pkg/hasher"
	"github.com/habedi/uniboard/pkg/validation"
)

// HashResult represents the result of a single file hashing operation.
type HashResult struct {
	File string
	Hash string
	Err  error
}

// FindUploadFiles walks dir and returns the files the upload endpoint accepts,
// skipping hidden files and Office lock files.
func FindUploadFiles(dir string, recursive bool) ([]string, error) {
	var files []string
	walkErr := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if !recursive && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		name := info.Name()
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(name))
		for _, allowed := range validation.UploadExtensions {
			if ext == allowed {
				files = append(files, path)
				break
			}
		}
		return nil
	})
	return files, walkErr
}

// GenerateHashes concurrently hashes files. The returned channel is closed
// once every file has been processed or ctx is cancelled.
func GenerateHashes(ctx context.Context, files []string, algo string, numThreads int) <-chan HashResult {
	if numThreads < 1 {
		numThreads = 1
	}
	tasks := make(chan string, len(files))
	results := make(chan HashResult, len(files))

	var wg sync.WaitGroup
	for i := 0; i < numThreads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for filePath := range tasks {
				select {
				case <-ctx.Done():
					return
				default:
				}
				hash, err := hasher.GenerateHash(filePath, algo)
				results <- HashResult{File: filePath, Hash: hash, Err: err}
			}
		}()
	}

	for _, f := range files {
		tasks <- f
	}
	close(tasks)

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}
