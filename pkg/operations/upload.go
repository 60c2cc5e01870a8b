package operations

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/habedi/uniboard/client"
	"github.com/habedi/uniboard/pkg/hasher"
	"github.com/habedi/uniboard/pkg/pool"
	"github.com/rs/zerolog/log"
)

// Uploader sends one data file to the backend. *client.Client satisfies it.
type Uploader interface {
	UploadDataFile(ctx context.Context, path string, replaceExisting bool, progress io.Writer) (*client.UploadResponse, error)
}

// UploadResult is the outcome of uploading one file.
type UploadResult struct {
	File     string
	Hash     string
	Response *client.UploadResponse
	Err      error
}

// UploadFiles uploads files with up to workers concurrent requests.
// Results are returned in the order of files.
func UploadFiles(ctx context.Context, up Uploader, files []string, replaceExisting bool, workers int) []UploadResult {
	if workers < 1 {
		workers = 1
	}
	var mu sync.Mutex
	byFile := make(map[string]UploadResult, len(files))

	errs := pool.Run(ctx, files, workers, func(ctx context.Context, path string) error {
		res := UploadResult{File: path}
		hash, err := hasher.GenerateHash(path, hasher.DefaultAlgo)
		if err != nil {
			log.Warn().Err(err).Str("file", path).Msg("Failed to hash data file")
		}
		res.Hash = hash
		res.Response, res.Err = up.UploadDataFile(ctx, path, replaceExisting, nil)

		mu.Lock()
		byFile[path] = res
		mu.Unlock()
		if res.Err != nil {
			return fmt.Errorf("%s: %w", path, res.Err)
		}
		return nil
	})
	for _, err := range errs {
		log.Error().Err(err).Msg("Upload failed")
	}

	results := make([]UploadResult, 0, len(files))
	for _, f := range files {
		res, ok := byFile[f]
		if !ok {
			res = UploadResult{File: f, Err: ctx.Err()}
			if res.Err == nil {
				res.Err = fmt.Errorf("not uploaded")
			}
		}
		results = append(results, res)
	}
	return results
}

// Summarize counts successful and failed uploads and returns the failed files sorted.
func Summarize(results []UploadResult) (ok int, failed []string) {
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r.File)
			continue
		}
		ok++
	}
	sort.Strings(failed)
	return ok, failed
}
