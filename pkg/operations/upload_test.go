package operations_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/habedi/uniboard/client"
	"github.com/habedi/uniboard/pkg/operations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	mu      sync.Mutex
	calls   []string
	failFor map[string]error
}

func (f *fakeUploader) UploadDataFile(ctx context.Context, path string, replace bool, progress io.Writer) (*client.UploadResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, path)
	f.mu.Unlock()
	if err := f.failFor[filepath.Base(path)]; err != nil {
		return nil, err
	}
	return &client.UploadResponse{Status: "completed", DataType: "kpi", ProcessedRecords: 1}, nil
}

func TestUploadFiles(t *testing.T) {
	dir := t.TempDir()
	var files []string
	for _, name := range []string{"a.csv", "b.csv", "c.xlsx"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(name), 0600))
		files = append(files, p)
	}
	up := &fakeUploader{failFor: map[string]error{
		"b.csv": &client.APIError{Kind: client.ValidationFailure, Status: 400, Message: "unknown columns"},
	}}

	results := operations.UploadFiles(context.Background(), up, files, true, 2)

	require.Len(t, results, 3)
	assert.Len(t, up.calls, 3)
	for i, r := range results {
		assert.Equal(t, files[i], r.File, "results keep input order")
		assert.Len(t, r.Hash, 64)
	}
	assert.NoError(t, results[0].Err)
	assert.True(t, client.IsKind(results[1].Err, client.ValidationFailure))
	assert.Equal(t, "completed", results[2].Response.Status)

	ok, failed := operations.Summarize(results)
	assert.Equal(t, 2, ok)
	assert.Equal(t, []string{files[1]}, failed)
}

func TestUploadFiles_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	up := &fakeUploader{}

	results := operations.UploadFiles(ctx, up, []string{"a.csv", "b.csv"}, false, 1)

	require.Len(t, results, 2)
	for _, r := range results {
		// Work already handed to a worker may finish; the rest reports the cancellation.
		if r.Response == nil {
			assert.ErrorIs(t, r.Err, context.Canceled)
		}
	}
}
