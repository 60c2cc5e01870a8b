package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/habedi/uniboard/pkg/validation"
	"github.com/rs/zerolog/log"
)

// UploadDataFile posts a CSV or Excel file to the data upload endpoint.
// When progress is non-nil the encoded body is copied to it as it is sent.
func (c *Client) UploadDataFile(ctx context.Context, path string, replaceExisting bool, progress io.Writer) (*UploadResponse, error) {
	if err := validation.ValidateUploadFile(path); err != nil {
		return nil, &APIError{Kind: ValidationFailure, Message: err.Error(), Err: err}
	}
	payload, err := encodeUpload(path, replaceExisting)
	if err != nil {
		return nil, err
	}
	log.Info().Str("file", filepath.Base(path)).Int("bytes", len(payload.Data)).Msg("Uploading data file")

	r, err := newRequest(http.MethodPost, UploadPath, payload, nil)
	if err != nil {
		return nil, err
	}
	r.progress = progress
	body, err := c.send(ctx, r)
	if err != nil {
		return nil, err
	}
	var resp UploadResponse
	if err := decodeInto(body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// encodeUpload builds the multipart body in memory so it can be resent
// after a token refresh.
func encodeUpload(path string, replaceExisting bool) (Payload, error) {
	file, err := os.Open(path)
	if err != nil {
		return Payload{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return Payload{}, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return Payload{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := mw.WriteField("replace_existing", strconv.FormatBool(replaceExisting)); err != nil {
		return Payload{}, err
	}
	if err := mw.Close(); err != nil {
		return Payload{}, err
	}
	return Payload{ContentType: mw.FormDataContentType(), Data: buf.Bytes()}, nil
}
