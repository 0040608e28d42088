package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
)

// GenerateCall is one call to a generation endpoint. When Files is empty the
// body is JSON-encoded Fields; otherwise it is multipart form data.
type GenerateCall struct {
	Path   string
	Fields map[string]any
	// Files maps a form field name to a local file path.
	Files map[string]string
}

// Generate invokes a generation endpoint and returns the produced content,
// either markdown or a reference URL.
func (c *Client) Generate(ctx context.Context, call GenerateCall) (string, error) {
	op := "generate " + filepath.Base(call.Path)

	var (
		body        io.Reader
		contentType string
	)
	if len(call.Files) == 0 {
		raw, err := json.Marshal(call.Fields)
		if err != nil {
			return "", err
		}
		body, contentType = bytes.NewReader(raw), "application/json"
	} else {
		buf, ctype, err := multipartBody(call)
		if err != nil {
			return "", err
		}
		body, contentType = buf, ctype
	}

	env, err := c.do(ctx, op, http.MethodPost, call.Path, body, contentType)
	if err != nil {
		return "", err
	}
	return env.Content, nil
}

func multipartBody(call GenerateCall) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, v := range call.Fields {
		if err := mw.WriteField(name, fmt.Sprint(v)); err != nil {
			return nil, "", err
		}
	}
	for field, path := range call.Files {
		if err := attachFile(mw, field, path); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func attachFile(mw *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", field, err)
	}
	defer f.Close()
	part, err := mw.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}
