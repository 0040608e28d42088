package mcpserver

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/atelier/internal/export"
	"github.com/starford/atelier/internal/generate"
)

const (
	maxImageSize  = 10 << 20 // 10 MB
	maxRedirects  = 5
	fetchDeadline = 30 * time.Second
)

// imageTypes are the formats the image edit endpoints accept.
var imageTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// uploadImage stages an image from a URL or data URI and runs an image edit.
func (s *Server) uploadImage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	src, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	operation, err := req.RequireString("operation")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	build, ok := imageOperations[operation]
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("unknown operation %q (remove-background, remove-object)", operation)), nil
	}

	var data []byte
	if strings.HasPrefix(src, "data:") {
		data, err = decodeDataURI(src)
	} else {
		data, err = fetchImage(ctx, src)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	ext, err := sniffImage(data)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	dir, err := os.MkdirTemp("", "atelier-mcp-*")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to stage image: %v", err)), nil
	}
	defer os.RemoveAll(dir)

	staged := filepath.Join(dir, export.SanitizeFilename(stem(src)+ext))
	if err := os.WriteFile(staged, data, 0o600); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to stage image: %v", err)), nil
	}
	return s.runGenerate(ctx, build(staged, req.GetString("object", "")))
}

var imageOperations = map[string]func(path, object string) generate.Request{
	"remove-background": func(p, _ string) generate.Request { return generate.RemoveBackground{ImagePath: p} },
	"remove-object":     func(p, obj string) generate.Request { return generate.RemoveObject{ImagePath: p, Object: obj} },
}

// decodeDataURI parses a base64 data:[<mediatype>];base64,<data> URI.
func decodeDataURI(uri string) ([]byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, errors.New("invalid data URI: missing comma separator")
	}
	if !strings.HasSuffix(meta, ";base64") {
		return nil, errors.New("only base64 data URIs are supported")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(payload); err != nil {
			return nil, fmt.Errorf("invalid base64 data: %w", err)
		}
	}
	if len(data) > maxImageSize {
		return nil, fmt.Errorf("image too large: %d bytes (max %d)", len(data), maxImageSize)
	}
	return data, nil
}

// fetchImage downloads rawURL, refusing loopback and metadata hosts on the
// first hop and on every redirect.
func fetchImage(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s (only http/https)", u.Scheme)
	}
	if err := checkBlockedHost(u.Hostname()); err != nil {
		return nil, err
	}

	client := &http.Client{
		Timeout: fetchDeadline,
		CheckRedirect: func(r *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("too many redirects (max %d)", maxRedirects)
			}
			return checkBlockedHost(r.URL.Hostname())
		},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("read body failed: %w", err)
	}
	if len(data) > maxImageSize {
		return nil, fmt.Errorf("image too large: exceeds %d bytes", maxImageSize)
	}
	return data, nil
}

// checkBlockedHost rejects loopback, link-local and cloud metadata addresses.
func checkBlockedHost(host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("blocked host: %s", host)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return nil //nolint:nilerr // let http.Client handle DNS failures
		}
		ip = ips[0]
	}
	switch {
	case ip.IsLoopback(), ip.IsUnspecified():
		return fmt.Errorf("blocked host: loopback address %s", host)
	case ip.IsLinkLocalUnicast():
		// covers 169.254.169.254
		return fmt.Errorf("blocked host: link-local address %s", host)
	}
	return nil
}

// sniffImage returns the extension for data's detected type. Only the
// formats the edit endpoints accept pass.
func sniffImage(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("image is empty")
	}
	detected := http.DetectContentType(data)
	ext, ok := imageTypes[strings.Split(detected, ";")[0]]
	if !ok {
		return "", fmt.Errorf("unsupported image content (detected: %s; allowed: png, jpg, gif, webp)", detected)
	}
	return ext, nil
}

// stem returns the base name of src without extension, or "upload".
func stem(src string) string {
	if strings.HasPrefix(src, "data:") {
		return "upload"
	}
	u, err := url.Parse(src)
	if err != nil {
		return "upload"
	}
	base := path.Base(u.Path)
	base = strings.TrimSuffix(base, path.Ext(base))
	if base == "" || base == "." || base == "/" {
		return "upload"
	}
	return base
}
