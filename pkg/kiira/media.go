package kiira

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"kiira-hq/gateway/pkg/upstream"
)

const defaultContentType = "image/jpeg"

// rawBase64Min is the length above which an unprefixed string is treated
// as inline base64 image data.
const rawBase64Min = 128

var (
	rawBase64Pattern = regexp.MustCompile(`^[A-Za-z0-9+/=]+$`)
	dataURIPattern   = regexp.MustCompile(`^data:([^;,]*)(;base64)?,`)

	errLocalFilesDisabled = errors.New("local file references are not allowed")
	errNotImage           = errors.New("not an image")
)

// MediaFile is image bytes ready for upload.
type MediaFile struct {
	Data        []byte
	ContentType string
	// FileName is the upload file name including its extension.
	FileName string
}

// FetchMedia loads an image reference: an http(s) URL, a data URI, raw
// base64, or (when enabled) a local file path.
func (c *Client) FetchMedia(ctx context.Context, source string) (*MediaFile, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, &MediaError{Source: source, Cause: errors.New("empty reference")}
	}

	var (
		file *MediaFile
		err  error
	)
	switch {
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		file, err = c.fetchURL(ctx, source)
	case strings.HasPrefix(source, "data:"):
		file, err = decodeDataURI(source)
	case len(source) > rawBase64Min && rawBase64Pattern.MatchString(source):
		file, err = decodeBase64(source, defaultContentType)
	default:
		file, err = c.readLocal(source)
	}
	if err != nil {
		return nil, &MediaError{Source: shorten(source), Cause: err}
	}
	return file, nil
}

func (c *Client) fetchURL(ctx context.Context, rawURL string) (*MediaFile, error) {
	resp, err := c.transport.Do(ctx, &upstream.Request{
		Operation:  "media_fetch",
		Method:     http.MethodGet,
		URL:        rawURL,
		Header:     http.Header{"Accept": {"image/*,*/*;q=0.8"}},
		Idempotent: true,
	})
	if err != nil {
		return nil, err
	}

	name := path.Base(strings.SplitN(strings.SplitN(rawURL, "?", 2)[0], "#", 2)[0])
	contentType := mediaType(resp.Header.Get("Content-Type"))
	if !strings.HasPrefix(contentType, "image/") {
		contentType = GuessContentType(name)
	}
	return &MediaFile{
		Data:        resp.Body,
		ContentType: contentType,
		FileName:    uploadName("upload", contentType),
	}, nil
}

func decodeDataURI(uri string) (*MediaFile, error) {
	m := dataURIPattern.FindStringSubmatch(uri)
	if m == nil {
		return nil, fmt.Errorf("malformed data URI")
	}
	if m[2] == "" {
		return nil, fmt.Errorf("data URI is not base64 encoded")
	}

	contentType := mediaType(m[1])
	switch contentType {
	case "image/png", "image/webp", "image/gif", "image/jpeg":
	case "image/jpg":
		contentType = "image/jpeg"
	default:
		if !strings.HasPrefix(contentType, "image/") {
			return nil, errNotImage
		}
		contentType = defaultContentType
	}
	return decodeBase64(uri[len(m[0]):], contentType)
}

func decodeBase64(s, contentType string) (*MediaFile, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	}
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image data: %w", err)
	}
	return &MediaFile{
		Data:        data,
		ContentType: contentType,
		FileName:    uploadName("upload", contentType),
	}, nil
}

func (c *Client) readLocal(p string) (*MediaFile, error) {
	if !c.allowLocalFiles {
		return nil, errLocalFilesDisabled
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}

	base := filepath.Base(p)
	contentType := GuessContentType(base)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = "upload"
	}
	return &MediaFile{
		Data:        data,
		ContentType: contentType,
		FileName:    uploadName(stem, contentType),
	}, nil
}

// GuessContentType maps a file name to an image content type, defaulting
// to image/jpeg.
func GuessContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	default:
		return defaultContentType
	}
}

// Extension returns the file extension used when uploading contentType.
func Extension(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}

func uploadName(stem, contentType string) string {
	return stem + Extension(contentType)
}

func mediaType(header string) string {
	if header == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(header))
	}
	return mt
}

func shorten(s string) string {
	if len(s) > 64 {
		return s[:64] + "..."
	}
	return s
}
