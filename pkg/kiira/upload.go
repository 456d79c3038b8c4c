package kiira

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"kiira-hq/gateway/pkg/upstream"

	"github.com/tidwall/gjson"
)

// uploadCategory is the uploader category for chat attachments.
const uploadCategory = 74

// Resource is an uploaded attachment as referenced by send-message.
type Resource struct {
	Name string `json:"name"`
	Size int    `json:"size"`
	URL  string `json:"url"`
	Type string `json:"type"`

	// Path and ID are returned by the uploader but not sent with messages.
	Path string `json:"-"`
	ID   string `json:"-"`
}

// Upload fetches an image reference and stores it with the uploader:
// pre-sign, PUT to the signed URL, then complete.
func (c *Client) Upload(ctx context.Context, id Identity, source string) (Resource, error) {
	if id.Token == "" {
		return Resource{}, ErrNoToken
	}
	file, err := c.FetchMedia(ctx, source)
	if err != nil {
		return Resource{}, err
	}
	return c.UploadFile(ctx, id, file)
}

// UploadFile stores already loaded image bytes with the uploader.
func (c *Client) UploadFile(ctx context.Context, id Identity, file *MediaFile) (Resource, error) {
	if id.Token == "" {
		return Resource{}, ErrNoToken
	}
	size := len(file.Data)
	uploaderHeaders := headerOptions{
		referer:        c.cfg.KiiraBaseURL + "/",
		acceptLanguage: "zh",
		secFetchSite:   "cross-site",
	}

	presign, err := c.call(ctx, "upload_presign", c.cfg.UploaderBaseURL+"/api/upload/pre-sign", id,
		uploaderHeaders,
		map[string]any{
			"id":           strconv.FormatInt(c.now().UnixMilli(), 10),
			"category":     uploadCategory,
			"content_type": file.ContentType,
			"file_name":    file.FileName,
			"file_size":    size,
			"name":         file.FileName,
			"size":         size,
		}, false)
	if err != nil {
		return Resource{}, err
	}

	uploadID := presign.Get("id").String()
	signed := presign.Get("pre_signs.0")
	signedURL := signed.Get("url").String()
	if uploadID == "" || signedURL == "" {
		return Resource{}, &MissingFieldError{Operation: "upload_presign", Field: "data.pre_signs.0.url"}
	}

	put := make(http.Header)
	signed.Get("headers").ForEach(func(k, v gjson.Result) bool {
		put.Set(k.String(), v.String())
		return true
	})
	put.Set("Content-Type", file.ContentType)

	resp, err := c.transport.Do(ctx, &upstream.Request{
		Operation:  "upload_put",
		Method:     http.MethodPut,
		URL:        signedURL,
		Header:     put,
		Body:       file.Data,
		Idempotent: true,
	})
	if err != nil {
		return Resource{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Resource{}, &upstream.StatusError{
			Operation:  "upload_put",
			StatusCode: resp.StatusCode,
			Body:       string(resp.Body),
		}
	}

	res, err := c.transport.DoJSON(ctx, &upstream.Request{
		Operation:  "upload_complete",
		Method:     http.MethodPost,
		URL:        c.cfg.UploaderBaseURL + "/api/upload/complete",
		Header:     c.headers(id, uploaderHeaders),
		Idempotent: true,
	}, map[string]string{"id": uploadID})
	if err != nil {
		return Resource{}, err
	}
	if code := res.Get("status.code").Int(); code != statusOK {
		return Resource{}, &APIError{
			Operation: "upload_complete",
			Code:      code,
			Message:   res.Get("status.msg").String(),
		}
	}

	url := res.Get("data.url").String()
	if url == "" {
		return Resource{}, &MissingFieldError{Operation: "upload_complete", Field: "data.url"}
	}

	c.logger.Debug("resource uploaded",
		"file_name", file.FileName,
		"size", size,
		"content_type", file.ContentType,
	)
	return Resource{
		Name: file.FileName,
		Size: size,
		URL:  url,
		Type: "image",
		Path: res.Get("data.path").String(),
		ID:   uploadID,
	}, nil
}

// String implements fmt.Stringer.
func (r Resource) String() string {
	return fmt.Sprintf("%s (%d bytes) %s", r.Name, r.Size, r.URL)
}
