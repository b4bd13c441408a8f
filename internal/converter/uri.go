package converter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"

	htmlmd "github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	nethtml "golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"docconvert/internal/model"
)

const (
	userAgent       = "docconvert/2.0"
	maxPageBytes    = 32 * megabyte
	maxObjectBytes  = 250 * megabyte
	objectURIScheme = "s3"
)

// ConvertURI converts a web page, a video link or an s3://bucket/key object.
func (c *Converter) ConvertURI(ctx context.Context, uri string) model.ConversionResult {
	uri = strings.TrimSpace(uri)
	if isVideoURL(uri) {
		return c.guard("YouTube video", uri, func() model.ConversionResult { return c.convertVideo(ctx, uri) })
	}
	if u, err := url.Parse(uri); err == nil && u.Scheme == objectURIScheme {
		return c.guard("object", uri, func() model.ConversionResult { return c.convertObject(ctx, u) })
	}
	return c.guard("URL", uri, func() model.ConversionResult { return c.convertPage(ctx, uri) })
}

func (c *Converter) convertPage(ctx context.Context, uri string) model.ConversionResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return model.Failure("Error converting URL: %v", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return model.Failure("Error converting URL: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return model.Failure("Error converting URL: %s for url: %s", resp.Status, uri)
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, maxPageBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		return model.Failure("Error converting URL: %v", err)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return model.Failure("Error converting URL: %v", err)
	}
	src := string(raw)

	doc, err := nethtml.Parse(bytes.NewReader(raw))
	if err != nil {
		return model.Failure("Error converting URL: %v", err)
	}
	title := pageTitle(doc)

	if c.htmlMarkdown {
		md, err := c.markdown.ConvertString(src, htmlmd.WithDomain(uri))
		if err != nil {
			return model.Failure("Error converting URL: %v", err)
		}
		return model.Success("# " + title + "\n\n" + strings.TrimSpace(md))
	}
	return model.Success("# " + title + "\n\n" + c.plainText(src))
}

// convertObject stages the object in a temp file named after the key's
// extension and converts it like an upload.
func (c *Converter) convertObject(ctx context.Context, u *url.URL) model.ConversionResult {
	if c.objects == nil {
		return model.Failure("Error converting object: object storage is not configured")
	}
	bucket, key := u.Host, strings.TrimPrefix(u.Path, "/")
	if bucket != c.objects.Bucket() {
		return model.Failure("Error converting object: unknown bucket %q", bucket)
	}
	if key == "" {
		return model.Failure("Error converting object: missing object key")
	}
	if Detect(key) == FormatArchive {
		return model.Failure("Error: %s files cannot be converted directly", FormatArchive.Label())
	}

	info, err := c.objects.Stat(ctx, key)
	if err != nil {
		return model.Failure("Error converting object: %v", err)
	}
	if info.Size > maxObjectBytes {
		return model.Failure("Error converting object: %s is too large (%dMB)", key, info.Size/megabyte)
	}

	rc, _, err := c.objects.Get(ctx, key)
	if err != nil {
		return model.Failure("Error converting object: %v", err)
	}
	defer rc.Close()

	tmp, err := os.CreateTemp("", "object-*"+strings.ToLower(path.Ext(key)))
	if err != nil {
		return model.Failure("Error converting object: %v", err)
	}
	defer os.Remove(tmp.Name())

	_, err = io.Copy(tmp, io.LimitReader(rc, maxObjectBytes))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return model.Failure("Error converting object: %v", err)
	}

	c.logger.Debug("object_staged", "bucket", bucket, "key", key, "size", info.Size)
	return c.Convert(ctx, tmp.Name())
}

// OutputName derives the .md filename for a converted URL. A path yields its
// last segment ("url_content" when it ends in a slash); a bare host yields the
// host with dots replaced by underscores.
func OutputName(uri string) string {
	u, err := url.Parse(strings.TrimSpace(uri))
	if err != nil {
		return "url_content.md"
	}
	var name string
	if u.Path != "" && u.Path != "/" {
		if !strings.HasSuffix(u.Path, "/") {
			name = path.Base(u.Path)
		}
	} else {
		name = strings.ReplaceAll(u.Host, ".", "_")
	}
	if name == "" {
		name = "url_content"
	}
	return fmt.Sprintf("%s.md", name)
}
