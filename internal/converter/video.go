package converter

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"

	"docconvert/internal/model"
)

// ErrTranscriptUnavailable means the video has no fetchable transcript.
var ErrTranscriptUnavailable = errors.New("transcript not available")

const defaultTimedTextURL = "https://www.youtube.com/api/timedtext"

var videoHosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
	"youtu.be":          true,
	"www.youtu.be":      true,
}

// TranscriptSegment is one caption line.
type TranscriptSegment struct {
	Text     string
	Start    float64
	Duration float64
}

// TranscriptFetcher loads the captions of a video.
type TranscriptFetcher interface {
	Fetch(ctx context.Context, videoID string) ([]TranscriptSegment, error)
}

// TimedTextFetcher reads captions from the timedtext XML endpoint.
type TimedTextFetcher struct {
	client   *http.Client
	endpoint string
	language string
}

// NewTimedTextFetcher returns a fetcher for English captions.
func NewTimedTextFetcher(client *http.Client) *TimedTextFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &TimedTextFetcher{client: client, endpoint: defaultTimedTextURL, language: "en"}
}

type timedText struct {
	Texts []struct {
		Start    float64 `xml:"start,attr"`
		Duration float64 `xml:"dur,attr"`
		Body     string  `xml:",chardata"`
	} `xml:"text"`
}

func (f *TimedTextFetcher) Fetch(ctx context.Context, videoID string) ([]TranscriptSegment, error) {
	q := url.Values{"v": {videoID}, "lang": {f.language}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrTranscriptUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16*1024*1024))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, ErrTranscriptUnavailable
	}
	var tt timedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTranscriptUnavailable, err)
	}
	segs := make([]TranscriptSegment, 0, len(tt.Texts))
	for _, t := range tt.Texts {
		// Caption bodies are HTML-escaped a second time inside the XML.
		text := strings.TrimSpace(html.UnescapeString(t.Body))
		if text == "" {
			continue
		}
		segs = append(segs, TranscriptSegment{Text: text, Start: t.Start, Duration: t.Duration})
	}
	if len(segs) == 0 {
		return nil, ErrTranscriptUnavailable
	}
	return segs, nil
}

// isVideoURL reports whether uri points at a known video host.
func isVideoURL(uri string) bool {
	u, err := url.Parse(uri)
	if err != nil {
		return false
	}
	return videoHosts[strings.ToLower(u.Hostname())]
}

// videoID extracts the video identifier from short links, watch URLs,
// shorts and embed paths.
func videoID(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	segments := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	if strings.HasSuffix(strings.ToLower(u.Hostname()), "youtu.be") {
		if len(segments) > 0 {
			return segments[0]
		}
		return ""
	}
	if v := u.Query().Get("v"); v != "" {
		return v
	}
	if len(segments) >= 2 {
		switch segments[0] {
		case "shorts", "embed", "live", "v":
			return segments[1]
		}
	}
	return ""
}

func (c *Converter) convertVideo(ctx context.Context, uri string) model.ConversionResult {
	id := videoID(uri)
	if id == "" {
		return model.Failure("Error: Could not extract YouTube video ID")
	}

	segs, err := c.transcripts.Fetch(ctx, id)
	if err != nil || len(segs) == 0 {
		c.logger.Info("transcript_unavailable", "video_id", id, "error", err)
		return model.Warning(fmt.Sprintf("# YouTube Video\n\nVideo: %s\n\nTranscript not available.", uri))
	}

	parts := make([]string, len(segs))
	for i, s := range segs {
		parts[i] = s.Text
	}
	return model.Success(fmt.Sprintf("# YouTube Video Transcript\n\nVideo: %s\n\n%s", uri, strings.Join(parts, " ")))
}
