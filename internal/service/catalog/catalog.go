package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	DefaultEndpoint = "https://huggingface.co"
	defaultLimit    = 5000
)

// DefaultCategories — задачи Hugging Face, по которым собирается каталог мультимодальных моделей.
var DefaultCategories = []string{
	"audio-text-to-text",
	"image-text-to-text",
	"video-text-to-text",
	"any-to-any",
}

var header = []string{"Model ID", "Tags"}

// Entry — модель каталога и её заявленные входные модальности (image, audio, video, any).
type Entry struct {
	ID   string
	Tags []string
}

// Catalog — загруженный CSV каталога.
type Catalog struct {
	entries []Entry
}

func New(entries []Entry) *Catalog { return &Catalog{entries: entries} }

func (c *Catalog) Entries() []Entry { return c.entries }

// Lookup ищет модель: id приводится к нижнему регистру, суффикс ":tag" отбрасывается,
// подходит первая запись, чей id содержит результат.
func (c *Catalog) Lookup(modelID string) ([]string, bool) {
	if c == nil {
		return nil, false
	}
	needle, _, _ := strings.Cut(strings.ToLower(modelID), ":")
	if needle == "" {
		return nil, false
	}
	for _, e := range c.entries {
		if strings.Contains(strings.ToLower(e.ID), needle) {
			return e.Tags, true
		}
	}
	return nil, false
}

// Fetch выгружает из Hugging Face модели по каждой категории (по убыванию скачиваний).
// Из тегов модели остаются префиксы до "-" тех, что содержат text-to-text или any-to-any.
func Fetch(ctx context.Context, httpClient *http.Client, endpoint string, categories []string) ([]Entry, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	endpoint = strings.TrimRight(endpoint, "/")

	var out []Entry
	for _, cat := range categories {
		q := url.Values{}
		q.Set("filter", cat)
		q.Set("sort", "downloads")
		q.Set("direction", "-1")
		q.Set("limit", fmt.Sprint(defaultLimit))
		body, err := get(ctx, httpClient, endpoint+"/api/models?"+q.Encode())
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", cat, err)
		}
		for _, m := range gjson.ParseBytes(body).Array() {
			id := m.Get("id").String()
			if id == "" {
				id = m.Get("modelId").String()
			}
			e := Entry{ID: id, Tags: []string{}}
			for _, t := range m.Get("tags").Array() {
				tag := t.String()
				if strings.Contains(tag, "text-to-text") || strings.Contains(tag, "any-to-any") {
					prefix, _, _ := strings.Cut(tag, "-")
					e.Tags = append(e.Tags, prefix)
				}
			}
			out = append(out, e)
		}
	}
	return out, nil
}

func get(ctx context.Context, c *http.Client, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("status=%d, body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return io.ReadAll(resp.Body)
}

// Write пишет каталог в CSV. Теги — список в виде ['image', 'audio'].
func Write(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, e := range entries {
		if err := cw.Write([]string{e.ID, formatTags(e.Tags)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Load читает CSV каталога.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Read разбирает CSV каталога. Строки с неразборчивыми тегами получают пустой список.
func Read(r io.Reader) (*Catalog, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	if len(rows) == 0 {
		return nil, errors.New("read catalog: empty file")
	}

	idCol, tagCol := -1, -1
	for i, h := range rows[0] {
		switch strings.TrimSpace(h) {
		case header[0]:
			idCol = i
		case header[1]:
			tagCol = i
		}
	}
	if idCol < 0 || tagCol < 0 {
		return nil, fmt.Errorf("read catalog: header must contain %q and %q", header[0], header[1])
	}

	entries := make([]Entry, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) <= idCol || len(row) <= tagCol {
			continue
		}
		entries = append(entries, Entry{ID: row[idCol], Tags: parseTags(row[tagCol])})
	}
	return New(entries), nil
}

func formatTags(tags []string) string {
	quoted := make([]string, len(tags))
	for i, t := range tags {
		quoted[i] = "'" + t + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func parseTags(s string) []string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return []string{}
	}
	s = strings.TrimSpace(s[1 : len(s)-1])
	if s == "" {
		return []string{}
	}
	var tags []string
	for _, part := range strings.Split(s, ",") {
		t := strings.Trim(strings.TrimSpace(part), `'"`)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
