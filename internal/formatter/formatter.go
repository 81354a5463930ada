// package formatter renders playlists to export formats (JSON, CSV, Markdown, plain text)
package formatter

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/desertthunder/melodari/internal/models"
	"github.com/desertthunder/melodari/internal/shared"
)

// Format names accepted by [Write].
const (
	JSON     = "json"
	CSV      = "csv"
	Markdown = "markdown"
	Text     = "txt"
)

// Formats lists the supported export formats.
var Formats = []string{JSON, CSV, Markdown, Text}

// ParseFormat validates a user-supplied format name. Empty defaults to JSON.
func ParseFormat(s string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(s)); f {
	case "":
		return JSON, nil
	case "md":
		return Markdown, nil
	case "text":
		return Text, nil
	case JSON, CSV, Markdown, Text:
		return f, nil
	default:
		return "", fmt.Errorf("%w: format %q (want one of %s)", shared.ErrInvalidArgument, s, strings.Join(Formats, ", "))
	}
}

// ExportToJSON renders the playlist with its songs as indented JSON.
func ExportToJSON(p models.Playlist) ([]byte, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal playlist: %w", err)
	}
	return data, nil
}

// ExportToCSV renders the songs with columns: ID, Title, Artist, Thumbnail
func ExportToCSV(p models.Playlist) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"ID", "Title", "Artist", "Thumbnail"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, song := range p.Songs {
		if err := writer.Write([]string{song.ID, song.Title, song.Artist, song.Thumbnails.Best()}); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportToMarkdown renders the playlist as Markdown with an optional cover image
func ExportToMarkdown(p models.Playlist, imageFilename string) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", p.Title)
	if imageFilename != "" {
		fmt.Fprintf(&buf, "![Cover](%s)\n\n", imageFilename)
	}
	if p.Description != "" {
		fmt.Fprintf(&buf, "**Description**: %s\n\n", p.Description)
	}

	fmt.Fprintf(&buf, "**Source**: %s\n", p.Source.Label())
	fmt.Fprintf(&buf, "**Songs**: %d\n\n", len(p.Songs))

	buf.WriteString("## Songs\n\n")
	for i, song := range p.Songs {
		fmt.Fprintf(&buf, "%d. %s\n", i+1, songLine(song))
	}
	return buf.Bytes(), nil
}

// ExportToText renders the playlist as plain text
func ExportToText(p models.Playlist) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Playlist: %s\n", p.Title)
	if p.Description != "" {
		fmt.Fprintf(&buf, "Description: %s\n", p.Description)
	}
	fmt.Fprintf(&buf, "Songs: %d\n\n", len(p.Songs))

	for i, song := range p.Songs {
		fmt.Fprintf(&buf, "%d. %s\n", i+1, songLine(song))
	}
	return buf.Bytes(), nil
}

func songLine(s models.Song) string {
	if s.Artist == "" {
		return s.Title
	}
	return s.Artist + " - " + s.Title
}

// DownloadImage fetches an image and returns the raw bytes
func DownloadImage(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("empty URL provided")
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	return data, nil
}

// Options controls [Write].
type Options struct {
	Format string
	// Cover downloads the playlist thumbnail next to Markdown exports
	Cover      bool
	HTTPClient *http.Client
}

// Write exports the playlist into dir and returns the created files.
//
// JSON, CSV and text exports are single files named after the playlist id.
// Markdown exports get a directory of their own: {dir}/{id}/README.md and optionally cover.jpg.
func Write(ctx context.Context, p models.Playlist, dir string, opts Options) ([]string, error) {
	format, err := ParseFormat(opts.Format)
	if err != nil {
		return nil, err
	}

	base := safeName(p.ID)
	var (
		data []byte
		path string
	)

	switch format {
	case CSV:
		data, err = ExportToCSV(p)
		path = filepath.Join(dir, base+".csv")
	case Text:
		data, err = ExportToText(p)
		path = filepath.Join(dir, base+".txt")
	case Markdown:
		return writeMarkdown(ctx, p, filepath.Join(dir, base), opts)
	default:
		data, err = ExportToJSON(p)
		path = filepath.Join(dir, base+".json")
	}
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return []string{path}, nil
}

func writeMarkdown(ctx context.Context, p models.Playlist, dir string, opts Options) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	var files []string
	var cover string
	if url := p.Thumbnails.Best(); opts.Cover && url != "" {
		if image, err := DownloadImage(ctx, opts.HTTPClient, url); err == nil {
			path := filepath.Join(dir, "cover.jpg")
			if err := os.WriteFile(path, image, 0644); err == nil {
				cover = "cover.jpg"
				files = append(files, path)
			}
		}
	}

	data, err := ExportToMarkdown(p, cover)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, "README.md")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write Markdown file: %w", err)
	}
	return append(files, path), nil
}

// WriteManifest writes v as indented JSON to path.
func WriteManifest(v any, path string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// safeName strips path separators from provider ids used as file names.
func safeName(id string) string {
	name := strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(id)
	if name == "" || name == "." || name == ".." {
		return "playlist"
	}
	return name
}
