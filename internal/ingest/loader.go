// Package ingest builds text blocks from files at the pipeline's input
// boundary. OCR and document conversion happen upstream; this loader
// only reads what those systems already produced (.txt exports, and
// HTML exports that need their markup stripped).
package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/jwyoon/anamna/internal/model"
)

// textExtensions are the file types the loader accepts
var textExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".html": true,
	".htm":  true,
}

// Recognized reports whether the loader accepts the file's extension.
// Callers scanning mixed directories filter with this before LoadFile,
// which reads any path it is handed.
func Recognized(path string) bool {
	return textExtensions[strings.ToLower(filepath.Ext(path))]
}

// LoadFile reads one file into a text block
func LoadFile(path string) (model.TextBlock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.TextBlock{}, fmt.Errorf("read %s: %w", path, err)
	}

	text := string(data)
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".html" || ext == ".htm" {
		text, err = stripHTML(text)
		if err != nil {
			return model.TextBlock{}, fmt.Errorf("parse HTML %s: %w", path, err)
		}
	}

	return model.TextBlock{Text: text, Source: path}, nil
}

// LoadDir reads all recognized files under dir into blocks, sorted by
// file name so page ordering from the upstream exporter is preserved
func LoadDir(dir string) ([]model.TextBlock, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if Recognized(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	if len(names) == 0 {
		return nil, fmt.Errorf("no text files in %s", dir)
	}

	blocks := make([]model.TextBlock, 0, len(names))
	for i, name := range names {
		block, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		block.Page = i + 1
		blocks = append(blocks, block)
	}
	return blocks, nil
}

// stripHTML extracts visible text from an HTML document, skipping
// script/style content
func stripHTML(content string) (string, error) {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return "", err
	}

	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe":
				return
			}
		}

		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				buf.WriteString(text)
				buf.WriteString("\n")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(doc)
	return buf.String(), nil
}
