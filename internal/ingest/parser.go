package ingest

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// Parser converts raw uploaded or crawled bytes into plain text.
type Parser interface {
	Parse(ctx context.Context, raw []byte, declaredType string) (string, error)
}

// DefaultParser handles plain text, markdown, and HTML. Anything else is
// rejected as unparseable.
type DefaultParser struct{}

func NewDefaultParser() *DefaultParser {
	return &DefaultParser{}
}

func (p *DefaultParser) Parse(ctx context.Context, raw []byte, declaredType string) (string, error) {
	mediaType := declaredType
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))

	switch mediaType {
	case "", "text/plain", "text/markdown", "application/json":
		if !utf8.Valid(raw) {
			return "", fmt.Errorf("%w: %s content is not valid UTF-8", ErrUnparseable, mediaType)
		}
		return string(raw), nil
	case "text/html", "application/xhtml+xml":
		text, err := htmlToText(string(raw))
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnparseable, err)
		}
		return text, nil
	default:
		return "", fmt.Errorf("%w: unsupported content type %q", ErrUnparseable, declaredType)
	}
}

// htmlToText extracts visible text, skipping script and style subtrees.
func htmlToText(src string) (string, error) {
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			case "p", "div", "br", "li", "h1", "h2", "h3", "h4", "h5", "h6", "tr":
				sb.WriteByte('\n')
			}
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	lines := strings.Split(sb.String(), "\n")
	var out []string
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return strings.Join(out, "\n"), nil
}
