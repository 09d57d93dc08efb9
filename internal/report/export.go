package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownFormat is returned for an export format that has no renderer.
var ErrUnknownFormat = errors.New("unknown report format")

// Format names an export encoding.
type Format string

const (
	FormatJSON     Format = "json"
	FormatHTML     Format = "html"
	FormatMarkdown Format = "markdown"
	FormatPDF      Format = "pdf"
)

// ParseFormats parses every name in names, failing on the first unknown one.
func ParseFormats(names []string) ([]Format, error) {
	out := make([]Format, 0, len(names))
	for _, n := range names {
		f, err := ParseFormat(n)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// Formats lists every supported export format.
func Formats() []Format {
	return []Format{FormatJSON, FormatHTML, FormatMarkdown, FormatPDF}
}

// ParseFormat maps user input to a Format. "md" is accepted for markdown and
// an empty string selects JSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "html", "htm":
		return FormatHTML, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "pdf":
		return FormatPDF, nil
	}
	return "", fmt.Errorf("%w %q (available: json, html, markdown, pdf)", ErrUnknownFormat, s)
}

// ContentType is the MIME type of documents rendered in f.
func (f Format) ContentType() string {
	switch f {
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/json"
	}
}

// Ext is the file extension, including the dot, for f.
func (f Format) Ext() string {
	switch f {
	case FormatMarkdown:
		return ".md"
	default:
		return "." + string(f)
	}
}

// Export renders doc in format f and returns the bytes with their content type.
func Export(doc Document, f Format) ([]byte, string, error) {
	var (
		data []byte
		err  error
	)
	switch f {
	case FormatJSON:
		data, err = JSON(doc)
	case FormatHTML:
		data, err = HTML(doc)
	case FormatMarkdown:
		data, err = Markdown(doc)
	case FormatPDF:
		data, err = PDF(doc)
	default:
		return nil, "", fmt.Errorf("%w %q", ErrUnknownFormat, f)
	}
	if err != nil {
		return nil, "", fmt.Errorf("rendering %s report: %w", f, err)
	}
	return data, f.ContentType(), nil
}

// Filename is the suggested download name for doc rendered in f.
func Filename(doc Document, f Format) string {
	return fmt.Sprintf("%s-report-%s%s", doc.Kind, doc.GeneratedAt.Format("2006-01-02"), f.Ext())
}

// JSON renders doc as indented JSON.
func JSON(doc Document) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}
