// Package export serializes the two side histories into comparison files.
package export

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"prompt-comparator/internal/models"
)

// ErrUnsupportedFormat is returned for a format name no exporter handles.
var ErrUnsupportedFormat = errors.New("unsupported format")

// Format names a supported export format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// SideTranscript is one side's configuration and history at export time.
type SideTranscript struct {
	Label        string            `json:"label" yaml:"label"`
	Provider     models.ProviderID `json:"provider" yaml:"provider"`
	Model        string            `json:"model" yaml:"model"`
	SystemPrompt string            `json:"systemPrompt" yaml:"systemPrompt"`
	Messages     []models.Message  `json:"messages" yaml:"messages"`
}

// Transcript is everything an exporter may write. It never carries credentials.
type Transcript struct {
	Timestamp time.Time      `json:"timestamp" yaml:"timestamp"`
	A         SideTranscript `json:"promptA" yaml:"promptA"`
	B         SideTranscript `json:"promptB" yaml:"promptB"`
}

// Exporter defines the interface for all export formats
type Exporter interface {
	Export(t Transcript, w io.Writer) error
	Extension() string
	ContentType() string
}

// NewExporter creates a new exporter based on format
func NewExporter(format Format) (Exporter, error) {
	switch format {
	case FormatCSV:
		return &CSVExporter{}, nil
	case FormatXLSX:
		return &XLSXExporter{}, nil
	case FormatJSON:
		return &JSONExporter{}, nil
	case FormatYAML:
		return &YAMLExporter{}, nil
	default:
		return nil, fmt.Errorf("%w: %s (supported: csv, xlsx, json, yaml)", ErrUnsupportedFormat, format)
	}
}

// ParseFormat accepts a format name case-insensitively; "yml" is an alias of yaml.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if f == "yml" {
		f = FormatYAML
	}
	if _, err := NewExporter(f); err != nil {
		return "", err
	}
	return f, nil
}

// FileName builds "<labelA>_vs_<labelB>_<YYYY-MM-DD>.<ext>".
func FileName(labelA, labelB string, date time.Time, ext string) string {
	return fmt.Sprintf("%s_vs_%s_%s.%s", sanitize(labelA), sanitize(labelB), date.Format("2006-01-02"), ext)
}

func sanitize(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return "untitled"
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '.' {
			return r
		}
		return '_'
	}, label)
}
