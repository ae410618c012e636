package export

import (
	"io"

	"gopkg.in/yaml.v3"
)

// YAMLExporter exports the transcript document in YAML format
type YAMLExporter struct{}

func (e *YAMLExporter) Export(t Transcript, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	defer func() { _ = enc.Close() }()

	return enc.Encode(t)
}

func (e *YAMLExporter) Extension() string {
	return "yaml"
}

func (e *YAMLExporter) ContentType() string {
	return "application/yaml"
}
