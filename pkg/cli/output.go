package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/bytedance/sonic"
	"gopkg.in/yaml.v3"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

// writeOutput renders value as indented JSON or as YAML.
func writeOutput(w io.Writer, format string, value any) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(strings.TrimSpace(format)) {
	case formatJSON, "":
		data, err = sonic.ConfigStd.MarshalIndent(value, "", "  ")
		if err == nil {
			data = append(data, '\n')
		}
	case formatYAML, "yml":
		data, err = yaml.Marshal(value)
	default:
		return fmt.Errorf("unsupported output format %q (must be json or yaml)", format)
	}
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = w.Write(data)
	return err
}
