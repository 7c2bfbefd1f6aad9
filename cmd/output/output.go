// Package output renders command results as JSON, YAML or plain text.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/labstack/gommon/bytes"
	"gopkg.in/yaml.v3"
)

// Supported formats
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ValidateFormat rejects unknown format names
func ValidateFormat(format string) error {
	switch format {
	case FormatText, FormatJSON, FormatYAML:
		return nil
	default:
		return fmt.Errorf("unknown output format %q, expected text, json or yaml", format)
	}
}

// Write renders v as JSON or YAML. Text output is produced by the caller
// through text.
func Write(w io.Writer, format string, v any, text func(io.Writer) error) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		doc, err := jsonTree(v)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	case FormatText:
		return text(w)
	default:
		return ValidateFormat(format)
	}
}

// jsonTree round-trips v through JSON so YAML output uses the json field names
func jsonTree(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Table writes aligned key/value rows
type Table struct {
	rows [][2]string
}

// Add appends a row; values are formatted with fmt.Sprint
func (t *Table) Add(key string, value any) {
	t.rows = append(t.rows, [2]string{key, fmt.Sprint(value)})
}

// WriteTo writes the rows with keys padded to the widest key
func (t *Table) WriteTo(w io.Writer) (int64, error) {
	width := 0
	for _, r := range t.rows {
		width = max(width, len(r[0]))
	}
	var sb strings.Builder
	for _, r := range t.rows {
		fmt.Fprintf(&sb, "%-*s  %s\n", width+1, r[0]+":", r[1])
	}
	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}

// Percent formats a percentage with one decimal
func Percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}

// MB formats a size in megabytes as a human readable byte count
func MB(v float64) string {
	return bytes.Format(int64(v * 1024 * 1024))
}

// GB formats a size in gigabytes as a human readable byte count
func GB(v float64) string {
	return bytes.Format(int64(v * 1024 * 1024 * 1024))
}

// Bytes formats a raw byte count
func Bytes(v uint64) string {
	return bytes.Format(int64(v))
}
