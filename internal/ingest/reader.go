package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// File is one uploaded delimited file after decoding and parsing.
type File struct {
	Path     string
	Encoding string
	Headers  []string
	// Rows maps the literal (trimmed) header string to the raw cell value.
	Rows []map[string]string
	// BadRows counts rows that could not be parsed even after the encoding
	// fallback. They are excluded and counted, never silently dropped.
	BadRows int
}

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// ReadFile loads a candidate export file, detecting the text encoding from
// the BOM or byte validity and falling back to Windows-1252 for files that
// are not valid UTF-8. Malformed rows are counted, not fatal.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	decoded, encName, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	file := &File{Path: path, Encoding: encName}
	if err := file.parse(decoded); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return file, nil
}

func decode(data []byte) ([]byte, string, error) {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return data[len(bomUTF8):], "utf-8-bom", nil
	case bytes.HasPrefix(data, bomUTF16LE):
		decoded, err := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder().Bytes(data)
		if err != nil {
			return nil, "", fmt.Errorf("utf-16le: %w", err)
		}
		return decoded, "utf-16le", nil
	case bytes.HasPrefix(data, bomUTF16BE):
		decoded, err := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder().Bytes(data)
		if err != nil {
			return nil, "", fmt.Errorf("utf-16be: %w", err)
		}
		return decoded, "utf-16be", nil
	case utf8.Valid(data):
		return data, "utf-8", nil
	}

	// Retry with the single-byte fallback. Windows-1252 is a superset of
	// latin-1 for the printable range, which covers the exports we see.
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return nil, "", fmt.Errorf("cp1252 fallback: %w", err)
	}
	return decoded, "cp1252", nil
}

func (f *File) parse(data []byte) error {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("file is empty")
		}
		return fmt.Errorf("reading header row: %w", err)
	}

	f.Headers = make([]string, 0, len(headers))
	for _, h := range headers {
		f.Headers = append(f.Headers, strings.TrimSpace(h))
	}

	for {
		cells, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			f.BadRows++
			continue
		}

		row := make(map[string]string, len(f.Headers))
		for i, header := range f.Headers {
			if header == "" {
				continue
			}
			if i < len(cells) {
				row[header] = cells[i]
			} else {
				row[header] = ""
			}
		}
		f.Rows = append(f.Rows, row)
	}

	return nil
}

// SampleRows returns up to n rows for source detection and LLM context.
func (f *File) SampleRows(n int) []map[string]string {
	if len(f.Rows) <= n {
		return f.Rows
	}
	return f.Rows[:n]
}
