package sanitize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dativo-io/scrub/internal/ticket"
)

// Bytes sanitizes a raw ticket JSON document and returns the sanitized
// JSON (compact). On any error no output is produced.
func Bytes(ctx context.Context, s *Sanitizer, data []byte) ([]byte, *Report, error) {
	doc, err := ticket.Parse(data)
	if err != nil {
		return nil, nil, err
	}
	report, err := s.SanitizeTicket(ctx, doc)
	if err != nil {
		return nil, nil, err
	}
	out, err := doc.Marshal()
	if err != nil {
		return nil, nil, err
	}
	return out, report, nil
}

// File sanitizes inPath into outPath, pretty-printed.
func File(ctx context.Context, s *Sanitizer, inPath, outPath string) (*Report, error) {
	data, err := os.ReadFile(inPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", inPath, err)
	}

	out, report, err := Bytes(ctx, s, data)
	if err != nil {
		return nil, err
	}

	pretty, err := Indent(out)
	if err != nil {
		return nil, err
	}

	if err := WriteAtomic(outPath, pretty); err != nil {
		return nil, err
	}
	return report, nil
}

// WriteAtomic writes data through a temporary file and a rename so a
// failed run never leaves a partial ticket behind.
func WriteAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming %s: %w", path, err)
	}
	return nil
}

// Indent pretty-prints sanitized JSON with a trailing newline for file
// and stdout output.
func Indent(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return nil, fmt.Errorf("formatting output: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
