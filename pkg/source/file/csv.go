package file

import (
	"context"
	"encoding/csv"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ajitpratap0/edgesql/pkg/errors"
	"github.com/ajitpratap0/edgesql/pkg/source"
)

// parseDelimiter accepts a single character or the names "tab", "\t",
// "comma", "semicolon" and "pipe".
func parseDelimiter(s string, def rune) (rune, error) {
	switch strings.ToLower(s) {
	case "":
		return def, nil
	case "tab", `\t`, "\t":
		return '\t', nil
	case "comma":
		return ',', nil
	case "semicolon":
		return ';', nil
	case "pipe":
		return '|', nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if size != len(s) || r == utf8.RuneError || r == '"' || r == '\r' || r == '\n' {
		return 0, errors.Newf(errors.ErrorTypeConfig, "invalid delimiter %q", s)
	}
	return r, nil
}

func openCSV(body io.ReadCloser, delim rune) (*table, error) {
	r := csv.NewReader(body)
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, errors.New(errors.ErrorTypeSchemaInference, "file is empty, expected a header row")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSourceUnavailable, "failed to read header")
	}

	names := make([]string, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		names[i] = strings.TrimSpace(h)
	}

	return &table{
		names: names,
		types: make([]*declared, len(names)),
		rows:  &csvSequence{r: r, closer: body, width: len(names), line: 1},
	}, nil
}

type csvSequence struct {
	r      *csv.Reader
	closer io.Closer
	width  int
	line   int
}

func (s *csvSequence) Next(ctx context.Context) (source.Row, error) {
	rec, err := s.r.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	s.line++
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSourceUnavailable, "failed to read CSV record").
			WithDetail("line", s.line)
	}
	if len(rec) != s.width {
		return nil, errors.Newf(errors.ErrorTypeSchemaInference,
			"line %d has %d fields, header has %d", s.line, len(rec), s.width).
			WithDetail("line", s.line)
	}

	row := make(source.Row, s.width)
	for i, v := range rec {
		row[i] = source.CoerceText(v)
	}
	return row, nil
}

func (s *csvSequence) Close() error {
	return s.closer.Close()
}
