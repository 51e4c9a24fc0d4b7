package file

import (
	"context"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ajitpratap0/edgesql/pkg/errors"
	"github.com/ajitpratap0/edgesql/pkg/source"
)

// openXLSX streams a sheet; the first row is the header. An empty sheet
// name selects the first sheet.
func openXLSX(body io.ReadCloser, sheet string) (*table, error) {
	f, err := excelize.OpenReader(body)
	if err != nil {
		return nil, err
	}
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.Rows(sheet)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeSourceUnavailable, "cannot open sheet").
			WithDetail("sheet", sheet)
	}

	if !rows.Next() {
		rows.Close()
		f.Close()
		return nil, errors.Newf(errors.ErrorTypeSchemaInference, "sheet %q is empty, expected a header row", sheet)
	}
	header, err := rows.Columns()
	if err != nil {
		rows.Close()
		f.Close()
		return nil, err
	}

	names := make([]string, len(header))
	for i, h := range header {
		names[i] = strings.TrimSpace(h)
	}

	return &table{
		names: names,
		types: make([]*declared, len(names)),
		rows: &xlsxSequence{
			rows:   rows,
			file:   f,
			closer: body,
			width:  len(names),
			line:   1,
			sheet:  sheet,
		},
	}, nil
}

type xlsxSequence struct {
	rows   *excelize.Rows
	file   *excelize.File
	closer io.Closer
	width  int
	line   int
	sheet  string
}

func (s *xlsxSequence) Next(ctx context.Context) (source.Row, error) {
	for s.rows.Next() {
		s.line++
		cells, err := s.rows.Columns()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeSourceUnavailable, "failed to read sheet row").
				WithDetail("sheet", s.sheet).
				WithDetail("line", s.line)
		}
		// trailing empty cells are omitted by excelize
		for len(cells) > s.width && strings.TrimSpace(cells[len(cells)-1]) == "" {
			cells = cells[:len(cells)-1]
		}
		if len(cells) > s.width {
			return nil, errors.Newf(errors.ErrorTypeSchemaInference,
				"row %d has %d cells, header has %d", s.line, len(cells), s.width).
				WithDetail("sheet", s.sheet).
				WithDetail("line", s.line)
		}
		if len(cells) == 0 {
			continue
		}

		row := make(source.Row, s.width)
		for i, v := range cells {
			row[i] = source.CoerceText(v)
		}
		return row, nil
	}
	if err := s.rows.Error(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSourceUnavailable, "failed to read sheet")
	}
	return nil, io.EOF
}

func (s *xlsxSequence) Close() error {
	s.rows.Close()
	s.file.Close()
	return s.closer.Close()
}
