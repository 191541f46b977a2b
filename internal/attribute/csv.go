package attribute

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// CSVOptions configures CSV loading. The first row is always the header.
type CSVOptions struct {
	Delimiter rune   // default ','
	Encoding  string // "utf8" (default) or "latin1" for legacy census exports
	Comment   rune   // comment character (0 = none)
}

// ReadCSVFile loads a delimited attribute table from a file on disk.
func ReadCSVFile(path string, opts CSVOptions) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "attribute: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return ReadCSV(f, opts)
}

// ReadCSV loads a delimited attribute table. Rows with a different cell
// count than the header are rejected, not padded.
func ReadCSV(r io.Reader, opts CSVOptions) (*Table, error) {
	decoded, err := decodeReader(r, opts.Encoding)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(decoded)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	if opts.Comment != 0 {
		reader.Comment = opts.Comment
	}
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, eris.New("attribute: csv is empty")
	}
	if err != nil {
		return nil, eris.Wrap(err, "attribute: read csv header")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "attribute: read csv row")
		}
		for i := range record {
			record[i] = strings.TrimSpace(record[i])
		}
		rows = append(rows, record)
	}
	if len(rows) == 0 {
		return nil, eris.New("attribute: csv has a header but no rows")
	}

	return NewTable(header, rows)
}

func decodeReader(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(encoding) {
	case "", "utf8", "utf-8":
		return r, nil
	case "latin1", "iso-8859-1":
		return transform.NewReader(r, charmap.ISO8859_1.NewDecoder()), nil
	default:
		return nil, eris.Errorf("attribute: unsupported encoding %q (use utf8 or latin1)", encoding)
	}
}
