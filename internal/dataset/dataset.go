// Package dataset reads and writes the tract dataset and the tables derived
// from it. Every write goes to a temp file first and is renamed into place.
package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cafe-compass/compass-cli/internal/geo"
	"github.com/cafe-compass/compass-cli/internal/model"
)

// legacyHeaders maps column names used by older exports to the canonical
// headers.
var legacyHeaders = map[string]string{
	"# of Nearby Restaurants":  "nearby_restaurants",
	"# of Nearby Coffee Shops": "nearby_coffee_shops",
	"# of Nearby Mosques":      "nearby_mosques",
	"Tract Code":               "Tract Code (id)",
}

// legacyCenter is the old single "lat, lon" coordinate column.
const legacyCenter = "Center of Tract"

// ReadTracts loads the tract dataset from a .csv or .xlsx file. Legacy
// column names are accepted, and a "Center of Tract" column fills lat/lon
// when those are empty.
func ReadTracts(path string) ([]model.Tract, error) {
	r, closer, err := openTable(path)
	if err != nil {
		return nil, err
	}
	defer closer() //nolint:errcheck

	header, err := r.Read()
	if err == io.EOF {
		return nil, eris.Errorf("dataset: %s is empty", path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: read header of %s", path)
	}

	centerIdx := -1
	renamed := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if canon, ok := legacyHeaders[h]; ok {
			h = canon
		}
		if h == legacyCenter {
			centerIdx = i
		}
		renamed[i] = h
	}

	dec, err := csvutil.NewDecoder(naReader{r}, renamed...)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: decoder for %s", path)
	}

	var rows []model.Tract
	var badCenters int
	for {
		var t model.Tract
		if err := dec.Decode(&t); err == io.EOF {
			break
		} else if err != nil {
			return nil, eris.Wrapf(err, "dataset: decode row %d of %s", len(rows)+2, path)
		}
		if centerIdx >= 0 && !t.HasLocation() {
			rec := dec.Record()
			if centerIdx < len(rec) && strings.TrimSpace(rec[centerIdx]) != "" {
				if p, perr := geo.ParsePoint(rec[centerIdx]); perr == nil {
					t.Lat, t.Lon = model.Float(p.Lat), model.Float(p.Lon)
				} else {
					badCenters++
				}
			}
		}
		rows = append(rows, t)
	}

	if badCenters > 0 {
		zap.L().Warn("dataset: unparseable tract centers", zap.String("path", path), zap.Int("rows", badCenters))
	}
	return rows, nil
}

// WriteTracts writes the tract dataset as CSV.
func WriteTracts(path string, rows []model.Tract) error {
	return WriteCSV(path, rows)
}

// ReadCSV decodes every row of a CSV file into T using its csv tags.
func ReadCSV[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	dec, err := csvutil.NewDecoder(naReader{newCSVReader(f)})
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: read header of %s", path)
	}

	var out []T
	for {
		var v T
		if err := dec.Decode(&v); err == io.EOF {
			break
		} else if err != nil {
			return nil, eris.Wrapf(err, "dataset: decode row %d of %s", len(out)+2, path)
		}
		out = append(out, v)
	}
	return out, nil
}

// WriteCSV encodes rows with their csv tags. The header is written even
// when rows is empty.
func WriteCSV[T any](path string, rows []T) error {
	return writeAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		enc := csvutil.NewEncoder(cw)
		if len(rows) == 0 {
			var zero T
			if err := enc.EncodeHeader(zero); err != nil {
				return eris.Wrap(err, "encode header")
			}
		}
		for i := range rows {
			if err := enc.Encode(rows[i]); err != nil {
				return eris.Wrapf(err, "encode row %d", i)
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

// writeAtomic writes through a temp file in the target directory and
// renames it over path.
func writeAtomic(path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "dataset: create dir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrapf(err, "dataset: create temp for %s", path)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return eris.Wrapf(err, "dataset: write %s", path)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "dataset: close %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return eris.Wrapf(err, "dataset: rename into %s", path)
	}
	return nil
}

func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return cr
}

// naTokens are the cell values read as missing, matching the defaults of
// the pandas exports the dataset is shared with.
var naTokens = map[string]bool{
	"#N/A": true, "#N/A N/A": true, "#NA": true, "-1.#IND": true, "-1.#QNAN": true,
	"-NaN": true, "-nan": true, "1.#IND": true, "1.#QNAN": true, "<NA>": true,
	"N/A": true, "NA": true, "NULL": true, "NaN": true, "None": true,
	"n/a": true, "nan": true, "null": true,
}

// naReader blanks missing-value tokens so they decode as nil.
type naReader struct {
	r csvutil.Reader
}

func (n naReader) Read() ([]string, error) {
	rec, err := n.r.Read()
	for i, v := range rec {
		if naTokens[strings.TrimSpace(v)] {
			rec[i] = ""
		}
	}
	return rec, err
}

// openTable returns a row reader for a .csv or .xlsx file.
func openTable(path string) (csvutil.Reader, func() error, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		rows, err := readXLSXRows(path)
		if err != nil {
			return nil, nil, err
		}
		return &sliceReader{rows: rows}, func() error { return nil }, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "dataset: open %s", path)
	}
	return newCSVReader(f), f.Close, nil
}

// sliceReader feeds pre-read rows to csvutil.
type sliceReader struct {
	rows [][]string
	pos  int
}

func (s *sliceReader) Read() ([]string, error) {
	if s.pos >= len(s.rows) {
		return nil, io.EOF
	}
	row := s.rows[s.pos]
	s.pos++
	return row, nil
}
