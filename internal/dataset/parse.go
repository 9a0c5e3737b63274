package dataset

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lox/specdist/internal/models"
)

const (
	occurrenceFile = "occurrences.csv"
	coverageDir    = "coverages"
)

// ParseBundle parses a dataset bundle archive: a zip containing
// occurrences.csv plus coverages/<name>.asc ASCII grid rasters.
func ParseBundle(data []byte) (*models.Bundle, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open bundle archive: %w", err)
	}

	bundle := &models.Bundle{FetchedAt: time.Now().UTC()}

	for _, f := range zr.File {
		switch {
		case path.Base(f.Name) == occurrenceFile:
			records, err := parseOccurrences(f)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f.Name, err)
			}
			bundle.Records = records

		case strings.HasPrefix(f.Name, coverageDir+"/") && strings.HasSuffix(f.Name, ".asc"):
			cov, err := parseCoverageFile(f)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f.Name, err)
			}
			bundle.Coverages = append(bundle.Coverages, cov)
		}
	}

	if bundle.Records == nil {
		return nil, fmt.Errorf("bundle has no %s", occurrenceFile)
	}
	if len(bundle.Coverages) == 0 {
		return nil, fmt.Errorf("bundle has no coverage rasters")
	}

	// Archive iteration order is not guaranteed; keep coverages stable.
	sort.Slice(bundle.Coverages, func(i, j int) bool {
		return bundle.Coverages[i].Name < bundle.Coverages[j].Name
	})

	return bundle, nil
}

func parseOccurrences(f *zip.File) ([]models.OccurrenceRecord, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	r := csv.NewReader(rc)
	r.FieldsPerRecord = 3

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if header[0] != "species" || header[1] != "latitude" || header[2] != "longitude" {
		return nil, fmt.Errorf("unexpected header %v", header)
	}

	var records []models.OccurrenceRecord
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		lat, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: latitude: %w", len(records)+1, err)
		}
		lon, err := strconv.ParseFloat(row[2], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: longitude: %w", len(records)+1, err)
		}
		records = append(records, models.OccurrenceRecord{
			Species:   row[0],
			Latitude:  lat,
			Longitude: lon,
		})
	}
	return records, nil
}

func parseCoverageFile(f *zip.File) (models.Coverage, error) {
	rc, err := f.Open()
	if err != nil {
		return models.Coverage{}, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return models.Coverage{}, err
	}

	name := strings.TrimSuffix(path.Base(f.Name), ".asc")
	return ParseASCIIGrid(name, data)
}

// ParseASCIIGrid parses an ESRI ASCII grid raster: six header lines
// (ncols, nrows, xllcorner, yllcorner, cellsize, NODATA_value) followed by
// nrows lines of ncols whitespace-separated samples, north row first.
func ParseASCIIGrid(name string, data []byte) (models.Coverage, error) {
	fields := strings.Fields(string(data))
	if len(fields) < 12 {
		return models.Coverage{}, fmt.Errorf("truncated grid header")
	}

	var geom models.CoverageGeometry
	header := map[string]*float64{
		"xllcorner":    &geom.XLLCorner,
		"yllcorner":    &geom.YLLCorner,
		"cellsize":     &geom.CellSize,
		"nodata_value": &geom.NoData,
	}

	for i := 0; i < 12; i += 2 {
		key := strings.ToLower(fields[i])
		val, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return models.Coverage{}, fmt.Errorf("header %s: %w", key, err)
		}
		switch key {
		case "ncols":
			geom.NCols = int(val)
		case "nrows":
			geom.NRows = int(val)
		default:
			dst, ok := header[key]
			if !ok {
				return models.Coverage{}, fmt.Errorf("unexpected header field %q", key)
			}
			*dst = val
		}
	}

	if geom.NCols <= 0 || geom.NRows <= 0 {
		return models.Coverage{}, fmt.Errorf("invalid grid shape %dx%d", geom.NRows, geom.NCols)
	}
	if geom.CellSize <= 0 {
		return models.Coverage{}, fmt.Errorf("invalid cell size %v", geom.CellSize)
	}

	want := geom.NRows * geom.NCols
	body := fields[12:]
	if len(body) != want {
		return models.Coverage{}, fmt.Errorf("grid has %d samples, want %d", len(body), want)
	}

	values := make([]float64, want)
	for i, s := range body {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return models.Coverage{}, fmt.Errorf("sample %d: %w", i, err)
		}
		values[i] = v
	}

	return models.Coverage{Name: name, Geometry: geom, Values: values}, nil
}
