package gtfs

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrMissingFile is returned when a required GTFS file is absent from the feed.
var ErrMissingFile = errors.New("gtfs: missing required file")

// opener returns a reader for a file of the feed, or os.ErrNotExist.
type opener func(name string) (io.ReadCloser, error)

// Load reads a feed from a zip archive, an unpacked directory or an http(s) URL.
func Load(ctx context.Context, path string) (*Feed, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		data, err := download(ctx, path)
		if err != nil {
			return nil, err
		}
		return ParseZip(path, data)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat feed: %w", err)
	}
	if info.IsDir() {
		return parse(path, "", func(name string) (io.ReadCloser, error) {
			return os.Open(filepath.Join(path, name))
		})
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}
	return ParseZip(path, data)
}

// ParseZip parses an in-memory zip archive. The feed checksum is the sha256 of data.
func ParseZip(source string, data []byte) (*Feed, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open zip: %w", err)
	}

	files := make(map[string]*zip.File)
	for _, f := range zr.File {
		// some producers nest the feed in a single top-level folder
		files[filepath.Base(f.Name)] = f
	}

	sum := sha256.Sum256(data)
	return parse(source, hex.EncodeToString(sum[:]), func(name string) (io.ReadCloser, error) {
		f, ok := files[name]
		if !ok {
			return nil, os.ErrNotExist
		}
		return f.Open()
	})
}

func download(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 120*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("download feed: unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func parse(source, checksum string, open opener) (*Feed, error) {
	feed := &Feed{Source: source, SHA256: checksum}

	var err error
	if feed.Agencies, err = readTable(open, "agency.txt", false, parseAgency); err != nil {
		return nil, err
	}
	if feed.Routes, err = readTable(open, "routes.txt", true, parseRoute); err != nil {
		return nil, err
	}
	if feed.Stops, err = readTable(open, "stops.txt", true, parseStop); err != nil {
		return nil, err
	}
	if feed.Trips, err = readTable(open, "trips.txt", true, parseTrip); err != nil {
		return nil, err
	}
	if feed.StopTimes, err = readTable(open, "stop_times.txt", true, parseStopTime); err != nil {
		return nil, err
	}

	slog.Info("GTFS parsed",
		"source", source,
		"routes", len(feed.Routes),
		"stops", len(feed.Stops),
		"trips", len(feed.Trips),
		"stop_times", len(feed.StopTimes))
	return feed, nil
}

// row gives header-indexed access to one CSV record.
type row struct {
	idx    map[string]int
	record []string
}

func (r row) get(field string) string {
	if i, ok := r.idx[field]; ok && i < len(r.record) {
		return strings.TrimSpace(r.record[i])
	}
	return ""
}

func (r row) integer(field string) (int, error) {
	v := r.get(field)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", field, v)
	}
	return n, nil
}

func readTable[T any](open opener, name string, required bool, decode func(row) (T, error)) ([]T, error) {
	rc, err := open(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if required {
				return nil, fmt.Errorf("%w: %s", ErrMissingFile, name)
			}
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()

	reader := csv.NewReader(rc)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s header: %w", name, err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		// strip a UTF-8 BOM on the first column
		idx[strings.TrimPrefix(strings.TrimSpace(h), "\ufeff")] = i
	}

	var out []T
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", name, line, err)
		}
		v, err := decode(row{idx: idx, record: record})
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", name, line, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseAgency(r row) (Agency, error) {
	return Agency{
		ID:   r.get("agency_id"),
		Name: r.get("agency_name"),
		URL:  r.get("agency_url"),
	}, nil
}

func parseRoute(r row) (Route, error) {
	routeType, err := r.integer("route_type")
	if err != nil {
		return Route{}, err
	}
	return Route{
		ID:        r.get("route_id"),
		AgencyID:  r.get("agency_id"),
		ShortName: r.get("route_short_name"),
		LongName:  r.get("route_long_name"),
		Type:      RouteType(routeType),
		Color:     r.get("route_color"),
		TextColor: r.get("route_text_color"),
	}, nil
}

func parseStop(r row) (Stop, error) {
	locType, err := r.integer("location_type")
	if err != nil {
		return Stop{}, err
	}
	s := Stop{
		ID:            r.get("stop_id"),
		Code:          r.get("stop_code"),
		Name:          r.get("stop_name"),
		LocationType:  LocationType(locType),
		ParentStation: r.get("parent_station"),
	}
	latS, lonS := r.get("stop_lat"), r.get("stop_lon")
	if latS != "" && lonS != "" {
		lat, errLat := strconv.ParseFloat(latS, 64)
		lon, errLon := strconv.ParseFloat(lonS, 64)
		if errLat != nil || errLon != nil {
			return Stop{}, fmt.Errorf("invalid coordinates for stop %q: %q,%q", s.ID, latS, lonS)
		}
		s.Lat, s.Lon, s.HasCoord = lat, lon, true
	}
	return s, nil
}

func parseTrip(r row) (Trip, error) {
	dir, err := r.integer("direction_id")
	if err != nil {
		return Trip{}, err
	}
	return Trip{
		ID:          r.get("trip_id"),
		RouteID:     r.get("route_id"),
		ServiceID:   r.get("service_id"),
		Headsign:    r.get("trip_headsign"),
		DirectionID: dir,
		ShapeID:     r.get("shape_id"),
	}, nil
}

func parseStopTime(r row) (StopTime, error) {
	seq, err := r.integer("stop_sequence")
	if err != nil {
		return StopTime{}, err
	}
	return StopTime{
		TripID:        r.get("trip_id"),
		StopID:        r.get("stop_id"),
		StopSequence:  seq,
		ArrivalTime:   r.get("arrival_time"),
		DepartureTime: r.get("departure_time"),
	}, nil
}
