package refgenes

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ReadMeasurements reads paired two-condition expression values from a
// delimited file with a header and three columns: gene id, condition A
// value, condition B value. Gzipped input is detected automatically.
func ReadMeasurements(path string) ([]Measurement, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	var r io.Reader = file
	buf := make([]byte, 2)
	if _, err := io.ReadFull(file, buf); err == nil {
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("seek %s: %w", path, err)
		}
		if buf[0] == 0x1f && buf[1] == 0x8b {
			gz, err := gzip.NewReader(file)
			if err != nil {
				return nil, fmt.Errorf("gzip %s: %w", path, err)
			}
			defer gz.Close()
			r = gz
		}
	}

	return ParseMeasurements(r)
}

// ParseMeasurements parses measurement content from a reader.
func ParseMeasurements(r io.Reader) ([]Measurement, error) {
	scanner := bufio.NewScanner(r)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		return nil, fmt.Errorf("empty measurement file")
	}
	header := scanner.Text()
	delim := "\t"
	if !strings.Contains(header, "\t") {
		delim = ","
	}

	var out []Measurement
	line := 1
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if text == "" {
			continue
		}
		fields := strings.Split(text, delim)
		if len(fields) < 3 {
			return nil, fmt.Errorf("line %d: need gene id and two values", line)
		}
		a, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: parse value %q: %w", line, fields[1], err)
		}
		b, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: parse value %q: %w", line, fields[2], err)
		}
		out = append(out, Measurement{ID: fields[0], A: a, B: b})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read measurements: %w", err)
	}
	return out, nil
}
