package exprmat

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// openMaybeGzip opens a file and transparently decompresses it when the
// gzip magic bytes are present. The caller must close the returned closer.
func openMaybeGzip(path string) (io.Reader, io.Closer, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}

	buf := make([]byte, 2)
	if _, err := io.ReadFull(file, buf); err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("seek %s: %w", path, err)
	}

	if buf[0] == 0x1f && buf[1] == 0x8b {
		gz, err := gzip.NewReader(file)
		if err != nil {
			file.Close()
			return nil, nil, fmt.Errorf("gzip %s: %w", path, err)
		}
		return gz, file, nil
	}
	return file, file, nil
}

// splitDelimited splits a line on tabs, falling back to commas for CSV
// input. The delimiter is chosen from the header line and reused for the
// rest of the file.
func detectDelim(header string) string {
	if strings.Contains(header, "\t") {
		return "\t"
	}
	return ","
}

// ReadCountMatrix reads a delimited count matrix. The first header column
// names the gene id column; the remaining header fields are sample ids.
// Each data row is a gene id followed by integer counts.
func ReadCountMatrix(path string) (*CountMatrix, error) {
	r, closer, err := openMaybeGzip(path)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return ParseCountMatrix(r)
}

// ParseCountMatrix parses count matrix content from a reader.
func ParseCountMatrix(r io.Reader) (*CountMatrix, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		return nil, fmt.Errorf("empty count matrix")
	}
	header := scanner.Text()
	delim := detectDelim(header)

	fields := strings.Split(header, delim)
	if len(fields) < 2 {
		return nil, fmt.Errorf("count matrix header has no sample columns")
	}
	samples := fields[1:]

	var genes []string
	var counts [][]float64

	line := 1
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if text == "" {
			continue
		}
		fields := strings.Split(text, delim)
		if len(fields) != len(samples)+1 {
			return nil, fmt.Errorf("line %d: %d fields, expected %d", line, len(fields), len(samples)+1)
		}

		row := make([]float64, len(samples))
		for j, f := range fields[1:] {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: parse count %q: %w", line, f, err)
			}
			row[j] = v
		}
		genes = append(genes, fields[0])
		counts = append(counts, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read count matrix: %w", err)
	}

	return NewCountMatrix(genes, samples, counts)
}

// ReadSampleDesign reads a delimited sample table. The first header column
// names the sample id column; remaining header fields are factor names.
// refLevels declares the reference level for every factor; a factor
// without a declared reference is an error.
func ReadSampleDesign(path string, refLevels map[string]string) (*SampleDesign, error) {
	r, closer, err := openMaybeGzip(path)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return ParseSampleDesign(r, refLevels)
}

// ParseSampleDesign parses sample design content from a reader.
func ParseSampleDesign(r io.Reader, refLevels map[string]string) (*SampleDesign, error) {
	scanner := bufio.NewScanner(r)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		return nil, fmt.Errorf("empty sample design")
	}
	header := scanner.Text()
	delim := detectDelim(header)

	fields := strings.Split(header, delim)
	if len(fields) < 2 {
		return nil, fmt.Errorf("sample design header has no factor columns")
	}
	factorNames := fields[1:]

	var samples []string
	assignments := make(map[string][]string, len(factorNames))

	line := 1
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if text == "" {
			continue
		}
		fields := strings.Split(text, delim)
		if len(fields) != len(factorNames)+1 {
			return nil, fmt.Errorf("line %d: %d fields, expected %d", line, len(fields), len(factorNames)+1)
		}
		samples = append(samples, fields[0])
		for j, name := range factorNames {
			assignments[name] = append(assignments[name], fields[j+1])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read sample design: %w", err)
	}

	factors := make([]Factor, 0, len(factorNames))
	for _, name := range factorNames {
		ref, ok := refLevels[name]
		if !ok {
			return nil, fmt.Errorf("factor %q: no reference level declared", name)
		}
		factors = append(factors, Factor{
			Name:      name,
			Levels:    uniqueLevels(assignments[name], ref),
			Reference: ref,
		})
	}

	return NewSampleDesign(samples, factors, assignments)
}

// uniqueLevels collects distinct levels with the reference level first,
// then remaining levels in order of first appearance.
func uniqueLevels(assign []string, ref string) []string {
	levels := []string{ref}
	seen := map[string]bool{ref: true}
	for _, l := range assign {
		if !seen[l] {
			seen[l] = true
			levels = append(levels, l)
		}
	}
	return levels
}

// ReadGeneSets reads gene sets in GMT format: one set per line, fields are
// name, description (ignored), then gene ids.
func ReadGeneSets(path string) ([]GeneSet, error) {
	r, closer, err := openMaybeGzip(path)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return ParseGeneSets(r)
}

// ParseGeneSets parses GMT content from a reader.
func ParseGeneSets(r io.Reader) ([]GeneSet, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var sets []GeneSet
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if text == "" {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) < 3 {
			return nil, fmt.Errorf("line %d: gene set needs name, description and at least one gene", line)
		}
		sets = append(sets, GeneSet{Name: fields[0], Genes: fields[2:]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read gene sets: %w", err)
	}
	return sets, nil
}
