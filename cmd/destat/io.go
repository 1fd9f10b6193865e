package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/refstab/destat/internal/exprmat"
	"github.com/refstab/destat/internal/refgenes"
)

func readCounts(path string) (*exprmat.CountMatrix, error) {
	m, err := exprmat.ReadCountMatrix(path)
	if err != nil {
		return nil, fmt.Errorf("read count matrix: %w", err)
	}
	return m, nil
}

func readDesign(path string, refLevels map[string]string) (*exprmat.SampleDesign, error) {
	d, err := exprmat.ReadSampleDesign(path, refLevels)
	if err != nil {
		return nil, fmt.Errorf("read sample design: %w", err)
	}
	return d, nil
}

// readRefGeneSet reads a reference gene set previously exported by
// 'destat refgenes': a header line, then gene id and CV columns.
func readRefGeneSet(path string) (*refgenes.ReferenceGeneSet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open reference gene set: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	if !scanner.Scan() {
		return nil, fmt.Errorf("empty reference gene set file %s", path)
	}

	set := &refgenes.ReferenceGeneSet{}
	line := 1
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if text == "" {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) < 2 {
			return nil, fmt.Errorf("%s line %d: want gene id and CV", path, line)
		}
		cv, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: parse CV %q: %w", path, line, fields[1], err)
		}
		set.Genes = append(set.Genes, refgenes.RefGene{ID: fields[0], CV: cv})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read reference gene set: %w", err)
	}
	if len(set.Genes) == 0 {
		return nil, fmt.Errorf("reference gene set %s has no genes", path)
	}
	return set, nil
}

// readStatVector reads gene ids and Wald statistics from a DE result
// table written by 'destat run'.
func readStatVector(path string) (genes []string, stats []float64, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open DE table: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	if !scanner.Scan() {
		return nil, nil, fmt.Errorf("empty DE table %s", path)
	}
	header := strings.Split(scanner.Text(), "\t")
	geneCol, statCol := -1, -1
	for i, h := range header {
		switch h {
		case "gene_id":
			geneCol = i
		case "stat":
			statCol = i
		}
	}
	if geneCol < 0 || statCol < 0 {
		return nil, nil, fmt.Errorf("%s: header needs gene_id and stat columns", path)
	}

	line := 1
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if text == "" {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) <= statCol || len(fields) <= geneCol {
			return nil, nil, fmt.Errorf("%s line %d: too few fields", path, line)
		}
		v, err := strconv.ParseFloat(fields[statCol], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("%s line %d: parse stat %q: %w", path, line, fields[statCol], err)
		}
		genes = append(genes, fields[geneCol])
		stats = append(stats, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("read DE table: %w", err)
	}
	return genes, stats, nil
}
