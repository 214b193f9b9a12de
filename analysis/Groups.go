// Package analysis implements the curve fitting and group comparison
// analyses of per-offset policy evaluation results
package analysis

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Column names of the evaluation table
const (
	OffsetColumn = "state_offset"
	meanSuffix   = "_mean"
	stdSuffix    = "_std"
)

// GroupNames are the groups of the evaluation table, each with a
// "<name>_mean" and a "<name>_std" column
var GroupNames = []string{"0", "1"}

// Group holds the per-offset mean and standard deviation of one group
type Group struct {
	Name string
	Mean []float64
	Std  []float64
}

// Table is a table of group results indexed by state offset
type Table struct {
	X      []float64
	Groups []Group
}

// LoadGroups reads a table from the CSV file at path. If the file does
// not exist, the returned error satisfies errors.Is(err, os.ErrNotExist).
func LoadGroups(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loadGroups: %w", err)
	}
	defer f.Close()

	t, err := ReadGroups(f)
	if err != nil {
		return nil, fmt.Errorf("loadGroups: %v: %v", path, err)
	}
	return t, nil
}

// ReadGroups reads a table in CSV format with a header row naming the
// columns. Columns other than the offset and group columns are ignored.
func ReadGroups(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("readGroups: no header")
	} else if err != nil {
		return nil, fmt.Errorf("readGroups: %v", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	column := func(name string) (int, error) {
		i, ok := index[name]
		if !ok {
			return 0, fmt.Errorf("readGroups: missing column %q", name)
		}
		return i, nil
	}

	offsetCol, err := column(OffsetColumn)
	if err != nil {
		return nil, err
	}
	meanCols := make([]int, len(GroupNames))
	stdCols := make([]int, len(GroupNames))
	for g, name := range GroupNames {
		if meanCols[g], err = column(name + meanSuffix); err != nil {
			return nil, err
		}
		if stdCols[g], err = column(name + stdSuffix); err != nil {
			return nil, err
		}
	}

	t := &Table{Groups: make([]Group, len(GroupNames))}
	for g, name := range GroupNames {
		t.Groups[g].Name = name
	}

	for row := 1; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, fmt.Errorf("readGroups: %v", err)
		}

		field := func(col int) (float64, error) {
			if col >= len(record) {
				return 0, fmt.Errorf("readGroups: row %v: missing column "+
					"%q", row, header[col])
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(record[col]), 64)
			if err != nil {
				return 0, fmt.Errorf("readGroups: row %v: column %q: %v",
					row, header[col], err)
			}
			return v, nil
		}

		x, err := field(offsetCol)
		if err != nil {
			return nil, err
		}
		t.X = append(t.X, x)
		for g := range t.Groups {
			mean, err := field(meanCols[g])
			if err != nil {
				return nil, err
			}
			std, err := field(stdCols[g])
			if err != nil {
				return nil, err
			}
			t.Groups[g].Mean = append(t.Groups[g].Mean, mean)
			t.Groups[g].Std = append(t.Groups[g].Std, std)
		}
	}

	if len(t.X) == 0 {
		return nil, fmt.Errorf("readGroups: no data rows")
	}
	return t, nil
}

// Len returns the number of rows in the table
func (t *Table) Len() int {
	return len(t.X)
}

// Sorted returns a copy of the table with rows sorted by offset. Rows
// with equal offsets keep their order.
func (t *Table) Sorted() *Table {
	order := make([]int, t.Len())
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return t.X[order[i]] < t.X[order[j]]
	})

	permute := func(s []float64) []float64 {
		out := make([]float64, len(s))
		for i, j := range order {
			out[i] = s[j]
		}
		return out
	}

	sorted := &Table{X: permute(t.X), Groups: make([]Group, len(t.Groups))}
	for g, group := range t.Groups {
		sorted.Groups[g] = Group{
			Name: group.Name,
			Mean: permute(group.Mean),
			Std:  permute(group.Std),
		}
	}
	return sorted
}
