package domain

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownColumn indicates that a dataset has no column with the requested name.
var ErrUnknownColumn = errors.New("unknown column")

// Dataset is a column-oriented table handed to metric functions. Columns
// are either numeric or string valued and all have the same length.
// A Dataset is not modified after construction and may be shared between
// metric functions.
type Dataset struct {
	rows    int
	floats  map[string][]float64
	strings map[string][]string
	order   []string
}

// NewDataset returns an empty dataset with rows rows.
func NewDataset(rows int) *Dataset {
	return &Dataset{
		rows:    rows,
		floats:  make(map[string][]float64),
		strings: make(map[string][]string),
	}
}

// AddFloat adds a numeric column. It returns an error if the column length
// differs from the dataset length or the name is already used.
func (d *Dataset) AddFloat(name string, values []float64) error {
	if err := d.checkColumn(name, len(values)); err != nil {
		return err
	}
	d.floats[name] = values
	d.order = append(d.order, name)
	return nil
}

// AddString adds a string column with the same checks as AddFloat.
func (d *Dataset) AddString(name string, values []string) error {
	if err := d.checkColumn(name, len(values)); err != nil {
		return err
	}
	d.strings[name] = values
	d.order = append(d.order, name)
	return nil
}

func (d *Dataset) checkColumn(name string, n int) error {
	if name == "" {
		return fmt.Errorf("column name cannot be empty")
	}
	if d.HasColumn(name) {
		return fmt.Errorf("column %q already exists", name)
	}
	if n != d.rows {
		return fmt.Errorf("column %q has %d values, dataset has %d rows", name, n, d.rows)
	}
	return nil
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return d.rows
}

// HasColumn reports whether a column of either kind exists.
func (d *Dataset) HasColumn(name string) bool {
	if d == nil {
		return false
	}
	_, f := d.floats[name]
	_, s := d.strings[name]
	return f || s
}

// Columns returns column names in insertion order.
func (d *Dataset) Columns() []string {
	if d == nil {
		return nil
	}
	return append([]string(nil), d.order...)
}

// Float returns the numeric column name.
func (d *Dataset) Float(name string) ([]float64, error) {
	if d != nil {
		if col, ok := d.floats[name]; ok {
			return col, nil
		}
	}
	return nil, fmt.Errorf("%w: numeric column %q", ErrUnknownColumn, name)
}

// Strings returns the string column name.
func (d *Dataset) Strings(name string) ([]string, error) {
	if d != nil {
		if col, ok := d.strings[name]; ok {
			return col, nil
		}
	}
	return nil, fmt.Errorf("%w: string column %q", ErrUnknownColumn, name)
}

// Filter returns a new dataset holding only the rows for which keep returns true.
func (d *Dataset) Filter(keep func(row int) bool) *Dataset {
	idx := make([]int, 0, d.Len())
	for i := 0; i < d.Len(); i++ {
		if keep(i) {
			idx = append(idx, i)
		}
	}

	out := NewDataset(len(idx))
	for _, name := range d.order {
		if col, ok := d.floats[name]; ok {
			sub := make([]float64, len(idx))
			for j, i := range idx {
				sub[j] = col[i]
			}
			out.floats[name] = sub
		} else {
			col := d.strings[name]
			sub := make([]string, len(idx))
			for j, i := range idx {
				sub[j] = col[i]
			}
			out.strings[name] = sub
		}
		out.order = append(out.order, name)
	}
	return out
}

// FilterEqual keeps rows whose string column equals value.
func (d *Dataset) FilterEqual(column, value string) (*Dataset, error) {
	col, err := d.Strings(column)
	if err != nil {
		return nil, err
	}
	return d.Filter(func(i int) bool { return col[i] == value }), nil
}

// Distinct returns the sorted distinct values of a string column.
func (d *Dataset) Distinct(column string) ([]string, error) {
	col, err := d.Strings(column)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(col))
	out := make([]string, 0)
	for _, v := range col {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out, nil
}
