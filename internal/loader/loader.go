// Package loader reads a CSV dataset directory into a core.Domain.
package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/foodbank-alloc/fbdam/pkg/core"
)

// Dataset file names.
const (
	ItemsFile         = "items.csv"
	NutrientsFile     = "nutrients.csv"
	HouseholdsFile    = "households.csv"
	ItemNutrientsFile = "item_nutrients.csv"
	RequirementsFile  = "requirements.csv"
	BoundsFile        = "bounds.csv"
)

// DefaultWeight is the fair-share weight of a household without one.
const DefaultWeight = 1.0

// ErrDataset wraps every dataset loading error.
var ErrDataset = errors.New("dataset error")

// Load reads the dataset in dir and validates it into a Domain.
func Load(dir string) (*core.Domain, error) {
	data, err := Read(os.DirFS(dir))
	if err != nil {
		return nil, fmt.Errorf("loading dataset %s: %w", dir, err)
	}
	d, err := core.NewDomain(data)
	if err != nil {
		return nil, fmt.Errorf("loading dataset %s: %w", dir, err)
	}
	return d, nil
}

// Read parses the dataset files in fsys without building a Domain.
// bounds.csv is optional.
func Read(fsys fs.FS) (core.Data, error) {
	var data core.Data
	var err error

	if data.Items, err = readItems(fsys); err != nil {
		return core.Data{}, err
	}
	if data.Nutrients, err = readNutrients(fsys); err != nil {
		return core.Data{}, err
	}
	if data.Households, err = readHouseholds(fsys); err != nil {
		return core.Data{}, err
	}
	if data.Contents, err = readContents(fsys); err != nil {
		return core.Data{}, err
	}
	if data.Requirements, err = readRequirements(fsys); err != nil {
		return core.Data{}, err
	}
	if data.Bounds, err = readBounds(fsys); err != nil {
		return core.Data{}, err
	}
	return data, nil
}

func readItems(fsys fs.FS) ([]core.Item, error) {
	var out []core.Item
	err := readTable(fsys, ItemsFile, []string{"item_id", "name", "stock"}, func(r row) error {
		stock, err := r.float("stock", 0)
		if err != nil {
			return err
		}
		cost, err := r.float("cost", 0)
		if err != nil {
			return err
		}
		out = append(out, core.Item{
			ID:    r.get("item_id"),
			Name:  r.get("name"),
			Unit:  r.get("unit"),
			Stock: stock,
			Cost:  cost,
		})
		return nil
	})
	return out, err
}

func readNutrients(fsys fs.FS) ([]core.Nutrient, error) {
	var out []core.Nutrient
	err := readTable(fsys, NutrientsFile, []string{"nutrient_id", "name"}, func(r row) error {
		out = append(out, core.Nutrient{
			ID:   r.get("nutrient_id"),
			Name: r.get("name"),
			Unit: r.get("unit"),
		})
		return nil
	})
	return out, err
}

func readHouseholds(fsys fs.FS) ([]core.Household, error) {
	var out []core.Household
	err := readTable(fsys, HouseholdsFile, []string{"household_id", "name"}, func(r row) error {
		w, err := r.float("fairshare_weight", DefaultWeight)
		if err != nil {
			return err
		}
		out = append(out, core.Household{
			ID:     r.get("household_id"),
			Name:   r.get("name"),
			Weight: w,
		})
		return nil
	})
	return out, err
}

func readContents(fsys fs.FS) ([]core.NutrientContent, error) {
	var out []core.NutrientContent
	err := readTable(fsys, ItemNutrientsFile, []string{"item_id", "nutrient_id", "qty_per_unit"}, func(r row) error {
		q, err := r.float("qty_per_unit", 0)
		if err != nil {
			return err
		}
		out = append(out, core.NutrientContent{
			ItemID:     r.get("item_id"),
			NutrientID: r.get("nutrient_id"),
			Quantity:   q,
		})
		return nil
	})
	return out, err
}

func readRequirements(fsys fs.FS) ([]core.Requirement, error) {
	var out []core.Requirement
	err := readTable(fsys, RequirementsFile, []string{"household_id", "nutrient_id", "requirement"}, func(r row) error {
		amount, err := r.float("requirement", 0)
		if err != nil {
			return err
		}
		out = append(out, core.Requirement{
			HouseholdID: r.get("household_id"),
			NutrientID:  r.get("nutrient_id"),
			Amount:      amount,
		})
		return nil
	})
	return out, err
}

func readBounds(fsys fs.FS) ([]core.Bound, error) {
	if _, err := fs.Stat(fsys, BoundsFile); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	var out []core.Bound
	err := readTable(fsys, BoundsFile, []string{"item_id", "household_id"}, func(r row) error {
		lower, err := r.float("lower", 0)
		if err != nil {
			return err
		}
		b := core.Bound{
			ItemID:      r.get("item_id"),
			HouseholdID: r.get("household_id"),
			Lower:       lower,
		}
		if raw := r.get("upper"); raw != "" && !strings.EqualFold(raw, "none") {
			upper, err := r.float("upper", 0)
			if err != nil {
				return err
			}
			b.Upper = &upper
		}
		out = append(out, b)
		return nil
	})
	return out, err
}

// row is one CSV record keyed by header.
type row struct {
	file   string
	line   int
	header map[string]int
	fields []string
}

func (r row) get(col string) string {
	i, ok := r.header[col]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

// float parses col, returning def for an empty cell.
func (r row) float(col string, def float64) (float64, error) {
	raw := r.get(col)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s:%d: cannot convert %s=%q to a number", ErrDataset, r.file, r.line, col, raw)
	}
	return v, nil
}

func readTable(fsys fs.FS, name string, required []string, fn func(row) error) error {
	f, err := fsys.Open(name)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDataset, err)
	}
	defer func() { _ = f.Close() }()

	cr := csv.NewReader(f)
	cr.TrimLeadingSpace = true

	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %s: empty file, expected a header", ErrDataset, name)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDataset, name, err)
	}
	header := make(map[string]int, len(head))
	for i, h := range head {
		header[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	var missing []string
	for _, col := range required {
		if _, ok := header[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s: missing required columns %s", ErrDataset, name, strings.Join(missing, ", "))
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrDataset, name, err)
		}
		line, _ := cr.FieldPos(0)
		if err := fn(row{file: name, line: line, header: header, fields: rec}); err != nil {
			return err
		}
	}
}
