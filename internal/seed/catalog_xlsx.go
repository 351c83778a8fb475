package seed

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Elogic360/neatify/internal/app/model"
	"github.com/Elogic360/neatify/internal/app/repository"
	"github.com/Elogic360/neatify/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	ProductsSheet   = "Products"
	VariationsSheet = "Variations"
)

// Products sheet: name | slug | price | stock | is_active | description | image_url
// Variations sheet: product_slug | name | value | stock | price_adjustment
// The first row of each sheet is a header.

// Report summarises one XLSX read.
type Report struct {
	ProductRows   int
	VariationRows int
	Products      int
	Variations    int
	Skipped       []string
}

func (r *Report) skip(sheet string, row int, reason string) {
	r.Skipped = append(r.Skipped, fmt.Sprintf("%s row %d: %s", sheet, row, reason))
}

// ReadCatalogXLSX parses a catalog workbook into products with their
// variations. Invalid rows are skipped and listed in the report.
func ReadCatalogXLSX(path string) ([]model.Product, *Report, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open XLSX file: %w", err)
	}
	defer f.Close()

	return readCatalog(f)
}

func readCatalog(f *excelize.File) ([]model.Product, *Report, error) {
	sheets := map[string]bool{}
	for _, name := range f.GetSheetList() {
		sheets[name] = true
	}

	productSheet := ProductsSheet
	if !sheets[productSheet] {
		productSheet = f.GetSheetName(0)
	}
	if productSheet == "" {
		return nil, nil, fmt.Errorf("no sheets found in XLSX file")
	}

	rows, err := f.GetRows(productSheet)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read rows of %s: %w", productSheet, err)
	}
	if len(rows) < 2 {
		return nil, nil, fmt.Errorf("no product rows found in sheet %s", productSheet)
	}

	report := &Report{}
	products := make([]model.Product, 0, len(rows)-1)
	bySlug := map[string]int{}
	slugCounter := map[string]int{}

	for i, row := range rows[1:] {
		rowNum := i + 2
		report.ProductRows++

		product, reason := parseProductRow(row)
		if reason != "" {
			report.skip(productSheet, rowNum, reason)
			continue
		}

		base := product.Slug
		if count, exists := slugCounter[base]; exists {
			slugCounter[base] = count + 1
			product.Slug = fmt.Sprintf("%s-%d", base, count+1)
		} else {
			slugCounter[base] = 1
		}

		bySlug[product.Slug] = len(products)
		products = append(products, *product)
	}

	if sheets[VariationsSheet] {
		rows, err := f.GetRows(VariationsSheet)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read rows of %s: %w", VariationsSheet, err)
		}
		for i, row := range rows {
			if i == 0 {
				continue
			}
			report.VariationRows++

			slug, variation, reason := parseVariationRow(row)
			if reason != "" {
				report.skip(VariationsSheet, i+1, reason)
				continue
			}
			idx, ok := bySlug[slug]
			if !ok {
				report.skip(VariationsSheet, i+1, fmt.Sprintf("unknown product slug %q", slug))
				continue
			}
			products[idx].Variations = append(products[idx].Variations, *variation)
			report.Variations++
		}
	}

	report.Products = len(products)
	return products, report, nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}

func parseProductRow(row []string) (*model.Product, string) {
	name := cell(row, 0)
	if name == "" {
		return nil, "name is required"
	}

	price, err := decimal.NewFromString(cell(row, 2))
	if err != nil || price.IsNegative() {
		return nil, fmt.Sprintf("invalid price %q", cell(row, 2))
	}

	stock := 0
	if raw := cell(row, 3); raw != "" {
		stock, err = strconv.Atoi(raw)
		if err != nil || stock < 0 {
			return nil, fmt.Sprintf("invalid stock %q", raw)
		}
	}

	active := true
	if raw := cell(row, 4); raw != "" {
		active = parseFlag(raw)
	}

	slug := cell(row, 1)
	if slug == "" {
		slug = GenerateSlug(name)
	}
	if slug == "" {
		return nil, "cannot derive slug"
	}

	return &model.Product{
		Name:        name,
		Slug:        slug,
		Price:       price.Round(2),
		Stock:       stock,
		IsActive:    active,
		Description: cell(row, 5),
		ImageURL:    cell(row, 6),
	}, ""
}

func parseVariationRow(row []string) (string, *model.ProductVariation, string) {
	slug := cell(row, 0)
	name := cell(row, 1)
	if slug == "" || name == "" {
		return "", nil, "product_slug and name are required"
	}

	variation := &model.ProductVariation{
		Name:            name,
		Value:           cell(row, 2),
		PriceAdjustment: decimal.Zero,
	}

	if raw := cell(row, 3); raw != "" {
		stock, err := strconv.Atoi(raw)
		if err != nil || stock < 0 {
			return "", nil, fmt.Sprintf("invalid stock %q", raw)
		}
		variation.Stock = &stock
	}
	if raw := cell(row, 4); raw != "" {
		adjustment, err := decimal.NewFromString(raw)
		if err != nil {
			return "", nil, fmt.Sprintf("invalid price_adjustment %q", raw)
		}
		variation.PriceAdjustment = adjustment.Round(2)
	}
	return slug, variation, ""
}

func parseFlag(raw string) bool {
	switch strings.ToLower(raw) {
	case "1", "y", "yes", "true", "active":
		return true
	default:
		return false
	}
}

var (
	slugInvalid = regexp.MustCompile(`[^\p{L}\p{N}-]+`)
	slugDashes  = regexp.MustCompile(`-+`)
)

// GenerateSlug builds a URL slug from a product name.
func GenerateSlug(name string) string {
	slug := slugInvalid.ReplaceAllString(name, "-")
	slug = slugDashes.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	return strings.ToLower(slug)
}

// Import creates the products whose slug is not in the catalog yet and
// returns how many were created.
func Import(ctx context.Context, repo repository.ProductRepository, products []model.Product, batchSize int) (int, error) {
	existing, err := repo.FindSlugs(ctx)
	if err != nil {
		return 0, err
	}

	fresh := make([]model.Product, 0, len(products))
	for _, product := range products {
		if _, ok := existing[product.Slug]; ok {
			continue
		}
		fresh = append(fresh, product)
	}

	if skipped := len(products) - len(fresh); skipped > 0 {
		logger.Info("Skipping products already in the catalog", map[string]interface{}{
			"skipped": skipped,
		})
	}
	if err := repo.BulkCreate(ctx, fresh, batchSize); err != nil {
		return 0, err
	}
	return len(fresh), nil
}
