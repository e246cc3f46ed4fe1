// Package transform maps decoded sales rows to persistable records.
package transform

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/tigerroll/salesync/internal/sales/domain"
	port "github.com/tigerroll/salesync/pkg/batch/core/application/port"
	"github.com/tigerroll/salesync/pkg/batch/support/util/exception"
)

const moduleName = "transform.SalesTransformer"

// SalesTransformer is the item processor of the load step.
type SalesTransformer struct{}

var _ port.ItemProcessor[domain.SourceRow, domain.SalesInfo] = (*SalesTransformer)(nil)

func NewSalesTransformer() *SalesTransformer {
	return &SalesTransformer{}
}

// Process never fails; rows reaching it were already validated by the reader.
func (t *SalesTransformer) Process(ctx context.Context, row domain.SourceRow) (domain.SalesInfo, error) {
	return Transform(row), nil
}

// Transform copies every column of row and assigns a fresh identity.
func Transform(row domain.SourceRow) domain.SalesInfo {
	return domain.SalesInfo{
		ID:         uuid.NewString(),
		SaleID:     row.SaleID,
		ProductID:  row.ProductID,
		CustomerID: row.CustomerID,
		SaleDate:   row.SaleDate,
		SaleAmount: row.SaleAmount,
		Location:   row.Location,
		Country:    row.Country,
	}
}

// CheckSchema verifies that SalesInfo and SourceRow describe the same columns.
func CheckSchema() error {
	return CheckSchemaOf(reflect.TypeOf(domain.SourceRow{}), reflect.TypeOf(domain.SalesInfo{}))
}

// CheckSchemaOf compares the csv tags of source with the source tags of target.
// Target fields tagged source:"-" are generated and ignored. Both directions
// are checked: a target column with no source and a source column never copied
// are configuration errors.
func CheckSchemaOf(source, target reflect.Type) error {
	srcCols := tagSet(source, "csv")
	dstCols := tagSet(target, "source")

	var missing, unmapped []string
	for col, field := range dstCols {
		if _, ok := srcCols[col]; !ok {
			missing = append(missing, fmt.Sprintf("%s.%s (%s)", target.Name(), field, col))
		}
	}
	for col, field := range srcCols {
		if _, ok := dstCols[col]; !ok {
			unmapped = append(unmapped, fmt.Sprintf("%s.%s (%s)", source.Name(), field, col))
		}
	}
	if len(missing) == 0 && len(unmapped) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(unmapped)
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "target fields without a source column: "+strings.Join(missing, ", "))
	}
	if len(unmapped) > 0 {
		parts = append(parts, "source columns not mapped: "+strings.Join(unmapped, ", "))
	}
	return exception.NewTransformError(moduleName, strings.Join(parts, "; "))
}

// tagSet maps tag value to field name. Untagged fields count under their own name.
func tagSet(t reflect.Type, key string) map[string]string {
	cols := make(map[string]string, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get(key)
		if tag == "-" {
			continue
		}
		if tag == "" {
			tag = f.Name
		}
		cols[tag] = f.Name
	}
	return cols
}
