// Package domain holds the sales records handled by the sync job.
package domain

// SourceRow is one decoded line of a sales CSV file.
// The csv tags list the columns in file order.
type SourceRow struct {
	SaleID     int64   `csv:"sale_id"`
	ProductID  int64   `csv:"product_id"`
	CustomerID int64   `csv:"customer_id"`
	SaleDate   string  `csv:"sale_date"`
	SaleAmount float64 `csv:"sale_amount"`
	Location   string  `csv:"location"`
	Country    string  `csv:"country"`
}

// SalesInfo is the persisted form of a SourceRow. The source tag names the
// SourceRow column a field is copied from; "-" marks generated fields.
type SalesInfo struct {
	ID         string  `gorm:"column:id;primaryKey;size:36" source:"-" parquet:"name=id,type=BYTE_ARRAY,convertedtype=UTF8"`
	SaleID     int64   `gorm:"column:sale_id" source:"sale_id" parquet:"name=sale_id,type=INT64"`
	ProductID  int64   `gorm:"column:product_id" source:"product_id" parquet:"name=product_id,type=INT64"`
	CustomerID int64   `gorm:"column:customer_id" source:"customer_id" parquet:"name=customer_id,type=INT64"`
	SaleDate   string  `gorm:"column:sale_date" source:"sale_date" parquet:"name=sale_date,type=BYTE_ARRAY,convertedtype=UTF8"`
	SaleAmount float64 `gorm:"column:sale_amount" source:"sale_amount" parquet:"name=sale_amount,type=DOUBLE"`
	Location   string  `gorm:"column:location" source:"location" parquet:"name=location,type=BYTE_ARRAY,convertedtype=UTF8"`
	Country    string  `gorm:"column:country" source:"country" parquet:"name=country,type=BYTE_ARRAY,convertedtype=UTF8"`
}

// TableName specifies the table name for SalesInfo.
func (SalesInfo) TableName() string {
	return "sales_info"
}
