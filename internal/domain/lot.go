package domain

// ParseStatus classifies how completely a lot detail table was extracted.
type ParseStatus string

const (
	ParseSuccess ParseStatus = "success"
	ParsePartial ParseStatus = "partial"
	ParseFailed  ParseStatus = "failed"
)

// Field keys for the 12 columns of a lot detail table. The extractor maps
// the portal's Russian row labels onto these keys.
const (
	FieldLotNumber             = "lot_number"
	FieldLotStatus             = "lot_status"
	FieldCustomerBIN           = "customer_bin"
	FieldCustomerName          = "customer_name"
	FieldTRUCode               = "tru_code"
	FieldTRUName               = "tru_name"
	FieldBriefDescription      = "brief_description"
	FieldAdditionalDescription = "additional_description"
	FieldPricePerUnit          = "price_per_unit"
	FieldUnitOfMeasurement     = "unit_of_measurement"
	FieldQuantity              = "quantity"
	FieldDeliveryLocationKATO  = "delivery_location_kato"
)

// FieldKeys lists every detail-table field key in column order.
var FieldKeys = []string{
	FieldLotNumber,
	FieldLotStatus,
	FieldCustomerBIN,
	FieldCustomerName,
	FieldTRUCode,
	FieldTRUName,
	FieldBriefDescription,
	FieldAdditionalDescription,
	FieldPricePerUnit,
	FieldUnitOfMeasurement,
	FieldQuantity,
	FieldDeliveryLocationKATO,
}

// LotRecord mirrors the `lot_details` table schema, one row per
// (lot_url, data_lot_id) pair. A field member is nil when the portal
// omitted the row or left its value empty. Records are written once and
// never updated; a duplicate insert is rejected by the store.
type LotRecord struct {
	LotURL     string
	AnnounceID string
	DataLotID  string

	LotNumber             *string
	LotStatus             *string
	CustomerBIN           *string
	CustomerName          *string
	TRUCode               *string
	TRUName               *string
	BriefDescription      *string
	AdditionalDescription *string
	PricePerUnit          *string
	UnitOfMeasurement     *string
	Quantity              *string
	DeliveryLocationKATO  *string

	ParseStatus  ParseStatus
	ErrorMessage *string
}

// NewLotRecord builds a LotRecord from the extractor's field map. Keys
// absent from the map leave the corresponding member nil.
func NewLotRecord(lotURL, announceID, dataLotID string, fields map[string]*string) *LotRecord {
	return &LotRecord{
		LotURL:                lotURL,
		AnnounceID:            announceID,
		DataLotID:             dataLotID,
		LotNumber:             fields[FieldLotNumber],
		LotStatus:             fields[FieldLotStatus],
		CustomerBIN:           fields[FieldCustomerBIN],
		CustomerName:          fields[FieldCustomerName],
		TRUCode:               fields[FieldTRUCode],
		TRUName:               fields[FieldTRUName],
		BriefDescription:      fields[FieldBriefDescription],
		AdditionalDescription: fields[FieldAdditionalDescription],
		PricePerUnit:          fields[FieldPricePerUnit],
		UnitOfMeasurement:     fields[FieldUnitOfMeasurement],
		Quantity:              fields[FieldQuantity],
		DeliveryLocationKATO:  fields[FieldDeliveryLocationKATO],
	}
}
