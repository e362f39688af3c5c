package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/user/goszakup-scraper/internal/domain"
)

// fieldMapping translates the portal's Russian row labels to detail-table
// field keys. The label set is fixed by the portal markup; rows with labels
// outside this table are ignored.
var fieldMapping = map[string]string{
	"Лот №":                         domain.FieldLotNumber,
	"Статус лота":                   domain.FieldLotStatus,
	"БИН заказчика":                 domain.FieldCustomerBIN,
	"Наименование заказчика":        domain.FieldCustomerName,
	"Код ТРУ":                       domain.FieldTRUCode,
	"Наименование ТРУ":              domain.FieldTRUName,
	"Краткая характеристика":        domain.FieldBriefDescription,
	"Дополнительная характеристика": domain.FieldAdditionalDescription,
	"Цена за единицу":               domain.FieldPricePerUnit,
	"Единица измерения":             domain.FieldUnitOfMeasurement,
	"Количество":                    domain.FieldQuantity,
	"Место поставки товара, КАТО":   domain.FieldDeliveryLocationKATO,
}

// rowSelectors are tried in order of decreasing specificity so that minor
// markup drift on the portal does not blind the parser entirely.
var rowSelectors = []string{
	"table.table.table-bordered.table-hover tr",
	"table tr",
	"tbody tr",
}

// ExtractLotIDs returns the data-lot-id values of the anchors on an
// announcement lots page, deduplicated preserving first-seen order.
// Malformed markup yields an empty result, never an error.
func ExtractLotIDs(htmlContent string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	var lotIDs []string
	doc.Find("a[data-lot-id]").Each(func(_ int, s *goquery.Selection) {
		id, _ := s.Attr("data-lot-id")
		if id == "" {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		lotIDs = append(lotIDs, id)
	})
	return lotIDs
}

// ParseLotTable parses a lot detail fragment into the field map. Every
// field key is present in the result; a key maps to nil when its row is
// absent or its value is empty.
func ParseLotTable(htmlContent string) map[string]*string {
	fields := emptyFields()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return fields
	}

	findRows(doc).Each(func(_ int, row *goquery.Selection) {
		th := row.Find("th").First()
		td := row.Find("td").First()
		if th.Length() == 0 || td.Length() == 0 {
			return
		}
		key, ok := fieldMapping[strings.TrimSpace(th.Text())]
		if !ok {
			return
		}
		if value := strings.TrimSpace(td.Text()); value != "" {
			fields[key] = &value
		}
	})
	return fields
}

// ClassifyParse grades a parsed field map: nothing filled is a failed
// parse, a full set is a success, anything in between is partial with a
// message naming how many fields are missing.
func ClassifyParse(fields map[string]*string) (domain.ParseStatus, *string) {
	filled := 0
	for _, v := range fields {
		if v != nil {
			filled++
		}
	}
	total := len(domain.FieldKeys)

	switch {
	case filled == 0:
		msg := "No fields could be parsed"
		return domain.ParseFailed, &msg
	case filled < total:
		msg := fmt.Sprintf("Only %d/%d fields parsed (%d missing)", filled, total, total-filled)
		return domain.ParsePartial, &msg
	default:
		return domain.ParseSuccess, nil
	}
}

// ExtractAnnounceID pulls the announcement ID out of a portal URL of the
// form .../announce/index/<id>. It returns "" when the index segment or
// the id after it is missing.
func ExtractAnnounceID(rawURL string) string {
	parts := strings.Split(strings.TrimRight(rawURL, "/"), "/")
	for i, part := range parts {
		if part == "index" {
			if i+1 < len(parts) {
				return parts[i+1]
			}
			return ""
		}
	}
	return ""
}

func emptyFields() map[string]*string {
	fields := make(map[string]*string, len(domain.FieldKeys))
	for _, key := range domain.FieldKeys {
		fields[key] = nil
	}
	return fields
}

func findRows(doc *goquery.Document) *goquery.Selection {
	rows := doc.Find(rowSelectors[0])
	for _, sel := range rowSelectors[1:] {
		if rows.Length() > 0 {
			break
		}
		rows = doc.Find(sel)
	}
	return rows
}
