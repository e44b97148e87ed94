package orders

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/sirupsen/logrus"
)

// UOMCodes are the canonical unit-of-measure codes.
var UOMCodes = []string{"CTN", "PKT", "PCS", "KG", "GM", "LTR", "ML", "BTL", "BOX", "TRAY", "BAG", "ROLL", "SET", "CASE"}

var uomSynonyms = map[string]string{
	"CARTON":      "CTN",
	"CARTONS":     "CTN",
	"PACKET":      "PKT",
	"PACKETS":     "PKT",
	"PIECES":      "PCS",
	"PIECE":       "PCS",
	"KILOGRAM":    "KG",
	"KILOGRAMS":   "KG",
	"GRAM":        "GM",
	"GRAMS":       "GM",
	"LITER":       "LTR",
	"LITERS":      "LTR",
	"LITRE":       "LTR",
	"LITRES":      "LTR",
	"MILLILITER":  "ML",
	"MILLILITERS": "ML",
	"MILLILITRE":  "ML",
	"MILLILITRES": "ML",
	"BOTTLE":      "BTL",
	"BOTTLES":     "BTL",
	"BOXES":       "BOX",
	"TRAYS":       "TRAY",
	"BAGS":        "BAG",
	"ROLLS":       "ROLL",
	"SETS":        "SET",
	"CASES":       "CASE",
}

// NormalizeUOM maps a unit of measure onto its canonical code. Values that
// are not recognized are returned upper-cased and trimmed.
func NormalizeUOM(uom string) string {
	upper := strings.ToUpper(strings.TrimSpace(uom))
	if code, ok := uomSynonyms[upper]; ok {
		return code
	}
	return upper
}

var canonicalDate = regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{2}$`)

// dateLayouts are tried in order before the general parser. Numeric forms
// are day-first.
var dateLayouts = []string{
	"2006-01-02",
	"2006-1-2",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006/01/02",
	"2006/1/2",
	"2-Jan-2006",
	"2-Jan-06",
	"2 Jan 2006",
	"2 Jan 06",
	"2 January 2006",
	"2-January-2006",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"Monday, January 2, 2006",
	"Mon, 02 Jan 2006",
	"Mon, 2 Jan 2006",
	"Mon Jan 2 2006",
	"2/1/2006",
	"2-1-2006",
	"2.1.2006",
	"2.1.06",
	"2-1-06",
}

// NormalizeDate rewrites a delivery date as DD/MM/YY. Dates already in
// D/M/YY form and strings that cannot be parsed are returned unchanged.
func NormalizeDate(date string) string {
	trimmed := strings.TrimSpace(date)
	if trimmed == "" {
		return date
	}
	if canonicalDate.MatchString(trimmed) {
		return trimmed
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return formatDate(t)
		}
	}
	if t, err := dateparse.ParseIn(trimmed, time.UTC, dateparse.PreferMonthFirst(false)); err == nil {
		return formatDate(t)
	}

	log.WithField("date", date).Debug("Could not parse delivery date, keeping it as is")
	return date
}

func formatDate(t time.Time) string {
	return fmt.Sprintf("%02d/%02d/%02d", t.Day(), int(t.Month()), t.Year()%100)
}

// Flatten expands orders into rows: one row per nested product, or a single
// row built from the order's own product fields.
func Flatten(orders []any) []FlatRecord {
	records := make([]FlatRecord, 0, len(orders))
	for _, o := range orders {
		order, _ := o.(map[string]any)

		if products, ok := order["products"].([]any); ok {
			for _, p := range products {
				product, _ := p.(map[string]any)
				records = append(records, buildRecord(order, product))
			}
			continue
		}
		records = append(records, buildRecord(order, order))
	}
	return records
}

func buildRecord(order, product map[string]any) FlatRecord {
	customerName := Stringify(order["customerName"])
	return FlatRecord{
		OrderID:          Stringify(order["orderId"]),
		Remarks:          Stringify(order["remarks"]),
		CustomerCode:     Stringify(order["customerCode"]),
		CustomerName:     customerName,
		DeliveryDate:     NormalizeDate(Stringify(order["deliveryDate"])),
		Name:             customerName,
		DeliveryAddress1: Stringify(order["deliveryAddress1"]),
		DeliveryAddress2: Stringify(order["deliveryAddress2"]),
		PostalCode:       Stringify(order["postalCode"]),
		ProductCode:      Stringify(product["productCode"]),
		ProductName:      Stringify(product["productName"]),
		Quantity:         Stringify(product["quantity"]),
		UOM:              NormalizeUOM(Stringify(product["uom"])),
		UnitPrice:        Stringify(product["unitPrice"]),
	}
}

// Normalize turns raw model output into flat records. A parse failure aborts
// the whole response.
func Normalize(raw string) ([]FlatRecord, error) {
	v, attempts, err := ParseResponse(raw)
	if err != nil {
		return nil, err
	}

	orders := Unwrap(v)
	records := Flatten(orders)
	log.WithFields(logrus.Fields{
		"strategy": attempts[len(attempts)-1].Strategy,
		"orders":   len(orders),
		"records":  len(records),
	}).Info("Normalized model response")
	if len(records) == 0 {
		log.Warn("Model response produced no records")
	}
	return records, nil
}
