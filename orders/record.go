package orders

// FlatRecord is one exported row: a single product line of a purchase order.
// Every field is always a string; unknown values are empty.
type FlatRecord struct {
	OrderID          string `json:"orderId"`
	Remarks          string `json:"remarks"`
	CustomerCode     string `json:"customerCode"`
	CustomerName     string `json:"customerName"`
	DeliveryDate     string `json:"deliveryDate"`
	Name             string `json:"name"`
	DeliveryAddress1 string `json:"deliveryAddress1"`
	DeliveryAddress2 string `json:"deliveryAddress2"`
	PostalCode       string `json:"postalCode"`
	ProductCode      string `json:"productCode"`
	ProductName      string `json:"productName"`
	Quantity         string `json:"quantity"`
	UOM              string `json:"uom"`
	UnitPrice        string `json:"unitPrice"`
}

// FieldNames lists the record fields by their JSON names, in column order.
var FieldNames = []string{
	"orderId",
	"remarks",
	"customerCode",
	"customerName",
	"deliveryDate",
	"name",
	"deliveryAddress1",
	"deliveryAddress2",
	"postalCode",
	"productCode",
	"productName",
	"quantity",
	"uom",
	"unitPrice",
}

func (r *FlatRecord) fieldPtr(name string) *string {
	switch name {
	case "orderId":
		return &r.OrderID
	case "remarks":
		return &r.Remarks
	case "customerCode":
		return &r.CustomerCode
	case "customerName":
		return &r.CustomerName
	case "deliveryDate":
		return &r.DeliveryDate
	case "name":
		return &r.Name
	case "deliveryAddress1":
		return &r.DeliveryAddress1
	case "deliveryAddress2":
		return &r.DeliveryAddress2
	case "postalCode":
		return &r.PostalCode
	case "productCode":
		return &r.ProductCode
	case "productName":
		return &r.ProductName
	case "quantity":
		return &r.Quantity
	case "uom":
		return &r.UOM
	case "unitPrice":
		return &r.UnitPrice
	}
	return nil
}

// Field returns the value of the named field.
func (r *FlatRecord) Field(name string) (string, bool) {
	p := r.fieldPtr(name)
	if p == nil {
		return "", false
	}
	return *p, true
}

// SetField replaces the named field and reports whether the name is known.
func (r *FlatRecord) SetField(name, value string) bool {
	p := r.fieldPtr(name)
	if p == nil {
		return false
	}
	*p = value
	return true
}

// IsField reports whether name is one of FieldNames.
func IsField(name string) bool {
	var r FlatRecord
	return r.fieldPtr(name) != nil
}
