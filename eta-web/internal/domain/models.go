package domain

import (
	"encoding/json"
	"math"
	"strconv"
)

type FieldKind int

const (
	KindFloat FieldKind = iota
	KindInt
	KindCategory
	KindTimestamp
)

const (
	FieldMarketID               = "market_id"
	FieldStorePrimaryCategory   = "store_primary_category"
	FieldOrderProtocol          = "order_protocol"
	FieldTotalItems             = "total_items"
	FieldSubtotal               = "subtotal"
	FieldNumDistinctItems       = "num_distinct_items"
	FieldMinItemPrice           = "min_item_price"
	FieldMaxItemPrice           = "max_item_price"
	FieldTotalOutstandingOrders = "total_outstanding_orders"
	FieldDrivingDuration        = "estimated_store_to_consumer_driving_duration"
	FieldCreatedAt              = "created_at"
)

type Field struct {
	Name  string
	Label string
	Kind  FieldKind
}

// Fields lists the order attributes in form order. created_at is last and is
// never user-editable.
var Fields = []Field{
	{FieldMarketID, "Market ID", KindFloat},
	{FieldStorePrimaryCategory, "Store Category", KindCategory},
	{FieldOrderProtocol, "Order Protocol", KindFloat},
	{FieldTotalItems, "Total Items", KindInt},
	{FieldSubtotal, "Subtotal (cents)", KindInt},
	{FieldNumDistinctItems, "Distinct Items", KindInt},
	{FieldMinItemPrice, "Min Item Price", KindInt},
	{FieldMaxItemPrice, "Max Item Price", KindInt},
	{FieldTotalOutstandingOrders, "Outstanding Orders", KindFloat},
	{FieldDrivingDuration, "Est. Driving Duration (sec)", KindFloat},
	{FieldCreatedAt, "Created At", KindTimestamp},
}

func LookupField(name string) (Field, bool) {
	for _, f := range Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

type Category struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

var Categories = []Category{
	{"american", "American"},
	{"italian", "Italian"},
	{"chinese", "Chinese"},
	{"indian", "Indian"},
	{"mexican", "Mexican"},
	{"japanese", "Japanese"},
	{"thai", "Thai"},
	{"mediterranean", "Mediterranean"},
	{"pizza", "Pizza"},
	{"burger", "Burger"},
	{"sandwich", "Sandwich"},
	{"dessert", "Dessert"},
	{"coffee", "Coffee"},
	{"healthy", "Healthy"},
	{"vegan", "Vegan"},
	{"seafood", "Seafood"},
	{"bbq", "BBQ"},
	{"fast_food", "Fast Food"},
}

func IsCategory(value string) bool {
	for _, c := range Categories {
		if c.Value == value {
			return true
		}
	}
	return false
}

// OrderForm is the editable record. Every value is kept exactly as typed.
type OrderForm struct {
	MarketID               string `json:"market_id"`
	StorePrimaryCategory   string `json:"store_primary_category"`
	OrderProtocol          string `json:"order_protocol"`
	TotalItems             string `json:"total_items"`
	Subtotal               string `json:"subtotal"`
	NumDistinctItems       string `json:"num_distinct_items"`
	MinItemPrice           string `json:"min_item_price"`
	MaxItemPrice           string `json:"max_item_price"`
	TotalOutstandingOrders string `json:"total_outstanding_orders"`
	DrivingDuration        string `json:"estimated_store_to_consumer_driving_duration"`
	CreatedAt              string `json:"created_at"`
}

func DefaultOrderForm(createdAt string) OrderForm {
	return OrderForm{
		MarketID:               "1.0",
		StorePrimaryCategory:   "american",
		OrderProtocol:          "1.0",
		TotalItems:             "2",
		Subtotal:               "1500",
		NumDistinctItems:       "2",
		MinItemPrice:           "500",
		MaxItemPrice:           "1000",
		TotalOutstandingOrders: "10",
		DrivingDuration:        "400",
		CreatedAt:              createdAt,
	}
}

func (f *OrderForm) ref(name string) *string {
	switch name {
	case FieldMarketID:
		return &f.MarketID
	case FieldStorePrimaryCategory:
		return &f.StorePrimaryCategory
	case FieldOrderProtocol:
		return &f.OrderProtocol
	case FieldTotalItems:
		return &f.TotalItems
	case FieldSubtotal:
		return &f.Subtotal
	case FieldNumDistinctItems:
		return &f.NumDistinctItems
	case FieldMinItemPrice:
		return &f.MinItemPrice
	case FieldMaxItemPrice:
		return &f.MaxItemPrice
	case FieldTotalOutstandingOrders:
		return &f.TotalOutstandingOrders
	case FieldDrivingDuration:
		return &f.DrivingDuration
	case FieldCreatedAt:
		return &f.CreatedAt
	}
	return nil
}

func (f OrderForm) Value(name string) (string, bool) {
	p := f.ref(name)
	if p == nil {
		return "", false
	}
	return *p, true
}

// With returns a copy of f with the named field replaced. The bool is false
// when name is not a form field; the copy is then identical to f.
func (f OrderForm) With(name, value string) (OrderForm, bool) {
	p := f.ref(name)
	if p == nil {
		return f, false
	}
	*p = value
	return f, true
}

// Float is a coerced floating-point field. NaN and infinities encode as null.
type Float float64

func NaN() Float { return Float(math.NaN()) }

func (v Float) IsNaN() bool { return math.IsNaN(float64(v)) }

func (v Float) MarshalJSON() ([]byte, error) {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

// Int is a coerced integer field. An invalid Int encodes as null.
type Int struct {
	Value int64
	Valid bool
}

func NewInt(v int64) Int { return Int{Value: v, Valid: true} }

func (v Int) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return strconv.AppendInt(nil, v.Value, 10), nil
}

// OrderPayload is the request body sent to the predictor.
type OrderPayload struct {
	MarketID               Float  `json:"market_id"`
	StorePrimaryCategory   string `json:"store_primary_category"`
	OrderProtocol          Float  `json:"order_protocol"`
	TotalItems             Int    `json:"total_items"`
	Subtotal               Int    `json:"subtotal"`
	NumDistinctItems       Int    `json:"num_distinct_items"`
	MinItemPrice           Int    `json:"min_item_price"`
	MaxItemPrice           Int    `json:"max_item_price"`
	TotalOutstandingOrders Float  `json:"total_outstanding_orders"`
	DrivingDuration        Float  `json:"estimated_store_to_consumer_driving_duration"`
	CreatedAt              string `json:"created_at"`
}

type PredictionResponse struct {
	PredictedDeliveryTimeMinutes *float64               `json:"predicted_delivery_time_minutes"`
	InputSummary                 map[string]interface{} `json:"input_summary,omitempty"`
}

type GalleryItem struct {
	ID        int    `json:"id"`
	Src       string `json:"src"`
	SourcePDF string `json:"source_pdf"`
	Page      int    `json:"page"`
	Context   string `json:"context"`
	Broken    bool   `json:"-"`
}
