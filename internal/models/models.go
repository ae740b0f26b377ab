package models

import "time"

// ProductSnapshot is a copy of the catalog product taken at add-time.
// It is owned by the cart line, not a live reference: later catalog
// changes never retro-apply to lines already in the cart.
type ProductSnapshot struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
	Stock     int     `json:"stock"`
}

// CartItem is one product line in the cart
type CartItem struct {
	Product   ProductSnapshot `json:"product"`
	Quantity  int             `json:"quantity"`
	UnitPrice float64         `json:"unit_price"`
	LineTotal float64         `json:"line_total"`
}

// Cart is the aggregate owned by one storefront session. TotalItems,
// TotalPrice and IsEmpty are derived from Items; every mutation path
// must call Recalculate before the cart is handed to observers.
type Cart struct {
	Items      []CartItem `json:"items"`
	TotalItems int        `json:"total_items"`
	TotalPrice float64    `json:"total_price"`
	IsEmpty    bool       `json:"is_empty"`
}

// NewCart returns an empty, consistent cart
func NewCart() Cart {
	c := Cart{Items: []CartItem{}}
	c.Recalculate()
	return c
}

// Recalculate recomputes line totals and the derived aggregates
func (c *Cart) Recalculate() {
	totalItems := 0
	totalPrice := 0.0
	for i := range c.Items {
		c.Items[i].LineTotal = c.Items[i].UnitPrice * float64(c.Items[i].Quantity)
		totalItems += c.Items[i].Quantity
		totalPrice += c.Items[i].LineTotal
	}
	c.TotalItems = totalItems
	c.TotalPrice = totalPrice
	c.IsEmpty = len(c.Items) == 0
}

// Find returns the index of the line holding productID, or -1
func (c *Cart) Find(productID int64) int {
	for i := range c.Items {
		if c.Items[i].Product.ID == productID {
			return i
		}
	}
	return -1
}

// AddLine merges quantity into an existing line or appends a new one.
// The snapshot's (possibly discounted) unit price is captured on first add.
func (c *Cart) AddLine(product ProductSnapshot, quantity int) {
	if idx := c.Find(product.ID); idx >= 0 {
		c.Items[idx].Quantity += quantity
	} else {
		c.Items = append(c.Items, CartItem{
			Product:   product,
			Quantity:  quantity,
			UnitPrice: product.UnitPrice,
		})
	}
	c.Recalculate()
}

// SetQuantity replaces a line's quantity. Zero removes the line; an
// absent product id leaves the cart unchanged.
func (c *Cart) SetQuantity(productID int64, quantity int) {
	idx := c.Find(productID)
	if idx < 0 {
		return
	}
	if quantity <= 0 {
		c.RemoveLine(productID)
		return
	}
	c.Items[idx].Quantity = quantity
	c.Recalculate()
}

// RemoveLine drops a line. Removing an absent product id is a no-op.
func (c *Cart) RemoveLine(productID int64) {
	idx := c.Find(productID)
	if idx < 0 {
		return
	}
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	c.Recalculate()
}

// Clear empties the cart
func (c *Cart) Clear() {
	c.Items = []CartItem{}
	c.Recalculate()
}

// Clone returns a deep copy safe to hand to observers
func (c Cart) Clone() Cart {
	out := c
	out.Items = make([]CartItem, len(c.Items))
	copy(out.Items, c.Items)
	return out
}

// Contact is the checkout contact info entered by the customer
type Contact struct {
	Phone string `json:"telefono"`
	Name  string `json:"nombre,omitempty"`
	Email string `json:"email,omitempty"`
}

// AbandonedCartItem is one line of an abandoned-cart report
type AbandonedCartItem struct {
	Name     string  `json:"nombre"`
	Quantity int     `json:"cantidad"`
	Price    float64 `json:"precio"`
}

// AbandonedCartRecord is the one-shot report sent to the marketing
// endpoint when a cart with contact info goes idle
type AbandonedCartRecord struct {
	Phone string              `json:"telefono"`
	Name  string              `json:"nombre,omitempty"`
	Email string              `json:"email,omitempty"`
	Items []AbandonedCartItem `json:"items"`
	Total float64             `json:"total"`
}

// AbandonMarker dedups abandoned-cart reports for one phone within the
// cooldown window. Survives page reloads and service restarts.
type AbandonMarker struct {
	Phone      string    `json:"telefono"`
	ReportedAt time.Time `json:"timestamp"`
	CartID     string    `json:"carrito_id"`
}

// CheckoutDraft is an in-progress checkout form snapshot, kept for a
// fixed expiry so the customer can resume later
type CheckoutDraft struct {
	Contact Contact           `json:"contact"`
	Fields  map[string]string `json:"fields"`
	SavedAt time.Time         `json:"saved_at"`
}

// Coordinate is a WGS84 point
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ShippingConfig mirrors the backend shipping configuration record
type ShippingConfig struct {
	StoreLat              float64 `json:"store_lat"`
	StoreLng              float64 `json:"store_lng"`
	MaxDistanceExpressKm  float64 `json:"max_distance_express_km"`
	MaxDistanceProgramKm  float64 `json:"max_distance_programado_km"`
	FreeShippingThreshold float64 `json:"free_shipping_threshold"`
}

// ShippingZone maps a distance range to a cost for one shipping method
type ShippingZone struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	Method        string  `json:"shipping_method"`
	MinDistanceKm float64 `json:"min_distance_km"`
	MaxDistanceKm float64 `json:"max_distance_km"`
	BaseCost      float64 `json:"base_cost"`
	CostPerKm     float64 `json:"cost_per_km"`
	FreeFrom      float64 `json:"free_shipping_threshold"`
	IsActive      bool    `json:"is_active"`
	ZoneOrder     int     `json:"zone_order"`
}

// ShippingQuote is the result of a shipping cost estimation
type ShippingQuote struct {
	Available      bool    `json:"available"`
	ZoneName       string  `json:"zone_name,omitempty"`
	DistanceKm     float64 `json:"distance_km"`
	ShippingCost   float64 `json:"shipping_cost"`
	IsFreeShipping bool    `json:"is_free_shipping"`
	Message        string  `json:"message,omitempty"`
}

// Shipping methods
const (
	ShippingMethodExpress   = "express"
	ShippingMethodScheduled = "programado"
)
