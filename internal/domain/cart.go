package domain

import "time"

// Variant distinguishes otherwise-identical purchases of the same plan set,
// e.g. PDF vs CAD format, or metric vs imperial units. The zero value means
// "no variant selected".
type Variant struct {
	Format string `bson:"format" json:"format"`
	Units  string `bson:"units" json:"units"`
}

type CartItem struct {
	ProductID    int64     `bson:"product_id" json:"product_id"`
	Name         string    `bson:"name" json:"name"`
	UnitPriceUSD float64   `bson:"unit_price_usd" json:"unit_price_usd"`
	Quantity     int       `bson:"quantity" json:"quantity"`
	Variant      Variant   `bson:"variant" json:"variant"`
	AddedAt      time.Time `bson:"added_at" json:"added_at"`
}

type Cart struct {
	ID        string     `bson:"_id,omitempty" json:"-"`
	SessionID string     `bson:"session_id" json:"session_id"`
	Items     []CartItem `bson:"items" json:"items"`
	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updated_at"`
}

// Add merges an item into the cart. A matching (product, variant) entry gets
// its quantity incremented by one; otherwise the item is appended with
// quantity one. The cart never holds two entries for the same pair.
func (c *Cart) Add(item CartItem) {
	for i := range c.Items {
		if c.Items[i].ProductID == item.ProductID && c.Items[i].Variant == item.Variant {
			c.Items[i].Quantity++
			return
		}
	}
	item.Quantity = 1
	if item.AddedAt.IsZero() {
		item.AddedAt = time.Now()
	}
	c.Items = append(c.Items, item)
}

// Remove deletes the matching entry. Removing an absent entry is a no-op.
func (c *Cart) Remove(productID int64, variant Variant) {
	for i, item := range c.Items {
		if item.ProductID == productID && item.Variant == variant {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return
		}
	}
}

// SetQuantity overwrites the matching entry's quantity. A quantity below one
// removes the entry instead.
func (c *Cart) SetQuantity(productID int64, quantity int, variant Variant) {
	if quantity < 1 {
		c.Remove(productID, variant)
		return
	}
	for i := range c.Items {
		if c.Items[i].ProductID == productID && c.Items[i].Variant == variant {
			c.Items[i].Quantity = quantity
			return
		}
	}
}

func (c *Cart) Clear() {
	c.Items = nil
}

// TotalUSD is the canonical cart total. Display currencies are derived from it
// and never fed back into it.
func (c *Cart) TotalUSD() float64 {
	var total float64
	for _, item := range c.Items {
		total += item.UnitPriceUSD * float64(item.Quantity)
	}
	return total
}

// Count sums quantities across entries, for badge display.
func (c *Cart) Count() int {
	var n int
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}
