package models

// DiscountType selects what a discount matches against.
type DiscountType string

const (
	DiscountTypeRole  DiscountType = "role"
	DiscountTypeEvent DiscountType = "event"
)

// Discount is a percentage price reduction granted to holders of a Discord
// role or during a named event.
type Discount struct {
	Type    DiscountType `json:"type"`
	Target  string       `json:"target"`
	Percent int          `json:"percent"`
}

// Catalog is an immutable snapshot of the shop: items, discounts and the
// currently running event. A reload builds a fresh snapshot and swaps it
// atomically; a snapshot is never mutated while in use.
type Catalog struct {
	items        map[string]*ShopItem
	discounts    []Discount
	currentEvent string
}

// NewCatalog builds a snapshot from item and discount lists. Items keep
// insertion order only through their IDs; lookups are by ID.
func NewCatalog(items []ShopItem, discounts []Discount, currentEvent string) *Catalog {
	m := make(map[string]*ShopItem, len(items))
	for n := range items {
		item := items[n]
		m[item.ID] = &item
	}
	return &Catalog{
		items:        m,
		discounts:    discounts,
		currentEvent: currentEvent,
	}
}

// Item returns the catalog entry for id, or nil if it does not exist.
func (c *Catalog) Item(id string) *ShopItem {
	return c.items[id]
}

// Items returns all catalog entries.
func (c *Catalog) Items() []*ShopItem {
	out := make([]*ShopItem, 0, len(c.items))
	for _, item := range c.items {
		out = append(out, item)
	}
	return out
}

// FinalPrice applies every matching discount to the item's base price.
// Discounts stack multiplicatively, mirroring how the shop has always
// computed them, and the result never goes below zero.
func (c *Catalog) FinalPrice(item *ShopItem, roles []string) int64 {
	price := float64(item.Price)
	if !item.DiscountEligible {
		return item.Price
	}
	for _, d := range c.discounts {
		switch d.Type {
		case DiscountTypeRole:
			for _, role := range roles {
				if role == d.Target {
					price *= 1 - float64(d.Percent)/100
					break
				}
			}
		case DiscountTypeEvent:
			if c.currentEvent != "" && d.Target == c.currentEvent {
				price *= 1 - float64(d.Percent)/100
			}
		}
	}
	if price < 0 {
		return 0
	}
	return int64(price)
}
