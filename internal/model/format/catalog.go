package format

// Catalog exposes format lookup for the conversation and job services.
// It is built once at startup and never mutated, so concurrent reads
// need no synchronization.
type Catalog struct {
	items []Format
	byKey map[string]Format
}

// NewCatalog returns a Catalog preloaded with the supplied formats.
func NewCatalog(items []Format) *Catalog {
	byKey := make(map[string]Format, len(items))
	for _, item := range items {
		byKey[item.Key] = item
	}
	return &Catalog{items: append([]Format(nil), items...), byKey: byKey}
}

// All returns the formats in their presentation order.
func (c *Catalog) All() []Format {
	return append([]Format(nil), c.items...)
}

// Lookup finds a format by its stable key.
func (c *Catalog) Lookup(key string) (Format, bool) {
	f, ok := c.byKey[key]
	return f, ok
}
