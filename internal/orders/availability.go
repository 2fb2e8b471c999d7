package orders

import (
	"sort"

	"github.com/shopspring/decimal"
)

type ItemQty struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type Availability struct {
	Valid        bool           `json:"valid"`
	Conflicts    []Conflict     `json:"conflicts"`
	MaxAvailable map[string]int `json:"max_available_per_product"`
}

// MaxFabricable returns how many units of productID can be handed out: the
// finished stock on hand, bounded by every limited ingredient of its recipe.
// The result is never negative.
func MaxFabricable(productID string, snap *Snapshot) int {
	p, ok := snap.Product(productID)
	if !ok {
		return 0
	}
	max := decimal.NewFromInt(int64(p.Stock))
	for _, l := range p.Recipe {
		in, ok := snap.Ingredient(l.IngredientID)
		if !ok {
			// resep menunjuk bahan yang tidak ada: tidak bisa diproduksi
			return 0
		}
		if in.Unlimited || !l.QtyRequired.IsPositive() {
			continue
		}
		possible, _ := in.Stock.QuoRem(l.QtyRequired, 0)
		if possible.LessThan(max) {
			max = possible
		}
	}
	if max.IsNegative() {
		return 0
	}
	return int(max.IntPart())
}

// Validate compares each requested quantity with MaxFabricable. A product that
// is not in the snapshot is a conflict with nothing available.
func Validate(items []ItemQty, snap *Snapshot) Availability {
	res := Availability{MaxAvailable: make(map[string]int, len(items))}
	for _, it := range items {
		avail, ok := res.MaxAvailable[it.ProductID]
		if !ok {
			avail = MaxFabricable(it.ProductID, snap)
			res.MaxAvailable[it.ProductID] = avail
		}
		if it.Qty > avail {
			res.Conflicts = append(res.Conflicts, Conflict{
				ProductID: it.ProductID, Requested: it.Qty, Available: avail,
			})
		}
	}
	res.Valid = len(res.Conflicts) == 0
	return res
}

// MergeItems menggabungkan product yang muncul lebih dari sekali (urutan pertama dipertahankan).
func MergeItems(items []ItemQty) []ItemQty {
	idx := make(map[string]int, len(items))
	out := make([]ItemQty, 0, len(items))
	for _, it := range items {
		if i, ok := idx[it.ProductID]; ok {
			out[i].Qty += it.Qty
			continue
		}
		idx[it.ProductID] = len(out)
		out = append(out, it)
	}
	return out
}

// Consumption is the stock an order draws when it is confirmed.
type Consumption struct {
	Products    map[string]int
	Ingredients map[string]decimal.Decimal // unlimited ingredients never appear
}

func ComputeConsumption(items []ItemQty, snap *Snapshot) Consumption {
	c := Consumption{
		Products:    map[string]int{},
		Ingredients: map[string]decimal.Decimal{},
	}
	for _, it := range items {
		p, ok := snap.Product(it.ProductID)
		if !ok {
			continue
		}
		c.Products[p.ID] += it.Qty
		qty := decimal.NewFromInt(int64(it.Qty))
		for _, l := range p.Recipe {
			in, ok := snap.Ingredient(l.IngredientID)
			if !ok || in.Unlimited || !l.QtyRequired.IsPositive() {
				continue
			}
			c.Ingredients[in.ID] = c.Ingredients[in.ID].Add(l.QtyRequired.Mul(qty))
		}
	}
	return c
}

// SharedShortfall reports products whose combined draw on a shared ingredient
// exceeds its stock, even though each product fits on its own.
func SharedShortfall(items []ItemQty, snap *Snapshot) []Conflict {
	c := ComputeConsumption(items, snap)
	short := map[string]bool{}
	for id, need := range c.Ingredients {
		in, _ := snap.Ingredient(id)
		if need.GreaterThan(in.Stock) {
			short[id] = true
		}
	}
	if len(short) == 0 {
		return nil
	}

	var out []Conflict
	for _, it := range items {
		p, ok := snap.Product(it.ProductID)
		if !ok {
			continue
		}
		for _, l := range p.Recipe {
			if short[l.IngredientID] {
				out = append(out, Conflict{
					ProductID: it.ProductID, Requested: it.Qty, Available: MaxFabricable(it.ProductID, snap),
				})
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}
