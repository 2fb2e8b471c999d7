package orders

import (
	"context"
	"sort"
)

// CatalogReader dibaca oleh recipe index. Implementasi di dalam transaksi boleh
// mengunci row (FOR UPDATE); implementasi biasa cukup read committed.
type CatalogReader interface {
	LoadProducts(ctx context.Context, ids []string) ([]Product, error)
	LoadIngredients(ctx context.Context, ids []string) ([]Ingredient, error)
}

// Snapshot is the bill of materials plus stock levels for a set of products,
// read once and never mutated afterwards.
type Snapshot struct {
	products    map[string]Product
	ingredients map[string]Ingredient
}

func NewSnapshot(products []Product, ingredients []Ingredient) *Snapshot {
	s := &Snapshot{
		products:    make(map[string]Product, len(products)),
		ingredients: make(map[string]Ingredient, len(ingredients)),
	}
	for _, p := range products {
		p.Recipe = append([]RecipeLine(nil), p.Recipe...)
		s.products[p.ID] = p
	}
	for _, in := range ingredients {
		s.ingredients[in.ID] = in
	}
	return s
}

func (s *Snapshot) Product(id string) (Product, bool) {
	p, ok := s.products[id]
	if ok {
		p.Recipe = append([]RecipeLine(nil), p.Recipe...)
	}
	return p, ok
}

func (s *Snapshot) Ingredient(id string) (Ingredient, bool) {
	in, ok := s.ingredients[id]
	return in, ok
}

// LoadSnapshot loads every product in ids together with all ingredients their
// recipes touch. Missing products are reported through *MissingProductsError
// alongside the partial snapshot, so callers can still classify them as
// conflicts.
func LoadSnapshot(ctx context.Context, r CatalogReader, ids []string) (*Snapshot, error) {
	ids = uniqueSorted(ids)
	products, err := r.LoadProducts(ctx, ids)
	if err != nil {
		return nil, err
	}

	found := make(map[string]bool, len(products))
	var ingIDs []string
	for _, p := range products {
		found[p.ID] = true
		for _, l := range p.Recipe {
			ingIDs = append(ingIDs, l.IngredientID)
		}
	}

	var ingredients []Ingredient
	if len(ingIDs) > 0 {
		ingredients, err = r.LoadIngredients(ctx, uniqueSorted(ingIDs))
		if err != nil {
			return nil, err
		}
	}
	snap := NewSnapshot(products, ingredients)

	var missing []string
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return snap, &MissingProductsError{IDs: missing}
	}
	return snap, nil
}

// urut supaya lock row selalu dengan urutan yang sama (hindari deadlock)
func uniqueSorted(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
