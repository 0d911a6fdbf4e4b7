package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Product is one line item of the cart. The JSON shape is the stored snapshot format
// and has no version field, so renaming a tag breaks carts persisted earlier.
type Product struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	ImageURL string  `json:"image_url"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

var (
	ErrEmptyID          = errors.New("product id is empty")
	ErrInvalidQuantity  = errors.New("product quantity must be at least 1")
	ErrDuplicateProduct = errors.New("duplicate product id in cart")
)

// IndexOf returns the position of the line item with the given id, or -1.
func IndexOf(products []Product, id string) int {
	for i := range products {
		if products[i].ID == id {
			return i
		}
	}
	return -1
}

func Clone(products []Product) []Product {
	out := make([]Product, len(products))
	copy(out, products)
	return out
}

// Validate checks the collection invariants: non-empty unique ids and quantity >= 1.
func Validate(products []Product) error {
	seen := make(map[string]struct{}, len(products))
	for i, p := range products {
		if p.ID == "" {
			return fmt.Errorf("item %d: %w", i, ErrEmptyID)
		}
		if p.Quantity < 1 {
			return fmt.Errorf("item %q: %w", p.ID, ErrInvalidQuantity)
		}
		if _, ok := seen[p.ID]; ok {
			return fmt.Errorf("item %q: %w", p.ID, ErrDuplicateProduct)
		}
		seen[p.ID] = struct{}{}
	}
	return nil
}

// MarshalSnapshot serializes the whole collection. An empty cart is "[]", never "null".
func MarshalSnapshot(products []Product) (string, error) {
	if products == nil {
		products = []Product{}
	}
	data, err := json.Marshal(products)
	if err != nil {
		return "", fmt.Errorf("marshal cart failed: %w", err)
	}
	return string(data), nil
}

// UnmarshalSnapshot parses a stored collection. Only a payload that is not a JSON
// array of line items is an error; items breaking the collection invariants are left
// for Sanitize.
func UnmarshalSnapshot(data string) ([]Product, error) {
	var products []Product
	if err := json.Unmarshal([]byte(data), &products); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	if products == nil {
		products = []Product{}
	}
	return products, nil
}

// Sanitize drops items with an empty id or a quantity below 1 and folds repeated ids
// into the first occurrence, summing quantities. Order of the kept items is preserved.
// problems lists what was changed, one error per offending item.
func Sanitize(products []Product) (clean []Product, problems []error) {
	clean = make([]Product, 0, len(products))
	for i, p := range products {
		if p.ID == "" {
			problems = append(problems, fmt.Errorf("item %d: %w", i, ErrEmptyID))
			continue
		}
		if p.Quantity < 1 {
			problems = append(problems, fmt.Errorf("item %q: %w", p.ID, ErrInvalidQuantity))
			continue
		}
		if j := IndexOf(clean, p.ID); j >= 0 {
			problems = append(problems, fmt.Errorf("item %q: %w", p.ID, ErrDuplicateProduct))
			clean[j].Quantity += p.Quantity
			continue
		}
		clean = append(clean, p)
	}
	return clean, problems
}
