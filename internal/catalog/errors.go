package catalog

import "errors"

// Catalog errors. Check with errors.Is().
var (
	// ErrNotFound is returned when a product id has no catalog entry.
	ErrNotFound = errors.New("catalog: product not found")

	// ErrInvalidList is returned when a product list file cannot be parsed.
	ErrInvalidList = errors.New("catalog: invalid product list")
)
