package catalog

import (
	"encoding/json"
	"fmt"
	"os"
)

// ModelInfo is the capability metadata resolved for a product id.
type ModelInfo struct {
	// ProductID is the device-reported pid this entry describes.
	ProductID string `json:"pid"`

	// ModelName is the human-readable model name.
	ModelName string `json:"name"`

	// Icon is the vendor icon reference.
	Icon string `json:"icon"`

	// TypeCode classifies the device family ("01" light, "02" switch, ...).
	TypeCode string `json:"type_code"`

	// DatapointIDs lists the datapoints this model implements, in the
	// vendor's documented order.
	DatapointIDs []int `json:"datapoint_ids"`
}

// Catalog resolves a product id to its model metadata.
//
// A session performs exactly one lookup per successful INFO exchange. A miss
// is not fatal: the device stays connected with empty capability fields.
type Catalog interface {
	// Lookup returns the metadata for productID, or ErrNotFound.
	Lookup(productID string) (ModelInfo, error)
}

// Static is an in-memory catalog keyed by product id. Useful for tests and
// for installations that pin a hand-written product list in config.
type Static map[string]ModelInfo

// Lookup implements Catalog.
func (s Static) Lookup(productID string) (ModelInfo, error) {
	info, ok := s[productID]
	if !ok {
		return ModelInfo{}, fmt.Errorf("%w: pid %q", ErrNotFound, productID)
	}
	return info, nil
}

// Empty returns a catalog that misses every lookup. Used when no product
// list file is configured.
func Empty() Catalog {
	return Static{}
}

// productList is the vendor product list file layout: type-code groups, each
// holding the models of that type.
//
//	[
//	  {"c": "01", "m": [
//	    {"pid": "e2s64v", "n": "Smart Bulb A60", "i": "bulb", "dpid": [1,2,3,4]}
//	  ]}
//	]
type productList []struct {
	TypeCode string `json:"c"`
	Models   []struct {
		PID          string `json:"pid"`
		Name         string `json:"n"`
		Icon         string `json:"i"`
		DatapointIDs []int  `json:"dpid"`
	} `json:"m"`
}

// File is a catalog backed by a vendor product list JSON file, fully loaded
// at construction. Lookups never touch the filesystem.
type File struct {
	byPID map[string]ModelInfo
}

// LoadFile parses the product list at path into a File catalog.
//
// Duplicate pids keep the first entry seen; the vendor list occasionally
// repeats a model under two type groups.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading product list: %w", err)
	}

	var list productList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidList, err)
	}

	byPID := make(map[string]ModelInfo)
	for _, group := range list {
		for _, model := range group.Models {
			if model.PID == "" {
				continue
			}
			if _, seen := byPID[model.PID]; seen {
				continue
			}
			byPID[model.PID] = ModelInfo{
				ProductID:    model.PID,
				ModelName:    model.Name,
				Icon:         model.Icon,
				TypeCode:     group.TypeCode,
				DatapointIDs: model.DatapointIDs,
			}
		}
	}

	return &File{byPID: byPID}, nil
}

// Lookup implements Catalog.
func (f *File) Lookup(productID string) (ModelInfo, error) {
	info, ok := f.byPID[productID]
	if !ok {
		return ModelInfo{}, fmt.Errorf("%w: pid %q", ErrNotFound, productID)
	}
	return info, nil
}

// Len returns the number of known products.
func (f *File) Len() int {
	return len(f.byPID)
}
