// Package catalog maps device product ids to model metadata.
//
// Devices report a product id ("pid") in their INFO reply but carry no
// description of their own capabilities. The catalog supplies the missing
// half: model name, icon, type code, and the list of datapoints the model
// implements. Sessions look a device up exactly once, at connect time.
//
// The catalog is a local collaborator by design: CozyLink never phones home
// for it. Installations ship the vendor product list as a JSON file
// (catalog.path in config.yaml) or pin entries in code via Static.
package catalog
