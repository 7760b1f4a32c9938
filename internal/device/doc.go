// Package device defines the platform-neutral view of a BLE radio in the central role:
// addresses, advertisements, links, GATT services and characteristics, and the error
// kinds every layer above reports.
//
// Concrete radios live in the goble and tinygo subpackages.
package device
