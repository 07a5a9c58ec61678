// Package rules normalizes appliance user rule lists.
//
// The appliance only accepts the complete list on write, so every edit is a
// read, a local change through Add or Remove, and a write of the result.
package rules
