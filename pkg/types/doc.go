// Package types defines the Store contract, domain records, and standard
// errors for the Loom modeling engine: attributes, entity and relationship
// classes, attribute assignments, instances, and values.
package types
