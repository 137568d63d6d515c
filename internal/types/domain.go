// Package types defines the domain model for stop-and-search retrieval:
// reporting periods, polygon boundaries, the loosely-structured incident
// records the upstream API returns, and the flattened tabular result.
// It also carries the shared error taxonomy and context helpers.
package types

// IncidentRecord is one stop-and-search incident as decoded from the
// upstream JSON. The schema is not fixed across records: values are
// scalars, null, or nested objects (an "outcome" sub-record and a
// "location" sub-record containing a "street" sub-record, at most three
// levels deep). Tolerating heterogeneous shape is the flattener's job;
// this type stays deliberately loose.
type IncidentRecord map[string]any

// Force identifies one administrative police force as listed by the
// forces-metadata endpoint. The ID is the value the force-query endpoint
// accepts.
type Force struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
