// Package memstore provides in-memory implementations of the store
// interfaces. They honor the same contracts as the Postgres
// implementations, including the atomicity of backlog transitions (a
// single mutex makes every transition a critical section), and back the
// unit, contract, and contention tests as well as single-process
// deployments that do not need durability.
package memstore
