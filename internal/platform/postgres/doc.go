// Package postgres implements the store interfaces on PostgreSQL via
// database/sql and the pgx driver. The backlog's claim transition uses a
// single UPDATE over a FOR UPDATE SKIP LOCKED selection so concurrent
// claims never hand the same job to two workers, and every ownership-
// guarded transition disambiguates a zero-row update with a follow-up
// read to report the precise protocol error.
package postgres
