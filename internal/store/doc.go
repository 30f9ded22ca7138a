// Package store defines the persistence contracts of the application:
// the card catalog, the guide archive, the analysis job backlog, and the
// mention statistics. Implementations live under internal/platform; the
// rest of the application depends only on these interfaces and the
// sentinel errors declared here.
package store
