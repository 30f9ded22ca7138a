// Package domain defines the core business entities of the card guide
// pipeline: catalog cards, generated guides, and the analysis jobs that
// track guide production. Entities validate themselves and carry no
// persistence or transport concerns.
package domain
