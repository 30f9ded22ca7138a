// Package generation defines the boundary between the application core
// and external text-generation backends. The Generator interface and the
// error taxonomy here are the whole contract: backends are assumed slow
// (tens of seconds) and unreliable, with failures split into transient
// (retry) and permanent (do not retry).
package generation
