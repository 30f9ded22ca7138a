// Package dispatch implements the job dispatcher: the server-side facade
// workers talk to. It owns the claim/renew/submit/fail protocol over the
// backlog, commits guides atomically with the job transition, applies the
// lease and attempt-ceiling policy from configuration, and records
// mention statistics after successful submissions.
package dispatch
