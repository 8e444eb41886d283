// Package handlers implements the Steward HTTP API on a chi router.
//
// Handlers decode and shape requests and responses only; validation,
// confirmation, de-duplication and job submission live in the governance
// service. Errors are mapped to statuses by errorResponse, and job views
// never carry internal error text.
package handlers
