// Package secrets holds the process-wide signing key material used by the
// token manager.
//
// A Store is generated exactly once at engine construction and is never
// persisted: every access token issued before a process restart becomes
// unverifiable after one. That is a stated property of the deployment, not a
// defect — refresh tokens, which live in Redis, are the re-authentication
// path across restarts.
package secrets
