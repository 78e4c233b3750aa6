// Package errors provides the structured error type used across the
// gatekeeper service. Every error that crosses a package boundary carries a
// machine-readable [Code] whose category prefix decides how the error is
// surfaced to callers (HTTP status, gRPC status, retry policy).
//
// # Categories
//
//   - VAL: malformed caller input (400)
//   - AUTH: token verification failures (401)
//   - AUTHZ: the caller is authenticated but not allowed (403)
//   - NF: the target does not exist (404)
//   - CONF: the target already exists (409)
//   - PROV: the identity provider rejected a provisioning call (502)
//   - INT: unexpected internal failures (500)
//   - UNAVAIL: a dependency could not be reached (503, retryable)
//   - TIMEOUT: a dependency did not answer in time (504, retryable)
//
// The AUTH category has one code per verification failure so that logs and
// spans can tell a bad signature from an expired token. Transports collapse
// the whole category to a single "unauthenticated" answer.
//
// # Usage
//
//	if err := authorizer.RequireAdmin(ctx, subject); err != nil {
//	    return err // *errors.Error with CodeAuthorizationDenied
//	}
//
//	if errors.IsRetryable(err) {
//	    // ProviderUnavailable: the caller may try again later
//	}
package errors
