// Package auth verifies bearer tokens issued by the external identity
// provider and decides whether a verified subject may perform privileged
// operations.
//
// The pieces, leaf first:
//
//   - [KeySetCache] fetches the provider's JSON Web Key Set and caches the
//     signing keys by key id. Concurrent misses share one fetch and a
//     refreshed set replaces the previous one atomically.
//   - [TokenVerifier] parses a token, resolves its key, verifies the
//     signature and only then validates issuer and expiry.
//   - [Gate] turns a raw Authorization header into a [Principal].
//     [HTTPMiddleware] and [UnaryServerInterceptor] mount it on HTTP and
//     gRPC servers and collapse every verification failure to a single
//     "unauthenticated" answer.
//   - [Authorizer] answers "is this subject an admin" against a
//     [RoleStore] on every call.
//
// # OpenTelemetry
//
// Key set refreshes, verifications and authorization checks emit spans
// under the scope "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/auth".
package auth
