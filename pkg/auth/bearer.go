package auth

import "strings"

// HeaderAuthorization carries the bearer token, in HTTP headers and gRPC
// metadata alike.
const HeaderAuthorization = "authorization"

const bearerPrefix = "Bearer "

// ExtractBearerToken returns the token from an Authorization header value.
// The scheme is matched case-insensitively. It returns "" when the value is
// not a bearer credential.
func ExtractBearerToken(authHeader string) string {
	if len(authHeader) <= len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(bearerPrefix):])
}
