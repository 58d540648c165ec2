// Package jwt signs and verifies the short-lived session-data tokens carried
// in the session-data cookie. A token is bound to one session token through
// its SHA-256 digest and is never accepted on its own.
package jwt
