// Package auth handles operator login: the OAuth authorization code flow,
// SQLite-backed login sessions, and the HTTP middleware that gates the API.
package auth
