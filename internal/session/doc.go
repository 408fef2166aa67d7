// Package session isolates each user's generation state: a private directory
// tree, the uploaded record table, cached template prototypes, and a
// non-blocking run lock that rejects overlapping runs.
package session
