// Package services defines the shared error taxonomy for external
// collaborators and pipeline stages.
package services
