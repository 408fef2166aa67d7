// Package templates resolves letter types against the campaign catalog and
// fetches template documents and signature images from the shared FTP
// repository.
package templates
