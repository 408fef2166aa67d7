// Package pipeline orchestrates a generation run: validate the uploaded
// records, assemble and fill the letter and transmittal templates, convert
// everything to PDF in batches, merge per collection area, and finalize the
// output as a download archive or a print-ready file set. Each run holds its
// session's run lock from start to finish and releases it on every exit path.
package pipeline
