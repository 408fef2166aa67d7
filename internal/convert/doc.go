// Package convert drives a headless office binary to render DOCX files to
// PDF. Work is split into bounded batches, each with a private scratch
// directory and its own killable process group; files that produce no output
// are retried with a cooldown before being reported as failed.
package convert
