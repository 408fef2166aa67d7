// Package docx edits WordprocessingML packages directly: guillemet token
// substitution across body, header and footer parts, inline picture insertion,
// text-box scoped replacement, row-scoped table fills, and merging a letter
// body into a header/footer shell. Parts are manipulated as raw XML; no
// document object model is built.
package docx
