// Package archive calls the generative-text backend that writes SCPNET's
// fictional containment documents. Synthesize produces one structured
// document per object ID; Chat streams a terminal conversation under a
// fixed records-system persona. Both ride an OpenAI-compatible chat
// completions API. Missing credentials surface as ErrNotConfigured so the
// caller can show an inline error instead of retrying.
package archive
