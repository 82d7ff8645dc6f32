// Package embeddings turns text into vectors for the document index and
// long-term memory.
//
// Three providers are available: FastEmbed (local ONNX models, requires
// cgo), TEI (a Text Embeddings Inference server) and OpenAI-compatible APIs
// through langchaingo. NewProvider selects one from config.
package embeddings
