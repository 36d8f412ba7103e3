// Package providers defines the LLM backend contract and the ordered
// failover pool that squidbot drives every conversation turn through.
//
// A Backend wraps one provider/model endpoint. It produces its response as
// a push-style sequence of fragments: plain text chunks while the model is
// writing, and a tool-call batch when the model decides to invoke tools.
// The Pool tries its backends strictly in configured order and falls back
// to the next one on any failure.
package providers
