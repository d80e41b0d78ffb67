// Package expander widens a search query with related terms from a text-generation model.
//
// Responses are parsed strictly: the model must return a JSON array of strings or
// an object {"terms": [...]}, optionally inside a code fence. Anything else counts
// as a parse failure and the deterministic fallback (underscore, hyphen and
// concatenated variants of the query) is used instead.
//
// A liveness check runs once at startup. While the service is down Expand returns
// the fallback without touching the network.
package expander
