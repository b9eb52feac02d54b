// Package server exposes a store.IStore over HTTP.
//
// Routes:
//
//	GET    /v1/namespaces                      list namespaces
//	GET    /v1/namespaces/{ns}/keys[?like=p]   list keys (optionally LIKE filtered)
//	GET    /v1/namespaces/{ns}/keys/{key}      get a value
//	HEAD   /v1/namespaces/{ns}/keys/{key}      check a key (200 or 404)
//	PUT    /v1/namespaces/{ns}/keys/{key}      set a value (?ttl=10m records an expiry)
//	DELETE /v1/namespaces/{ns}/keys/{key}      delete a key
//	POST   /v1/namespaces/{ns}/get             {"keys": [...]}                 -> {"values": {...}}
//	POST   /v1/namespaces/{ns}/has             {"keys": [...]}                 -> {"keys": [...]}
//	POST   /v1/namespaces/{ns}/set             {"values": {...}, "ttl": "1h"}  -> {"count": n}
//	POST   /v1/namespaces/{ns}/delete          {"keys": [...]}                 -> {"count": n}
//	POST   /v1/namespaces/{ns}/rename          {"renames": {...}, "overwrite": b, "allow_missing": b}
//	GET    /v1/info                            store statistics
//	GET    /metrics                            Prometheus text format
//
// Keys may contain slashes. The content type of a PUT selects the shape of the
// stored value: application/json bodies are decoded, text/* bodies are stored
// as strings and everything else as raw bytes. GET answers with the matching
// content type. Values in batch bodies are JSON, so byte values are returned
// base64 encoded there.
//
// Errors are answered with {"error": msg, "code": name}, the HTTP status is
// derived from the return code (NotFound 404, Conflict 409, GobNotAllowed 403,
// Closed 503, invalid input 400, everything else 500).
package server
