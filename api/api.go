// Package api holds the HTTP contract of the casefile server.
package api

import _ "embed"

// Spec is the OpenAPI document served at /openapi.yaml and used to validate
// incoming requests.
//
//go:embed openapi.yaml
var Spec []byte
