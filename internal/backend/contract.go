// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package backend

import _ "embed"

//go:embed openapi.yaml
var openAPIDocument []byte

// OpenAPIDocument returns the backend HTTP contract as OpenAPI 3 YAML.
func OpenAPIDocument() []byte {
	return append([]byte(nil), openAPIDocument...)
}
