package docs

import _ "embed"

//go:embed openapi.json
var OpenAPISpec []byte

//go:embed api.md
var APIDigest []byte
