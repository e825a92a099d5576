package appidentityassets

import _ "embed"

// YAML mirrors .fulmen/app.yaml so binaries copied away from the repo still
// resolve an identity.
//
//go:embed app.yaml
var YAML []byte
