// Package manifest handles parsing and validation of add-on package manifests.
//
// A manifest (manifest.yaml, manifest.yml or manifest.json) names the add-on,
// its type, version, entry point and the capability paths it promises to
// export. Validation runs in two stages: the embedded JSON Schema, then the
// semantic checks in Check.
package manifest
