// Package testutil provides test helpers for wahistory tests.
//
// The package is organized into focused files:
//   - assert.go: assertion helpers (MustNoErr, AssertStrings, etc.)
//   - store_helpers.go: database test setup (NewTestStore)
//   - fs_helpers.go: filesystem operations (WriteFile, AssertFileContent, MustNotExist)
//   - archive_helpers.go: export fixtures (ZipBytes, CreateTempZip, CreateExportFolder)
//   - security_data.go: path traversal vectors (PathTraversalCases)
//   - builders.go: transcript builder
//   - encoding.go: legacy-encoded samples
package testutil
