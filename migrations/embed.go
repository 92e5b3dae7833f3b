// Package migrations holds the embedded SQL schema migrations, one
// directory per supported database driver.
package migrations

import "embed"

//go:embed mysql postgres
var FS embed.FS
