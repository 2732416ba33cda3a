package appfs

import "embed"

// FS holds the SQL migrations so the API and admin CLI binaries
// can run them without a checkout of the repo.
//go:embed migrations
var FS embed.FS
