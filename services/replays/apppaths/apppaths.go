package apppaths

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

var Storage = filepath.Join(xdg.DataHome, "replaydeck")
var Database = filepath.Join(Storage, "database", "replaydeck.db")
var PreviewCache = filepath.Join(Storage, "previews")
var Staging = filepath.Join(Storage, "downloads")
