package broker

import (
	"path"
	"strings"
	"time"
)

// BuildObjectKey returns "<workspace>/<YYYYMMDD>/<name>" with the file
// name cleaned so it cannot escape its directory.
func BuildObjectKey(workspaceID, filename string, now time.Time) string {
	return workspaceID + "/" + now.Format("20060102") + "/" + CleanFilename(filename)
}

// CleanFilename strips NULs, flattens path separators to '_' and falls
// back to "unknown" for empty names.
func CleanFilename(name string) string {
	name = strings.ReplaceAll(name, "\x00", "")
	name = strings.NewReplacer("/", "_", "\\", "_").Replace(name)
	name = strings.TrimSpace(path.Base(name))
	if name == "" || name == "." || name == ".." {
		return "unknown"
	}
	return name
}
