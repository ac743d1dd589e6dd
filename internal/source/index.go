package source

import (
	"path"
	"sort"
	"strings"

	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/catalog"
)

// Object is a listed raw file.
type Object struct {
	Key  string
	Size int64
}

// Prefix returns the bucket prefix holding the raw files of e.
func Prefix(e *catalog.Entry) string {
	return e.Source + "/" + e.Variable + "/"
}

// IsCompressed checks if a file is zstd compressed.
func IsCompressed(key string) bool {
	return strings.HasSuffix(strings.ToLower(key), ".zst")
}

// FormatOf returns the format implied by the extension of key, ignoring
// a trailing .zst.
func FormatOf(key string) string {
	lower := strings.ToLower(key)
	lower = strings.TrimSuffix(lower, ".zst")
	switch path.Ext(lower) {
	case ".csv", ".txt":
		return catalog.FormatCSV
	case ".xlsx", ".xls":
		return catalog.FormatXLSX
	default:
		return ""
	}
}

// Matches reports whether key is a raw file of e: its extension names the
// entry's format, or it has no extension at all (extensionless exports).
func Matches(e *catalog.Entry, key string) bool {
	if strings.HasSuffix(key, "/") {
		return false
	}
	if f := FormatOf(key); f != "" {
		return f == e.Format
	}
	return path.Ext(strings.TrimSuffix(strings.ToLower(key), ".zst")) == ""
}

// SortObjects orders objects by key, so files are merged deterministically.
func SortObjects(objs []Object) {
	sort.Slice(objs, func(i, j int) bool { return objs[i].Key < objs[j].Key })
}
