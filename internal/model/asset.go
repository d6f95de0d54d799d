// Package model holds the data types shared by the sync core: assets as
// described by the server, and their in-memory VirtualFile projection.
package model

import "fmt"

// UniqueID is the server-assigned, stable primary key for an asset.
type UniqueID int64

// ItemID is the parallel identifier used inside an asset's ancestor path
// array. It is distinct from UniqueID so the two id spaces can never be
// mixed up at compile time.
type ItemID int32

func (u UniqueID) String() string { return fmt.Sprintf("%d", int64(u)) }
func (i ItemID) String() string   { return fmt.Sprintf("%d", int32(i)) }

// AssetType is the server-side content kind of an asset.
type AssetType string

const (
	AssetTypeFolder AssetType = "folder"
	AssetTypeScript AssetType = "script"
	AssetTypeCSS    AssetType = "css"
	AssetTypeHTML   AssetType = "html"
	AssetTypeJSON   AssetType = "json"
	AssetTypeShader AssetType = "shader"
	AssetTypeText   AssetType = "text"
)

// AssetFile is the server-persisted file payload of a non-folder asset.
type AssetFile struct {
	Filename string
	Hash     string // MD5 of the last server-persisted content
}

// Asset is the server-side description of one project tree node.
type Asset struct {
	UniqueID UniqueID
	ItemID   ItemID
	Type     AssetType
	Name     string
	// Path is the ordered sequence of ancestor item ids, root-to-leaf,
	// NOT including this asset's own ItemID.
	Path     []ItemID
	File     *AssetFile // nil for folders
	BranchID string
}

// IsFolder reports whether the asset is a folder (no File payload).
func (a Asset) IsFolder() bool {
	return a.File == nil
}

// extTableEntry is one row of the fixed extension -> asset type table.
type extTableEntry struct {
	Type     AssetType
	MimeType string
}

// extensionTable maps a lowercase, dot-less file extension to its asset
// type and mime type, per the fixed table in the create() operation.
var extensionTable = map[string]extTableEntry{
	"css":  {AssetTypeCSS, "text/css"},
	"html": {AssetTypeHTML, "text/html"},
	"json": {AssetTypeJSON, "application/json"},
	"js":   {AssetTypeScript, "text/plain"},
	"mjs":  {AssetTypeScript, "text/plain"},
	"txt":  {AssetTypeText, "text/plain"},
	"glsl": {AssetTypeShader, "text/x-glsl"},
}

// defaultExtType is used for any extension not present in extensionTable.
var defaultExtType = extTableEntry{AssetTypeText, "text/plain"}

// AssetTypeForExt resolves the (type, mimeType) pair for a file extension,
// the extension given without its leading dot. Unknown extensions fall
// back to AssetTypeText/"text/plain" and the caller should suffix the
// created name with ".txt".
func AssetTypeForExt(ext string) (AssetType, string, bool) {
	if e, ok := extensionTable[ext]; ok {
		return e.Type, e.MimeType, true
	}
	return defaultExtType.Type, defaultExtType.MimeType, false
}
