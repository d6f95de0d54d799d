package model

// VirtualFile is the in-memory node stored under a path in
// VirtualProject.files. It is a tagged variant: exactly one of Folder or
// File is populated.
type VirtualFile struct {
	UniqueID UniqueID
	IsFolder bool

	// The following are meaningful only when IsFolder is false.
	DocUniqueID UniqueID // the content Doc's subscription key (== UniqueID)
	Dirty       bool     // doc content hash differs from asset.file.hash
}

// NewFolder constructs a folder VirtualFile.
func NewFolder(id UniqueID) VirtualFile {
	return VirtualFile{UniqueID: id, IsFolder: true}
}

// NewFile constructs a file VirtualFile, initially clean.
func NewFile(id UniqueID) VirtualFile {
	return VirtualFile{UniqueID: id, IsFolder: false, DocUniqueID: id}
}
