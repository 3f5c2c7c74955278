package model

// Archive represents the downloaded release tarball on disk
type Archive struct {
	Path string // Path to the tarball
	Tag  string // Release tag the tarball belongs to
	Size int64  // Bytes written
}

// ExtractedTree represents the directory produced by decompressing an Archive
type ExtractedTree struct {
	Root     string   // Absolute path of the top-level directory
	TopLevel string   // Name of the top-level directory
	Files    []string // Extracted member names
	Size     int64    // Total size of regular files in bytes
}
