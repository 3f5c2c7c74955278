package model

import "strings"

// DefaultTag is used when the release response carries no tag_name
const DefaultTag = "latest"

// ReleaseInfo represents the latest release of the source repository
type ReleaseInfo struct {
	Tag        string // Release tag name
	ArchiveURL string // Source tarball URL (tarball_url)
}

// ArchiveFileName returns the local file name of the release tarball.
// Path separators in the tag are replaced so the archive always lands
// directly in the work directory.
func (r *ReleaseInfo) ArchiveFileName() string {
	tag := r.Tag
	if tag == "" {
		tag = DefaultTag
	}
	tag = strings.NewReplacer("/", "_", "\\", "_").Replace(tag)
	return "libnx-" + tag + ".tar.gz"
}
