package fsutil

// SetRename swaps the rename function and returns a restore func
func SetRename(f func(oldpath, newpath string) error) func() {
	orig := rename
	rename = f
	return func() { rename = orig }
}
