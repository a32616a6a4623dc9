package fsstore

import "os"

const (
	defaultDirPerm  = 0o700
	defaultFilePerm = 0o600
)

// FileOptions controls permissions of snapshot files and the directories
// created for them. Zero values fall back to owner-only permissions.
type FileOptions struct {
	DirPerm  os.FileMode
	FilePerm os.FileMode
	// Compact writes JSON without indentation.
	Compact bool
}

func normalizeFileOptions(opts FileOptions) FileOptions {
	if opts.DirPerm == 0 {
		opts.DirPerm = defaultDirPerm
	}
	if opts.FilePerm == 0 {
		opts.FilePerm = defaultFilePerm
	}
	return opts
}
