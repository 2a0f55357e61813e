package squashfs

import "errors"

// Package-specific error variables that can be used with errors.Is() for error handling.
var (
	// ErrInvalidFile is returned when the file format is not recognized as SquashFS
	ErrInvalidFile = errors.New("invalid file, squashfs signature not found")

	// ErrInvalidSuper is returned when the superblock data is corrupted or invalid
	ErrInvalidSuper = errors.New("invalid squashfs superblock")

	// ErrInvalidVersion is returned when the SquashFS version is not 4.0
	// This library only supports SquashFS 4.0 format
	ErrInvalidVersion = errors.New("invalid file version, expected squashfs 4.0")

	// ErrInodeNotExported is returned when trying to access an inode that isn't in the export table
	ErrInodeNotExported = errors.New("unknown squashfs inode and no NFS export table")

	// ErrNotDirectory is returned when attempting to perform directory operations on a non-directory
	ErrNotDirectory = errors.New("not a directory")

	// ErrTooManySymlinks is returned when symlink resolution exceeds the maximum depth
	// This prevents infinite loops in symlink resolution
	ErrTooManySymlinks = errors.New("too many levels of symbolic links")

	// ErrCorrupted reports a violated on-disk invariant (spec.md §7).
	ErrCorrupted = errors.New("squashfs: corrupted on-disk structure")

	// ErrUnsupported reports a known construct this module refuses to
	// decode or produce (spec.md §7), e.g. an xattr prefix outside
	// {user, trusted, security}.
	ErrUnsupported = errors.New("squashfs: unsupported construct")

	// ErrOverflow reports an arithmetic or field-width overflow.
	ErrOverflow = errors.New("squashfs: value overflows its on-disk field")

	// ErrOutOfBounds reports an offset or index outside its table's
	// declared bounds.
	ErrOutOfBounds = errors.New("squashfs: offset out of bounds")

	// ErrNotFile is returned when a file-only operation is attempted on a
	// non-regular-file inode.
	ErrNotFile = errors.New("squashfs: not a regular file")

	// ErrNoEntry mirrors POSIX ENOENT for directory lookups.
	ErrNoEntry = errors.New("squashfs: no such entry")

	// ErrSequence reports API misuse, e.g. using a directory iterator
	// while its associated file stream is still open (spec.md §7).
	ErrSequence = errors.New("squashfs: out-of-sequence API use")
)
