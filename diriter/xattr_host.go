package diriter

// readHostXattrs always reports no extended attributes: collecting real
// host xattrs (user.*, security.*, trusted.*) is an explicit non-goal of
// this module (see SPEC_FULL.md), so no xattr syscall package was wired
// in here even though github.com/pkg/xattr is a plausible candidate.
func readHostXattrs(path string) ([]Xattr, error) {
	return nil, nil
}
