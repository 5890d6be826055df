// Package fs fixes the Go-level contract a filesystem must satisfy for
// exec and ls to have something concrete to call (spec.md section 6: a
// real disk-backed filesystem is explicitly out of scope). Grounded on
// the teacher's inode/direct-block shape (biscuit fs/super.go) and
// original_source/fs.h's directory-entry layout, MemFS provides an
// in-memory implementation so exec/ls are exercised by tests without a
// disk driver.
package fs

import "kernelcore/defs"

/// Inode identifies a file within a Filesystem. MemFS uses it as a plain
/// slice index; a real disk-backed filesystem would use it as a block
/// number.
type Inode int

/// Filesystem is the minimal contract exec (load a binary) and ls (list
/// directory contents) need.
type Filesystem interface {
	// Find resolves a path to an Inode, or ENOENT if it does not exist.
	Find(path string) (Inode, defs.Err_t)
	// Read returns the full contents of inode.
	Read(inode Inode) ([]byte, defs.Err_t)
	// List returns every path the filesystem currently holds, matching
	// spec.md's LS syscall (section 4.5).
	List() ([]string, defs.Err_t)
}

type memFile struct {
	path string
	data []byte
}

/// MemFS is a flat in-memory Filesystem: every file lives at top level,
/// keyed by its exact path string. It exists purely as a test double for
/// exec/ls (spec.md section 6).
type MemFS struct {
	files []memFile
}

/// NewMemFS constructs an empty in-memory filesystem.
func NewMemFS() *MemFS {
	return &MemFS{}
}

/// Put installs path with the given contents, overwriting any existing
/// file at that path.
func (m *MemFS) Put(path string, data []byte) {
	for i := range m.files {
		if m.files[i].path == path {
			m.files[i].data = data
			return
		}
	}
	m.files = append(m.files, memFile{path: path, data: data})
}

/// Find implements Filesystem.
func (m *MemFS) Find(path string) (Inode, defs.Err_t) {
	for i := range m.files {
		if m.files[i].path == path {
			return Inode(i), 0
		}
	}
	return 0, defs.ENOENT
}

/// Read implements Filesystem.
func (m *MemFS) Read(inode Inode) ([]byte, defs.Err_t) {
	if int(inode) < 0 || int(inode) >= len(m.files) {
		return nil, defs.ENOENT
	}
	return m.files[inode].data, 0
}

/// List implements Filesystem.
func (m *MemFS) List() ([]string, defs.Err_t) {
	paths := make([]string, len(m.files))
	for i := range m.files {
		paths[i] = m.files[i].path
	}
	return paths, 0
}
