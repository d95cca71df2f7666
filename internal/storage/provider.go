// Package storage defines the file-system abstraction used for notebook
// documents and their archive.
package storage

// Provider is the interface for operations on a single flat directory.
type Provider interface {
	// Root returns the absolute path of the directory.
	Root() string
	// Path returns the absolute path of the named file. Names that are not
	// plain file names are rejected.
	Path(name string) (string, error)
	// List returns the names of regular files in the directory ending in ext,
	// sorted. A missing directory yields no names.
	List(ext string) ([]string, error)
	// Read returns the raw bytes of the named file.
	Read(name string) ([]byte, error)
	// Write atomically writes content to the named file.
	Write(name string, content []byte) error
	// Delete removes the named file.
	Delete(name string) error
}
