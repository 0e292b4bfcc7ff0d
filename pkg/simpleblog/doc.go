// Package simpleblog provides a pluggable storage core for blog-style
// content: structured documents with searchable header metadata, body text
// and file attachments, plus the credential store and password operations
// that sit on top of the same backend.
//
// The package defines the data model, the StorageProvider contract and the
// search/filter semantics every backend must honour. Concrete backends live
// in the store/ subpackages (memory, fs, sqlite); session handling lives in
// the auth subpackage. Backends are constructed from a ConnectionString and
// resolved through the registry in the config subpackage.
package simpleblog
