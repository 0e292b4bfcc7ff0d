package simpleblog

import "context"

// StorageProvider is the contract every storage backend implements. All
// operations act against one content index and one credential store; the
// behaviour specified here must be identical regardless of backend.
//
// Read operations that miss return the sentinel errors in errors.go, never
// a zero-value success. Credential checks never fail with an error: a bad
// username or password is reported as ok=false so callers cannot tell the
// two apart at the error level.
type StorageProvider interface {
	// Initialise performs backend-specific bootstrap: it must validate (or
	// create) the backing store and seed a default administrator when the
	// credential store is empty, then mark the index initialised. A failed
	// bootstrap wraps ErrNotInitialised.
	Initialise(ctx context.Context) error

	// Search returns copies of the headers matching query; see
	// Query.Matches for the filter semantics.
	Search(ctx context.Context, query Query) ([]Header, error)

	// GetListing returns copies of all headers regardless of state. It is
	// the full-index export path and bypasses the default search policy.
	GetListing(ctx context.Context) ([]Header, error)

	// Load returns a copy of the document with the given id, with
	// attachment metadata populated but attachment bytes absent.
	Load(ctx context.Context, id string) (*Document, error)

	// Save inserts doc under a freshly assigned id when its header id is
	// empty or unknown to the index; otherwise it copies the incoming
	// header, body and attachment metadata into the stored entry. The
	// stored entry is the single authority for an id: callers re-fetch by
	// id rather than retaining references. Save does not stamp
	// Header.UpdatedDate; that is the caller's contract.
	Save(ctx context.Context, doc *Document) (*Document, error)

	// Delete soft-deletes (permanent=false) or removes (permanent=true)
	// every document whose id appears in ids, reporting whether at least
	// one matched. Permanent deletion also removes attachment files.
	Delete(ctx context.Context, ids []string, permanent bool) (bool, error)

	// SaveFile persists one attachment's bytes for the given document and
	// returns the attachment with its id assigned.
	SaveFile(ctx context.Context, documentID string, att Attachment) (*Attachment, error)

	// LoadFile returns the attachment with its content bytes populated.
	LoadFile(ctx context.Context, documentID string, att Attachment) (*Attachment, error)

	// DeleteFile removes one attachment and reports whether it existed.
	DeleteFile(ctx context.Context, documentID string, att Attachment) (bool, error)

	// AuthenticateUser verifies a username/password pair. The username is
	// matched trimmed and case-insensitively. On success the full record
	// is returned; on failure ok is false and no error is raised.
	AuthenticateUser(ctx context.Context, username, password string) (*Login, bool)

	// ChangePassword re-hashes and persists a new password after verifying
	// the old one. Rejected input (mismatched or empty new password, bad
	// credentials) returns (nil, nil); an error is only raised for
	// persistence faults. On success RequiresPasswordChange is cleared.
	ChangePassword(ctx context.Context, username, oldPassword, newPassword, confirmPassword string) (*Login, error)

	// Users returns copies of every credential record in the store.
	Users(ctx context.Context) ([]Login, error)

	// UserByToken returns the record whose current session token matches.
	UserByToken(ctx context.Context, token string) (*Login, bool)

	// PutUser inserts or replaces the record stored under the normalized
	// username.
	PutUser(ctx context.Context, login Login) error

	// RemoveUser deletes the record stored under the normalized username
	// and reports whether it existed.
	RemoveUser(ctx context.Context, username string) (bool, error)
}
