// Package memory implements simpleblog.StorageProvider with purely
// in-memory state. It is the reference implementation of the contract and
// the base the durable backends build on.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/tendant/simple-blog/pkg/simpleblog"
	"github.com/tendant/simple-blog/pkg/simpleblog/hash"
	"github.com/tendant/simple-blog/pkg/simpleblog/id"
)

// Provider implements simpleblog.StorageProvider using in-memory storage.
type Provider struct {
	mu    sync.RWMutex
	index *simpleblog.ContentIndex
	users map[string]simpleblog.Login
	files map[string]map[string][]byte // document id -> attachment id -> bytes
}

var _ simpleblog.StorageProvider = (*Provider)(nil)

// New creates a new in-memory provider. It is not usable until Initialise
// has been called.
func New() *Provider {
	return &Provider{
		index: simpleblog.NewContentIndex(),
		users: make(map[string]simpleblog.Login),
		files: make(map[string]map[string][]byte),
	}
}

// Initialise marks the index initialised and, when the credential store is
// empty, seeds the default administrator so a fresh store always has at
// least one login. There is no backing store to validate.
func (p *Provider) Initialise(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.users) == 0 {
		admin, err := defaultAdmin()
		if err != nil {
			return err
		}
		p.users[simpleblog.NormalizeUsername(admin.Username)] = admin
	}
	p.index.MarkInitialised()
	return nil
}

func defaultAdmin() (simpleblog.Login, error) {
	hashed, err := hash.Hash(simpleblog.DefaultAdminPassword)
	if err != nil {
		return simpleblog.Login{}, err
	}
	return simpleblog.Login{
		ID:                     id.New(),
		Username:               simpleblog.DefaultAdminUsername,
		Email:                  simpleblog.DefaultAdminEmail,
		PasswordHash:           hashed,
		RequiresPasswordChange: true,
		Permissions:            []simpleblog.Permission{simpleblog.PermissionAdmin, simpleblog.PermissionUser},
	}, nil
}

// Content operations

func (p *Provider) Search(ctx context.Context, query simpleblog.Query) ([]simpleblog.Header, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var result []simpleblog.Header
	for _, doc := range p.index.All() {
		if query.Matches(doc.Header) {
			result = append(result, doc.Header.Copy())
		}
	}
	return result, nil
}

func (p *Provider) GetListing(ctx context.Context) ([]simpleblog.Header, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]simpleblog.Header, 0, p.index.Len())
	for _, doc := range p.index.All() {
		result = append(result, doc.Header.Copy())
	}
	return result, nil
}

func (p *Provider) Load(ctx context.Context, docID string) (*simpleblog.Document, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	doc, ok := p.index.Get(docID)
	if !ok {
		return nil, simpleblog.ErrDocumentNotFound
	}
	return doc.Copy(), nil
}

func (p *Provider) Save(ctx context.Context, doc *simpleblog.Document) (*simpleblog.Document, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saveLocked(doc)
}

// saveLocked implements the insert-or-copy-in-place contract. Attachment
// bytes are moved into the file map and never kept on the indexed entry.
func (p *Provider) saveLocked(doc *simpleblog.Document) (*simpleblog.Document, error) {
	incoming := doc.Copy()

	stored, exists := p.index.Get(incoming.Header.ID)
	if !exists {
		incoming.Header.ID = id.New()
		p.stashAttachmentBytes(incoming)
		p.index.Put(incoming)
		return incoming.Copy(), nil
	}

	stored.Header = incoming.Header
	stored.Content = incoming.Content
	if incoming.Attachments != nil {
		p.stashAttachmentBytes(incoming)
		stored.Attachments = incoming.Attachments
	}
	return stored.Copy(), nil
}

// stashAttachmentBytes assigns ids to new attachments and moves any content
// bytes out of the document into the file map.
func (p *Provider) stashAttachmentBytes(doc *simpleblog.Document) {
	for i := range doc.Attachments {
		att := &doc.Attachments[i]
		if att.ID == "" {
			att.ID = id.New()
		}
		if len(att.Content) > 0 {
			byDoc := p.files[doc.Header.ID]
			if byDoc == nil {
				byDoc = make(map[string][]byte)
				p.files[doc.Header.ID] = byDoc
			}
			byDoc[att.ID] = att.Content
			att.Content = nil
		}
	}
}

func (p *Provider) Delete(ctx context.Context, ids []string, permanent bool) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deleteLocked(ids, permanent), nil
}

func (p *Provider) deleteLocked(ids []string, permanent bool) bool {
	matched := false
	for _, docID := range ids {
		doc, ok := p.index.Get(docID)
		if !ok {
			continue
		}
		matched = true
		if permanent {
			p.index.Remove(docID)
			delete(p.files, docID)
		} else {
			doc.Header.State = simpleblog.ContentStateDeleted
		}
	}
	return matched
}

// Attachment operations

func (p *Provider) SaveFile(ctx context.Context, documentID string, att simpleblog.Attachment) (*simpleblog.Attachment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	doc, ok := p.index.Get(documentID)
	if !ok {
		return nil, simpleblog.ErrDocumentNotFound
	}

	saved := att.Copy()
	if saved.ID == "" {
		saved.ID = id.New()
	}

	byDoc := p.files[documentID]
	if byDoc == nil {
		byDoc = make(map[string][]byte)
		p.files[documentID] = byDoc
	}
	byDoc[saved.ID] = append([]byte(nil), saved.Content...)

	meta := saved.Copy()
	meta.Content = nil
	upsertAttachment(doc, meta)

	return &saved, nil
}

func (p *Provider) LoadFile(ctx context.Context, documentID string, att simpleblog.Attachment) (*simpleblog.Attachment, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	doc, ok := p.index.Get(documentID)
	if !ok {
		return nil, simpleblog.ErrDocumentNotFound
	}
	meta, ok := findAttachment(doc, att)
	if !ok {
		return nil, simpleblog.ErrAttachmentNotFound
	}

	loaded := meta.Copy()
	if bytes, ok := p.files[documentID][meta.ID]; ok {
		loaded.Content = append([]byte(nil), bytes...)
	}
	return &loaded, nil
}

func (p *Provider) DeleteFile(ctx context.Context, documentID string, att simpleblog.Attachment) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	doc, ok := p.index.Get(documentID)
	if !ok {
		return false, nil
	}
	meta, ok := findAttachment(doc, att)
	if !ok {
		return false, nil
	}

	delete(p.files[documentID], meta.ID)
	removeAttachment(doc, meta.ID)
	return true, nil
}

// findAttachment locates an attachment by id, falling back to the file name
// when no id was supplied.
func findAttachment(doc *simpleblog.Document, att simpleblog.Attachment) (simpleblog.Attachment, bool) {
	for _, existing := range doc.Attachments {
		if att.ID != "" && existing.ID == att.ID {
			return existing, true
		}
		if att.ID == "" && att.FileName != "" && existing.FileName == att.FileName {
			return existing, true
		}
	}
	return simpleblog.Attachment{}, false
}

func upsertAttachment(doc *simpleblog.Document, meta simpleblog.Attachment) {
	for i, existing := range doc.Attachments {
		if existing.ID == meta.ID {
			doc.Attachments[i] = meta
			return
		}
	}
	doc.Attachments = append(doc.Attachments, meta)
}

func removeAttachment(doc *simpleblog.Document, attID string) {
	for i, existing := range doc.Attachments {
		if existing.ID == attID {
			doc.Attachments = append(doc.Attachments[:i], doc.Attachments[i+1:]...)
			return
		}
	}
}

// Credential operations

func (p *Provider) AuthenticateUser(ctx context.Context, username, password string) (*simpleblog.Login, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.authenticateLocked(username, password)
}

func (p *Provider) authenticateLocked(username, password string) (*simpleblog.Login, bool) {
	user, ok := p.users[simpleblog.NormalizeUsername(username)]
	if !ok {
		return nil, false
	}
	if !hash.Verify(user.PasswordHash, password) {
		return nil, false
	}
	found := user.Copy()
	return &found, true
}

func (p *Provider) ChangePassword(ctx context.Context, username, oldPassword, newPassword, confirmPassword string) (*simpleblog.Login, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.changePasswordLocked(username, oldPassword, newPassword, confirmPassword)
}

func (p *Provider) changePasswordLocked(username, oldPassword, newPassword, confirmPassword string) (*simpleblog.Login, error) {
	newTrimmed := strings.TrimSpace(newPassword)
	confirmTrimmed := strings.TrimSpace(confirmPassword)
	if newTrimmed == "" || !strings.EqualFold(newTrimmed, confirmTrimmed) {
		return nil, nil
	}
	if _, ok := p.authenticateLocked(username, oldPassword); !ok {
		return nil, nil
	}

	// Trimming applies to the match and empty checks only; the stored hash
	// covers the password exactly as supplied.
	key := simpleblog.NormalizeUsername(username)
	user := p.users[key]
	hashed, err := hash.Hash(newPassword)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = hashed
	user.RequiresPasswordChange = false
	p.users[key] = user

	updated := user.Copy()
	return &updated, nil
}

func (p *Provider) Users(ctx context.Context) ([]simpleblog.Login, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]simpleblog.Login, 0, len(p.users))
	for _, user := range p.users {
		result = append(result, user.Copy())
	}
	return result, nil
}

func (p *Provider) UserByToken(ctx context.Context, token string) (*simpleblog.Login, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if token == "" {
		return nil, false
	}
	for _, user := range p.users {
		if user.Token == token {
			found := user.Copy()
			return &found, true
		}
	}
	return nil, false
}

func (p *Provider) PutUser(ctx context.Context, login simpleblog.Login) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if login.ID == "" {
		login.ID = id.New()
	}
	p.users[simpleblog.NormalizeUsername(login.Username)] = login.Copy()
	return nil
}

func (p *Provider) RemoveUser(ctx context.Context, username string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := simpleblog.NormalizeUsername(username)
	if _, ok := p.users[key]; !ok {
		return false, nil
	}
	delete(p.users, key)
	return true, nil
}

// Restore hooks for durable backends

// Snapshot returns deep copies of every stored document in listing order,
// without attachment bytes. Durable backends use it to rewrite their index
// files.
func (p *Provider) Snapshot(ctx context.Context) []simpleblog.Document {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]simpleblog.Document, 0, p.index.Len())
	for _, doc := range p.index.All() {
		result = append(result, *doc.Copy())
	}
	return result
}

// Restore loads previously persisted documents into the index, preserving
// their ids. Documents without an id are skipped.
func (p *Provider) Restore(docs []simpleblog.Document) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range docs {
		doc := docs[i].Copy()
		if doc.Header.ID == "" {
			continue
		}
		p.index.Put(doc)
	}
}

// RestoreUsers loads previously persisted credential records.
func (p *Provider) RestoreUsers(users []simpleblog.Login) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, user := range users {
		p.users[simpleblog.NormalizeUsername(user.Username)] = user.Copy()
	}
}

// Contains reports whether the index holds a document with the given id.
func (p *Provider) Contains(docID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.index.Get(docID)
	return ok
}
