// Package fs implements simpleblog.StorageProvider on top of a directory
// tree. The content index and credential store are mirrored to JSON files
// with whole-file atomic replacement; attachment bytes live in one file per
// attachment and are only read on demand.
//
// Layout under the connection-string "path" property:
//
//	index.json                     headers and body text
//	users.json                     credential store
//	items/<id>.json                full document with attachment metadata
//	items/<id>/<attachment-id>.<ext>  raw attachment bytes
package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/tendant/simple-blog/pkg/simpleblog"
	"github.com/tendant/simple-blog/pkg/simpleblog/id"
	"github.com/tendant/simple-blog/pkg/simpleblog/store/memory"
)

const (
	indexFileName = "index.json"
	usersFileName = "users.json"
	itemsDirName  = "items"
)

// Provider implements simpleblog.StorageProvider with read/write-through
// persistence layered over the in-memory provider.
type Provider struct {
	mu   sync.Mutex
	mem  *memory.Provider
	root string

	itemExtra  map[string]map[string]json.RawMessage
	loginExtra map[string]map[string]json.RawMessage
	indexExtra map[string]json.RawMessage
	usersExtra map[string]json.RawMessage
}

var _ simpleblog.StorageProvider = (*Provider)(nil)

// New creates a file-backed provider rooted at the connection string's
// "path" property. The directory is not touched until Initialise.
func New(cs *simpleblog.ConnectionString) (*Provider, error) {
	root, err := cs.Property("path")
	if err != nil {
		return nil, err
	}
	if root == "" {
		return nil, fmt.Errorf("%w: property \"path\" is empty", simpleblog.ErrMalformedConnectionString)
	}
	return &Provider{
		mem:        memory.New(),
		root:       root,
		itemExtra:  make(map[string]map[string]json.RawMessage),
		loginExtra: make(map[string]map[string]json.RawMessage),
	}, nil
}

// Initialise bootstraps the store: credential store first (a store must
// always have at least one login), then the content index, then a reconcile
// pass that removes item and attachment files a crashed hard delete left
// dangling. Any failure wraps ErrNotInitialised.
func (p *Provider) Initialise(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.bootstrap(ctx); err != nil {
		return fmt.Errorf("%w: %v", simpleblog.ErrNotInitialised, err)
	}
	return nil
}

func (p *Provider) bootstrap(ctx context.Context) error {
	if err := os.MkdirAll(p.itemsDir(), 0o755); err != nil {
		return &simpleblog.PersistenceError{Op: "mkdir", Path: p.itemsDir(), Err: err}
	}

	usersExisted, err := p.loadUsers()
	if err != nil {
		return err
	}
	indexExisted, err := p.loadIndex()
	if err != nil {
		return err
	}

	// Seeds the default administrator when the users file was absent and
	// marks the index initialised.
	if err := p.mem.Initialise(ctx); err != nil {
		return err
	}

	if !usersExisted {
		if err := p.writeUsers(ctx); err != nil {
			return err
		}
	}
	if !indexExisted {
		if err := p.writeIndex(ctx); err != nil {
			return err
		}
	}

	return p.reconcileItems()
}

func (p *Provider) loadUsers() (existed bool, err error) {
	path := p.usersPath()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, &simpleblog.PersistenceError{Op: "load", Path: path, Err: err}
	}

	var file usersFile
	if err := json.Unmarshal(data, &file); err != nil {
		return true, &simpleblog.PersistenceError{Op: "load", Path: path, Err: err}
	}
	logins := make([]simpleblog.Login, 0, len(file.Users))
	for _, r := range file.Users {
		logins = append(logins, r.login)
		if r.extra != nil {
			p.loginExtra[simpleblog.NormalizeUsername(r.login.Username)] = r.extra
		}
	}
	p.usersExtra = file.extra
	p.mem.RestoreUsers(logins)
	return true, nil
}

func (p *Provider) loadIndex() (existed bool, err error) {
	path := p.indexPath()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, &simpleblog.PersistenceError{Op: "load", Path: path, Err: err}
	}

	var file indexFile
	if err := json.Unmarshal(data, &file); err != nil {
		return true, &simpleblog.PersistenceError{Op: "load", Path: path, Err: err}
	}
	docs := make([]simpleblog.Document, 0, len(file.Documents))
	for _, r := range file.Documents {
		docs = append(docs, r.doc)
	}
	p.indexExtra = file.extra
	p.mem.Restore(docs)
	return true, nil
}

// reconcileItems removes item files and attachment directories whose id no
// longer appears in the loaded index. This is the crash-recovery policy for
// the non-transactional hard-delete sequence.
func (p *Provider) reconcileItems() error {
	entries, err := os.ReadDir(p.itemsDir())
	if err != nil {
		return &simpleblog.PersistenceError{Op: "reconcile", Path: p.itemsDir(), Err: err}
	}
	for _, entry := range entries {
		name := entry.Name()
		docID := strings.TrimSuffix(name, ".json")
		if p.mem.Contains(docID) {
			continue
		}
		target := filepath.Join(p.itemsDir(), name)
		if err := os.RemoveAll(target); err != nil {
			return &simpleblog.PersistenceError{Op: "reconcile", Path: target, Err: err}
		}
	}
	return nil
}

// Content operations

func (p *Provider) Search(ctx context.Context, query simpleblog.Query) ([]simpleblog.Header, error) {
	return p.mem.Search(ctx, query)
}

func (p *Provider) GetListing(ctx context.Context) ([]simpleblog.Header, error) {
	return p.mem.GetListing(ctx)
}

func (p *Provider) Load(ctx context.Context, docID string) (*simpleblog.Document, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	memDoc, err := p.mem.Load(ctx, docID)
	if err != nil {
		return nil, err
	}
	// Soft deletes rewrite only the index, so the in-memory header is the
	// authority; the item file contributes body and attachment metadata.
	doc, err := p.readItem(docID)
	if err != nil {
		return nil, err
	}
	doc.Header = memDoc.Header
	return doc, nil
}

func (p *Provider) Save(ctx context.Context, doc *simpleblog.Document) (*simpleblog.Document, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	incoming := doc.Copy()

	// Attachments are additive by default: an update that supplies no
	// attachment list at all keeps the previously persisted list rather
	// than wiping it.
	if incoming.Attachments == nil && p.mem.Contains(incoming.Header.ID) {
		prev, err := p.readItem(incoming.Header.ID)
		if err != nil {
			return nil, err
		}
		incoming.Attachments = prev.Attachments
	}

	// Assign attachment ids up front and detach the raw bytes; they go to
	// their own files, never into the index.
	var pending []simpleblog.Attachment
	for i := range incoming.Attachments {
		att := &incoming.Attachments[i]
		if att.ID == "" {
			att.ID = id.New()
		}
		if len(att.Content) > 0 {
			pending = append(pending, att.Copy())
			att.Content = nil
		}
	}

	saved, err := p.mem.Save(ctx, incoming)
	if err != nil {
		return nil, err
	}

	for _, att := range pending {
		if err := p.writeAttachment(saved.Header.ID, att); err != nil {
			return nil, err
		}
	}
	if err := p.writeItem(saved); err != nil {
		return nil, err
	}
	if err := p.pruneAttachmentFiles(saved.Header.ID, saved.Attachments); err != nil {
		return nil, err
	}
	if err := p.writeIndex(ctx); err != nil {
		return nil, err
	}
	return saved, nil
}

// pruneAttachmentFiles removes byte files under the document's attachment
// directory that no saved attachment refers to, mirroring what DeleteFile
// does for a single removal.
func (p *Provider) pruneAttachmentFiles(docID string, keep []simpleblog.Attachment) error {
	dir := p.attachmentDir(docID)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return &simpleblog.PersistenceError{Op: "remove", Path: dir, Err: err}
	}

	kept := make(map[string]bool, len(keep))
	for _, att := range keep {
		kept[filepath.Base(p.attachmentPath(docID, att))] = true
	}
	for _, entry := range entries {
		if kept[entry.Name()] {
			continue
		}
		target := filepath.Join(dir, entry.Name())
		if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
			return &simpleblog.PersistenceError{Op: "remove", Path: target, Err: err}
		}
	}
	return nil
}

func (p *Provider) Delete(ctx context.Context, ids []string, permanent bool) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Capture attachment state before mutating anything: once the index
	// entry is gone the item file is the only record of what to remove.
	var doomed []string
	if permanent {
		for _, docID := range ids {
			if p.mem.Contains(docID) {
				doomed = append(doomed, docID)
			}
		}
	}

	matched, err := p.mem.Delete(ctx, ids, permanent)
	if err != nil {
		return false, err
	}

	for _, docID := range doomed {
		itemPath := p.itemPath(docID)
		if err := os.Remove(itemPath); err != nil && !os.IsNotExist(err) {
			return matched, &simpleblog.PersistenceError{Op: "remove", Path: itemPath, Err: err}
		}
		attDir := p.attachmentDir(docID)
		if err := os.RemoveAll(attDir); err != nil {
			return matched, &simpleblog.PersistenceError{Op: "remove", Path: attDir, Err: err}
		}
		delete(p.itemExtra, docID)
	}

	if matched {
		if err := p.writeIndex(ctx); err != nil {
			return matched, err
		}
	}
	return matched, nil
}

// Attachment operations

func (p *Provider) SaveFile(ctx context.Context, documentID string, att simpleblog.Attachment) (*simpleblog.Attachment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.mem.Contains(documentID) {
		return nil, simpleblog.ErrDocumentNotFound
	}

	saved := att.Copy()
	if saved.ID == "" {
		saved.ID = id.New()
	}
	if err := p.writeAttachment(documentID, saved); err != nil {
		return nil, err
	}

	meta := saved.Copy()
	meta.Content = nil
	if _, err := p.mem.SaveFile(ctx, documentID, meta); err != nil {
		return nil, err
	}

	doc, err := p.readItem(documentID)
	if err != nil {
		return nil, err
	}
	upsertAttachment(doc, meta)
	if err := p.writeItem(doc); err != nil {
		return nil, err
	}
	return &saved, nil
}

func (p *Provider) LoadFile(ctx context.Context, documentID string, att simpleblog.Attachment) (*simpleblog.Attachment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.mem.Contains(documentID) {
		return nil, simpleblog.ErrDocumentNotFound
	}
	doc, err := p.readItem(documentID)
	if err != nil {
		return nil, err
	}
	meta, ok := findAttachment(doc, att)
	if !ok {
		return nil, simpleblog.ErrAttachmentNotFound
	}

	path := p.attachmentPath(documentID, meta)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &simpleblog.PersistenceError{Op: "load", Path: path, Err: err}
	}
	loaded := meta.Copy()
	loaded.Content = data
	return &loaded, nil
}

func (p *Provider) DeleteFile(ctx context.Context, documentID string, att simpleblog.Attachment) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.mem.Contains(documentID) {
		return false, nil
	}
	doc, err := p.readItem(documentID)
	if err != nil {
		return false, err
	}
	meta, ok := findAttachment(doc, att)
	if !ok {
		return false, nil
	}

	path := p.attachmentPath(documentID, meta)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return false, &simpleblog.PersistenceError{Op: "remove", Path: path, Err: err}
	}
	if _, err := p.mem.DeleteFile(ctx, documentID, meta); err != nil {
		return false, err
	}
	removeAttachment(doc, meta.ID)
	if err := p.writeItem(doc); err != nil {
		return false, err
	}
	return true, nil
}

// Credential operations

func (p *Provider) AuthenticateUser(ctx context.Context, username, password string) (*simpleblog.Login, bool) {
	return p.mem.AuthenticateUser(ctx, username, password)
}

func (p *Provider) ChangePassword(ctx context.Context, username, oldPassword, newPassword, confirmPassword string) (*simpleblog.Login, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	updated, err := p.mem.ChangePassword(ctx, username, oldPassword, newPassword, confirmPassword)
	if err != nil || updated == nil {
		return nil, err
	}
	if err := p.writeUsers(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}

func (p *Provider) Users(ctx context.Context) ([]simpleblog.Login, error) {
	return p.mem.Users(ctx)
}

func (p *Provider) UserByToken(ctx context.Context, token string) (*simpleblog.Login, bool) {
	return p.mem.UserByToken(ctx, token)
}

func (p *Provider) PutUser(ctx context.Context, login simpleblog.Login) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.mem.PutUser(ctx, login); err != nil {
		return err
	}
	return p.writeUsers(ctx)
}

func (p *Provider) RemoveUser(ctx context.Context, username string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	removed, err := p.mem.RemoveUser(ctx, username)
	if err != nil || !removed {
		return removed, err
	}
	delete(p.loginExtra, simpleblog.NormalizeUsername(username))
	return true, p.writeUsers(ctx)
}

// Paths

func (p *Provider) indexPath() string { return filepath.Join(p.root, indexFileName) }
func (p *Provider) usersPath() string { return filepath.Join(p.root, usersFileName) }
func (p *Provider) itemsDir() string  { return filepath.Join(p.root, itemsDirName) }

func (p *Provider) itemPath(docID string) string {
	return filepath.Join(p.itemsDir(), docID+".json")
}

func (p *Provider) attachmentDir(docID string) string {
	return filepath.Join(p.itemsDir(), docID)
}

func (p *Provider) attachmentPath(docID string, att simpleblog.Attachment) string {
	ext := strings.ToLower(filepath.Ext(att.FileName))
	return filepath.Join(p.attachmentDir(docID), att.ID+ext)
}

// File I/O

func (p *Provider) readItem(docID string) (*simpleblog.Document, error) {
	path := p.itemPath(docID)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &simpleblog.PersistenceError{Op: "load", Path: path, Err: err}
	}
	var r documentRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, &simpleblog.PersistenceError{Op: "load", Path: path, Err: err}
	}
	if r.extra != nil {
		p.itemExtra[docID] = r.extra
	}
	return &r.doc, nil
}

func (p *Provider) writeItem(doc *simpleblog.Document) error {
	docID := doc.Header.ID
	data, err := json.Marshal(documentRecord{doc: *doc.Copy(), extra: p.itemExtra[docID]})
	if err != nil {
		return &simpleblog.PersistenceError{Op: "save", Path: p.itemPath(docID), Err: err}
	}
	if err := writeFileAtomic(p.itemPath(docID), data); err != nil {
		return &simpleblog.PersistenceError{Op: "save", Path: p.itemPath(docID), Err: err}
	}
	return nil
}

func (p *Provider) writeAttachment(docID string, att simpleblog.Attachment) error {
	dir := p.attachmentDir(docID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &simpleblog.PersistenceError{Op: "save", Path: dir, Err: err}
	}
	path := p.attachmentPath(docID, att)
	if err := writeFileAtomic(path, att.Content); err != nil {
		return &simpleblog.PersistenceError{Op: "save", Path: path, Err: err}
	}
	return nil
}

// writeIndex rewrites the whole index file from the in-memory state. Only
// headers and body text are serialized; attachment metadata stays in the
// item files.
func (p *Provider) writeIndex(ctx context.Context) error {
	docs := p.mem.Snapshot(ctx)
	records := make([]documentRecord, 0, len(docs))
	for _, doc := range docs {
		doc.Attachments = nil
		records = append(records, documentRecord{doc: doc, extra: nil})
	}
	data, err := json.Marshal(indexFile{Documents: records, extra: p.indexExtra})
	if err != nil {
		return &simpleblog.PersistenceError{Op: "save", Path: p.indexPath(), Err: err}
	}
	if err := writeFileAtomic(p.indexPath(), data); err != nil {
		return &simpleblog.PersistenceError{Op: "save", Path: p.indexPath(), Err: err}
	}
	return nil
}

func (p *Provider) writeUsers(ctx context.Context) error {
	logins, err := p.mem.Users(ctx)
	if err != nil {
		return err
	}
	sort.Slice(logins, func(i, j int) bool {
		return simpleblog.NormalizeUsername(logins[i].Username) < simpleblog.NormalizeUsername(logins[j].Username)
	})
	records := make([]loginRecord, 0, len(logins))
	for _, login := range logins {
		records = append(records, loginRecord{
			login: login,
			extra: p.loginExtra[simpleblog.NormalizeUsername(login.Username)],
		})
	}
	data, err := json.Marshal(usersFile{Users: records, extra: p.usersExtra})
	if err != nil {
		return &simpleblog.PersistenceError{Op: "save", Path: p.usersPath(), Err: err}
	}
	if err := writeFileAtomic(p.usersPath(), data); err != nil {
		return &simpleblog.PersistenceError{Op: "save", Path: p.usersPath(), Err: err}
	}
	return nil
}

// Attachment list helpers shared with the read paths.

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
