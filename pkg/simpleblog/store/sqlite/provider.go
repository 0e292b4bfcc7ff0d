// Package sqlite implements simpleblog.StorageProvider on top of a SQLite
// database file. Documents, attachments and credential records are written
// through to their own tables; the in-memory provider carries the contract
// semantics and is rebuilt from the database on Initialise. Attachment
// bytes are stored as blobs and only read on demand.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tendant/simple-blog/pkg/simpleblog"
	"github.com/tendant/simple-blog/pkg/simpleblog/id"
	"github.com/tendant/simple-blog/pkg/simpleblog/store/memory"
)

// Provider implements simpleblog.StorageProvider backed by SQLite.
type Provider struct {
	mu   sync.Mutex
	mem  *memory.Provider
	path string
	db   *sql.DB
}

var _ simpleblog.StorageProvider = (*Provider)(nil)

// New creates a SQLite-backed provider using the connection string's "path"
// property as the database file. The database is not opened until
// Initialise.
func New(cs *simpleblog.ConnectionString) (*Provider, error) {
	path, err := cs.Property("path")
	if err != nil {
		return nil, err
	}
	return &Provider{mem: memory.New(), path: path}, nil
}

// Close closes the underlying database.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

// Initialise opens the database, creates the schema, loads the credential
// store and the content index into memory, and seeds the default
// administrator when the users table is empty. Any failure wraps
// ErrNotInitialised.
func (p *Provider) Initialise(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.bootstrap(ctx); err != nil {
		return fmt.Errorf("%w: %v", simpleblog.ErrNotInitialised, err)
	}
	return nil
}

func (p *Provider) bootstrap(ctx context.Context) error {
	// DSN parameters apply to every pooled connection; a PRAGMA statement
	// would only configure the one connection it happens to run on.
	db, err := sql.Open("sqlite3", p.path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return &simpleblog.PersistenceError{Op: "open", Path: p.path, Err: err}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return &simpleblog.PersistenceError{Op: "init", Path: p.path, Err: err}
	}
	p.db = db

	users, err := p.loadUsers(ctx)
	if err != nil {
		return err
	}
	p.mem.RestoreUsers(users)

	docs, err := p.loadDocuments(ctx)
	if err != nil {
		return err
	}
	p.mem.Restore(docs)

	if err := p.mem.Initialise(ctx); err != nil {
		return err
	}

	if len(users) == 0 {
		seeded, err := p.mem.Users(ctx)
		if err != nil {
			return err
		}
		for _, login := range seeded {
			if err := p.upsertUser(ctx, login); err != nil {
				return err
			}
		}
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	state TEXT NOT NULL,
	name TEXT,
	description TEXT,
	author TEXT,
	tags TEXT,
	seo_tags TEXT,
	published_at TIMESTAMP,
	updated_at TIMESTAMP NOT NULL,
	content TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS attachments (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	file_name TEXT NOT NULL,
	title TEXT,
	tags TEXT,
	content BLOB
);

CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	email TEXT,
	password_hash TEXT NOT NULL,
	requires_password_change INTEGER NOT NULL DEFAULT 0,
	token TEXT,
	token_expiry TIMESTAMP,
	permissions TEXT
);

CREATE INDEX IF NOT EXISTS idx_documents_state ON documents(state);
CREATE INDEX IF NOT EXISTS idx_attachments_document ON attachments(document_id);
`

// Content operations

func (p *Provider) Search(ctx context.Context, query simpleblog.Query) ([]simpleblog.Header, error) {
	return p.mem.Search(ctx, query)
}

func (p *Provider) GetListing(ctx context.Context) ([]simpleblog.Header, error) {
	return p.mem.GetListing(ctx)
}

func (p *Provider) Load(ctx context.Context, docID string) (*simpleblog.Document, error) {
	return p.mem.Load(ctx, docID)
}

func (p *Provider) Save(ctx context.Context, doc *simpleblog.Document) (*simpleblog.Document, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	incoming := doc.Copy()

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
	if err := p.upsertDocument(ctx, saved); err != nil {
		return nil, err
	}
	for _, att := range saved.Attachments {
		if err := p.upsertAttachmentMeta(ctx, saved.Header.ID, att); err != nil {
			return nil, err
		}
	}
	if err := p.pruneAttachments(ctx, saved.Header.ID, saved.Attachments); err != nil {
		return nil, err
	}
	for _, att := range pending {
		if err := p.writeAttachmentContent(ctx, att.ID, att.Content); err != nil {
			return nil, err
		}
	}
	return saved, nil
}

func (p *Provider) Delete(ctx context.Context, ids []string, permanent bool) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var present []string
	for _, docID := range ids {
		if p.mem.Contains(docID) {
			present = append(present, docID)
		}
	}

	matched, err := p.mem.Delete(ctx, ids, permanent)
	if err != nil {
		return false, err
	}

	for _, docID := range present {
		if permanent {
			if _, err := p.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", docID); err != nil {
				return matched, &simpleblog.PersistenceError{Op: "remove", Path: p.path, Err: err}
			}
		} else {
			if _, err := p.db.ExecContext(ctx, "UPDATE documents SET state = ? WHERE id = ?",
				string(simpleblog.ContentStateDeleted), docID); err != nil {
				return matched, &simpleblog.PersistenceError{Op: "save", Path: p.path, Err: err}
			}
		}
	}
	return matched, nil
}

// Attachment operations

func (p *Provider) SaveFile(ctx context.Context, documentID string, att simpleblog.Attachment) (*simpleblog.Attachment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	content := append([]byte(nil), att.Content...)
	meta := att.Copy()
	meta.Content = nil

	saved, err := p.mem.SaveFile(ctx, documentID, meta)
	if err != nil {
		return nil, err
	}
	if err := p.upsertAttachmentMeta(ctx, documentID, *saved); err != nil {
		return nil, err
	}
	if err := p.writeAttachmentContent(ctx, saved.ID, content); err != nil {
		return nil, err
	}
	out := saved.Copy()
	out.Content = content
	return &out, nil
}

func (p *Provider) LoadFile(ctx context.Context, documentID string, att simpleblog.Attachment) (*simpleblog.Attachment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	meta, err := p.mem.LoadFile(ctx, documentID, att)
	if err != nil {
		return nil, err
	}

	var content []byte
	err = p.db.QueryRowContext(ctx, "SELECT content FROM attachments WHERE id = ?", meta.ID).Scan(&content)
	if err == sql.ErrNoRows {
		return nil, simpleblog.ErrAttachmentNotFound
	}
	if err != nil {
		return nil, &simpleblog.PersistenceError{Op: "load", Path: p.path, Err: err}
	}
	loaded := meta.Copy()
	loaded.Content = content
	return &loaded, nil
}

func (p *Provider) DeleteFile(ctx context.Context, documentID string, att simpleblog.Attachment) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	meta, err := p.mem.LoadFile(ctx, documentID, att)
	if err != nil {
		return false, nil
	}
	removed, err := p.mem.DeleteFile(ctx, documentID, *meta)
	if err != nil || !removed {
		return removed, err
	}
	if _, err := p.db.ExecContext(ctx, "DELETE FROM attachments WHERE id = ?", meta.ID); err != nil {
		return true, &simpleblog.PersistenceError{Op: "remove", Path: p.path, Err: err}
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
	if err := p.upsertUser(ctx, *updated); err != nil {
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
	stored, ok := findUser(ctx, p.mem, login.Username)
	if !ok {
		return nil
	}
	return p.upsertUser(ctx, stored)
}

func (p *Provider) RemoveUser(ctx context.Context, username string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	removed, err := p.mem.RemoveUser(ctx, username)
	if err != nil || !removed {
		return removed, err
	}
	if _, err := p.db.ExecContext(ctx, "DELETE FROM users WHERE username = ?",
		simpleblog.NormalizeUsername(username)); err != nil {
		return true, &simpleblog.PersistenceError{Op: "remove", Path: p.path, Err: err}
	}
	return true, nil
}

func findUser(ctx context.Context, mem *memory.Provider, username string) (simpleblog.Login, bool) {
	users, err := mem.Users(ctx)
	if err != nil {
		return simpleblog.Login{}, false
	}
	key := simpleblog.NormalizeUsername(username)
	for _, u := range users {
		if simpleblog.NormalizeUsername(u.Username) == key {
			return u, true
		}
	}
	return simpleblog.Login{}, false
}

// Rows

func (p *Provider) loadDocuments(ctx context.Context) ([]simpleblog.Document, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, state, name, description, author, tags, seo_tags,
		       published_at, updated_at, content
		FROM documents ORDER BY rowid`)
	if err != nil {
		return nil, &simpleblog.PersistenceError{Op: "load", Path: p.path, Err: err}
	}
	defer rows.Close()

	byID := make(map[string]*simpleblog.Document)
	var docs []simpleblog.Document
	for rows.Next() {
		var (
			doc       simpleblog.Document
			state     string
			tags      string
			seoTags   string
			published sql.NullTime
		)
		if err := rows.Scan(&doc.Header.ID, &state, &doc.Header.Name, &doc.Header.Description,
			&doc.Header.Author, &tags, &seoTags, &published, &doc.Header.UpdatedDate, &doc.Content); err != nil {
			return nil, &simpleblog.PersistenceError{Op: "load", Path: p.path, Err: err}
		}
		doc.Header.State = simpleblog.ContentState(state)
		doc.Header.Tags = decodeStrings(tags)
		doc.Header.SEOTags = decodeStrings(seoTags)
		if published.Valid {
			t := published.Time
			doc.Header.PublishedDate = &t
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, &simpleblog.PersistenceError{Op: "load", Path: p.path, Err: err}
	}
	for i := range docs {
		byID[docs[i].Header.ID] = &docs[i]
	}

	if err := p.loadAttachmentMeta(ctx, byID); err != nil {
		return nil, err
	}
	return docs, nil
}

func (p *Provider) loadAttachmentMeta(ctx context.Context, byID map[string]*simpleblog.Document) error {
	rows, err := p.db.QueryContext(ctx,
		"SELECT id, document_id, file_name, title, tags FROM attachments ORDER BY rowid")
	if err != nil {
		return &simpleblog.PersistenceError{Op: "load", Path: p.path, Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var att simpleblog.Attachment
		var docID, tags string
		if err := rows.Scan(&att.ID, &docID, &att.FileName, &att.Title, &tags); err != nil {
			return &simpleblog.PersistenceError{Op: "load", Path: p.path, Err: err}
		}
		att.Tags = decodeStrings(tags)
		if doc, ok := byID[docID]; ok {
			doc.Attachments = append(doc.Attachments, att)
		}
	}
	return rows.Err()
}

func (p *Provider) loadUsers(ctx context.Context) ([]simpleblog.Login, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, username, email, password_hash, requires_password_change,
		       token, token_expiry, permissions
		FROM users`)
	if err != nil {
		return nil, &simpleblog.PersistenceError{Op: "load", Path: p.path, Err: err}
	}
	defer rows.Close()

	var users []simpleblog.Login
	for rows.Next() {
		var (
			login       simpleblog.Login
			token       sql.NullString
			expiry      sql.NullTime
			permissions string
		)
		if err := rows.Scan(&login.ID, &login.Username, &login.Email, &login.PasswordHash,
			&login.RequiresPasswordChange, &token, &expiry, &permissions); err != nil {
			return nil, &simpleblog.PersistenceError{Op: "load", Path: p.path, Err: err}
		}
		login.Token = token.String
		if expiry.Valid {
			login.TokenExpiry = expiry.Time
		}
		login.Permissions = decodePermissions(permissions)
		users = append(users, login)
	}
	return users, rows.Err()
}

func (p *Provider) upsertDocument(ctx context.Context, doc *simpleblog.Document) error {
	var published interface{}
	if doc.Header.PublishedDate != nil {
		published = *doc.Header.PublishedDate
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO documents (id, state, name, description, author, tags, seo_tags,
		                       published_at, updated_at, content)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			name = excluded.name,
			description = excluded.description,
			author = excluded.author,
			tags = excluded.tags,
			seo_tags = excluded.seo_tags,
			published_at = excluded.published_at,
			updated_at = excluded.updated_at,
			content = excluded.content`,
		doc.Header.ID, string(doc.Header.State), doc.Header.Name, doc.Header.Description,
		doc.Header.Author, encodeStrings(doc.Header.Tags), encodeStrings(doc.Header.SEOTags),
		published, doc.Header.UpdatedDate, doc.Content)
	if err != nil {
		return &simpleblog.PersistenceError{Op: "save", Path: p.path, Err: err}
	}
	return nil
}

// upsertAttachmentMeta writes attachment metadata without touching stored
// content bytes.
func (p *Provider) upsertAttachmentMeta(ctx context.Context, docID string, att simpleblog.Attachment) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO attachments (id, document_id, file_name, title, tags)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			file_name = excluded.file_name,
			title = excluded.title,
			tags = excluded.tags`,
		att.ID, docID, att.FileName, att.Title, encodeStrings(att.Tags))
	if err != nil {
		return &simpleblog.PersistenceError{Op: "save", Path: p.path, Err: err}
	}
	return nil
}

// pruneAttachments deletes the document's attachment rows whose id is no
// longer on the saved list, so a replaced list cannot resurface on the next
// Initialise.
func (p *Provider) pruneAttachments(ctx context.Context, docID string, keep []simpleblog.Attachment) error {
	query := "DELETE FROM attachments WHERE document_id = ?"
	args := []interface{}{docID}
	if len(keep) > 0 {
		query += " AND id NOT IN (?" + strings.Repeat(",?", len(keep)-1) + ")"
		for _, att := range keep {
			args = append(args, att.ID)
		}
	}
	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return &simpleblog.PersistenceError{Op: "remove", Path: p.path, Err: err}
	}
	return nil
}

func (p *Provider) writeAttachmentContent(ctx context.Context, attID string, content []byte) error {
	_, err := p.db.ExecContext(ctx, "UPDATE attachments SET content = ? WHERE id = ?", content, attID)
	if err != nil {
		return &simpleblog.PersistenceError{Op: "save", Path: p.path, Err: err}
	}
	return nil
}

func (p *Provider) upsertUser(ctx context.Context, login simpleblog.Login) error {
	var expiry interface{}
	if !login.TokenExpiry.IsZero() {
		expiry = login.TokenExpiry
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, requires_password_change,
		                   token, token_expiry, permissions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			email = excluded.email,
			password_hash = excluded.password_hash,
			requires_password_change = excluded.requires_password_change,
			token = excluded.token,
			token_expiry = excluded.token_expiry,
			permissions = excluded.permissions`,
		login.ID, simpleblog.NormalizeUsername(login.Username), login.Email, login.PasswordHash,
		login.RequiresPasswordChange, login.Token, expiry, encodePermissions(login.Permissions))
	if err != nil {
		return &simpleblog.PersistenceError{Op: "save", Path: p.path, Err: err}
	}
	return nil
}

// Column codecs: string lists are stored as JSON arrays.

func encodeStrings(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func decodeStrings(raw string) []string {
	if raw == "" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil
	}
	if len(values) == 0 {
		return nil
	}
	return values
}

func encodePermissions(perms []simpleblog.Permission) string {
	values := make([]string, len(perms))
	for i, p := range perms {
		values[i] = string(p)
	}
	return encodeStrings(values)
}

func decodePermissions(raw string) []simpleblog.Permission {
	values := decodeStrings(raw)
	if values == nil {
		return nil
	}
	perms := make([]simpleblog.Permission, len(values))
	for i, v := range values {
		perms[i] = simpleblog.Permission(v)
	}
	return perms
}
