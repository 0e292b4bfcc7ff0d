package simpleblog

import (
	"strings"
	"time"
)

// ContentState is the domain type for document lifecycle states.
type ContentState string

// Content state constants (typed).
const (
	ContentStateDeleted     ContentState = "deleted"
	ContentStateUnpublished ContentState = "unpublished"
	ContentStatePublished   ContentState = "published"
)

// Permission grants access to a class of operations.
type Permission string

// Permission constants (typed).
const (
	PermissionAdmin Permission = "admin"
	PermissionUser  Permission = "user"
)

// Default administrator record created when a backend bootstraps an empty
// credential store. The password is a documented bootstrap value, not a
// recommendation; the record carries RequiresPasswordChange so the first
// login forces a change.
const (
	DefaultAdminUsername = "admin"
	DefaultAdminEmail    = "admin@localhost"
	DefaultAdminPassword = "Password1"
)

// Header carries the identity and searchable metadata of one document.
// ID is assigned by the provider on first save and is immutable thereafter.
type Header struct {
	ID            string       `json:"id"`
	State         ContentState `json:"state"`
	Name          string       `json:"name,omitempty"`
	Description   string       `json:"description,omitempty"`
	Author        string       `json:"author,omitempty"`
	Tags          []string     `json:"tags,omitempty"`
	SEOTags       []string     `json:"seo_tags,omitempty"`
	PublishedDate *time.Time   `json:"published_date,omitempty"`
	UpdatedDate   time.Time    `json:"updated_date"`
}

// Copy returns a deep copy of the header.
func (h Header) Copy() Header {
	out := h
	out.Tags = append([]string(nil), h.Tags...)
	out.SEOTags = append([]string(nil), h.SEOTags...)
	if h.PublishedDate != nil {
		d := *h.PublishedDate
		out.PublishedDate = &d
	}
	return out
}

// Attachment is a named file belonging to one document. Content bytes are
// held only transiently during save/load; backends never keep them resident
// in the content index.
type Attachment struct {
	ID       string   `json:"id"`
	FileName string   `json:"file_name"`
	Title    string   `json:"title,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Content  []byte   `json:"-"`
}

// Copy returns a deep copy of the attachment, including content bytes.
func (a Attachment) Copy() Attachment {
	out := a
	out.Tags = append([]string(nil), a.Tags...)
	out.Content = append([]byte(nil), a.Content...)
	return out
}

// Document is the unit of save, load and delete: one header plus body
// content and zero or more attachments.
type Document struct {
	Header      Header       `json:"header"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Copy returns a deep copy of the document. A nil attachment list stays nil
// so that backends can distinguish "no attachments supplied" from "replace
// with none".
func (d *Document) Copy() *Document {
	if d == nil {
		return nil
	}
	out := &Document{
		Header:  d.Header.Copy(),
		Content: d.Content,
	}
	if d.Attachments != nil {
		out.Attachments = make([]Attachment, len(d.Attachments))
		for i, a := range d.Attachments {
			out.Attachments[i] = a.Copy()
		}
	}
	return out
}

// Login is one credential record in a store's credential set. Usernames are
// unique per store after normalization. Token and TokenExpiry are session
// bookkeeping owned by the auth manager; an empty token means no session.
type Login struct {
	ID                     string       `json:"id"`
	StoreID                string       `json:"store_id,omitempty"`
	Username               string       `json:"username"`
	Email                  string       `json:"email,omitempty"`
	PasswordHash           string       `json:"password_hash"`
	RequiresPasswordChange bool         `json:"requires_password_change"`
	Token                  string       `json:"token,omitempty"`
	TokenExpiry            time.Time    `json:"token_expiry,omitzero"`
	Permissions            []Permission `json:"permissions,omitempty"`
}

// Copy returns a deep copy of the login record.
func (l Login) Copy() Login {
	out := l
	out.Permissions = append([]Permission(nil), l.Permissions...)
	return out
}

// HasPermission reports whether the record's permission set contains p.
func (l Login) HasPermission(p Permission) bool {
	for _, have := range l.Permissions {
		if have == p {
			return true
		}
	}
	return false
}

// NormalizeUsername trims and lowercases a username for case-insensitive
// matching. All credential lookups go through this.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
