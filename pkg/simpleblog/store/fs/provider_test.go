package fs_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-blog/pkg/simpleblog"
	"github.com/tendant/simple-blog/pkg/simpleblog/store/fs"
)

func newProvider(t *testing.T, root string) *fs.Provider {
	t.Helper()
	cs, err := simpleblog.ParseConnectionString("path=" + root)
	require.NoError(t, err)
	p, err := fs.New(cs)
	require.NoError(t, err)
	require.NoError(t, p.Initialise(context.Background()))
	return p
}

func publishedDoc(name string) *simpleblog.Document {
	now := time.Now().UTC()
	return &simpleblog.Document{
		Header: simpleblog.Header{
			State:         simpleblog.ContentStatePublished,
			Name:          name,
			PublishedDate: &now,
			UpdatedDate:   now,
		},
		Content: "body of " + name,
	}
}

func TestNewRequiresPath(t *testing.T) {
	cs, err := simpleblog.ParseConnectionString("other=x")
	require.NoError(t, err)
	_, err = fs.New(cs)
	assert.ErrorIs(t, err, simpleblog.ErrPropertyNotFound)

	cs, err = simpleblog.ParseConnectionString("path=")
	require.NoError(t, err)
	_, err = fs.New(cs)
	assert.ErrorIs(t, err, simpleblog.ErrMalformedConnectionString)
}

func TestInitialiseCreatesLayoutAndDefaultAdmin(t *testing.T) {
	root := t.TempDir()
	p := newProvider(t, root)

	assert.FileExists(t, filepath.Join(root, "index.json"))
	assert.FileExists(t, filepath.Join(root, "users.json"))
	assert.DirExists(t, filepath.Join(root, "items"))

	user, ok := p.AuthenticateUser(context.Background(), simpleblog.DefaultAdminUsername, simpleblog.DefaultAdminPassword)
	require.True(t, ok)
	assert.True(t, user.RequiresPasswordChange)
}

func TestDocumentsSurviveRestart(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	p1 := newProvider(t, root)
	saved, err := p1.Save(ctx, publishedDoc("durable"))
	require.NoError(t, err)

	p2 := newProvider(t, root)
	loaded, err := p2.Load(ctx, saved.Header.ID)
	require.NoError(t, err)
	assert.Equal(t, "durable", loaded.Header.Name)
	assert.Equal(t, "body of durable", loaded.Content)
	assert.Equal(t, saved.Header.ID, loaded.Header.ID, "ids are stable across restarts")
}

func TestUsersSurviveRestart(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	p1 := newProvider(t, root)
	updated, err := p1.ChangePassword(ctx, "admin", simpleblog.DefaultAdminPassword, "newSecret9", "newSecret9")
	require.NoError(t, err)
	require.NotNil(t, updated)

	p2 := newProvider(t, root)
	_, ok := p2.AuthenticateUser(ctx, "admin", simpleblog.DefaultAdminPassword)
	assert.False(t, ok)
	user, ok := p2.AuthenticateUser(ctx, "admin", "newSecret9")
	require.True(t, ok)
	assert.False(t, user.RequiresPasswordChange)

	assert.Len(t, mustUsers(t, p2), 1, "restart does not reseed the default administrator")
}

func mustUsers(t *testing.T, p *fs.Provider) []simpleblog.Login {
	t.Helper()
	users, err := p.Users(context.Background())
	require.NoError(t, err)
	return users
}

func TestAttachmentLifecycleOnDisk(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	p := newProvider(t, root)

	doc := publishedDoc("host")
	doc.Attachments = []simpleblog.Attachment{{FileName: "cover.PNG", Content: []byte("png bytes")}}
	saved, err := p.Save(ctx, doc)
	require.NoError(t, err)
	require.Len(t, saved.Attachments, 1)
	att := saved.Attachments[0]
	require.NotEmpty(t, att.ID)
	assert.Empty(t, att.Content, "bytes never come back on the saved document")

	// Bytes land in their own file, extension lowercased.
	assert.FileExists(t, filepath.Join(root, "items", saved.Header.ID, att.ID+".png"))

	// Index and item files never carry the raw bytes.
	indexData, err := os.ReadFile(filepath.Join(root, "index.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(indexData), "png bytes")

	loaded, err := p.LoadFile(ctx, saved.Header.ID, simpleblog.Attachment{FileName: "cover.PNG"})
	require.NoError(t, err)
	assert.Equal(t, []byte("png bytes"), loaded.Content)

	removed, err := p.DeleteFile(ctx, saved.Header.ID, simpleblog.Attachment{ID: att.ID})
	require.NoError(t, err)
	assert.True(t, removed)
	assert.NoFileExists(t, filepath.Join(root, "items", saved.Header.ID, att.ID+".png"))
}

func TestAttachmentsAreAdditiveByDefault(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t, t.TempDir())

	doc := publishedDoc("host")
	doc.Attachments = []simpleblog.Attachment{{FileName: "a.txt", Content: []byte("a")}}
	saved, err := p.Save(ctx, doc)
	require.NoError(t, err)

	update := &simpleblog.Document{Header: saved.Header, Content: "edited"}
	updated, err := p.Save(ctx, update)
	require.NoError(t, err)
	assert.Len(t, updated.Attachments, 1, "an absent attachment list keeps what is on disk")

	update.Attachments = []simpleblog.Attachment{}
	replaced, err := p.Save(ctx, update)
	require.NoError(t, err)
	assert.Empty(t, replaced.Attachments)
}

func TestReplacedAttachmentFilesAreRemoved(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	p := newProvider(t, root)

	doc := publishedDoc("host")
	doc.Attachments = []simpleblog.Attachment{{FileName: "old.txt", Content: []byte("old")}}
	saved, err := p.Save(ctx, doc)
	require.NoError(t, err)
	require.Len(t, saved.Attachments, 1)
	oldPath := filepath.Join(root, "items", saved.Header.ID, saved.Attachments[0].ID+".txt")
	require.FileExists(t, oldPath)

	saved.Attachments = []simpleblog.Attachment{{FileName: "new.txt", Content: []byte("new")}}
	replaced, err := p.Save(ctx, saved)
	require.NoError(t, err)
	require.Len(t, replaced.Attachments, 1)

	assert.NoFileExists(t, oldPath, "a replaced attachment leaves no byte file behind")
	assert.FileExists(t, filepath.Join(root, "items", saved.Header.ID, replaced.Attachments[0].ID+".txt"))

	saved.Attachments = []simpleblog.Attachment{}
	_, err = p.Save(ctx, saved)
	require.NoError(t, err)
	entries, err := os.ReadDir(filepath.Join(root, "items", saved.Header.ID))
	require.NoError(t, err)
	assert.Empty(t, entries, "replacing with an empty list clears the attachment directory")
}

func TestHardDeleteRemovesFiles(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	p := newProvider(t, root)

	doc := publishedDoc("doomed")
	doc.Attachments = []simpleblog.Attachment{{FileName: "a.txt", Content: []byte("a")}}
	saved, err := p.Save(ctx, doc)
	require.NoError(t, err)

	matched, err := p.Delete(ctx, []string{saved.Header.ID}, true)
	require.NoError(t, err)
	assert.True(t, matched)

	assert.NoFileExists(t, filepath.Join(root, "items", saved.Header.ID+".json"))
	assert.NoDirExists(t, filepath.Join(root, "items", saved.Header.ID))

	_, err = p.Load(ctx, saved.Header.ID)
	assert.ErrorIs(t, err, simpleblog.ErrDocumentNotFound)
}

func TestSoftDeleteSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	p1 := newProvider(t, root)
	saved, err := p1.Save(ctx, publishedDoc("hidden"))
	require.NoError(t, err)
	_, err = p1.Delete(ctx, []string{saved.Header.ID}, false)
	require.NoError(t, err)

	p2 := newProvider(t, root)
	loaded, err := p2.Load(ctx, saved.Header.ID)
	require.NoError(t, err)
	assert.Equal(t, simpleblog.ContentStateDeleted, loaded.Header.State)

	result, err := p2.Search(ctx, simpleblog.NewQuery())
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestReconcileRemovesOrphanedItemFiles(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	p1 := newProvider(t, root)
	saved, err := p1.Save(ctx, publishedDoc("kept"))
	require.NoError(t, err)

	// Simulate a hard delete that crashed after rewriting the index but
	// before removing the item file.
	orphan := filepath.Join(root, "items", "orphan-id.json")
	require.NoError(t, os.WriteFile(orphan, []byte(`{"header":{"id":"orphan-id"}}`), 0o644))
	orphanDir := filepath.Join(root, "items", "orphan-id")
	require.NoError(t, os.MkdirAll(orphanDir, 0o755))

	p2 := newProvider(t, root)
	assert.NoFileExists(t, orphan)
	assert.NoDirExists(t, orphanDir)

	_, err = p2.Load(ctx, saved.Header.ID)
	assert.NoError(t, err, "indexed documents are untouched by reconciliation")
}

func TestUnknownJSONFieldsSurviveRewrites(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	p1 := newProvider(t, root)
	saved, err := p1.Save(ctx, publishedDoc("annotated"))
	require.NoError(t, err)

	// Another tool adds a field this code does not know about.
	itemPath := filepath.Join(root, "items", saved.Header.ID+".json")
	data, err := os.ReadFile(itemPath)
	require.NoError(t, err)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	raw["external_annotation"] = json.RawMessage(`"keep me"`)
	data, err = json.Marshal(raw)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(itemPath, data, 0o644))

	p2 := newProvider(t, root)
	loaded, err := p2.Load(ctx, saved.Header.ID)
	require.NoError(t, err)
	loaded.Content = "edited"
	_, err = p2.Save(ctx, loaded)
	require.NoError(t, err)

	data, err = os.ReadFile(itemPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "external_annotation")
	assert.Contains(t, string(data), "edited")
}

func TestPutUserWritesThrough(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	p1 := newProvider(t, root)
	require.NoError(t, p1.PutUser(ctx, simpleblog.Login{Username: "editor", PasswordHash: "h", Permissions: []simpleblog.Permission{simpleblog.PermissionUser}}))

	p2 := newProvider(t, root)
	assert.Len(t, mustUsers(t, p2), 2)

	removed, err := p2.RemoveUser(ctx, "editor")
	require.NoError(t, err)
	assert.True(t, removed)

	p3 := newProvider(t, root)
	assert.Len(t, mustUsers(t, p3), 1)
}

func TestInitialiseFailureWrapsSentinel(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.json"), []byte("{not json"), 0o644))

	cs, err := simpleblog.ParseConnectionString("path=" + root)
	require.NoError(t, err)
	p, err := fs.New(cs)
	require.NoError(t, err)

	err = p.Initialise(context.Background())
	assert.ErrorIs(t, err, simpleblog.ErrNotInitialised)
}
