package simpleblog

// ContentIndex is the authoritative in-memory collection of documents for
// one content store. It maintains two invariants: document ids are unique,
// and iteration order is insertion order so listings are stable. The index
// itself is not safe for concurrent use; providers serialize access.
type ContentIndex struct {
	documents   map[string]*Document
	order       []string
	initialised bool
}

// NewContentIndex returns an empty, uninitialised index.
func NewContentIndex() *ContentIndex {
	return &ContentIndex{documents: make(map[string]*Document)}
}

// Get returns the stored document for id.
func (x *ContentIndex) Get(id string) (*Document, bool) {
	doc, ok := x.documents[id]
	return doc, ok
}

// Put inserts doc under its header id, or replaces the map entry if the id
// is already present. The id must be non-empty.
func (x *ContentIndex) Put(doc *Document) {
	id := doc.Header.ID
	if id == "" {
		return
	}
	if _, exists := x.documents[id]; !exists {
		x.order = append(x.order, id)
	}
	x.documents[id] = doc
}

// Remove deletes the document with id and reports whether it was present.
func (x *ContentIndex) Remove(id string) bool {
	if _, ok := x.documents[id]; !ok {
		return false
	}
	delete(x.documents, id)
	for i, existing := range x.order {
		if existing == id {
			x.order = append(x.order[:i], x.order[i+1:]...)
			break
		}
	}
	return true
}

// All returns the stored documents in insertion order. The returned slice
// is fresh but the documents are the index-owned instances.
func (x *ContentIndex) All() []*Document {
	out := make([]*Document, 0, len(x.order))
	for _, id := range x.order {
		if doc, ok := x.documents[id]; ok {
			out = append(out, doc)
		}
	}
	return out
}

// Len returns the number of stored documents.
func (x *ContentIndex) Len() int {
	return len(x.documents)
}

// Initialised reports whether a provider has validated the backing store.
func (x *ContentIndex) Initialised() bool {
	return x.initialised
}

// MarkInitialised records that the backing store has been validated.
func (x *ContentIndex) MarkInitialised() {
	x.initialised = true
}
