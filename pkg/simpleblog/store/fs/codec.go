package fs

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/tendant/simple-blog/pkg/simpleblog"
)

// Persisted records carry an extra bag of unknown fields so that values
// written by a newer build survive a load/rewrite round trip instead of
// being silently dropped.

type documentRecord struct {
	doc   simpleblog.Document
	extra map[string]json.RawMessage
}

func (r documentRecord) MarshalJSON() ([]byte, error) {
	return mergeExtra(r.doc, r.extra)
}

func (r *documentRecord) UnmarshalJSON(data []byte) error {
	extra, err := splitExtra(data, &r.doc)
	if err != nil {
		return err
	}
	r.extra = extra
	return nil
}

type loginRecord struct {
	login simpleblog.Login
	extra map[string]json.RawMessage
}

func (r loginRecord) MarshalJSON() ([]byte, error) {
	return mergeExtra(r.login, r.extra)
}

func (r *loginRecord) UnmarshalJSON(data []byte) error {
	extra, err := splitExtra(data, &r.login)
	if err != nil {
		return err
	}
	r.extra = extra
	return nil
}

type indexFile struct {
	Documents []documentRecord `json:"documents"`
	extra     map[string]json.RawMessage
}

func (f indexFile) MarshalJSON() ([]byte, error) {
	type plain struct {
		Documents []documentRecord `json:"documents"`
	}
	return mergeExtra(plain{Documents: f.Documents}, f.extra)
}

func (f *indexFile) UnmarshalJSON(data []byte) error {
	type plain struct {
		Documents []documentRecord `json:"documents"`
	}
	var p plain
	extra, err := splitExtra(data, &p)
	if err != nil {
		return err
	}
	f.Documents = p.Documents
	f.extra = extra
	return nil
}

type usersFile struct {
	Users []loginRecord `json:"users"`
	extra map[string]json.RawMessage
}

func (f usersFile) MarshalJSON() ([]byte, error) {
	type plain struct {
		Users []loginRecord `json:"users"`
	}
	return mergeExtra(plain{Users: f.Users}, f.extra)
}

func (f *usersFile) UnmarshalJSON(data []byte) error {
	type plain struct {
		Users []loginRecord `json:"users"`
	}
	var p plain
	extra, err := splitExtra(data, &p)
	if err != nil {
		return err
	}
	f.Users = p.Users
	f.extra = extra
	return nil
}

// splitExtra decodes data into v and returns any top-level keys v does not
// itself marshal.
func splitExtra(data []byte, v interface{}) (map[string]json.RawMessage, error) {
	if err := json.Unmarshal(data, v); err != nil {
		return nil, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	base, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var known map[string]json.RawMessage
	if err := json.Unmarshal(base, &known); err != nil {
		return nil, err
	}
	for key := range known {
		delete(all, key)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

// mergeExtra marshals v and reinstates the unknown fields captured on load.
// Known fields always win over stale extras.
func mergeExtra(v interface{}, extra map[string]json.RawMessage) ([]byte, error) {
	base, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return base, nil
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(base, &all); err != nil {
		return nil, err
	}
	for key, raw := range extra {
		if _, ok := all[key]; !ok {
			all[key] = raw
		}
	}
	return json.Marshal(all)
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it over path, so a concurrent reader never observes a partial
// file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
