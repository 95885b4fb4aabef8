package storage

import (
	"context"
	"encoding/json"
	"sort"
)

// CredentialStore is the session's persistence API.
type CredentialStore struct {
	b Backend
}

func NewCredentialStore(b Backend) *CredentialStore {
	return &CredentialStore{b: b}
}

func recordKey(category, id string) string { return category + "-" + id }

// Get returns the records present for ids in one backend read. Absent ids
// are missing from the result.
func (s *CredentialStore) Get(ctx context.Context, category string, ids []string) (map[string]KeyRecord, error) {
	if len(ids) == 0 {
		return map[string]KeyRecord{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = recordKey(category, id)
	}
	raw, err := s.b.GetMany(ctx, keys)
	if err != nil {
		return nil, wrap("get "+category, err)
	}
	out := make(map[string]KeyRecord, len(raw))
	for i, id := range ids {
		if v, ok := raw[keys[i]]; ok {
			out[id] = KeyRecord(v)
		}
	}
	return out, nil
}

// Set applies all updates as one atomic batch.
func (s *CredentialStore) Set(ctx context.Context, updates Updates) error {
	categories := make([]string, 0, len(updates))
	for c := range updates {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	var ops []Op
	for _, c := range categories {
		ids := make([]string, 0, len(updates[c]))
		for id := range updates[c] {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			v := updates[c][id]
			if v == nil {
				ops = append(ops, Op{Key: recordKey(c, id)})
				continue
			}
			ops = append(ops, Op{Key: recordKey(c, id), Value: []byte(v)})
		}
	}
	if len(ops) == 0 {
		return nil
	}
	return wrap("set", s.b.Batch(ctx, ops))
}

// Clear erases every record and the credentials.
func (s *CredentialStore) Clear(ctx context.Context) error {
	return wrap("clear", s.b.Clear(ctx))
}

// LoadCredentials returns the persisted credentials, or a fresh identity
// when none exist yet. The fresh identity is not saved.
func (s *CredentialStore) LoadCredentials(ctx context.Context) (*Credentials, error) {
	raw, err := s.b.GetMany(ctx, []string{CredsKey})
	if err != nil {
		return nil, wrap("load credentials", err)
	}
	b, ok := raw[CredsKey]
	if !ok {
		c, err := NewCredentials()
		return c, wrap("init credentials", err)
	}
	var c Credentials
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, wrap("decode credentials", err)
	}
	return &c, nil
}

// SaveCredentials replaces the persisted credentials.
func (s *CredentialStore) SaveCredentials(ctx context.Context, c *Credentials) error {
	b, err := json.Marshal(c)
	if err != nil {
		return wrap("encode credentials", err)
	}
	return wrap("save credentials", s.b.Batch(ctx, []Op{{Key: CredsKey, Value: b}}))
}

func (s *CredentialStore) Close() error {
	return wrap("close", s.b.Close())
}
