// Package storetest provides in-memory credential-store fakes for
// tests that exercise the service and handler layers without Postgres.
package storetest

import (
	"context"
	"sort"
	"sync"

	"authgate/api/internal/models"
	"authgate/api/internal/repository"
)

type UserStore struct {
	mu    sync.Mutex
	users map[string]models.User
}

func NewUserStore() *UserStore {
	return &UserStore{users: map[string]models.User{}}
}

func (f *UserStore) Create(_ context.Context, user models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == user.Email {
			return repository.ErrEmailTaken
		}
	}
	f.users[user.ID] = user
	return nil
}

func (f *UserStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (f *UserStore) GetByID(_ context.Context, id string) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

func (f *UserStore) Update(_ context.Context, user models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[user.ID]; !ok {
		return repository.ErrUserNotFound
	}
	for id, u := range f.users {
		if id != user.ID && u.Email == user.Email {
			return repository.ErrEmailTaken
		}
	}
	f.users[user.ID] = user
	return nil
}

// Delete simulates a subject disappearing from the credential store.
func (f *UserStore) Delete(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, id)
}

type HistoryStore struct {
	mu      sync.Mutex
	records []models.AuthHistoryRecord
	fail    error
}

func NewHistoryStore() *HistoryStore {
	return &HistoryStore{}
}

func (f *HistoryStore) Record(_ context.Context, rec models.AuthHistoryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *HistoryStore) List(_ context.Context, userID string, page, size int) ([]models.AuthHistoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var matched []models.AuthHistoryRecord
	for _, rec := range f.records {
		if rec.UserID == userID {
			matched = append(matched, rec)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].OccurredAt.After(matched[j].OccurredAt)
	})

	start := page * size
	if start >= len(matched) {
		return []models.AuthHistoryRecord{}, nil
	}
	end := start + size
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], nil
}

// Append seeds a record directly, bypassing Record.
func (f *HistoryStore) Append(rec models.AuthHistoryRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
}

// Records returns a snapshot of everything recorded so far.
func (f *HistoryStore) Records() []models.AuthHistoryRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.AuthHistoryRecord, len(f.records))
	copy(out, f.records)
	return out
}

// Fail makes every subsequent Record call return err.
func (f *HistoryStore) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = err
}

type RoleStore struct {
	mu      sync.Mutex
	roles   map[string]models.Role // by name
	binding map[string][]string    // userID -> role names
}

func NewRoleStore() *RoleStore {
	return &RoleStore{
		roles:   map[string]models.Role{},
		binding: map[string][]string{},
	}
}

func (f *RoleStore) Create(_ context.Context, role models.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.roles[role.Name]; ok {
		return repository.ErrRoleExists
	}
	f.roles[role.Name] = role
	return nil
}

func (f *RoleStore) FindByName(_ context.Context, name string) (models.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	role, ok := f.roles[name]
	if !ok {
		return models.Role{}, repository.ErrRoleNotFound
	}
	return role, nil
}

func (f *RoleStore) Rename(_ context.Context, oldName, newName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	role, ok := f.roles[oldName]
	if !ok {
		return repository.ErrRoleNotFound
	}
	delete(f.roles, oldName)
	role.Name = newName
	f.roles[newName] = role
	for uid, names := range f.binding {
		for i, n := range names {
			if n == oldName {
				f.binding[uid][i] = newName
			}
		}
	}
	return nil
}

func (f *RoleStore) Delete(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.roles[name]; !ok {
		return repository.ErrRoleNotFound
	}
	delete(f.roles, name)
	return nil
}

func (f *RoleStore) List(_ context.Context) ([]models.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Role, 0, len(f.roles))
	for _, role := range f.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *RoleStore) Assign(_ context.Context, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := f.nameByID(roleID)
	for _, n := range f.binding[userID] {
		if n == name {
			return nil
		}
	}
	f.binding[userID] = append(f.binding[userID], name)
	return nil
}

func (f *RoleStore) Unassign(_ context.Context, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := f.nameByID(roleID)
	names := f.binding[userID]
	for i, n := range names {
		if n == name {
			f.binding[userID] = append(names[:i], names[i+1:]...)
			return nil
		}
	}
	return repository.ErrRoleNotFound
}

func (f *RoleStore) RolesForUser(_ context.Context, userID string) ([]models.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Role
	for _, name := range f.binding[userID] {
		if role, ok := f.roles[name]; ok {
			out = append(out, role)
		}
	}
	return out, nil
}

func (f *RoleStore) nameByID(roleID string) string {
	for name, role := range f.roles {
		if role.ID == roleID {
			return name
		}
	}
	return ""
}
