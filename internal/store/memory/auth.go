package memory

import (
	"context"
	"time"

	"lawdesk.org/internal/auth"
)

type userStore struct{ s *Store }

// conflictLocked checks email and dni uniqueness against every user but self.
func (st userStore) conflictLocked(u auth.User) error {
	for _, other := range st.s.users {
		if other.ID == u.ID {
			continue
		}
		if u.Email != "" && other.Email == u.Email {
			return auth.ErrEmailTaken
		}
		if other.DNI == u.DNI {
			return auth.ErrDNITaken
		}
	}
	return nil
}

func (st userStore) Create(_ context.Context, u *auth.User) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.users[u.ID]; ok {
		return auth.ErrDNITaken
	}
	if err := st.conflictLocked(*u); err != nil {
		return err
	}
	st.s.users[u.ID] = *u
	return nil
}

func (st userStore) Find(_ context.Context, id string) (auth.User, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	u, ok := st.s.users[id]
	if !ok {
		return auth.User{}, auth.ErrUserNotFound
	}
	return u, nil
}

func (st userStore) findBy(match func(auth.User) bool) (auth.User, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	for _, u := range st.s.users {
		if match(u) {
			return u, nil
		}
	}
	return auth.User{}, auth.ErrUserNotFound
}

func (st userStore) FindByEmail(_ context.Context, email string) (auth.User, error) {
	if email == "" {
		return auth.User{}, auth.ErrUserNotFound
	}
	return st.findBy(func(u auth.User) bool { return u.Email == email })
}

func (st userStore) FindByDNI(_ context.Context, dni string) (auth.User, error) {
	return st.findBy(func(u auth.User) bool { return u.DNI == dni })
}

func (st userStore) Update(_ context.Context, u auth.User) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	cur, ok := st.s.users[u.ID]
	if !ok {
		return auth.ErrUserNotFound
	}
	if err := st.conflictLocked(u); err != nil {
		return err
	}
	u.PasswordHash = cur.PasswordHash
	u.Role = cur.Role
	u.CreatedAt = cur.CreatedAt
	st.s.users[u.ID] = u
	return nil
}

func (st userStore) UpdatePassword(_ context.Context, userID, hash string, at time.Time) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	u, ok := st.s.users[userID]
	if !ok {
		return auth.ErrUserNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = at
	st.s.users[userID] = u
	return nil
}

func (st userStore) Delete(_ context.Context, id string) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.users[id]; !ok {
		return auth.ErrUserNotFound
	}
	delete(st.s.users, id)
	for k, t := range st.s.refresh {
		if t.UserID == id {
			delete(st.s.refresh, k)
		}
	}
	return nil
}

func (st userStore) List(_ context.Context, q auth.UserQuery) ([]auth.User, int, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	items, total := selectRows(st.s.users,
		func(u auth.User) bool {
			if q.Role.Valid() && u.Role != q.Role {
				return false
			}
			return matches(q.Search, u.Name, u.Surname, u.Email, u.DNI, u.Specialty)
		},
		func(a, b auth.User) bool {
			if a.Surname != b.Surname {
				return a.Surname < b.Surname
			}
			if a.Name != b.Name {
				return a.Name < b.Name
			}
			return a.ID < b.ID
		},
		q.Offset, q.Limit)
	return items, total, nil
}

type refreshStore struct{ s *Store }

func (st refreshStore) Create(_ context.Context, tok *auth.RefreshToken) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	st.s.refresh[tok.ID] = *tok
	return nil
}

func (st refreshStore) Find(_ context.Context, id string) (auth.RefreshToken, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	t, ok := st.s.refresh[id]
	if !ok {
		return auth.RefreshToken{}, auth.ErrNotFound
	}
	return t, nil
}

func (st refreshStore) MarkRevoked(_ context.Context, id string) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	t, ok := st.s.refresh[id]
	if !ok {
		return auth.ErrNotFound
	}
	t.Revoked = true
	st.s.refresh[id] = t
	return nil
}

func (st refreshStore) MarkRevokedByUser(_ context.Context, userID string) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	for id, t := range st.s.refresh {
		if t.UserID == userID && !t.Revoked {
			t.Revoked = true
			st.s.refresh[id] = t
		}
	}
	return nil
}

type resetStore struct{ s *Store }

func (st resetStore) Save(_ context.Context, tok auth.ResetToken) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	st.s.resets[tok.ID] = tok
	return nil
}

func (st resetStore) Find(_ context.Context, id string) (auth.ResetToken, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	t, ok := st.s.resets[id]
	if !ok {
		return auth.ResetToken{}, auth.ErrNotFound
	}
	return t, nil
}

func (st resetStore) Consume(_ context.Context, id string) (auth.ResetToken, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	t, ok := st.s.resets[id]
	if !ok {
		return auth.ResetToken{}, auth.ErrNotFound
	}
	delete(st.s.resets, id)
	return t, nil
}
