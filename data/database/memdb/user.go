package memdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"PPChat/data/database"
	usermodel "PPChat/module/user/model"
)

func (db *DB) CreateUser(ctx context.Context, u *usermodel.User) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.users[u.ID]; ok {
		return database.ErrDuplicate
	}
	for _, x := range db.users {
		if x.Username == u.Username || x.Email == u.Email {
			return database.ErrDuplicate
		}
	}
	cp := *u
	db.users[u.ID] = &cp
	return nil
}

func (db *DB) FindUserByID(ctx context.Context, id string) (*usermodel.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	u, ok := db.users[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (db *DB) FindUserByEmail(ctx context.Context, email string) (*usermodel.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, u := range db.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (db *DB) UserExists(ctx context.Context, username, email string) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, u := range db.users {
		if u.Username == username || u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (db *DB) sortedSummaries(match func(u *usermodel.User) bool, limit int) []usermodel.Summary {
	out := make([]usermodel.Summary, 0)
	for _, u := range db.users {
		if match(u) {
			out = append(out, u.Summary())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (db *DB) ListUsers(ctx context.Context) ([]usermodel.Summary, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.sortedSummaries(func(*usermodel.User) bool { return true }, 0), nil
}

func (db *DB) SearchUsers(ctx context.Context, q string, limit int) ([]usermodel.Summary, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	q = strings.ToLower(q)
	return db.sortedSummaries(func(u *usermodel.User) bool {
		return strings.Contains(strings.ToLower(u.Username), q) || strings.Contains(strings.ToLower(u.Email), q)
	}, limit), nil
}

func (db *DB) FindUsersByIDs(ctx context.Context, ids []string) ([]usermodel.Summary, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]usermodel.Summary, 0, len(ids))
	for _, id := range ids {
		if u, ok := db.users[id]; ok {
			out = append(out, u.Summary())
		}
	}
	return out, nil
}

func (db *DB) UpdatePassword(ctx context.Context, id, hash string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	u, ok := db.users[id]
	if !ok {
		return database.ErrNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (db *DB) CountMemberships(ctx context.Context, userID string) (int64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var n int64
	for _, m := range db.members {
		if m.UserID == userID {
			n++
		}
	}
	return n, nil
}
