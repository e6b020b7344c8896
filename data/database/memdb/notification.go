package memdb

import (
	"context"
	"sort"
	"time"

	"PPChat/data/database"
	notimodel "PPChat/module/notification/model"
)

func match(n *notimodel.Notification, f notimodel.Filter) bool {
	if n.RecipientID != f.RecipientID {
		return false
	}
	if f.ConversationID != "" && n.ConversationID != f.ConversationID {
		return false
	}
	if f.UnreadOnly && n.IsRead {
		return false
	}
	if f.OnlyRead && !n.IsRead {
		return false
	}
	if f.Type != "" && n.Type != f.Type {
		return false
	}
	return true
}

func (db *DB) InsertNotifications(ctx context.Context, ns []notimodel.Notification) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	inserted := 0
	for i := range ns {
		dup := false
		for _, x := range db.notifications {
			if x.ID == ns[i].ID || (ns[i].MessageID != "" && x.MessageID == ns[i].MessageID && x.RecipientID == ns[i].RecipientID) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		n := ns[i]
		db.notifications = append(db.notifications, &n)
		inserted++
	}
	return inserted, nil
}

func (db *DB) filtered(f notimodel.Filter) []*notimodel.Notification {
	out := make([]*notimodel.Notification, 0)
	for _, n := range db.notifications {
		if match(n, f) {
			out = append(out, n)
		}
	}
	// 最新在前
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (db *DB) ListNotifications(ctx context.Context, f notimodel.Filter, skip, limit int) ([]notimodel.Notification, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	all := db.filtered(f)
	out := make([]notimodel.Notification, 0, limit)
	for i := skip; i < len(all) && len(out) < limit; i++ {
		out = append(out, *all[i])
	}
	return out, nil
}

func (db *DB) CountNotifications(ctx context.Context, f notimodel.Filter) (int64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return int64(len(db.filtered(f))), nil
}

func (db *DB) FindNotification(ctx context.Context, id string) (*notimodel.Notification, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, n := range db.notifications {
		if n.ID == id {
			cp := *n
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (db *DB) MarkNotificationRead(ctx context.Context, id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, n := range db.notifications {
		if n.ID == id {
			n.IsRead = true
			n.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return database.ErrNotFound
}

func (db *DB) MarkNotificationsRead(ctx context.Context, f notimodel.Filter) (notimodel.UpdateResult, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var res notimodel.UpdateResult
	for _, n := range db.notifications {
		if !match(n, f) {
			continue
		}
		res.MatchedCount++
		if !n.IsRead {
			n.IsRead = true
			n.UpdatedAt = time.Now().UTC()
			res.ModifiedCount++
		}
	}
	return res, nil
}

func (db *DB) DeleteNotifications(ctx context.Context, f notimodel.Filter) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	kept := db.notifications[:0]
	var deleted int64
	for _, n := range db.notifications {
		if match(n, f) {
			deleted++
			continue
		}
		kept = append(kept, n)
	}
	db.notifications = kept
	return deleted, nil
}
