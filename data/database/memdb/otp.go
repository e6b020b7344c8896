package memdb

import (
	"context"
	"time"

	"PPChat/data/database"
	usermodel "PPChat/module/user/model"
)

func (db *DB) CreateOTP(ctx context.Context, o *usermodel.OTP) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	cp := *o
	db.otps = append(db.otps, &cp)
	return nil
}

// newestOTP 倒序遍历即最新优先
func (db *DB) newestOTP(match func(o *usermodel.OTP) bool) (*usermodel.OTP, error) {
	for i := len(db.otps) - 1; i >= 0; i-- {
		if match(db.otps[i]) {
			cp := *db.otps[i]
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (db *DB) FindOTP(ctx context.Context, email, code string, now time.Time) (*usermodel.OTP, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.newestOTP(func(o *usermodel.OTP) bool {
		return o.Email == email && o.Code == code && !o.Used && !o.Expired(now)
	})
}

func (db *DB) FindVerifiedOTP(ctx context.Context, email string, typ usermodel.OTPType, now time.Time) (*usermodel.OTP, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.newestOTP(func(o *usermodel.OTP) bool {
		return o.Email == email && o.Type == typ && o.Used && !o.Consumed && !o.Expired(now)
	})
}

func (db *DB) MarkOTPUsed(ctx context.Context, id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, o := range db.otps {
		if o.ID == id && !o.Used {
			o.Used = true
			return nil
		}
	}
	return database.ErrNotFound
}

func (db *DB) ConsumeOTP(ctx context.Context, id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, o := range db.otps {
		if o.ID == id && !o.Consumed {
			o.Consumed = true
			return nil
		}
	}
	return database.ErrNotFound
}
