package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"PPChat/data/database"
	usermodel "PPChat/module/user/model"
	"PPChat/tools"
	"PPChat/tools/errs"
	jwtlib "PPChat/tools/security"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	SearchLimit       = 20
	MinPasswordLength = 6
)

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Repository 用户与验证码存储；mongo repo 与 memdb 都实现
type Repository interface {
	CreateUser(ctx context.Context, u *usermodel.User) error
	FindUserByID(ctx context.Context, id string) (*usermodel.User, error)
	FindUserByEmail(ctx context.Context, email string) (*usermodel.User, error)
	UserExists(ctx context.Context, username, email string) (bool, error)
	ListUsers(ctx context.Context) ([]usermodel.Summary, error)
	SearchUsers(ctx context.Context, q string, limit int) ([]usermodel.Summary, error)
	UpdatePassword(ctx context.Context, id, hash string) error
	CountMemberships(ctx context.Context, userID string) (int64, error)

	CreateOTP(ctx context.Context, o *usermodel.OTP) error
	FindOTP(ctx context.Context, email, code string, now time.Time) (*usermodel.OTP, error)
	FindVerifiedOTP(ctx context.Context, email string, typ usermodel.OTPType, now time.Time) (*usermodel.OTP, error)
	MarkOTPUsed(ctx context.Context, id string) error
	ConsumeOTP(ctx context.Context, id string) error
}

// Presence 网关在线会话计数
type Presence interface {
	Sessions(ctx context.Context, userID string) (int64, error)
}

type Options struct {
	JWT        jwtlib.Options
	BcryptCost int
	OTPTTL     time.Duration
	OTPDigits  int
}

type Service struct {
	repo     Repository
	presence Presence
	mailer   Mailer
	opts     Options
	now      func() time.Time
}

func New(repo Repository, presence Presence, mailer Mailer, opts Options) *Service {
	if opts.OTPTTL <= 0 {
		opts.OTPTTL = 10 * time.Minute
	}
	if opts.OTPDigits <= 0 {
		opts.OTPDigits = 6
	}
	if mailer == nil {
		mailer = LogMailer{}
	}
	return &Service{repo: repo, presence: presence, mailer: mailer, opts: opts, now: time.Now}
}

func normEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

type RegisterReq struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Service) Register(ctx context.Context, req RegisterReq) (*usermodel.Summary, error) {
	username := strings.TrimSpace(req.Username)
	email := normEmail(req.Email)
	if username == "" || email == "" || req.Password == "" {
		return nil, errs.Validation("All fields are required")
	}
	exists, err := s.repo.UserExists(ctx, username, email)
	if err != nil {
		return nil, errs.WrapMsg(err, "check user exists")
	}
	if exists {
		return nil, errs.Conflict("User already exists")
	}
	hash, err := jwtlib.HashPassword(req.Password, s.opts.BcryptCost)
	if err != nil {
		return nil, errs.WrapMsg(err, "hash password")
	}
	now := s.now().UTC()
	u := &usermodel.User{
		ID:           primitive.NewObjectID().Hex(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		// 并发注册撞唯一索引
		if database.IsDuplicate(err) {
			return nil, errs.Conflict("User already exists")
		}
		return nil, errs.WrapMsg(err, "create user")
	}
	sum := u.Summary()
	return &sum, nil
}

type LoginResult struct {
	Token    string
	ExpireAt time.Time
	User     usermodel.Summary
}

func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = normEmail(email)
	if email == "" || password == "" {
		return nil, errs.Validation("All fields are required")
	}
	u, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, errs.Unauthenticated("Invalid credentials")
		}
		return nil, errs.WrapMsg(err, "find user", "email", email)
	}
	if err := jwtlib.CheckPassword(u.PasswordHash, password); err != nil {
		if errors.Is(err, jwtlib.ErrPasswordMismatch) {
			return nil, errs.Unauthenticated("Invalid credentials")
		}
		return nil, errs.WrapMsg(err, "check password")
	}
	token, exp, err := jwtlib.Generate(s.opts.JWT, jwtlib.Identity{ID: u.ID, Email: u.Email, Username: u.Username})
	if err != nil {
		return nil, errs.WrapMsg(err, "sign token")
	}
	return &LoginResult{Token: token, ExpireAt: exp, User: u.Summary()}, nil
}

func (s *Service) Me(ctx context.Context, userID string) (*usermodel.Profile, error) {
	u, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	n, err := s.repo.CountMemberships(ctx, userID)
	if err != nil {
		return nil, errs.WrapMsg(err, "count memberships", "user", userID)
	}
	return &usermodel.Profile{
		ID:                u.ID,
		Email:             u.Email,
		Username:          u.Username,
		CreatedAt:         u.CreatedAt,
		ConversationCount: n,
	}, nil
}

func (s *Service) findUser(ctx context.Context, id string) (*usermodel.User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errs.Validation("user id is required")
	}
	u, err := s.repo.FindUserByID(ctx, id)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, errs.NotFound("User not found")
		}
		return nil, errs.WrapMsg(err, "find user", "id", id)
	}
	return u, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (*usermodel.Summary, error) {
	u, err := s.findUser(ctx, id)
	if err != nil {
		return nil, err
	}
	sum := u.Summary()
	return &sum, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]usermodel.Summary, error) {
	users, err := s.repo.ListUsers(ctx)
	return users, errs.WrapMsg(err, "list users")
}

// Search 用户名或邮箱包含 q（不区分大小写），最多 SearchLimit 条
func (s *Service) Search(ctx context.Context, q string) ([]usermodel.Summary, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, errs.Validation("Search query is required")
	}
	users, err := s.repo.SearchUsers(ctx, q, SearchLimit)
	return users, errs.WrapMsg(err, "search users", "q", q)
}

type PresenceView struct {
	UserID   string `json:"userId"`
	Online   bool   `json:"online"`
	Sessions int64  `json:"sessions"`
}

func (s *Service) Presence(ctx context.Context, id string) (*PresenceView, error) {
	if _, err := s.findUser(ctx, id); err != nil {
		return nil, err
	}
	v := &PresenceView{UserID: id}
	if s.presence == nil {
		return v, nil
	}
	n, err := s.presence.Sessions(ctx, id)
	if err != nil {
		return nil, errs.WrapMsg(err, "presence", "user", id)
	}
	v.Sessions = n
	v.Online = n > 0
	return v, nil
}

func checkNewPassword(newPassword, confirm string) error {
	if newPassword != confirm {
		return errs.Validation("New passwords do not match")
	}
	if len(newPassword) < MinPasswordLength {
		return errs.Validation("Password must be at least 6 characters long")
	}
	return nil
}

type ResetPasswordReq struct {
	Email           string `json:"email"`
	OldPassword     string `json:"oldPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// ResetPassword 已登录用户凭旧密码修改，只能改自己的账号
func (s *Service) ResetPassword(ctx context.Context, callerID string, req ResetPasswordReq) error {
	email := normEmail(req.Email)
	if email == "" || req.OldPassword == "" || req.NewPassword == "" || req.ConfirmPassword == "" {
		return errs.Validation("All fields are required")
	}
	if err := checkNewPassword(req.NewPassword, req.ConfirmPassword); err != nil {
		return err
	}
	if req.OldPassword == req.NewPassword {
		return errs.Validation("New password cannot be same as old password")
	}
	u, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		if database.IsNotFound(err) {
			return errs.NotFound("User not found")
		}
		return errs.WrapMsg(err, "find user", "email", email)
	}
	if u.ID != callerID {
		return errs.Forbidden("Not authorized")
	}
	if err := jwtlib.CheckPassword(u.PasswordHash, req.OldPassword); err != nil {
		if errors.Is(err, jwtlib.ErrPasswordMismatch) {
			return errs.Unauthenticated("Old password is incorrect")
		}
		return errs.WrapMsg(err, "check password")
	}
	return s.setPassword(ctx, u.ID, req.NewPassword)
}

func (s *Service) setPassword(ctx context.Context, id, plain string) error {
	hash, err := jwtlib.HashPassword(plain, s.opts.BcryptCost)
	if err != nil {
		return errs.WrapMsg(err, "hash password")
	}
	return errs.WrapMsg(s.repo.UpdatePassword(ctx, id, hash), "update password", "user", id)
}

type SendOTPReq struct {
	ToEmail string            `json:"toEmail"`
	Name    string            `json:"name"`
	Type    usermodel.OTPType `json:"type"`
}

type SendOTPResult struct {
	ExpiryAt      time.Time `json:"expiryAt"`
	ExpiryMinutes int       `json:"expiryMinutes"`
}

// RequestOTP 服务端生成验证码，落库后交给 Mailer 投递
func (s *Service) RequestOTP(ctx context.Context, req SendOTPReq) (*SendOTPResult, error) {
	email := normEmail(req.ToEmail)
	if email == "" || req.Type == "" {
		return nil, errs.Validation("Missing required fields: toEmail, type")
	}
	if !emailRe.MatchString(email) {
		return nil, errs.Validation("Invalid email format")
	}
	if !req.Type.Valid() {
		return nil, errs.Validation("Invalid type. Must be 'forgot' or 'reset'")
	}
	now := s.now().UTC()
	o := &usermodel.OTP{
		ID:        primitive.NewObjectID().Hex(),
		Email:     email,
		Code:      tools.RandDigits(s.opts.OTPDigits),
		Type:      req.Type,
		ExpiryAt:  now.Add(s.opts.OTPTTL),
		CreatedAt: now,
	}
	if err := s.repo.CreateOTP(ctx, o); err != nil {
		return nil, errs.WrapMsg(err, "create otp", "email", email)
	}
	if err := s.mailer.SendOTP(ctx, OTPMail{To: email, Name: req.Name, Type: o.Type, Code: o.Code, ExpiryAt: o.ExpiryAt}); err != nil {
		return nil, errs.WrapMsg(err, "send otp mail", "email", email)
	}
	return &SendOTPResult{ExpiryAt: o.ExpiryAt, ExpiryMinutes: int(s.opts.OTPTTL / time.Minute)}, nil
}

func (s *Service) VerifyOTP(ctx context.Context, email, code string) error {
	email = normEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return errs.Validation("Email and OTP are required")
	}
	o, err := s.repo.FindOTP(ctx, email, code, s.now().UTC())
	if err != nil {
		if database.IsNotFound(err) {
			return errs.Validation("Invalid or expired OTP")
		}
		return errs.WrapMsg(err, "find otp", "email", email)
	}
	if err := s.repo.MarkOTPUsed(ctx, o.ID); err != nil {
		// 并发校验，另一个请求已经用掉
		if database.IsNotFound(err) {
			return errs.Validation("OTP has already been used")
		}
		return errs.WrapMsg(err, "mark otp used")
	}
	return nil
}

type ResetWithOTPReq struct {
	Email           string `json:"email"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// ResetPasswordWithOTP 忘记密码：必须先有一条已校验、未消费的 forgot 验证码
func (s *Service) ResetPasswordWithOTP(ctx context.Context, req ResetWithOTPReq) error {
	email := normEmail(req.Email)
	if email == "" || req.NewPassword == "" || req.ConfirmPassword == "" {
		return errs.Validation("All fields are required")
	}
	if err := checkNewPassword(req.NewPassword, req.ConfirmPassword); err != nil {
		return err
	}
	u, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		if database.IsNotFound(err) {
			return errs.NotFound("User not found")
		}
		return errs.WrapMsg(err, "find user", "email", email)
	}
	o, err := s.repo.FindVerifiedOTP(ctx, email, usermodel.OTPForgot, s.now().UTC())
	if err != nil {
		if database.IsNotFound(err) {
			return errs.Forbidden("OTP verification required")
		}
		return errs.WrapMsg(err, "find verified otp", "email", email)
	}
	if err := s.repo.ConsumeOTP(ctx, o.ID); err != nil {
		if database.IsNotFound(err) {
			return errs.Forbidden("OTP verification required")
		}
		return errs.WrapMsg(err, "consume otp")
	}
	return s.setPassword(ctx, u.ID, req.NewPassword)
}
