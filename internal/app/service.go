package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"diocese/api/internal/auth"
	"diocese/api/internal/authpw"
	"diocese/api/internal/config"
	"diocese/api/internal/email"
	"diocese/api/internal/export"
	"diocese/api/internal/history"
	"diocese/api/internal/rbac"
	"diocese/api/internal/search"
	"diocese/api/internal/session"
	"diocese/api/internal/store"
	"diocese/api/internal/templates"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	Ping(ctx context.Context) error

	CountUsers(ctx context.Context) (int, error)
	GetUserByID(ctx context.Context, id string) (store.User, error)
	GetUserByUsername(ctx context.Context, username string) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	InsertUser(ctx context.Context, user store.User) error
	ListUsers(ctx context.Context) ([]store.User, error)
	UpdateUserRole(ctx context.Context, id, role string) error

	ListArchdeaconries(ctx context.Context) ([]store.Archdeaconry, error)
	GetArchdeaconry(ctx context.Context, id string) (store.Archdeaconry, error)
	InsertArchdeaconry(ctx context.Context, item store.Archdeaconry) error
	UpdateArchdeaconry(ctx context.Context, item store.Archdeaconry) error
	DeleteArchdeaconry(ctx context.Context, id string) error

	ListParishes(ctx context.Context, filter store.ParishFilter) ([]store.Parish, error)
	GetParish(ctx context.Context, id string) (store.Parish, error)
	InsertParish(ctx context.Context, item store.Parish) error
	UpdateParish(ctx context.Context, item store.Parish) error
	DeleteParish(ctx context.Context, id string) error

	ListPriests(ctx context.Context, filter store.PriestFilter) ([]store.Priest, error)
	GetPriest(ctx context.Context, id string) (store.Priest, error)
	InsertPriest(ctx context.Context, item store.Priest) error
	UpdatePriest(ctx context.Context, item store.Priest) error
	DeletePriest(ctx context.Context, id string) error

	ListEvents(ctx context.Context, filter store.EventFilter) ([]store.Event, error)
	GetEvent(ctx context.Context, id string) (store.Event, error)
	InsertEvent(ctx context.Context, item store.Event) error
	UpdateEvent(ctx context.Context, item store.Event) error
	DeleteEvent(ctx context.Context, id string) error

	InsertContact(ctx context.Context, item store.Contact) (store.Contact, error)
	ListContacts(ctx context.Context, filter store.ContactFilter) ([]store.Contact, error)
	SetContactRead(ctx context.Context, id string, read bool) (store.Contact, error)
	DeleteContact(ctx context.Context, id string) error

	ListCharges(ctx context.Context) ([]store.BishopCharge, error)
	GetCharge(ctx context.Context, id string) (store.BishopCharge, error)
	GetActiveCharge(ctx context.Context) (*store.BishopCharge, error)
	InsertCharge(ctx context.Context, item store.BishopCharge) (store.BishopCharge, error)
	UpdateCharge(ctx context.Context, item store.BishopCharge) (store.BishopCharge, error)
	UpdateChargeContent(ctx context.Context, id, content string) (store.BishopCharge, error)
	ActivateCharge(ctx context.Context, id string) (store.BishopCharge, error)
	DeleteCharge(ctx context.Context, id string) error
}

// TokenStore keeps refresh sessions and revoked access tokens. Both
// store.PostgresStore and session.RedisStore implement it.
type TokenStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (string, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
}

type chargeHistory interface {
	Commit(chargeID string, content history.Content, author, message string) (history.Revision, bool, error)
	History(chargeID string, limit int) ([]history.Revision, error)
	Get(chargeID, hash string) (history.Revision, history.Content, error)
	Remove(chargeID string) error
}

type directorySearch interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexParish(r search.ParishRecord)
	IndexPriest(r search.PriestRecord)
	IndexEvent(r search.EventRecord)
	Delete(typ search.ResultType, id string)
}

type chargeExporter interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

type mailer interface {
	IsConfigured() bool
	SendContactNotification(officeAddress string, notice email.ContactNotice) error
}

type credentials interface {
	Register(ctx context.Context, req authpw.RegisterRequest) (store.User, error)
	SignIn(ctx context.Context, identifier, password string) (store.User, error)
}

// Options carries the optional collaborators. Nil entries disable the
// matching feature.
type Options struct {
	Tokens    TokenStore
	History   *history.Service
	Search    *search.Service
	Export    *export.Service
	Email     *email.Service
	Templates *templates.Catalog
	Logger    *zap.Logger
}

type Service struct {
	cfg       config.Config
	store     dataStore
	tokens    TokenStore
	signer    *auth.Signer
	passwords credentials
	history   chargeHistory
	search    directorySearch
	export    chargeExporter
	email     mailer
	templates *templates.Catalog
	logger    *zap.Logger
	now       func() time.Time

	draftMu sync.Mutex
	drafts  map[string]*draft
}

func New(cfg config.Config, dataStore *store.PostgresStore, opts Options) *Service {
	s := &Service{
		cfg:       cfg,
		store:     dataStore,
		tokens:    dataStore,
		signer:    auth.NewSigner(cfg.JWTSecret, cfg.AccessTTL),
		passwords: authpw.NewService(dataStore),
		templates: opts.Templates,
		logger:    opts.Logger,
		now:       time.Now,
		drafts:    make(map[string]*draft),
	}
	if opts.Tokens != nil {
		s.tokens = opts.Tokens
	}
	if opts.History != nil {
		s.history = opts.History
	}
	if opts.Search != nil {
		s.search = opts.Search
	}
	if opts.Export != nil {
		s.export = opts.Export
	}
	if opts.Email != nil {
		s.email = opts.Email
	}
	if s.templates == nil {
		s.templates = templates.MustCatalog()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Service) Register(ctx context.Context, input RegisterInput) (store.User, error) {
	if !s.cfg.AllowRegistration {
		return store.User{}, domainError(http.StatusForbidden, "REGISTRATION_CLOSED", "Registration is closed", nil)
	}
	user, err := s.passwords.Register(ctx, authpw.RegisterRequest{
		Username: input.Username,
		Email:    input.Email,
		Password: input.Password,
	})
	switch {
	case err == nil:
		s.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("role", user.Role))
		return user, nil
	case errors.Is(err, authpw.ErrMissingFields):
		return store.User{}, badRequest("MISSING_FIELDS", err.Error())
	case errors.Is(err, authpw.ErrInvalidEmail):
		return store.User{}, badRequest("INVALID_EMAIL", err.Error())
	case errors.Is(err, authpw.ErrWeakPassword):
		return store.User{}, badRequest("WEAK_PASSWORD", err.Error())
	case errors.Is(err, authpw.ErrUsernameTaken):
		return store.User{}, badRequest("USERNAME_TAKEN", err.Error())
	case errors.Is(err, authpw.ErrEmailTaken):
		return store.User{}, badRequest("EMAIL_TAKEN", err.Error())
	default:
		return store.User{}, err
	}
}

func (s *Service) SignIn(ctx context.Context, identifier, password string) (Session, error) {
	user, err := s.passwords.SignIn(ctx, identifier, password)
	if errors.Is(err, authpw.ErrInvalidCredentials) {
		return Session{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password", nil)
	}
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token: the old one is revoked and a new pair issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return Session{}, auth.ErrInvalidToken
	}
	tokenHash := auth.HashToken(refreshToken)
	userID, err := s.tokens.LookupRefreshSession(ctx, tokenHash)
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, session.ErrNotFound) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}
	if err := s.tokens.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	token, claims, err := s.signer.Issue(user.ID, user.Username, user.Role)
	if err != nil {
		return Session{}, err
	}

	refresh, err := auth.NewRefreshToken()
	if err != nil {
		return Session{}, err
	}
	refreshExpires := s.now().Add(s.cfg.RefreshTTL)
	if err := s.tokens.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.Username,
		Role:         user.Role,
		JTI:          claims.JTI,
		ExpiresAt:    claims.ExpiresAt(),
	}, nil
}

// SessionFromToken verifies an access token. The role is read from the user
// row so role changes apply before the token expires.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := s.signer.Parse(token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.tokens.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.Username,
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: claims.ExpiresAt(),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		if err := s.tokens.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			s.logger.Warn("revoke access token", zap.Error(err))
		}
	}
	if refreshToken != "" {
		if err := s.tokens.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			s.logger.Warn("revoke refresh session", zap.Error(err))
		}
	}
	return nil
}

func (s *Service) ListUsers(ctx context.Context) ([]store.User, error) {
	return s.store.ListUsers(ctx)
}

// SetUserRole changes another account's role. Admins cannot change their own
// role so the site always keeps at least the acting admin.
func (s *Service) SetUserRole(ctx context.Context, actor Session, userID, role string) (store.User, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if !rbac.Valid(role) {
		var v Validation
		v.add("role", "must be one of viewer, editor, admin")
		return store.User{}, v.Err()
	}
	if userID == actor.UserID {
		return store.User{}, domainError(http.StatusConflict, "OWN_ROLE", "You cannot change your own role", nil)
	}
	if err := s.store.UpdateUserRole(ctx, userID, role); err != nil {
		return store.User{}, err
	}
	s.logger.Info("user role changed", zap.String("user_id", userID), zap.String("role", role), zap.String("by", actor.UserID))
	return s.store.GetUserByID(ctx, userID)
}
