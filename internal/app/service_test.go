package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"diocese/api/internal/authpw"
	"diocese/api/internal/config"
	"diocese/api/internal/email"
	"diocese/api/internal/history"
	"diocese/api/internal/search"
	"diocese/api/internal/store"
	"diocese/api/internal/templates"
)

// fakeStore keeps users, tokens and parishes in memory; every other call goes
// through an optional xxxFn hook. A parish hook, when set, replaces the
// in-memory behaviour for that call.
type fakeStore struct {
	mu            sync.Mutex
	users         map[string]store.User
	refresh       map[string]string
	revokedAccess map[string]bool
	parishes      map[string]store.Parish

	pingFn                func(context.Context) error
	getArchdeaconryFn     func(context.Context, string) (store.Archdeaconry, error)
	insertArchdeaconryFn  func(context.Context, store.Archdeaconry) error
	deleteArchdeaconryFn  func(context.Context, string) error
	listParishesFn        func(context.Context, store.ParishFilter) ([]store.Parish, error)
	getParishFn           func(context.Context, string) (store.Parish, error)
	insertParishFn        func(context.Context, store.Parish) error
	updateParishFn        func(context.Context, store.Parish) error
	deleteParishFn        func(context.Context, string) error
	getPriestFn           func(context.Context, string) (store.Priest, error)
	insertPriestFn        func(context.Context, store.Priest) error
	listEventsFn          func(context.Context, store.EventFilter) ([]store.Event, error)
	getEventFn            func(context.Context, string) (store.Event, error)
	insertEventFn         func(context.Context, store.Event) error
	insertContactFn       func(context.Context, store.Contact) (store.Contact, error)
	setContactReadFn      func(context.Context, string, bool) (store.Contact, error)
	getChargeFn           func(context.Context, string) (store.BishopCharge, error)
	getActiveChargeFn     func(context.Context) (*store.BishopCharge, error)
	insertChargeFn        func(context.Context, store.BishopCharge) (store.BishopCharge, error)
	updateChargeFn        func(context.Context, store.BishopCharge) (store.BishopCharge, error)
	updateChargeContentFn func(context.Context, string, string) (store.BishopCharge, error)
	activateChargeFn      func(context.Context, string) (store.BishopCharge, error)
	deleteChargeFn        func(context.Context, string) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:         make(map[string]store.User),
		refresh:       make(map[string]string),
		revokedAccess: make(map[string]bool),
		parishes:      make(map[string]store.Parish),
	}
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) CountUsers(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users), nil
}
func (f *fakeStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user, ok := f.users[id]; ok {
		return user, nil
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) findUser(match func(store.User) bool) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if match(user) {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) GetUserByUsername(_ context.Context, username string) (store.User, error) {
	return f.findUser(func(u store.User) bool { return strings.EqualFold(u.Username, username) })
}
func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	return f.findUser(func(u store.User) bool { return strings.EqualFold(u.Email, email) })
}
func (f *fakeStore) InsertUser(_ context.Context, user store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user.CreatedAt = time.Now()
	f.users[user.ID] = user
	return nil
}
func (f *fakeStore) ListUsers(context.Context) ([]store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	users := make([]store.User, 0, len(f.users))
	for _, user := range f.users {
		users = append(users, user)
	}
	return users, nil
}
func (f *fakeStore) UpdateUserRole(_ context.Context, id, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	user.Role = role
	f.users[id] = user
	return nil
}

func (f *fakeStore) SaveRefreshSession(_ context.Context, tokenHash, userID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh[tokenHash] = userID
	return nil
}
func (f *fakeStore) LookupRefreshSession(_ context.Context, tokenHash string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if userID, ok := f.refresh[tokenHash]; ok {
		return userID, nil
	}
	return "", sql.ErrNoRows
}
func (f *fakeStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.refresh, tokenHash)
	return nil
}
func (f *fakeStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokedAccess[jti] = true
	return nil
}
func (f *fakeStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revokedAccess[jti], nil
}

func (f *fakeStore) ListArchdeaconries(context.Context) ([]store.Archdeaconry, error) {
	return []store.Archdeaconry{}, nil
}
func (f *fakeStore) GetArchdeaconry(ctx context.Context, id string) (store.Archdeaconry, error) {
	if f.getArchdeaconryFn != nil {
		return f.getArchdeaconryFn(ctx, id)
	}
	return store.Archdeaconry{}, sql.ErrNoRows
}
func (f *fakeStore) InsertArchdeaconry(ctx context.Context, item store.Archdeaconry) error {
	if f.insertArchdeaconryFn != nil {
		return f.insertArchdeaconryFn(ctx, item)
	}
	return nil
}
func (f *fakeStore) UpdateArchdeaconry(context.Context, store.Archdeaconry) error { return nil }
func (f *fakeStore) DeleteArchdeaconry(ctx context.Context, id string) error {
	if f.deleteArchdeaconryFn != nil {
		return f.deleteArchdeaconryFn(ctx, id)
	}
	return nil
}

func (f *fakeStore) ListParishes(ctx context.Context, filter store.ParishFilter) ([]store.Parish, error) {
	if f.listParishesFn != nil {
		return f.listParishesFn(ctx, filter)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.Parish, 0, len(f.parishes))
	for _, item := range f.parishes {
		items = append(items, item)
	}
	return items, nil
}
func (f *fakeStore) GetParish(ctx context.Context, id string) (store.Parish, error) {
	if f.getParishFn != nil {
		return f.getParishFn(ctx, id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if item, ok := f.parishes[id]; ok {
		return item, nil
	}
	return store.Parish{}, sql.ErrNoRows
}
func (f *fakeStore) InsertParish(ctx context.Context, item store.Parish) error {
	if f.insertParishFn != nil {
		return f.insertParishFn(ctx, item)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	item.CreatedAt = time.Now()
	item.UpdatedAt = item.CreatedAt
	f.parishes[item.ID] = item
	return nil
}
func (f *fakeStore) UpdateParish(ctx context.Context, item store.Parish) error {
	if f.updateParishFn != nil {
		return f.updateParishFn(ctx, item)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.parishes[item.ID]; !ok {
		return sql.ErrNoRows
	}
	item.UpdatedAt = time.Now()
	f.parishes[item.ID] = item
	return nil
}
func (f *fakeStore) DeleteParish(ctx context.Context, id string) error {
	if f.deleteParishFn != nil {
		return f.deleteParishFn(ctx, id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.parishes[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.parishes, id)
	return nil
}

func (f *fakeStore) storedParishes() []store.Parish {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.Parish, 0, len(f.parishes))
	for _, item := range f.parishes {
		items = append(items, item)
	}
	return items
}

func (f *fakeStore) ListPriests(context.Context, store.PriestFilter) ([]store.Priest, error) {
	return []store.Priest{}, nil
}
func (f *fakeStore) GetPriest(ctx context.Context, id string) (store.Priest, error) {
	if f.getPriestFn != nil {
		return f.getPriestFn(ctx, id)
	}
	return store.Priest{}, sql.ErrNoRows
}
func (f *fakeStore) InsertPriest(ctx context.Context, item store.Priest) error {
	if f.insertPriestFn != nil {
		return f.insertPriestFn(ctx, item)
	}
	return nil
}
func (f *fakeStore) UpdatePriest(context.Context, store.Priest) error { return nil }
func (f *fakeStore) DeletePriest(context.Context, string) error       { return nil }

func (f *fakeStore) ListEvents(ctx context.Context, filter store.EventFilter) ([]store.Event, error) {
	if f.listEventsFn != nil {
		return f.listEventsFn(ctx, filter)
	}
	return []store.Event{}, nil
}
func (f *fakeStore) GetEvent(ctx context.Context, id string) (store.Event, error) {
	if f.getEventFn != nil {
		return f.getEventFn(ctx, id)
	}
	return store.Event{}, sql.ErrNoRows
}
func (f *fakeStore) InsertEvent(ctx context.Context, item store.Event) error {
	if f.insertEventFn != nil {
		return f.insertEventFn(ctx, item)
	}
	return nil
}
func (f *fakeStore) UpdateEvent(context.Context, store.Event) error { return nil }
func (f *fakeStore) DeleteEvent(context.Context, string) error      { return nil }

func (f *fakeStore) InsertContact(ctx context.Context, item store.Contact) (store.Contact, error) {
	if f.insertContactFn != nil {
		return f.insertContactFn(ctx, item)
	}
	item.CreatedAt = time.Now()
	return item, nil
}
func (f *fakeStore) ListContacts(context.Context, store.ContactFilter) ([]store.Contact, error) {
	return []store.Contact{}, nil
}
func (f *fakeStore) SetContactRead(ctx context.Context, id string, read bool) (store.Contact, error) {
	if f.setContactReadFn != nil {
		return f.setContactReadFn(ctx, id, read)
	}
	return store.Contact{}, sql.ErrNoRows
}
func (f *fakeStore) DeleteContact(context.Context, string) error { return nil }

func (f *fakeStore) ListCharges(context.Context) ([]store.BishopCharge, error) {
	return []store.BishopCharge{}, nil
}
func (f *fakeStore) GetCharge(ctx context.Context, id string) (store.BishopCharge, error) {
	if f.getChargeFn != nil {
		return f.getChargeFn(ctx, id)
	}
	return store.BishopCharge{}, sql.ErrNoRows
}
func (f *fakeStore) GetActiveCharge(ctx context.Context) (*store.BishopCharge, error) {
	if f.getActiveChargeFn != nil {
		return f.getActiveChargeFn(ctx)
	}
	return nil, nil
}
func (f *fakeStore) InsertCharge(ctx context.Context, item store.BishopCharge) (store.BishopCharge, error) {
	if f.insertChargeFn != nil {
		return f.insertChargeFn(ctx, item)
	}
	return item, nil
}
func (f *fakeStore) UpdateCharge(ctx context.Context, item store.BishopCharge) (store.BishopCharge, error) {
	if f.updateChargeFn != nil {
		return f.updateChargeFn(ctx, item)
	}
	return item, nil
}
func (f *fakeStore) UpdateChargeContent(ctx context.Context, id, content string) (store.BishopCharge, error) {
	if f.updateChargeContentFn != nil {
		return f.updateChargeContentFn(ctx, id, content)
	}
	return store.BishopCharge{ID: id, Content: content}, nil
}
func (f *fakeStore) ActivateCharge(ctx context.Context, id string) (store.BishopCharge, error) {
	if f.activateChargeFn != nil {
		return f.activateChargeFn(ctx, id)
	}
	return store.BishopCharge{ID: id, IsActive: true}, nil
}
func (f *fakeStore) DeleteCharge(ctx context.Context, id string) error {
	if f.deleteChargeFn != nil {
		return f.deleteChargeFn(ctx, id)
	}
	return nil
}

type commitCall struct {
	chargeID string
	content  history.Content
	author   string
	message  string
}

type fakeHistory struct {
	mu      sync.Mutex
	commits []commitCall
	removed []string
	getFn   func(string, string) (history.Revision, history.Content, error)
}

func (f *fakeHistory) Commit(chargeID string, content history.Content, author, message string) (history.Revision, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits = append(f.commits, commitCall{chargeID: chargeID, content: content, author: author, message: message})
	return history.Revision{Hash: "abc1234", Message: message, Author: author}, true, nil
}
func (f *fakeHistory) History(string, int) ([]history.Revision, error) {
	return []history.Revision{}, nil
}
func (f *fakeHistory) Get(chargeID, hash string) (history.Revision, history.Content, error) {
	if f.getFn != nil {
		return f.getFn(chargeID, hash)
	}
	return history.Revision{}, history.Content{}, history.ErrRevisionNotFound
}
func (f *fakeHistory) Remove(chargeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, chargeID)
	return nil
}
func (f *fakeHistory) Commits() []commitCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]commitCall(nil), f.commits...)
}

type fakeSearch struct {
	parishes []search.ParishRecord
	deleted  []string
}

func (f *fakeSearch) Search(_ context.Context, q search.Query) search.Response {
	return search.Response{Results: []search.Result{}, Query: q.Text, Engine: "fake"}
}
func (f *fakeSearch) IndexParish(r search.ParishRecord)       { f.parishes = append(f.parishes, r) }
func (f *fakeSearch) IndexPriest(search.PriestRecord)         {}
func (f *fakeSearch) IndexEvent(search.EventRecord)           {}
func (f *fakeSearch) Delete(typ search.ResultType, id string) { f.deleted = append(f.deleted, string(typ)+":"+id) }

type fakeMailer struct {
	configured bool
	err        error
	sent       []email.ContactNotice
	to         []string
}

func (f *fakeMailer) IsConfigured() bool { return f.configured }
func (f *fakeMailer) SendContactNotification(office string, notice email.ContactNotice) error {
	f.to = append(f.to, office)
	f.sent = append(f.sent, notice)
	return f.err
}

func newTestService(fs *fakeStore) *Service {
	cfg := config.Config{
		JWTSecret:         "test-secret",
		AccessTTL:         time.Hour,
		RefreshTTL:        24 * time.Hour,
		AllowRegistration: true,
		AutosaveDelay:     time.Hour,
		DraftTTL:          30 * time.Minute,
	}
	svc := New(cfg, nil, Options{Templates: templates.MustCatalog()})
	svc.store = fs
	svc.tokens = fs
	svc.passwords = authpw.NewService(fs).WithCost(bcrypt.MinCost)
	return svc
}

func requireDomainError(t *testing.T, err error, status int, code string) *DomainError {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected domain error %s, got %v", code, err)
	}
	if domainErr.Status != status || domainErr.Code != code {
		t.Fatalf("expected %d %s, got %d %s", status, code, domainErr.Status, domainErr.Code)
	}
	return domainErr
}

func fieldNames(t *testing.T, err error) []string {
	t.Helper()
	domainErr := requireDomainError(t, err, http.StatusBadRequest, "VALIDATION_ERROR")
	details, ok := domainErr.Details.(map[string]any)
	if !ok {
		t.Fatalf("expected details map, got %T", domainErr.Details)
	}
	fields, ok := details["fields"].([]FieldError)
	if !ok {
		t.Fatalf("expected field errors, got %T", details["fields"])
	}
	names := make([]string, 0, len(fields))
	for _, field := range fields {
		names = append(names, field.Field)
	}
	return names
}

func register(t *testing.T, svc *Service, username, email string) store.User {
	t.Helper()
	user, err := svc.Register(context.Background(), RegisterInput{Username: username, Email: email, Password: "charge2024"})
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return user
}

func TestRegisterFirstUserIsAdminLaterUsersAreEditors(t *testing.T) {
	svc := newTestService(newFakeStore())

	first := register(t, svc, "bishop", "bishop@diocese.org")
	second := register(t, svc, "secretary", "office@diocese.org")

	if first.Role != "admin" {
		t.Fatalf("expected first user to be admin, got %q", first.Role)
	}
	if second.Role != "editor" {
		t.Fatalf("expected second user to be editor, got %q", second.Role)
	}
}

func TestRegisterRejectsInvalidAccounts(t *testing.T) {
	svc := newTestService(newFakeStore())
	register(t, svc, "bishop", "bishop@diocese.org")

	tests := []struct {
		name  string
		input RegisterInput
		code  string
	}{
		{"duplicate username", RegisterInput{Username: "Bishop", Email: "other@diocese.org", Password: "charge2024"}, "USERNAME_TAKEN"},
		{"duplicate email", RegisterInput{Username: "other", Email: "BISHOP@diocese.org", Password: "charge2024"}, "EMAIL_TAKEN"},
		{"short password", RegisterInput{Username: "other", Email: "other@diocese.org", Password: "ab1"}, "WEAK_PASSWORD"},
		{"password without digit", RegisterInput{Username: "other", Email: "other@diocese.org", Password: "onlyletters"}, "WEAK_PASSWORD"},
		{"password without letter", RegisterInput{Username: "other", Email: "other@diocese.org", Password: "1234567890"}, "WEAK_PASSWORD"},
		{"missing email", RegisterInput{Username: "other", Password: "charge2024"}, "MISSING_FIELDS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.input)
			requireDomainError(t, err, http.StatusBadRequest, tt.code)
		})
	}
}

func TestRegisterClosed(t *testing.T) {
	svc := newTestService(newFakeStore())
	svc.cfg.AllowRegistration = false

	_, err := svc.Register(context.Background(), RegisterInput{Username: "bishop", Email: "bishop@diocese.org", Password: "charge2024"})
	requireDomainError(t, err, http.StatusForbidden, "REGISTRATION_CLOSED")
}

func TestSignInRefreshRotatesTokens(t *testing.T) {
	svc := newTestService(newFakeStore())
	register(t, svc, "bishop", "bishop@diocese.org")
	ctx := context.Background()

	if _, err := svc.SignIn(ctx, "bishop", "wrong-pass1"); err == nil {
		t.Fatalf("expected wrong password to fail")
	} else {
		requireDomainError(t, err, http.StatusUnauthorized, "INVALID_CREDENTIALS")
	}

	session, err := svc.SignIn(ctx, "bishop@diocese.org", "charge2024")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if session.Token == "" || session.RefreshToken == "" {
		t.Fatalf("expected access and refresh tokens, got %+v", session)
	}

	refreshed, err := svc.Refresh(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.RefreshToken == session.RefreshToken {
		t.Fatalf("expected a new refresh token")
	}
	if _, err := svc.Refresh(ctx, session.RefreshToken); err == nil {
		t.Fatalf("expected the rotated refresh token to be rejected")
	}
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	svc := newTestService(newFakeStore())
	register(t, svc, "bishop", "bishop@diocese.org")
	ctx := context.Background()

	session, err := svc.SignIn(ctx, "bishop", "charge2024")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	current, err := svc.SessionFromToken(ctx, session.Token)
	if err != nil {
		t.Fatalf("session from token: %v", err)
	}
	if err := svc.Logout(ctx, current, session.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.SessionFromToken(ctx, session.Token); err == nil {
		t.Fatalf("expected revoked token to be rejected")
	}
	if _, err := svc.Refresh(ctx, session.RefreshToken); err == nil {
		t.Fatalf("expected revoked refresh token to be rejected")
	}
}

func TestSetUserRole(t *testing.T) {
	svc := newTestService(newFakeStore())
	admin := register(t, svc, "bishop", "bishop@diocese.org")
	editor := register(t, svc, "secretary", "office@diocese.org")
	actor := Session{UserID: admin.ID, Role: admin.Role}
	ctx := context.Background()

	updated, err := svc.SetUserRole(ctx, actor, editor.ID, "Viewer")
	if err != nil {
		t.Fatalf("set role: %v", err)
	}
	if updated.Role != "viewer" {
		t.Fatalf("expected viewer, got %q", updated.Role)
	}

	_, err = svc.SetUserRole(ctx, actor, admin.ID, "editor")
	requireDomainError(t, err, http.StatusConflict, "OWN_ROLE")

	_, err = svc.SetUserRole(ctx, actor, editor.ID, "archbishop")
	if names := fieldNames(t, err); len(names) != 1 || names[0] != "role" {
		t.Fatalf("expected role field error, got %v", names)
	}
}

func TestCreateParishValidatesRequiredFields(t *testing.T) {
	fs := newFakeStore()
	fs.insertParishFn = func(context.Context, store.Parish) error {
		t.Fatalf("invalid parish must not be stored")
		return nil
	}
	svc := newTestService(fs)

	_, err := svc.CreateParish(context.Background(), ParishInput{Email: "not-an-email", Latitude: "91"})
	names := fieldNames(t, err)
	want := []string{"name", "address", "email", "latitude"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("expected fields %v, got %v", want, names)
	}
}

func TestCreateParishReportsUnknownArchdeaconry(t *testing.T) {
	fs := newFakeStore()
	fs.insertParishFn = func(context.Context, store.Parish) error {
		return store.ErrInvalidReference
	}
	svc := newTestService(fs)
	missing := "arc_missing"

	_, err := svc.CreateParish(context.Background(), ParishInput{Name: "St Mark", Address: "1 Church Rd", ArchdeaconryID: &missing})
	if names := fieldNames(t, err); len(names) != 1 || names[0] != "archdeaconryId" {
		t.Fatalf("expected archdeaconryId field error, got %v", names)
	}
}

func TestUpdateParishMergesPatchAndReindexes(t *testing.T) {
	arc := "arc_1"
	stored := store.Parish{ID: "par_1", Name: "St Mark", Address: "1 Church Rd", Phone: "111", ArchdeaconryID: &arc, ArchdeaconryName: "North"}
	var written store.Parish
	fs := newFakeStore()
	fs.getParishFn = func(context.Context, string) (store.Parish, error) {
		if written.ID != "" {
			return written, nil
		}
		return stored, nil
	}
	fs.updateParishFn = func(_ context.Context, item store.Parish) error {
		written = item
		return nil
	}
	idx := &fakeSearch{}
	svc := newTestService(fs)
	svc.search = idx

	phone := " 222 "
	empty := ""
	saved, err := svc.UpdateParish(context.Background(), "par_1", ParishPatch{Phone: &phone, ArchdeaconryID: &empty})
	if err != nil {
		t.Fatalf("update parish: %v", err)
	}
	if saved.Name != "St Mark" || saved.Address != "1 Church Rd" {
		t.Fatalf("expected untouched fields to survive, got %+v", saved)
	}
	if saved.Phone != "222" {
		t.Fatalf("expected trimmed phone, got %q", saved.Phone)
	}
	if saved.ArchdeaconryID != nil {
		t.Fatalf("expected empty archdeaconryId to detach the parish")
	}
	if len(idx.parishes) != 1 || idx.parishes[0].ID != "par_1" {
		t.Fatalf("expected parish to be reindexed, got %+v", idx.parishes)
	}
}

func TestUpdateParishUnknownID(t *testing.T) {
	svc := newTestService(newFakeStore())
	_, err := svc.UpdateParish(context.Background(), "par_missing", ParishPatch{})
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteArchdeaconryInUse(t *testing.T) {
	fs := newFakeStore()
	fs.deleteArchdeaconryFn = func(context.Context, string) error {
		return store.ErrInUse
	}
	svc := newTestService(fs)

	err := svc.DeleteArchdeaconry(context.Background(), "arc_1")
	requireDomainError(t, err, http.StatusConflict, "ARCHDEACONRY_IN_USE")
}

func TestDeleteParishRemovesFromIndex(t *testing.T) {
	idx := &fakeSearch{}
	fs := newFakeStore()
	fs.parishes["par_1"] = store.Parish{ID: "par_1", Name: "St Mark", Address: "1 Church Rd"}
	svc := newTestService(fs)
	svc.search = idx

	if err := svc.DeleteParish(context.Background(), "par_1"); err != nil {
		t.Fatalf("delete parish: %v", err)
	}
	if len(idx.deleted) != 1 || idx.deleted[0] != "parish:par_1" {
		t.Fatalf("expected index delete, got %v", idx.deleted)
	}
	if len(fs.storedParishes()) != 0 {
		t.Fatalf("expected parish row to be removed")
	}
}

func TestListEventsClampsLimit(t *testing.T) {
	var limits []int
	fs := newFakeStore()
	fs.listEventsFn = func(_ context.Context, filter store.EventFilter) ([]store.Event, error) {
		limits = append(limits, filter.Limit)
		return []store.Event{}, nil
	}
	svc := newTestService(fs)
	ctx := context.Background()

	for _, limit := range []int{0, 10, 1000} {
		if _, err := svc.ListEvents(ctx, store.EventFilter{Limit: limit}); err != nil {
			t.Fatalf("list events: %v", err)
		}
	}
	if limits[0] != 50 || limits[1] != 10 || limits[2] != 200 {
		t.Fatalf("expected limits 50,10,200 got %v", limits)
	}
}

func TestCreateEventDefaultsCategory(t *testing.T) {
	var inserted store.Event
	fs := newFakeStore()
	fs.insertEventFn = func(_ context.Context, item store.Event) error {
		inserted = item
		return nil
	}
	fs.getEventFn = func(context.Context, string) (store.Event, error) {
		return inserted, nil
	}
	svc := newTestService(fs)

	saved, err := svc.CreateEvent(context.Background(), EventInput{Title: "Synod", Date: "2026-11-01"})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	if saved.Category != "general" {
		t.Fatalf("expected general category, got %q", saved.Category)
	}
	if !saved.Date.Equal(time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date %v", saved.Date)
	}
	if !strings.HasPrefix(saved.ID, "evt_") {
		t.Fatalf("expected evt_ id, got %q", saved.ID)
	}

	_, err = svc.CreateEvent(context.Background(), EventInput{Title: "Picnic", Date: "tomorrow", Category: "party"})
	names := fieldNames(t, err)
	if strings.Join(names, ",") != "date,category" {
		t.Fatalf("expected date and category errors, got %v", names)
	}
}

func TestCreateChargeSanitisesAndRecordsRevision(t *testing.T) {
	var inserted store.BishopCharge
	fs := newFakeStore()
	fs.insertChargeFn = func(_ context.Context, item store.BishopCharge) (store.BishopCharge, error) {
		inserted = item
		return item, nil
	}
	hist := &fakeHistory{}
	svc := newTestService(fs)
	svc.history = hist

	saved, err := svc.CreateCharge(context.Background(), Session{UserName: "bishop"}, ChargeInput{
		Title:   "  Advent Charge ",
		Content: `<p onclick="steal()">Beloved</p><script>alert(1)</script>`,
	})
	if err != nil {
		t.Fatalf("create charge: %v", err)
	}
	if saved.Title != "Advent Charge" {
		t.Fatalf("expected trimmed title, got %q", saved.Title)
	}
	if strings.Contains(inserted.Content, "script") || strings.Contains(inserted.Content, "onclick") {
		t.Fatalf("expected sanitised content, got %q", inserted.Content)
	}
	commits := hist.Commits()
	if len(commits) != 1 || commits[0].author != "bishop" || commits[0].message != "Create charge" {
		t.Fatalf("unexpected commits %+v", commits)
	}
}

func TestCreateChargeRequiresContent(t *testing.T) {
	svc := newTestService(newFakeStore())
	_, err := svc.CreateCharge(context.Background(), Session{}, ChargeInput{Title: "Empty", Content: "<p> </p><script>x</script>"})
	if names := fieldNames(t, err); len(names) != 1 || names[0] != "content" {
		t.Fatalf("expected content field error, got %v", names)
	}
}

func TestDeleteChargeRemovesHistory(t *testing.T) {
	fs := newFakeStore()
	fs.getChargeFn = func(_ context.Context, id string) (store.BishopCharge, error) {
		return store.BishopCharge{ID: id}, nil
	}
	hist := &fakeHistory{}
	svc := newTestService(fs)
	svc.history = hist

	if err := svc.DeleteCharge(context.Background(), "chg_1"); err != nil {
		t.Fatalf("delete charge: %v", err)
	}
	if len(hist.removed) != 1 || hist.removed[0] != "chg_1" {
		t.Fatalf("expected history removal, got %v", hist.removed)
	}
}

func TestChargeRevisionDiffsAgainstStoredCharge(t *testing.T) {
	fs := newFakeStore()
	fs.getChargeFn = func(_ context.Context, id string) (store.BishopCharge, error) {
		return store.BishopCharge{ID: id, Title: "Lent", Content: "<p>New</p>"}, nil
	}
	hist := &fakeHistory{
		getFn: func(_, hash string) (history.Revision, history.Content, error) {
			if hash != "abc1234" {
				return history.Revision{}, history.Content{}, history.ErrRevisionNotFound
			}
			return history.Revision{Hash: hash}, history.Content{Title: "Lent", Content: "<p>Old</p>"}, nil
		},
	}
	svc := newTestService(fs)
	svc.history = hist
	ctx := context.Background()

	rev, err := svc.ChargeRevision(ctx, "chg_1", "abc1234")
	if err != nil {
		t.Fatalf("charge revision: %v", err)
	}
	if len(rev.Changes) != 1 || rev.Changes[0].Field != "content" {
		t.Fatalf("expected a content change, got %+v", rev.Changes)
	}

	_, err = svc.ChargeRevision(ctx, "chg_1", "fffffff")
	requireDomainError(t, err, http.StatusNotFound, "REVISION_NOT_FOUND")
}

func TestChargeHistoryUnavailableWithoutHistory(t *testing.T) {
	svc := newTestService(newFakeStore())
	_, err := svc.ChargeHistory(context.Background(), "chg_1", 0)
	requireDomainError(t, err, http.StatusServiceUnavailable, "HISTORY_UNAVAILABLE")
}

func TestSubmitContactNotifiesOffice(t *testing.T) {
	mail := &fakeMailer{configured: true}
	svc := newTestService(newFakeStore())
	svc.email = mail
	svc.cfg.OfficeEmail = "office@diocese.org"

	saved, err := svc.SubmitContact(context.Background(), ContactInput{
		FirstName: "Ada",
		LastName:  "Obi",
		Email:     "ada@example.com",
		Subject:   "Baptism",
		Message:   "When are baptisms held?",
	})
	if err != nil {
		t.Fatalf("submit contact: %v", err)
	}
	if saved.IsRead {
		t.Fatalf("new contact must be unread")
	}
	if len(mail.sent) != 1 || mail.to[0] != "office@diocese.org" || mail.sent[0].Subject != "Baptism" {
		t.Fatalf("expected office notification, got %+v", mail.sent)
	}
}

func TestSubmitContactSurvivesMailFailure(t *testing.T) {
	mail := &fakeMailer{configured: true, err: errors.New("smtp down")}
	svc := newTestService(newFakeStore())
	svc.email = mail
	svc.cfg.OfficeEmail = "office@diocese.org"

	_, err := svc.SubmitContact(context.Background(), ContactInput{
		FirstName: "Ada",
		LastName:  "Obi",
		Email:     "ada@example.com",
		Subject:   "Baptism",
		Message:   "Hello",
	})
	if err != nil {
		t.Fatalf("expected submission to succeed, got %v", err)
	}
}

func TestSubmitContactValidates(t *testing.T) {
	svc := newTestService(newFakeStore())
	_, err := svc.SubmitContact(context.Background(), ContactInput{Email: "nope"})
	names := fieldNames(t, err)
	want := "firstName,lastName,email,subject,message"
	if strings.Join(names, ",") != want {
		t.Fatalf("expected %s, got %v", want, names)
	}
}
