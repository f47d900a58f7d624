package application

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mtreat/mtreat-backend/config"
	"github.com/mtreat/mtreat-backend/internal/domain/entity"
	"github.com/mtreat/mtreat-backend/internal/infrastructure/memory"
	"github.com/mtreat/mtreat-backend/pkg/helpers"
	"github.com/mtreat/mtreat-backend/pkg/mailer"
	tpl "github.com/mtreat/mtreat-backend/pkg/mailer/templates"
)

type fakePublisher struct {
	mu   sync.Mutex
	jobs []mailer.EmailJob
	err  error
}

func (f *fakePublisher) PublishJSON(_ context.Context, body any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, body.(mailer.EmailJob))
	return nil
}

type fakeDirectory struct {
	indexed map[string]entity.Patient
}

func (f *fakeDirectory) Index(_ context.Context, p *entity.Patient) error {
	f.indexed[p.ID] = *p
	return nil
}

func (f *fakeDirectory) Search(_ context.Context, q string, _ int) ([]Profile, error) {
	var out []Profile
	for _, p := range f.indexed {
		if q == "" || p.Username == q {
			out = append(out, ProfileOf(&p))
		}
	}
	return out, nil
}

type fakeRevoker struct {
	revoked map[string]time.Time
}

func (f *fakeRevoker) Revoke(_ context.Context, jti string, until time.Time) error {
	f.revoked[jti] = until
	return nil
}

func (f *fakeRevoker) IsRevoked(_ context.Context, jti string) (bool, error) {
	_, ok := f.revoked[jti]
	return ok, nil
}

type testEnv struct {
	svc     *Service
	repo    *memory.PatientRepository
	pub     *fakePublisher
	dir     *fakeDirectory
	revoker *fakeRevoker
	tokens  *helpers.JWTManager
}

func newTestEnv() *testEnv {
	env := &testEnv{
		repo:    memory.NewPatientRepository(),
		pub:     &fakePublisher{},
		dir:     &fakeDirectory{indexed: map[string]entity.Patient{}},
		revoker: &fakeRevoker{revoked: map[string]time.Time{}},
		tokens:  helpers.NewJWTManager("access", "refresh", time.Minute, time.Hour),
	}
	cfg := &config.Config{AppName: "mtreat", MailSendEnabled: true}
	env.svc = NewService(env.repo, helpers.NewBcryptHasher(bcrypt.MinCost), env.tokens, env.revoker,
		NewEmailNotifier(env.pub, cfg), env.dir, nil)
	return env
}

func aliceInput() RegisterInput {
	return RegisterInput{Username: "alice", Email: "a@x.com", Phone: "1234567890", Address: "1 Rd", Password: "secret"}
}

func mustRegister(t *testing.T, env *testEnv, in RegisterInput) *entity.Patient {
	t.Helper()
	p, err := env.svc.Register(context.Background(), in)
	if err != nil {
		t.Fatalf("register %s: %v", in.Username, err)
	}
	return p
}

func fieldsOf(t *testing.T, err error) map[string]string {
	t.Helper()
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	return ve.Fields
}

func TestRegister_Success(t *testing.T) {
	env := newTestEnv()
	p := mustRegister(t, env, aliceInput())

	if p.ID == "" || !p.IsActive || p.IsStaff {
		t.Errorf("unexpected patient: %+v", p)
	}
	if p.PasswordHash == "secret" || !helpers.CompareHashAndPassword(p.PasswordHash, "secret") {
		t.Error("password must be stored as a bcrypt hash")
	}
	if env.repo.Len() != 1 {
		t.Errorf("expected 1 patient, got %d", env.repo.Len())
	}
	if len(env.pub.jobs) != 1 || env.pub.jobs[0].Template != tpl.Welcome || env.pub.jobs[0].To != "a@x.com" {
		t.Errorf("expected one welcome job, got %+v", env.pub.jobs)
	}
	if _, ok := env.dir.indexed[p.ID]; !ok {
		t.Error("expected patient to be indexed")
	}
}

func TestRegister_TrimsFields(t *testing.T) {
	env := newTestEnv()
	in := aliceInput()
	in.Username = "  alice "
	in.Phone = " 1234567890 "
	p := mustRegister(t, env, in)
	if p.Username != "alice" || p.Phone != "1234567890" {
		t.Errorf("expected trimmed fields, got %q %q", p.Username, p.Phone)
	}
}

func TestRegister_DuplicatePhone(t *testing.T) {
	env := newTestEnv()
	mustRegister(t, env, aliceInput())

	in := aliceInput()
	in.Username = "bob"
	_, err := env.svc.Register(context.Background(), in)
	fields := fieldsOf(t, err)
	if fields["phone"] != msgPhoneTaken {
		t.Errorf("expected phone error, got %v", fields)
	}
	if env.repo.Len() != 1 {
		t.Errorf("row count must be unchanged, got %d", env.repo.Len())
	}
}

func TestRegister_DuplicateUsernameAndPhone(t *testing.T) {
	env := newTestEnv()
	mustRegister(t, env, aliceInput())

	_, err := env.svc.Register(context.Background(), aliceInput())
	fields := fieldsOf(t, err)
	if fields["username"] != msgUsernameTaken || fields["phone"] != msgPhoneTaken {
		t.Errorf("expected both conflicts reported, got %v", fields)
	}
}

func TestRegister_BlankFields(t *testing.T) {
	env := newTestEnv()
	_, err := env.svc.Register(context.Background(), RegisterInput{Username: " ", Email: "a@x.com", Phone: "1", Address: "\t", Password: ""})
	fields := fieldsOf(t, err)
	for _, f := range []string{"username", "address", "password"} {
		if fields[f] != msgBlank {
			t.Errorf("%s: expected blank error, got %q", f, fields[f])
		}
	}
	if env.repo.Len() != 0 {
		t.Error("no patient should be stored")
	}
}

func TestRegister_PasswordOver72Bytes(t *testing.T) {
	env := newTestEnv()
	in := aliceInput()
	in.Password = strings.Repeat("é", 40) // 40 runes, 80 bytes
	_, err := env.svc.Register(context.Background(), in)
	fields := fieldsOf(t, err)
	if fields["password"] != msgPasswordLong {
		t.Errorf("expected password length error, got %v", fields)
	}
	if env.repo.Len() != 0 {
		t.Error("no patient should be stored")
	}

	in.Password = strings.Repeat("é", 36)
	mustRegister(t, env, in)
}

func TestRegister_NotifierFailureDoesNotFail(t *testing.T) {
	env := newTestEnv()
	env.pub.err = errors.New("broker down")
	if _, err := env.svc.Register(context.Background(), aliceInput()); err != nil {
		t.Fatalf("register should succeed when the email queue is down: %v", err)
	}
}

func TestLogin_RoundTrip(t *testing.T) {
	env := newTestEnv()
	reg := mustRegister(t, env, aliceInput())

	p, pair, err := env.svc.Login(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected non-empty tokens")
	}
	if ProfileOf(p) != ProfileOf(reg) {
		t.Errorf("login profile %+v differs from registration %+v", ProfileOf(p), ProfileOf(reg))
	}
	claims, err := env.tokens.VerifyAccess(pair.AccessToken)
	if err != nil || claims.UserID != reg.ID {
		t.Errorf("access token should identify the patient: %v %+v", err, claims)
	}
}

func TestLogin_Failures(t *testing.T) {
	env := newTestEnv()
	mustRegister(t, env, aliceInput())

	hash, err := helpers.NewBcryptHasher(bcrypt.MinCost).Hash("secret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	inactive := &entity.Patient{
		Account: entity.Account{Username: "carol", Email: "c@x.com", PasswordHash: hash},
		Phone:   "999",
		Address: "2 Rd",
	}
	if err := env.repo.Create(context.Background(), inactive); err != nil {
		t.Fatalf("create: %v", err)
	}

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"wrong password", "alice", "wrong"},
		{"unknown user", "nobody", "secret"},
		{"empty password", "alice", ""},
		{"inactive account", "carol", "secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, pair, err := env.svc.Login(context.Background(), tt.username, tt.password)
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("expected ErrInvalidCredentials, got %v", err)
			}
			if p != nil || pair.AccessToken != "" || pair.RefreshToken != "" {
				t.Error("no tokens or profile may be returned on failure")
			}
		})
	}
}

func TestAuthenticate(t *testing.T) {
	env := newTestEnv()
	p := mustRegister(t, env, aliceInput())

	got, err := env.svc.Authenticate(context.Background(), p.ID)
	if err != nil || got.Username != "alice" {
		t.Fatalf("expected alice, got %+v %v", got, err)
	}
	if _, err := env.svc.Authenticate(context.Background(), "missing"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func strPtr(s string) *string { return &s }

func TestUpdateProfile_MergeSemantics(t *testing.T) {
	env := newTestEnv()
	p := mustRegister(t, env, aliceInput())
	ctx := context.Background()

	got, err := env.svc.UpdateProfile(ctx, p.ID, entity.ContactUpdate{Phone: strPtr("555"), Address: strPtr("X")}, RequestMeta{IP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Phone != "555" || got.Address != "X" {
		t.Errorf("unexpected update result: %+v", got)
	}

	got, err = env.svc.UpdateProfile(ctx, p.ID, entity.ContactUpdate{Address: strPtr("Y")}, RequestMeta{})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	stored, _ := env.svc.Authenticate(ctx, p.ID)
	if stored.Phone != "555" || stored.Address != "Y" {
		t.Errorf("expected phone kept and address replaced, got %+v", stored)
	}
	if got.Username != "alice" || got.Email != "a@x.com" {
		t.Error("identity fields must not change")
	}

	// welcome + two updates
	if len(env.pub.jobs) != 3 || env.pub.jobs[1].Template != tpl.ProfileUpdated {
		t.Errorf("unexpected jobs: %+v", env.pub.jobs)
	}
	if env.dir.indexed[p.ID].Address != "Y" {
		t.Error("expected directory to be re-indexed")
	}
}

func TestUpdateProfile_NoChangesNoWrite(t *testing.T) {
	env := newTestEnv()
	p := mustRegister(t, env, aliceInput())

	got, err := env.svc.UpdateProfile(context.Background(), p.ID, entity.ContactUpdate{}, RequestMeta{})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Phone != "1234567890" || got.Address != "1 Rd" {
		t.Errorf("unexpected profile: %+v", got)
	}
	if len(env.pub.jobs) != 1 {
		t.Errorf("no profile email expected, got %d jobs", len(env.pub.jobs))
	}
}

func TestUpdateProfile_DuplicatePhone(t *testing.T) {
	env := newTestEnv()
	alice := mustRegister(t, env, aliceInput())
	bob := aliceInput()
	bob.Username = "bob"
	bob.Phone = "222"
	mustRegister(t, env, bob)

	_, err := env.svc.UpdateProfile(context.Background(), alice.ID, entity.ContactUpdate{Phone: strPtr("222"), Address: strPtr("New")}, RequestMeta{})
	fields := fieldsOf(t, err)
	if fields["phone"] != msgPhoneTaken {
		t.Errorf("expected phone conflict, got %v", fields)
	}
	stored, _ := env.svc.Authenticate(context.Background(), alice.ID)
	if stored.Address != "1 Rd" || stored.Phone != "1234567890" {
		t.Errorf("no partial write allowed, got %+v", stored)
	}
}

func TestUpdateProfile_OwnPhoneIsNotAConflict(t *testing.T) {
	env := newTestEnv()
	p := mustRegister(t, env, aliceInput())
	if _, err := env.svc.UpdateProfile(context.Background(), p.ID, entity.ContactUpdate{Phone: strPtr("1234567890")}, RequestMeta{}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestUpdateProfile_Blank(t *testing.T) {
	env := newTestEnv()
	p := mustRegister(t, env, aliceInput())
	_, err := env.svc.UpdateProfile(context.Background(), p.ID, entity.ContactUpdate{Phone: strPtr("  ")}, RequestMeta{})
	if fieldsOf(t, err)["phone"] != msgBlank {
		t.Errorf("expected blank phone error, got %v", err)
	}
}

func TestRefreshAndLogout(t *testing.T) {
	env := newTestEnv()
	p := mustRegister(t, env, aliceInput())
	ctx := context.Background()
	_, pair, err := env.svc.Login(ctx, "alice", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	access, exp, err := env.svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if access == "" || exp.IsZero() {
		t.Fatal("expected a new access token")
	}
	if _, err := env.tokens.VerifyAccess(access); err != nil {
		t.Errorf("refreshed access token should verify: %v", err)
	}

	if _, _, err := env.svc.Refresh(ctx, pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("access token must not refresh, got %v", err)
	}

	// someone else's id: ignored
	if err := env.svc.Logout(ctx, "other", pair.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if len(env.revoker.revoked) != 0 {
		t.Error("foreign refresh token must not be revoked")
	}

	if err := env.svc.Logout(ctx, p.ID, pair.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, _, err := env.svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("revoked refresh token must fail, got %v", err)
	}
}

func TestSearchDirectory(t *testing.T) {
	env := newTestEnv()
	p := mustRegister(t, env, aliceInput())

	if _, err := env.svc.SearchDirectory(context.Background(), p, "alice", 10); !errors.Is(err, ErrForbidden) {
		t.Errorf("non-staff search must be forbidden, got %v", err)
	}

	staff := &entity.Patient{Account: entity.Account{IsStaff: true, IsActive: true}}
	res, err := env.svc.SearchDirectory(context.Background(), staff, "alice", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res) != 1 || res[0].Username != "alice" {
		t.Errorf("unexpected results: %+v", res)
	}

	env.svc.Directory = nil
	res, err = env.svc.SearchDirectory(context.Background(), staff, "alice", 10)
	if err != nil || len(res) != 0 {
		t.Errorf("expected empty results without a directory, got %v %v", res, err)
	}
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"phone": "b", "address": "a"}}
	if got := err.Error(); got != "validation failed: address: a; phone: b" {
		t.Errorf("unexpected message %q", got)
	}
}
