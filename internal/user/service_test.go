package user

import (
	"context"
	"testing"
)

// memRepo is an in-memory ImportRepo for tests.
type memRepo struct {
	users map[string]*User
}

func newMemRepo() *memRepo {
	return &memRepo{users: make(map[string]*User)}
}

func (m *memRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	u, ok := m.users[NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memRepo) Create(_ context.Context, in CreateUserInput) (*User, error) {
	u := &User{
		Email:              NormalizeEmail(in.Email),
		Name:               in.Name,
		Department:         in.Department,
		ManagerEmail:       in.ManagerEmail,
		Roles:              in.Roles,
		PasswordHash:       in.PasswordHash,
		MustChangePassword: in.MustChangePassword,
		IsActive:           true,
	}
	m.users[u.Email] = u
	return u, nil
}

func (m *memRepo) Update(_ context.Context, email string, in UpdateUserInput) (*User, error) {
	u, ok := m.users[NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	if in.Name != nil {
		u.Name = *in.Name
	}
	if in.Department != nil {
		u.Department = *in.Department
	}
	if in.ManagerEmail != nil {
		u.ManagerEmail = *in.ManagerEmail
	}
	if in.Roles != nil {
		u.Roles = *in.Roles
	}
	if in.IsActive != nil {
		u.IsActive = *in.IsActive
	}
	return u, nil
}

func strPtr(s string) *string { return &s }

func TestImport_CreatesWithGeneratedCredentials(t *testing.T) {
	repo := newMemRepo()
	im := NewImporter(repo)

	result, err := im.Import(context.Background(), []ImportRecord{
		{EmployeeEmail: "A@X.com", EmployeeName: "Alice", ManagerEmail: strPtr("B@x.com"), Department: "Eng"},
		{EmployeeEmail: "b@x.com", EmployeeName: "Bob", IsAdmin: true},
	})
	if err != nil {
		t.Fatalf("Import() error: %v", err)
	}

	if result.Created != 2 || result.Updated != 0 {
		t.Errorf("expected 2 created / 0 updated, got %d / %d", result.Created, result.Updated)
	}
	if len(result.Credentials) != 2 {
		t.Fatalf("expected 2 generated credentials, got %d", len(result.Credentials))
	}
	for _, cred := range result.Credentials {
		if cred.Password == "" {
			t.Errorf("empty generated password for %s", cred.Email)
		}
	}

	alice, err := repo.GetByEmail(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("expected alice to exist under normalized email: %v", err)
	}
	if alice.ManagerEmail == nil || *alice.ManagerEmail != "b@x.com" {
		t.Errorf("expected normalized manager email b@x.com, got %v", alice.ManagerEmail)
	}
	if !alice.MustChangePassword {
		t.Error("imported user should be flagged must_change_password")
	}
	if alice.PasswordHash == "" {
		t.Error("imported user should have a password hash")
	}
	for _, cred := range result.Credentials {
		if cred.Email == "a@x.com" && cred.Password == alice.PasswordHash {
			t.Error("stored hash must not equal the plaintext credential")
		}
	}

	bob, _ := repo.GetByEmail(context.Background(), "b@x.com")
	if !bob.IsAdmin() {
		t.Error("is_admin record should produce the admin role")
	}
	if !bob.HasRole(RoleEmployee) {
		t.Error("every imported user should carry the employee role")
	}
}

func TestImport_UpdatesExistingWithoutNewCredentials(t *testing.T) {
	repo := newMemRepo()
	im := NewImporter(repo)

	first, err := im.Import(context.Background(), []ImportRecord{
		{EmployeeEmail: "a@x.com", EmployeeName: "Alice"},
	})
	if err != nil {
		t.Fatal(err)
	}
	originalHash := repo.users["a@x.com"].PasswordHash

	second, err := im.Import(context.Background(), []ImportRecord{
		{EmployeeEmail: "a@x.com", EmployeeName: "Alice Smith", Department: "Sales"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if second.Created != 0 || second.Updated != 1 {
		t.Errorf("expected 0 created / 1 updated, got %d / %d", second.Created, second.Updated)
	}
	if len(second.Credentials) != 0 {
		t.Errorf("re-import must not generate new credentials, got %d", len(second.Credentials))
	}
	if repo.users["a@x.com"].PasswordHash != originalHash {
		t.Error("re-import must not change the stored password hash")
	}
	if repo.users["a@x.com"].Name != "Alice Smith" {
		t.Errorf("profile fields should refresh, got name %q", repo.users["a@x.com"].Name)
	}
	if len(first.Credentials) != 1 {
		t.Errorf("first import should have generated one credential, got %d", len(first.Credentials))
	}
}

func TestImport_PreservesExplicitManagerRole(t *testing.T) {
	repo := newMemRepo()
	repo.users["m@x.com"] = &User{
		Email: "m@x.com",
		Roles: []string{RoleEmployee, RoleManager},
	}

	im := NewImporter(repo)
	_, err := im.Import(context.Background(), []ImportRecord{
		{EmployeeEmail: "m@x.com", EmployeeName: "Mo"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if !repo.users["m@x.com"].HasRole(RoleManager) {
		t.Error("explicit manager role should survive a re-import")
	}
}

func TestImport_CollectsRowErrors(t *testing.T) {
	repo := newMemRepo()
	im := NewImporter(repo)

	result, err := im.Import(context.Background(), []ImportRecord{
		{EmployeeEmail: "   "},
		{EmployeeEmail: "ok@x.com"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 row error, got %d", len(result.Errors))
	}
	if result.Created != 1 {
		t.Errorf("valid rows should still import, got created=%d", result.Created)
	}
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"A@X.COM", "a@x.com"},
		{"  a@x.com  ", "a@x.com"},
		{"MiXeD@Example.Org", "mixed@example.org"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeEmail(tt.in); got != tt.want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUserRolePredicates(t *testing.T) {
	u := &User{Roles: []string{RoleEmployee, RoleAdmin}}
	if !u.IsAdmin() {
		t.Error("expected admin")
	}
	if !u.HasRole(RoleEmployee) {
		t.Error("expected employee role")
	}
	if u.HasRole(RoleManager) {
		t.Error("did not expect manager role")
	}
}
