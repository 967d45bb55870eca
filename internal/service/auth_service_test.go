package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/easypass/easypass-api/internal/models"
	"github.com/easypass/easypass-api/pkg/config"
	appErrors "github.com/easypass/easypass-api/pkg/errors"
)

type fakeUsers struct {
	byEmail     *models.User
	emailExists bool
	created     *models.User
	tokens      map[string]*models.RefreshToken
	revokedIDs  []string
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{tokens: map[string]*models.RefreshToken{}}
}

func (f *fakeUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if f.byEmail == nil {
		return nil, sql.ErrNoRows
	}
	return f.byEmail, nil
}

func (f *fakeUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	if f.byEmail == nil {
		return nil, sql.ErrNoRows
	}
	return f.byEmail, nil
}

func (f *fakeUsers) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return f.emailExists, nil
}

func (f *fakeUsers) Create(ctx context.Context, user *models.User) error {
	user.ID = "user-1"
	f.created = user
	return nil
}

func (f *fakeUsers) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}

func (f *fakeUsers) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	f.tokens[token.Token] = token
	return nil
}

func (f *fakeUsers) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	stored, ok := f.tokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return stored, nil
}

func (f *fakeUsers) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	f.revokedIDs = append(f.revokedIDs, id)
	for _, t := range f.tokens {
		if t.ID == id {
			t.Revoked = true
		}
	}
	return nil
}

type fakeAuthStudents struct {
	byMatric    *models.Student
	byUser      *models.Student
	matricTaken bool
	created     *models.Student
}

func (f *fakeAuthStudents) FindByMatricNo(ctx context.Context, matricNo string) (*models.Student, error) {
	if f.byMatric == nil {
		return nil, sql.ErrNoRows
	}
	return f.byMatric, nil
}

func (f *fakeAuthStudents) FindByUserID(ctx context.Context, userID string) (*models.Student, error) {
	if f.byUser == nil {
		return nil, sql.ErrNoRows
	}
	return f.byUser, nil
}

func (f *fakeAuthStudents) ExistsByMatricNo(ctx context.Context, matricNo string) (bool, error) {
	return f.matricTaken, nil
}

func (f *fakeAuthStudents) Create(ctx context.Context, student *models.Student) error {
	student.ID = "student-1"
	f.created = student
	return nil
}

func jwtCfg() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "test-secret",
		Expiration:        15 * time.Minute,
		RefreshExpiration: 24 * time.Hour,
	}
}

func TestSignupCreatesUserAndStudent(t *testing.T) {
	users := newFakeUsers()
	students := &fakeAuthStudents{}
	svc := NewAuthService(users, students, jwtCfg(), nil)

	res, err := svc.Signup(context.Background(), models.SignupRequest{
		Email:    "Student@Example.com",
		Password: "secret123",
		FullName: "Test Student",
		MatricNo: "u2019001",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)

	require.NotNil(t, users.created)
	assert.Equal(t, "student@example.com", users.created.Email)
	assert.Equal(t, models.RoleStudent, users.created.Role)

	require.NotNil(t, students.created)
	assert.Equal(t, "U2019001", students.created.MatricNo)
	require.NotNil(t, students.created.UserID)
	assert.Equal(t, "user-1", *students.created.UserID)
	assert.Equal(t, "student-1", res.User.StudentID)
}

func TestSignupRejectsDuplicateEmail(t *testing.T) {
	users := newFakeUsers()
	users.emailExists = true
	svc := NewAuthService(users, &fakeAuthStudents{}, jwtCfg(), nil)

	_, err := svc.Signup(context.Background(), models.SignupRequest{
		Email: "dup@example.com", Password: "secret123", FullName: "Dup", MatricNo: "U1",
	})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestLoginWrongPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct"), bcrypt.MinCost)
	require.NoError(t, err)
	users := newFakeUsers()
	users.byEmail = &models.User{ID: "user-1", Email: "a@example.com", PasswordHash: string(hash), Active: true, Role: models.RoleStudent}
	svc := NewAuthService(users, &fakeAuthStudents{}, jwtCfg(), nil)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "a@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)
}

func TestLoginIssuesVerifiableToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct"), bcrypt.MinCost)
	require.NoError(t, err)
	users := newFakeUsers()
	users.byEmail = &models.User{ID: "user-1", Email: "a@example.com", PasswordHash: string(hash), Active: true, Role: models.RoleStudent}
	students := &fakeAuthStudents{byUser: &models.Student{ID: "student-1"}}
	svc := NewAuthService(users, students, jwtCfg(), nil)

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "a@example.com", Password: "correct"})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "student-1", claims.StudentID)
	assert.Equal(t, models.RoleStudent, claims.Role)
}

func TestRefreshRotatesToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct"), bcrypt.MinCost)
	require.NoError(t, err)
	users := newFakeUsers()
	users.byEmail = &models.User{ID: "user-1", Email: "a@example.com", PasswordHash: string(hash), Active: true, Role: models.RoleStudent}
	svc := NewAuthService(users, &fakeAuthStudents{}, jwtCfg(), nil)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "a@example.com", Password: "correct"})
	require.NoError(t, err)

	refreshed, err := svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)
	assert.Len(t, users.revokedIDs, 1)

	// The rotated-out token can no longer be used.
	_, err = svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc := NewAuthService(newFakeUsers(), &fakeAuthStudents{}, jwtCfg(), nil)

	_, err := svc.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
