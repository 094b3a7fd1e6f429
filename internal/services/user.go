package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/crypto/bcrypt"

	"github.com/wandertours/apiserver/internal/store"
	"github.com/wandertours/apiserver/types"
)

const (
	bcryptCost    = 12
	resetTokenTTL = 10 * time.Minute
)

// ErrInvalidCredentials is returned for a wrong password and for an unknown
// email alike, so responses cannot be used to enumerate accounts.
var ErrInvalidCredentials = errors.New("incorrect email or password")

// ErrResetTokenInvalid is returned when a password reset token does not
// match any account or has expired.
var ErrResetTokenInvalid = errors.New("reset token is invalid or has expired")

// UserRepository defines the persistence operations user flows need.
type UserRepository interface {
	FindByID(ctx context.Context, id string, scope bson.M, joins ...store.Join) (types.User, error)
	FindOne(ctx context.Context, filter bson.M, projection bson.D) (types.User, error)
	Insert(ctx context.Context, fields map[string]any, joins ...store.Join) (types.User, error)
	UpdateByID(ctx context.Context, id string, fields map[string]any, joins ...store.Join) (types.User, error)
	UpdateRaw(ctx context.Context, filter, update bson.M) error
}

// UserService encapsulates account and credential flows.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

// GetByID loads an active user; soft-deleted accounts read as not found.
func (s *UserService) GetByID(ctx context.Context, id string) (types.User, error) {
	return s.repo.FindByID(ctx, id, ActiveUserScope)
}

// Register creates a new account with role "user". The caller supplies name,
// email, password and passwordConfirm; everything else is server-assigned.
func (s *UserService) Register(ctx context.Context, name, email, password, passwordConfirm string) (types.User, error) {
	if password != passwordConfirm {
		return types.User{}, types.NewValidationError("passwordConfirm", "Passwords are not the same")
	}

	doc := map[string]any{
		"name":     strings.TrimSpace(name),
		"email":    strings.ToLower(strings.TrimSpace(email)),
		"password": password,
	}
	types.UserSchema.ApplyDefaults(doc)
	if err := types.UserSchema.Validate(doc); err != nil {
		return types.User{}, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return types.User{}, err
	}
	doc["password"] = string(hashed)

	return s.repo.Insert(ctx, doc)
}

// Authenticate verifies an email/password pair and returns the account.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (types.User, error) {
	filter := bson.M{"email": strings.ToLower(strings.TrimSpace(email))}
	for key, value := range ActiveUserScope {
		filter[key] = value
	}

	user, err := s.repo.FindOne(ctx, filter, nil)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return types.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// CreatePasswordResetToken issues a single-use reset token for the account
// with the given email. The plain token is returned for out-of-band
// delivery; only its sha256 is stored, with a bounded expiry.
func (s *UserService) CreatePasswordResetToken(ctx context.Context, email string) (types.User, string, error) {
	user, err := s.repo.FindOne(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))}, nil)
	if err != nil {
		return types.User{}, "", err
	}

	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return types.User{}, "", err
	}
	plain := hex.EncodeToString(buf[:])

	err = s.repo.UpdateRaw(ctx, bson.M{"_id": user.ID}, bson.M{"$set": bson.M{
		"passwordResetToken":   hashToken(plain),
		"passwordResetExpires": time.Now().UTC().Add(resetTokenTTL),
	}})
	if err != nil {
		return types.User{}, "", err
	}
	return user, plain, nil
}

// ClearPasswordResetToken discards an outstanding reset token, e.g. when the
// token could not be delivered.
func (s *UserService) ClearPasswordResetToken(ctx context.Context, userID bson.ObjectID) error {
	return s.repo.UpdateRaw(ctx, bson.M{"_id": userID}, bson.M{"$unset": bson.M{
		"passwordResetToken":   "",
		"passwordResetExpires": "",
	}})
}

// ResetPassword consumes a plain reset token and sets the new password.
func (s *UserService) ResetPassword(ctx context.Context, plainToken, password, passwordConfirm string) (types.User, error) {
	user, err := s.repo.FindOne(ctx, bson.M{
		"passwordResetToken":   hashToken(plainToken),
		"passwordResetExpires": bson.M{"$gt": time.Now().UTC()},
	}, nil)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrResetTokenInvalid
		}
		return types.User{}, err
	}

	if err := s.setPassword(ctx, user.ID, password, passwordConfirm); err != nil {
		return types.User{}, err
	}
	return s.repo.FindByID(ctx, user.ID.Hex(), nil)
}

// UpdatePassword verifies the current password and replaces it.
func (s *UserService) UpdatePassword(ctx context.Context, userID bson.ObjectID, current, password, passwordConfirm string) (types.User, error) {
	user, err := s.repo.FindOne(ctx, bson.M{"_id": userID}, nil)
	if err != nil {
		return types.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(current)) != nil {
		return types.User{}, ErrInvalidCredentials
	}

	if err := s.setPassword(ctx, userID, password, passwordConfirm); err != nil {
		return types.User{}, err
	}
	return s.repo.FindByID(ctx, userID.Hex(), nil)
}

// Deactivate soft-deletes an account; it disappears from all queries but
// the record is retained.
func (s *UserService) Deactivate(ctx context.Context, userID bson.ObjectID) error {
	return s.repo.UpdateRaw(ctx, bson.M{"_id": userID}, bson.M{"$set": bson.M{"active": false}})
}

func (s *UserService) setPassword(ctx context.Context, userID bson.ObjectID, password, passwordConfirm string) error {
	if password != passwordConfirm {
		return types.NewValidationError("passwordConfirm", "Passwords are not the same")
	}
	if err := types.UserSchema.ValidatePartial(map[string]any{"password": password}); err != nil {
		return err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return err
	}

	// Backdate by a second so a credential issued in the same second as
	// the change does not read as newer than it.
	return s.repo.UpdateRaw(ctx, bson.M{"_id": userID}, bson.M{
		"$set": bson.M{
			"password":          string(hashed),
			"passwordChangedAt": time.Now().UTC().Add(-time.Second),
		},
		"$unset": bson.M{
			"passwordResetToken":   "",
			"passwordResetExpires": "",
		},
	})
}

func hashToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}
