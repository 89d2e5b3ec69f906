package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"elearn-portal/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailTaken         = errors.New("email is already registered")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

type UserService struct {
	collection *mongo.Collection
}

func NewUserService(collection *mongo.Collection) *UserService {
	return &UserService{collection: collection}
}

type CreateUserParams struct {
	Email    string
	Password string
	FullName string
	Role     models.UserRole
	Phone    string
}

func (s *UserService) CreateUser(ctx context.Context, p CreateUserParams) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &models.User{
		Email:        p.Email,
		PasswordHash: string(hash),
		FullName:     p.FullName,
		Role:         p.Role,
		Phone:        p.Phone,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	result, err := s.collection.InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	user.ID = result.InsertedID.(primitive.ObjectID)
	return user, nil
}

func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	var user models.User
	err := s.collection.FindOne(ctx, bson.M{"email": email, "is_active": true}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	now := time.Now()
	_, _ = s.collection.UpdateOne(ctx, bson.M{"_id": user.ID},
		bson.M{"$set": bson.M{"last_login_at": now}})
	user.LastLoginAt = &now

	return &user, nil
}

func (s *UserService) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var user models.User
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	return &user, nil
}

// SuperAdminIDs queries the current super-admin set. Always a live query:
// the privileged-operator set changes over time and must be resolved at the
// moment a fan-out fires.
func (s *UserService) SuperAdminIDs(ctx context.Context) ([]primitive.ObjectID, error) {
	cursor, err := s.collection.Find(ctx, bson.M{
		"role":      models.RoleSuperAdmin,
		"is_active": true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query super admins: %w", err)
	}
	defer cursor.Close(ctx)

	var ids []primitive.ObjectID
	for cursor.Next(ctx) {
		var user models.User
		if err := cursor.Decode(&user); err != nil {
			continue
		}
		ids = append(ids, user.ID)
	}
	return ids, cursor.Err()
}
