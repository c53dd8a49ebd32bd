package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"chatline/cmd/identity/ids"
)

const (
	mongoUsersCollection = "users"

	mongoDefaultDatabase = "chatline"
	mongoDefaultTimeout  = 5 * time.Second
)

// mongoUser is the persisted document shape.
// The identity key is stored as _id; ULID strings keep ids uniform across
// store implementations.
type mongoUser struct {
	ID           string    `bson:"_id"`
	FullName     string    `bson:"fullName"`
	Email        string    `bson:"email"`
	EmailNorm    string    `bson:"emailNorm"`
	PasswordHash string    `bson:"password"`
	Bio          string    `bson:"bio"`
	ProfilePic   string    `bson:"profilePic,omitempty"`
	CreatedAt    time.Time `bson:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

func (m mongoUser) toUser() User {
	return User{
		ID:           m.ID,
		FullName:     m.FullName,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Bio:          m.Bio,
		ProfilePic:   m.ProfilePic,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// MongoStore implements identity persistence over MongoDB.
//
// The mongo client is owned by this store: Close disconnects it.
// A unique index on emailNorm backs the duplicate-account check; CreateUser
// additionally maps driver duplicate-key errors to ConflictError so races
// between concurrent signups resolve to a clean conflict.
type MongoStore struct {
	client  *mongo.Client
	users   *mongo.Collection
	timeout time.Duration
}

// MongoOption configures the store.
type MongoOption func(*MongoStore)

// WithMongoTimeout sets the per-operation timeout (default 5s).
func WithMongoTimeout(d time.Duration) MongoOption {
	return func(s *MongoStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewMongoStore connects to MongoDB and prepares the users collection.
// database may be empty; it defaults to "chatline".
func NewMongoStore(ctx context.Context, uri, database string, opts ...MongoOption) (*MongoStore, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil, errors.New("identity: empty mongo uri")
	}
	if strings.TrimSpace(database) == "" {
		database = mongoDefaultDatabase
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetAppName("chatline"))
	if err != nil {
		return nil, err
	}

	st := &MongoStore{
		client:  client,
		users:   client.Database(database).Collection(mongoUsersCollection),
		timeout: mongoDefaultTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(st)
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, st.timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	if err := st.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return st, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "emailNorm", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// Ping verifies connectivity to the backing deployment.
func (s *MongoStore) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return errors.New("identity: mongo store not connected")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Ping(ctx, nil)
}

// Close disconnects the owned mongo client.
func (s *MongoStore) Close(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// CreateUser registers a new user, enforcing email uniqueness.
func (s *MongoStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	fullName := strings.TrimSpace(in.FullName)
	email := strings.TrimSpace(in.Email)
	if fullName == "" || email == "" || in.PasswordHash == "" {
		return User{}, invalid(op, "fullName, email and password hash are required")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return User{}, err
	}

	doc := mongoUser{
		ID:           id,
		FullName:     fullName,
		Email:        email,
		EmailNorm:    NormalizeEmail(email),
		PasswordHash: in.PasswordHash,
		Bio:          strings.TrimSpace(in.Bio),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.users.InsertOne(opCtx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return User{}, ConflictError{Op: op, Field: "email"}
		}
		return User{}, err
	}
	return doc.toUser(), nil
}

// GetUserByID returns the user with the given identity key.
func (s *MongoStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"

	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, invalid(op, "empty id")
	}

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var doc mongoUser
	err := s.users.FindOne(opCtx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	if err != nil {
		return User{}, err
	}
	return doc.toUser(), nil
}

// GetUserByEmail returns the user registered under email (case-insensitive).
func (s *MongoStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	const op = "identity.GetUserByEmail"

	norm := NormalizeEmail(email)
	if norm == "" {
		return User{}, invalid(op, "empty email")
	}

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var doc mongoUser
	err := s.users.FindOne(opCtx, bson.D{{Key: "emailNorm", Value: norm}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	if err != nil {
		return User{}, err
	}
	return doc.toUser(), nil
}

// UpdateProfile mutates fullName/bio and, when non-empty, profilePic.
func (s *MongoStore) UpdateProfile(ctx context.Context, in UpdateProfileInput) (User, error) {
	const op = "identity.UpdateProfile"

	userID := strings.TrimSpace(in.UserID)
	fullName := strings.TrimSpace(in.FullName)
	bio := strings.TrimSpace(in.Bio)
	if userID == "" {
		return User{}, invalid(op, "empty user id")
	}
	if fullName == "" || bio == "" {
		return User{}, invalid(op, "fullName and bio are required")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	set := bson.D{
		{Key: "fullName", Value: fullName},
		{Key: "bio", Value: bio},
		{Key: "updatedAt", Value: now},
	}
	if pic := strings.TrimSpace(in.ProfilePic); pic != "" {
		set = append(set, bson.E{Key: "profilePic", Value: pic})
	}

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var doc mongoUser
	err := s.users.FindOneAndUpdate(
		opCtx,
		bson.D{{Key: "_id", Value: userID}},
		bson.D{{Key: "$set", Value: set}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	if err != nil {
		return User{}, err
	}
	return doc.toUser(), nil
}
