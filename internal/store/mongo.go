package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Noha9900/advance-filestorebot/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements Repository using MongoDB.
type MongoStore struct {
	client       *mongo.Client
	db           *mongo.Database
	content      *mongo.Collection
	settings     *mongo.Collection
	sessions     *mongo.Collection
	correlations *mongo.Collection
	users        *mongo.Collection
}

// settingDoc is one row of the settings collection.
type settingDoc struct {
	Key       string    `bson:"_id"`
	Value     string    `bson:"value,omitempty"`
	Gate      any       `bson:"gate,omitempty"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// NewMongo connects to MongoDB and returns a repository on database dbName.
func NewMongo(ctx context.Context, uri, dbName string) (Repository, error) {
	cli, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetRetryWrites(true).
		SetMaxPoolSize(50),
	)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := cli.Ping(pingCtx, nil); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := cli.Database(dbName)
	s := &MongoStore{
		client:       cli,
		db:           db,
		content:      db.Collection("content"),
		settings:     db.Collection("settings"),
		sessions:     db.Collection("relay_sessions"),
		correlations: db.Collection("relay_correlations"),
		users:        db.Collection("users"),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.correlations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetName("user_id"),
	})
	return err
}

// Ping verifies database connectivity.
func (s *MongoStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect mongo: %w", err)
	}
	return nil
}

// SaveContent inserts a new descriptor.
func (s *MongoStore) SaveContent(ctx context.Context, d *domain.ContentDescriptor) error {
	if _, err := s.content.InsertOne(ctx, d); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("save content %s: %w", d.Token, ErrDuplicate)
		}
		return fmt.Errorf("save content: %w", err)
	}
	return nil
}

// GetContent retrieves a descriptor by token.
func (s *MongoStore) GetContent(ctx context.Context, token string) (*domain.ContentDescriptor, error) {
	var d domain.ContentDescriptor
	err := s.content.FindOne(ctx, bson.M{"_id": token}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find content: %w", err)
	}
	if d.Kind == "" {
		// Records written before batches existed carry no kind.
		d.Kind = domain.ContentSingle
	}
	return &d, nil
}

// GetSetting returns a setting value, "" when unset.
func (s *MongoStore) GetSetting(ctx context.Context, key string) (string, error) {
	var doc settingDoc
	err := s.settings.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return doc.Value, nil
}

// SetSetting stores a setting value.
func (s *MongoStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.settings.UpdateOne(ctx,
		bson.M{"_id": key},
		bson.M{"$set": bson.M{"value": value, "updated_at": time.Now().UTC()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// GetGateRequirement returns the configured subscription checks.
func (s *MongoStore) GetGateRequirement(ctx context.Context) (*domain.GateRequirement, error) {
	var doc struct {
		Gate *domain.GateRequirement `bson:"gate"`
	}
	err := s.settings.FindOne(ctx, bson.M{"_id": KeyGateRequirements}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get gate requirements: %w", err)
	}
	return doc.Gate, nil
}

// SaveGateRequirement replaces the configured subscription checks.
func (s *MongoStore) SaveGateRequirement(ctx context.Context, req *domain.GateRequirement) error {
	_, err := s.settings.ReplaceOne(ctx,
		bson.M{"_id": KeyGateRequirements},
		settingDoc{Key: KeyGateRequirements, Gate: req, UpdatedAt: time.Now().UTC()},
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save gate requirements: %w", err)
	}
	return nil
}

// GetRelaySession retrieves the relay session of a user.
func (s *MongoStore) GetRelaySession(ctx context.Context, userID int64) (*domain.RelaySession, error) {
	var rs domain.RelaySession
	err := s.sessions.FindOne(ctx, bson.M{"_id": userID}).Decode(&rs)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find relay session: %w", err)
	}
	return &rs, nil
}

// UpsertRelaySession creates or updates a relay session.
func (s *MongoStore) UpsertRelaySession(ctx context.Context, rs *domain.RelaySession) error {
	_, err := s.sessions.ReplaceOne(ctx, bson.M{"_id": rs.UserID}, rs, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert relay session: %w", err)
	}
	return nil
}

// SaveCorrelation records which user an operator-side message belongs to.
func (s *MongoStore) SaveCorrelation(ctx context.Context, c *domain.RelayCorrelation) error {
	_, err := s.correlations.ReplaceOne(ctx, bson.M{"_id": c.OperatorMessageID}, c, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save correlation: %w", err)
	}
	return nil
}

// GetCorrelation looks up an operator-side message.
func (s *MongoStore) GetCorrelation(ctx context.Context, operatorMessageID int) (*domain.RelayCorrelation, error) {
	var c domain.RelayCorrelation
	err := s.correlations.FindOne(ctx, bson.M{"_id": operatorMessageID}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find correlation: %w", err)
	}
	return &c, nil
}

// UpsertUser records a user, keeping the original join time.
func (s *MongoStore) UpsertUser(ctx context.Context, u *domain.User) error {
	_, err := s.users.UpdateOne(ctx,
		bson.M{"_id": u.ID},
		bson.M{
			"$set": bson.M{
				"username":     u.Username,
				"first_name":   u.FirstName,
				"last_seen_at": u.LastSeenAt,
			},
			"$setOnInsert": bson.M{"joined_at": u.JoinedAt},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// CountUsers returns the number of known users.
func (s *MongoStore) CountUsers(ctx context.Context) (int64, error) {
	n, err := s.users.EstimatedDocumentCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}
