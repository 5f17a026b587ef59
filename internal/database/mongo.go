package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"credpool/entity"
	"credpool/internal/config"
)

const (
	collectionUsers       = "users"
	collectionCredentials = "credentials"
	collectionKeys        = "redemption_keys"
	collectionAudit       = "audit_log"
)

type MongoDB struct {
	clientOptions *options.ClientOptions
	database      string
}

func NewMongoClient(conf *config.Config) *MongoDB {
	connectionUri := fmt.Sprintf("mongodb://%s:%s", conf.Mongo.Host, conf.Mongo.Port)
	clientOptions := options.Client().ApplyURI(connectionUri)
	if conf.Mongo.User != "" {
		clientOptions.SetAuth(options.Credential{
			Username:   conf.Mongo.User,
			Password:   conf.Mongo.Password,
			AuthSource: conf.Mongo.Database,
		})
	}
	return &MongoDB{
		clientOptions: clientOptions,
		database:      conf.Mongo.Database,
	}
}

func (m *MongoDB) connect(ctx context.Context) (*mongo.Client, error) {
	connection, err := mongo.Connect(ctx, m.clientOptions)
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	return connection, nil
}

func (m *MongoDB) disconnect(ctx context.Context, connection *mongo.Client) {
	_ = connection.Disconnect(ctx)
}

func (m *MongoDB) collection(connection *mongo.Client, name string) *mongo.Collection {
	return connection.Database(m.database).Collection(name)
}

// GetUser resolves an operator record by API token.
func (m *MongoDB) GetUser(token string) (*entity.User, error) {
	ctx := context.Background()
	connection, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer m.disconnect(ctx, connection)

	filter := bson.D{{Key: "token", Value: token}}
	var user entity.User
	err = m.collection(connection, collectionUsers).FindOne(ctx, filter).Decode(&user)
	return &user, err
}

// Credentials

func (m *MongoDB) ListCredentials(ctx context.Context, platform string) ([]*entity.Credential, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer m.disconnect(ctx, connection)

	filter := bson.D{{Key: "platform", Value: platform}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := m.collection(connection, collectionCredentials).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var creds []*entity.Credential
	if err = cursor.All(ctx, &creds); err != nil {
		return nil, err
	}
	return creds, nil
}

func (m *MongoDB) GetCredential(ctx context.Context, platform, id string) (*entity.Credential, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer m.disconnect(ctx, connection)

	filter := bson.D{{Key: "_id", Value: id}, {Key: "platform", Value: platform}}
	var cred entity.Credential
	err = m.collection(connection, collectionCredentials).FindOne(ctx, filter).Decode(&cred)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb find: %w", err)
	}
	return &cred, nil
}

func (m *MongoDB) FirstAvailableCredential(ctx context.Context, platform string) (*entity.Credential, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer m.disconnect(ctx, connection)

	filter := bson.D{{Key: "platform", Value: platform}, {Key: "status", Value: entity.CredentialActive}}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}})
	var cred entity.Credential
	err = m.collection(connection, collectionCredentials).FindOne(ctx, filter, opts).Decode(&cred)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb find: %w", err)
	}
	return &cred, nil
}

func (m *MongoDB) InsertCredential(ctx context.Context, cred *entity.Credential) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	_, err = m.collection(connection, collectionCredentials).InsertOne(ctx, cred)
	return err
}

func (m *MongoDB) InsertCredentials(ctx context.Context, creds []*entity.Credential) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	docs := make([]interface{}, len(creds))
	for i, c := range creds {
		docs[i] = c
	}
	_, err = m.collection(connection, collectionCredentials).InsertMany(ctx, docs)
	return err
}

// UpdateCredential replaces the whole document so cleared claim fields
// (a rolled-back claim) are removed, not merged over.
func (m *MongoDB) UpdateCredential(ctx context.Context, cred *entity.Credential) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	filter := bson.D{{Key: "_id", Value: cred.Id}}
	_, err = m.collection(connection, collectionCredentials).ReplaceOne(ctx, filter, cred)
	return err
}

func (m *MongoDB) DeleteCredential(ctx context.Context, platform, id string) (bool, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return false, err
	}
	defer m.disconnect(ctx, connection)

	filter := bson.D{{Key: "_id", Value: id}, {Key: "platform", Value: platform}}
	res, err := m.collection(connection, collectionCredentials).DeleteOne(ctx, filter)
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (m *MongoDB) DeleteAllCredentials(ctx context.Context, platform string) (int64, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return 0, err
	}
	defer m.disconnect(ctx, connection)

	filter := bson.D{{Key: "platform", Value: platform}}
	res, err := m.collection(connection, collectionCredentials).DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (m *MongoDB) ClaimedCredentials(ctx context.Context, platform string) ([]*entity.Credential, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer m.disconnect(ctx, connection)

	filter := bson.D{{Key: "platform", Value: platform}, {Key: "status", Value: entity.CredentialClaimed}}
	opts := options.Find().SetSort(bson.D{{Key: "claimed_at", Value: 1}})
	cursor, err := m.collection(connection, collectionCredentials).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var creds []*entity.Credential
	if err = cursor.All(ctx, &creds); err != nil {
		return nil, err
	}
	return creds, nil
}

// Redemption keys

func (m *MongoDB) ListKeys(ctx context.Context, platform string) ([]*entity.RedemptionKey, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer m.disconnect(ctx, connection)

	filter := bson.D{{Key: "platform", Value: platform}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := m.collection(connection, collectionKeys).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var keys []*entity.RedemptionKey
	if err = cursor.All(ctx, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

func (m *MongoDB) GetKeyByCode(ctx context.Context, platform, code string) (*entity.RedemptionKey, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer m.disconnect(ctx, connection)

	filter := bson.D{{Key: "platform", Value: platform}, {Key: "key_code", Value: code}}
	var key entity.RedemptionKey
	err = m.collection(connection, collectionKeys).FindOne(ctx, filter).Decode(&key)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb find: %w", err)
	}
	return &key, nil
}

func (m *MongoDB) KeyCodeExists(ctx context.Context, code string) (bool, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return false, err
	}
	defer m.disconnect(ctx, connection)

	filter := bson.D{{Key: "key_code", Value: code}}
	count, err := m.collection(connection, collectionKeys).CountDocuments(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (m *MongoDB) InsertKey(ctx context.Context, key *entity.RedemptionKey) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	_, err = m.collection(connection, collectionKeys).InsertOne(ctx, key)
	return err
}

func (m *MongoDB) UpdateKey(ctx context.Context, key *entity.RedemptionKey) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	filter := bson.D{{Key: "_id", Value: key.Id}}
	_, err = m.collection(connection, collectionKeys).ReplaceOne(ctx, filter, key)
	return err
}

func (m *MongoDB) DeleteKey(ctx context.Context, platform, id string) (bool, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return false, err
	}
	defer m.disconnect(ctx, connection)

	filter := bson.D{{Key: "_id", Value: id}, {Key: "platform", Value: platform}}
	res, err := m.collection(connection, collectionKeys).DeleteOne(ctx, filter)
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (m *MongoDB) DeleteAllKeys(ctx context.Context, platform string) (int64, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return 0, err
	}
	defer m.disconnect(ctx, connection)

	filter := bson.D{{Key: "platform", Value: platform}}
	res, err := m.collection(connection, collectionKeys).DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// Audit log

func (m *MongoDB) InsertAuditEntry(ctx context.Context, entry *entity.AuditEntry) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	_, err = m.collection(connection, collectionAudit).InsertOne(ctx, entry)
	return err
}

func (m *MongoDB) AuditEntries(ctx context.Context, platform string, kind entity.AuditKind, from, to time.Time) ([]*entity.AuditEntry, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer m.disconnect(ctx, connection)

	filter := bson.D{}
	if platform != "" {
		filter = append(filter, bson.E{Key: "platform", Value: platform})
	}
	if kind != "" {
		filter = append(filter, bson.E{Key: "kind", Value: kind})
	}
	timeRange := bson.D{}
	if !from.IsZero() {
		timeRange = append(timeRange, bson.E{Key: "$gte", Value: from})
	}
	if !to.IsZero() {
		timeRange = append(timeRange, bson.E{Key: "$lte", Value: to})
	}
	if len(timeRange) > 0 {
		filter = append(filter, bson.E{Key: "timestamp", Value: timeRange})
	}

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	cursor, err := m.collection(connection, collectionAudit).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []*entity.AuditEntry
	if err = cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
