package replaycache

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongoEntry is the document shape backing MongoCache. expiresAt carries a
// TTL index so Mongo reaps consumed entries itself, unlike PostgresCache
// which needs a caller-driven purge.
type mongoEntry struct {
	Signature    string    `bson:"signature"`
	Recipient    string    `bson:"recipient"`
	Amount       uint64    `bson:"amount"`
	Payer        string    `bson:"payer,omitempty"`
	ConsumedAtMs int64     `bson:"consumedAtMs"`
	ExpiresAt    time.Time `bson:"expiresAt"`
}

// MongoCache is the shared-store replay cache backing for deployments that
// run MongoDB. Expiry relies on a TTL index on expiresAt rather than a
// per-write TTL argument to the driver, since Mongo's TTL monitor sweeps
// independently of any read path.
type MongoCache struct {
	client     *mongo.Client
	collection *mongo.Collection
	ownsClient bool
}

// NewMongoCache wraps an existing collection handle. The caller owns the
// client's lifecycle.
func NewMongoCache(ctx context.Context, collection *mongo.Collection) (*MongoCache, error) {
	c := &MongoCache{collection: collection}
	if err := c.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// NewMongoCacheFromURI dials and owns a new client.
func NewMongoCacheFromURI(ctx context.Context, uri, database, collection string) (*MongoCache, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(connectCtx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	c, err := NewMongoCache(ctx, client.Database(database).Collection(collection))
	if err != nil {
		_ = client.Disconnect(connectCtx)
		return nil, err
	}
	c.client = client
	c.ownsClient = true
	return c, nil
}

func (c *MongoCache) ensureIndexes(ctx context.Context) error {
	_, err := c.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "signature", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	})
	return err
}

// IsUsed reports whether signature has a live entry. A not-yet-expired
// document that the TTL monitor hasn't reaped yet still counts as used.
func (c *MongoCache) IsUsed(ctx context.Context, signature string) (bool, error) {
	count, err := c.collection.CountDocuments(ctx, bson.M{
		"signature": signature,
		"expiresAt": bson.M{"$gt": time.Now()},
	})
	if err != nil {
		return false, fmt.Errorf("check replay cache: %w", err)
	}
	return count > 0, nil
}

// MarkUsed upserts the entry, refusing to overwrite a still-live one.
func (c *MongoCache) MarkUsed(ctx context.Context, signature string, meta Meta, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := time.Now()

	existing := c.collection.FindOne(ctx, bson.M{
		"signature": signature,
		"expiresAt": bson.M{"$gt": now},
	})
	if existing.Err() == nil {
		return fmt.Errorf("x402: signature already consumed")
	} else if existing.Err() != mongo.ErrNoDocuments {
		return fmt.Errorf("check existing replay cache entry: %w", existing.Err())
	}

	entry := mongoEntry{
		Signature:    signature,
		Recipient:    meta.Recipient,
		Amount:       meta.Amount,
		Payer:        meta.Payer,
		ConsumedAtMs: meta.ConsumedAtMs,
		ExpiresAt:    now.Add(ttl),
	}
	_, err := c.collection.ReplaceOne(ctx, bson.M{"signature": signature}, entry, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mark replay cache entry: %w", err)
	}
	return nil
}

// GetMeta retrieves the stored metadata for a still-live signature.
func (c *MongoCache) GetMeta(ctx context.Context, signature string) (Meta, bool, error) {
	var entry mongoEntry
	err := c.collection.FindOne(ctx, bson.M{
		"signature": signature,
		"expiresAt": bson.M{"$gt": time.Now()},
	}).Decode(&entry)
	if err == mongo.ErrNoDocuments {
		return Meta{}, false, nil
	}
	if err != nil {
		return Meta{}, false, fmt.Errorf("query replay cache entry: %w", err)
	}
	return Meta{
		Recipient:    entry.Recipient,
		Amount:       entry.Amount,
		ConsumedAtMs: entry.ConsumedAtMs,
		Payer:        entry.Payer,
	}, true, nil
}

// Clear deletes every document in the collection. Intended for tests and
// maintenance tooling.
func (c *MongoCache) Clear(ctx context.Context) error {
	_, err := c.collection.DeleteMany(ctx, bson.M{})
	return err
}

// Close disconnects the client if this cache opened it.
func (c *MongoCache) Close() error {
	if !c.ownsClient {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.client.Disconnect(ctx)
}
