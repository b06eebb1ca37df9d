package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/tidepool-org/dexcom-sync/schema"
	"github.com/tidepool-org/dexcom-sync/usecase/ratelimit"
	goComMgo "github.com/tidepool-org/go-common/clients/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	credentialsCollectionName   = "dexcomCredentials"
	readingsCollectionName      = "dexcomReadings"
	rateLimitsCollectionName    = "rateLimits"
	healthMetricsCollectionName = "healthMetrics"

	rateLedgerID = "global"

	idxUserIDSystemTime   = "UserIdSystemTime"
	idxOperationTimestamp = "OperationTimestamp"
)

var dexcomSyncIndexes = map[string][]mongo.IndexModel{
	readingsCollectionName: {
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "systemTime", Value: -1}},
			Options: options.Index().SetName(idxUserIDSystemTime),
		},
	},
	healthMetricsCollectionName: {
		{
			Keys:    bson.D{{Key: "operation", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName(idxOperationTimestamp),
		},
	},
}

// rateLedger is the single document of the rate limits collection
type rateLedger struct {
	ID    string      `bson:"_id"`
	Calls []time.Time `bson:"calls"`
}

// DexcomMongoRepository stores credentials, readings, the rate ledger and health metrics
type DexcomMongoRepository struct {
	*goComMgo.StoreClient
}

// NewDexcomMongoRepository creates a new repository for mongo
func NewDexcomMongoRepository(config *goComMgo.Config, logger *log.Logger) (*DexcomMongoRepository, error) {
	if config != nil {
		config.Indexes = dexcomSyncIndexes
	}
	repository := DexcomMongoRepository{}
	store, err := goComMgo.NewStoreClient(config, logger)
	repository.StoreClient = store
	return &repository, err
}

func credentialsCollection(p *DexcomMongoRepository) *mongo.Collection {
	return p.Collection(credentialsCollectionName)
}

func readingsCollection(p *DexcomMongoRepository) *mongo.Collection {
	return p.Collection(readingsCollectionName)
}

func rateLimitsCollection(p *DexcomMongoRepository) *mongo.Collection {
	return p.Collection(rateLimitsCollectionName)
}

func healthMetricsCollection(p *DexcomMongoRepository) *mongo.Collection {
	return p.Collection(healthMetricsCollectionName)
}

// withTransaction runs fn in a transaction, retried by the driver on transient errors
func (p *DexcomMongoRepository) withTransaction(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	session, err := credentialsCollection(p).Database().Client().StartSession()
	if err != nil {
		return fmt.Errorf("unable to start a mongo session: %w", err)
	}
	defer session.EndSession(ctx)
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

func (p *DexcomMongoRepository) GetCredential(ctx context.Context, userID string) (*schema.Credential, error) {
	var credential schema.Credential
	err := credentialsCollection(p).FindOne(ctx, bson.M{"_id": userID}).Decode(&credential)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &credential, nil
}

func (p *DexcomMongoRepository) SaveCredential(ctx context.Context, credential schema.Credential) error {
	opts := options.Replace().SetUpsert(true)
	_, err := credentialsCollection(p).ReplaceOne(ctx, bson.M{"_id": credential.UserID}, credential, opts)
	return err
}

func (p *DexcomMongoRepository) DeleteCredential(ctx context.Context, userID string) (bool, error) {
	res, err := credentialsCollection(p).DeleteOne(ctx, bson.M{"_id": userID})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (p *DexcomMongoRepository) ListCredentials(ctx context.Context) ([]schema.Credential, error) {
	cursor, err := credentialsCollection(p).Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var credentials []schema.Credential
	err = cursor.All(ctx, &credentials)
	return credentials, err
}

// UpsertReadings merges every reading on its deterministic id, in one transaction
func (p *DexcomMongoRepository) UpsertReadings(ctx context.Context, readings []schema.Reading) error {
	if len(readings) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(readings))
	for _, r := range readings {
		r = r.WithID()
		fields := bson.M{
			"userId":      r.UserID,
			"systemTime":  r.SystemTime,
			"displayTime": r.DisplayTime,
			"value":       r.Value,
			"unit":        r.Unit,
			"trend":       r.Trend,
		}
		if r.TrendRate != nil {
			fields["trendRate"] = *r.TrendRate
		}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": r.ID}).
			SetUpdate(bson.M{"$set": fields}).
			SetUpsert(true))
	}
	return p.withTransaction(ctx, func(sc mongo.SessionContext) error {
		_, err := readingsCollection(p).BulkWrite(sc, models, options.BulkWrite().SetOrdered(false))
		return err
	})
}

// GetReadings returns the readings of window, bounds included, sorted by systemTime
func (p *DexcomMongoRepository) GetReadings(ctx context.Context, userID string, window schema.TimeWindow) ([]schema.Reading, error) {
	query := bson.M{
		"userId":     userID,
		"systemTime": bson.M{"$gte": window.Start, "$lte": window.End},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "systemTime", Value: 1}}).
		SetHint(idxUserIDSystemTime)
	cursor, err := readingsCollection(p).Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var readings []schema.Reading
	err = cursor.All(ctx, &readings)
	return readings, err
}

// UpdateLedger reads, updates and writes the global rate ledger in one transaction
func (p *DexcomMongoRepository) UpdateLedger(ctx context.Context, fn ratelimit.LedgerUpdate) error {
	return p.withTransaction(ctx, func(sc mongo.SessionContext) error {
		var ledger rateLedger
		err := rateLimitsCollection(p).FindOne(sc, bson.M{"_id": rateLedgerID}).Decode(&ledger)
		if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
			return err
		}
		calls, write := fn(ledger.Calls)
		if !write {
			return nil
		}
		opts := options.Replace().SetUpsert(true)
		_, err = rateLimitsCollection(p).ReplaceOne(sc, bson.M{"_id": rateLedgerID}, rateLedger{ID: rateLedgerID, Calls: calls}, opts)
		return err
	})
}

func (p *DexcomMongoRepository) AddHealthMetric(ctx context.Context, metric schema.HealthMetric) error {
	_, err := healthMetricsCollection(p).InsertOne(ctx, metric)
	return err
}
