package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/soundvault/entitlement-service/internal/core/domain"
)

const auditCollection = "license_events"

// AuditLog implements ports.AuditLog on an append-only MongoDB collection.
type AuditLog struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewAuditLog(db *mongo.Database) *AuditLog {
	return &AuditLog{coll: db.Collection(auditCollection), now: time.Now}
}

// EnsureIndexes creates the lookup indexes used by support queries.
func (l *AuditLog) EnsureIndexes(ctx context.Context) error {
	_, err := l.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "occurred_at", Value: -1}}},
		{Keys: bson.D{{Key: "payment_id", Value: 1}}, Options: options.Index().SetSparse(true)},
	})
	if err != nil {
		return fmt.Errorf("create audit indexes: %w", err)
	}
	return nil
}

// Record persists a license event.
func (l *AuditLog) Record(ctx context.Context, event *domain.LicenseEvent) error {
	doc := bson.M{
		"type":        string(event.Type),
		"user_id":     event.UserID,
		"occurred_at": event.OccurredAt.UTC(),
		"recorded_at": l.now().UTC(),
	}
	if event.PaymentID != 0 {
		doc["payment_id"] = event.PaymentID
	}
	if event.DeviceHash != "" {
		doc["device_hash"] = event.DeviceHash
	}
	if event.Reason != "" {
		doc["reason"] = event.Reason
	}
	if event.Amount != 0 {
		doc["amount"] = event.Amount
	}

	if _, err := l.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert license event: %w", err)
	}
	return nil
}

// ByUser returns the most recent events of a user, newest first.
func (l *AuditLog) ByUser(ctx context.Context, userID int64, limit int64) ([]domain.LicenseEvent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "occurred_at", Value: -1}}).SetLimit(limit)
	cur, err := l.coll.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find license events: %w", err)
	}
	defer cur.Close(ctx)

	var docs []auditDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode license events: %w", err)
	}
	events := make([]domain.LicenseEvent, 0, len(docs))
	for _, d := range docs {
		events = append(events, d.toDomain())
	}
	return events, nil
}

type auditDoc struct {
	Type       string    `bson:"type"`
	UserID     int64     `bson:"user_id"`
	PaymentID  int64     `bson:"payment_id,omitempty"`
	DeviceHash string    `bson:"device_hash,omitempty"`
	Reason     string    `bson:"reason,omitempty"`
	Amount     float64   `bson:"amount,omitempty"`
	OccurredAt time.Time `bson:"occurred_at"`
}

func (d auditDoc) toDomain() domain.LicenseEvent {
	return domain.LicenseEvent{
		Type:       domain.LicenseEventType(d.Type),
		UserID:     d.UserID,
		PaymentID:  d.PaymentID,
		DeviceHash: d.DeviceHash,
		Reason:     d.Reason,
		Amount:     d.Amount,
		OccurredAt: d.OccurredAt,
	}
}
