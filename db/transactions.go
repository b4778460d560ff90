package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// SetTransaction inserts the payment transaction in the database. The session
// ID is unique; a duplicate returns ErrAlreadyExists.
func (ms *MongoStorage) SetTransaction(tx *PaymentTransaction) error {
	if tx.SessionID == "" || tx.PlanID == "" {
		return ErrInvalidData
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now
	if _, err := ms.transactions.InsertOne(ctx, tx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

// TransactionBySession returns the payment transaction for the given checkout
// session, or ErrNotFound.
func (ms *MongoStorage) TransactionBySession(sessionID string) (*PaymentTransaction, error) {
	if sessionID == "" {
		return nil, ErrInvalidData
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	tx := &PaymentTransaction{}
	if err := ms.transactions.FindOne(ctx, bson.M{"sessionID": sessionID}).Decode(tx); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return tx, nil
}

// UpdateTransactionStatus sets the stored (status, payment_status) pair for
// the transaction matching the session and bumps its update timestamp. It is
// the only mutation ever applied to a transaction.
func (ms *MongoStorage) UpdateTransactionStatus(
	sessionID string, status TransactionStatus, paymentStatus PaymentStatus,
) error {
	if sessionID == "" {
		return ErrInvalidData
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	update := bson.M{"$set": bson.M{
		"status":        status,
		"paymentStatus": paymentStatus,
		"updatedAt":     time.Now().UTC(),
	}}
	res, err := ms.transactions.UpdateOne(ctx, bson.M{"sessionID": sessionID}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
