package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.vocdoni.io/dvote/log"
)

// SetOrder inserts the order in the database. Inserting a second completed
// order for the same payment session violates the partial unique index and
// returns ErrAlreadyExists; callers in the payment flow treat that as "some
// other writer already completed this session".
func (ms *MongoStorage) SetOrder(order *Order) error {
	if order.PlanID == "" {
		return ErrInvalidData
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	if _, err := ms.orders.InsertOne(ctx, order); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

// Order returns the order with the given ID, or ErrNotFound.
func (ms *MongoStorage) Order(orderID string) (*Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	order := &Order{}
	if err := ms.orders.FindOne(ctx, bson.M{"_id": orderID}).Decode(order); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return order, nil
}

// OrderByPaymentSession returns the order linked to the given checkout
// session, or ErrNotFound. This is the existence check the webhook handler
// uses before creating a completed order.
func (ms *MongoStorage) OrderByPaymentSession(sessionID string) (*Order, error) {
	if sessionID == "" {
		return nil, ErrInvalidData
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	order := &Order{}
	if err := ms.orders.FindOne(ctx, bson.M{"paymentSessionID": sessionID}).Decode(order); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return order, nil
}

// Orders returns all orders, or only those matching the given user email if
// it is not empty. The result is capped at maxOrderResults documents.
func (ms *MongoStorage) Orders(userEmail string) ([]*Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	filter := bson.M{}
	if userEmail != "" {
		filter["userEmail"] = userEmail
	}
	cursor, err := ms.orders.Find(ctx, filter, options.Find().SetLimit(maxOrderResults))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			log.Warnw("failed to close orders cursor", "error", err)
		}
	}()

	var orders []*Order
	for cursor.Next(ctx) {
		order := &Order{}
		if err := cursor.Decode(order); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}
