// Package db implements the MongoDB storage layer for accounts, orders and
// payment transactions.
package db

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.vocdoni.io/dvote/log"
)

// MongoStorage uses an external MongoDB service for storing users, orders and
// payment transactions.
type MongoStorage struct {
	client *mongo.Client

	users        *mongo.Collection
	orders       *mongo.Collection
	transactions *mongo.Collection
}

func New(url, database string) (*MongoStorage, error) {
	ms := &MongoStorage{}
	if url == "" {
		return nil, fmt.Errorf("mongo URL is not defined")
	}
	if database == "" {
		return nil, fmt.Errorf("mongo database is not defined")
	}
	log.Infow("connecting to mongodb", "url", url, "database", database)
	// preparing connection
	opts := options.Client()
	opts.ApplyURI(url)
	opts.SetMaxConnecting(200)
	timeout := time.Second * 10
	opts.ConnectTimeout = &timeout
	// create a new client with the connection options
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to mongodb: %w", err)
	}
	// check if the connection is successful
	ctx, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("cannot connect to mongodb: %w", err)
	}
	// init the collections
	ms.client = client
	db := client.Database(database)
	ms.users = db.Collection("users")
	ms.orders = db.Collection("orders")
	ms.transactions = db.Collection("transactions")
	// if the reset flag is enabled, drop the database documents and recreate
	// the indexes, else just create the indexes
	if reset := os.Getenv("STORE_MONGO_RESET_DB"); reset != "" {
		if err := ms.Reset(); err != nil {
			return nil, err
		}
	} else if err := ms.createIndexes(); err != nil {
		return nil, err
	}
	return ms, nil
}

func (ms *MongoStorage) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ms.client.Disconnect(ctx); err != nil {
		log.Warn(err)
	}
}

// Reset drops all collections and recreates the indexes.
func (ms *MongoStorage) Reset() error {
	log.Infof("resetting database")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, collection := range []*mongo.Collection{ms.users, ms.orders, ms.transactions} {
		if err := collection.Drop(ctx); err != nil {
			return err
		}
	}
	return ms.createIndexes()
}

// createIndexes builds the indexes the storage relies on. The partial unique
// index on completed orders is what makes the at-most-one-completed-order-per-
// session invariant hold even when a status poll and a webhook delivery race:
// the loser of the race gets a duplicate key error instead of a second order.
func (ms *MongoStorage) createIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	// unique email per user
	if _, err := ms.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("failed to create index on users email: %w", err)
	}
	// one transaction per checkout session
	if _, err := ms.transactions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "sessionID", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("failed to create index on transactions sessionID: %w", err)
	}
	// at most one completed order per checkout session
	if _, err := ms.orders.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "paymentSessionID", Value: 1}},
		Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"status": OrderStatusCompleted}),
	}); err != nil {
		return fmt.Errorf("failed to create index on orders paymentSessionID: %w", err)
	}
	// support the filtered order listing
	if _, err := ms.orders.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userEmail", Value: 1}},
	}); err != nil {
		return fmt.Errorf("failed to create index on orders userEmail: %w", err)
	}
	return nil
}
