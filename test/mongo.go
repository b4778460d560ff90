// Package test provides testing utilities for the store backend, including
// test containers for MongoDB and a local mail service.
package test

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// MongoPort is the port exposed by the MongoDB test container.
const MongoPort = "27017"

// StartMongoContainer starts a MongoDB container for testing. Use
// Endpoint(ctx, "mongodb") on the returned container to get a connection URL.
func StartMongoContainer(ctx context.Context) (testcontainers.Container, error) {
	return testcontainers.GenericContainer(ctx,
		testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "mongo:7",
				ExposedPorts: []string{MongoPort + "/tcp"},
				WaitingFor:   wait.ForListeningPort(MongoPort),
			},
			Started: true,
		})
}

// RandomDatabaseName returns a random database name, so that test packages
// sharing a MongoDB container never collide.
func RandomDatabaseName() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return "test_" + hex.EncodeToString(b)
}
