package mongo

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/syntrixbase/inkwell/internal/core/storage/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	globalTestClient     *mongo.Client
	globalTestClientErr  error
	globalTestClientOnce sync.Once
)

func testMongoURI() string {
	if uri := os.Getenv("MONGO_URI"); uri != "" {
		return uri
	}
	return "mongodb://localhost:27017"
}

func getGlobalTestClient(t *testing.T) *mongo.Client {
	globalTestClientOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(testMongoURI()).SetServerSelectionTimeout(2*time.Second))
		if err != nil {
			globalTestClientErr = err
			return
		}
		if err := client.Ping(ctx, nil); err != nil {
			globalTestClientErr = err
			return
		}
		globalTestClient = client
	})
	if globalTestClientErr != nil {
		t.Skipf("MongoDB not available: %v", globalTestClientErr)
	}
	return globalTestClient
}

type testEnv struct {
	Client   *mongo.Client
	DB       *mongo.Database
	Provider *Provider
}

func setupTestEnv(t *testing.T) *testEnv {
	client := getGlobalTestClient(t)

	safeName := strings.NewReplacer("/", "_", "\\", "_").Replace(t.Name())
	if len(safeName) > 20 {
		safeName = safeName[len(safeName)-20:]
	}
	dbName := fmt.Sprintf("test_inkwell_%s_%d", safeName, time.Now().UnixNano()%100000)
	db := client.Database(dbName)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = db.Drop(ctx)
	})

	cfg := config.DefaultConfig().Mongo
	p := newProvider(client, db, cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.EnsureIndexes(ctx); err != nil {
		t.Fatalf("ensure indexes: %v", err)
	}

	return &testEnv{Client: client, DB: db, Provider: p}
}
