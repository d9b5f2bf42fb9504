package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/teresa-solution/store-connection-service/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	defaultDocumentDatabase = "store"
	defaultServiceUser      = "service_role"
	probeCollection         = "stores"
)

// DocumentHandle is a document-store client bound to the store's database
type DocumentHandle struct {
	client *mongo.Client
	db     *mongo.Database
}

// OpenDocument configures a client authenticated with the store's service key.
// mongo.Connect does not block on server selection; Probe does.
func OpenDocument(ctx context.Context, creds Credentials) (*DocumentHandle, error) {
	if err := creds.Validate(model.DatabaseTypeDocument); err != nil {
		return nil, err
	}

	user := creds.ServiceUser
	if user == "" {
		user = defaultServiceUser
	}
	clientOpts := options.Client().
		ApplyURI(creds.URL).
		SetAuth(options.Credential{Username: user, Password: creds.ServiceKey})

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create document client: %w", err)
	}

	dbName := creds.Database
	if dbName == "" {
		dbName = defaultDocumentDatabase
	}
	return &DocumentHandle{client: client, db: client.Database(dbName)}, nil
}

func (h *DocumentHandle) Type() model.DatabaseType { return model.DatabaseTypeDocument }

// Database is the native query surface for document stores
func (h *DocumentHandle) Database() *mongo.Database { return h.db }

// Probe looks up a single document; an empty collection still counts as reachable.
func (h *DocumentHandle) Probe(ctx context.Context) error {
	err := h.db.Collection(probeCollection).FindOne(ctx, bson.D{}).Err()
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return err
	}
	return nil
}

func (h *DocumentHandle) Query(context.Context, string, ...any) ([]map[string]any, error) {
	return nil, fmt.Errorf("%w: raw SQL is not available on document stores, use Database()", model.ErrUnsupportedOperation)
}

func (h *DocumentHandle) Close(ctx context.Context) error {
	return h.client.Disconnect(ctx)
}
