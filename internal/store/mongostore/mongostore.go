// Package mongostore keeps the asset catalog and orders in MongoDB. Orders
// are single documents holding their line items, so rewriting an order's
// custody sets is one update.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/erazemk/oder/internal/custody"
	"github.com/erazemk/oder/internal/model"
)

// Store implements custody.Store on a MongoDB database. Transactions need a
// replica set.
type Store struct {
	client *mongo.Client
	assets *mongo.Collection
	orders *mongo.Collection
	now    func() time.Time
}

var _ custody.Store = (*Store)(nil)

// Open connects to uri and uses database name.
func Open(ctx context.Context, uri, name string) (*Store, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(20 * time.Second).
		SetServerSelectionTimeout(15 * time.Second).
		SetMaxPoolSize(50)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}

	db := client.Database(name)
	s := &Store{
		client: client,
		assets: db.Collection("assets"),
		orders: db.Collection("orders"),
		now:    time.Now,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.assets.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "model_key", Value: 1}}})
	if err != nil {
		return fmt.Errorf("creating asset indexes: %w", err)
	}
	_, err = s.orders.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "items.active", Value: 1}}},
		{Keys: bson.D{{Key: "pickup_date", Value: -1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("creating order indexes: %w", err)
	}
	return nil
}

type assetDoc struct {
	ID        string    `bson:"_id"`
	Model     string    `bson:"model"`
	ModelKey  string    `bson:"model_key"`
	Status    string    `bson:"status"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func toAssetDoc(a model.Asset) assetDoc {
	return assetDoc{
		ID: a.ID, Model: a.Model, ModelKey: model.NormalizeModel(a.Model), Status: a.Status,
		CreatedAt: a.CreatedAt.UTC(), UpdatedAt: a.UpdatedAt.UTC(),
	}
}

func (d assetDoc) asset() model.Asset {
	return model.Asset{ID: d.ID, Model: d.Model, Status: d.Status, CreatedAt: d.CreatedAt.UTC(), UpdatedAt: d.UpdatedAt.UTC()}
}

type itemDoc struct {
	Model    string   `bson:"model"`
	Quantity int      `bson:"quantity"`
	Active   []string `bson:"active"`
	Returned []string `bson:"returned"`
}

type orderDoc struct {
	ID         string    `bson:"_id"`
	Crew       string    `bson:"crew"`
	Contract   string    `bson:"contract"`
	Site       string    `bson:"site"`
	PickupDate string    `bson:"pickup_date"`
	LoanDays   int       `bson:"loan_days"`
	CreatedAt  time.Time `bson:"created_at"`
	Items      []itemDoc `bson:"items"`
}

func itemDocs(items []model.LineItem) []itemDoc {
	out := make([]itemDoc, len(items))
	for i, it := range items {
		out[i] = itemDoc{Model: it.Model, Quantity: it.Quantity, Active: nonNil(it.Active), Returned: nonNil(it.Returned)}
	}
	return out
}

func toOrderDoc(o *model.Order) orderDoc {
	return orderDoc{
		ID: o.ID, Crew: o.Crew, Contract: o.Contract, Site: o.Site,
		PickupDate: o.PickupDate.String(), LoanDays: o.LoanDays, CreatedAt: o.CreatedAt.UTC(),
		Items: itemDocs(o.Items),
	}
}

func (d orderDoc) order() (model.Order, error) {
	pickup, err := model.ParseDate(d.PickupDate)
	if d.PickupDate == "" {
		pickup, err = model.Date{}, nil
	}
	if err != nil {
		return model.Order{}, fmt.Errorf("order %s: %w", d.ID, err)
	}
	o := model.Order{
		ID: d.ID, Crew: d.Crew, Contract: d.Contract, Site: d.Site,
		PickupDate: pickup, LoanDays: d.LoanDays, CreatedAt: d.CreatedAt.UTC(),
		Items: make([]model.LineItem, len(d.Items)),
	}
	for i, it := range d.Items {
		o.Items[i] = model.LineItem{Model: it.Model, Quantity: it.Quantity, Active: nonNil(it.Active), Returned: nonNil(it.Returned)}
	}
	return o, nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// containsRegex matches s anywhere, ignoring case.
func containsRegex(s string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(s), Options: "i"}
}

func (s *Store) findOrders(ctx context.Context, filter bson.M) ([]model.Order, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "pickup_date", Value: -1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1},
	})
	cur, err := s.orders.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []orderDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	orders := make([]model.Order, 0, len(docs))
	for _, d := range docs {
		o, err := d.order()
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// ListOrders implements custody.Store.
func (s *Store) ListOrders(ctx context.Context, filter custody.OrderFilter) ([]model.Order, error) {
	q := bson.M{}
	switch filter.State {
	case custody.OrdersActive:
		q["items.active.0"] = bson.M{"$exists": true}
	case custody.OrdersHistory:
		q["items.returned.0"] = bson.M{"$exists": true}
	}
	if id := strings.TrimSpace(filter.AssetID); id != "" {
		q["items.active"] = id
	}
	if v := strings.TrimSpace(filter.Crew); v != "" {
		q["crew"] = containsRegex(v)
	}
	if v := strings.TrimSpace(filter.Contract); v != "" {
		q["contract"] = containsRegex(v)
	}
	if v := strings.TrimSpace(filter.Site); v != "" {
		q["site"] = containsRegex(v)
	}
	if v := strings.TrimSpace(filter.Pickup); v != "" {
		q["pickup_date"] = primitive.Regex{Pattern: "^" + regexp.QuoteMeta(v)}
	}
	orders, err := s.findOrders(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return orders, nil
}

// GetOrder implements custody.Store.
func (s *Store) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	var d orderDoc
	err := s.orders.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}
	o, err := d.order()
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ListAssets implements custody.Store.
func (s *Store) ListAssets(ctx context.Context, filter custody.AssetFilter) ([]model.Asset, error) {
	q := bson.M{}
	if filter.Model != "" {
		q["model_key"] = model.NormalizeModel(filter.Model)
	}
	if filter.Status != "" {
		q["status"] = filter.Status
	}
	if v := strings.TrimSpace(filter.Query); v != "" {
		q["_id"] = primitive.Regex{Pattern: regexp.QuoteMeta(v)}
	}
	opts := options.Find().SetSort(bson.D{{Key: "model_key", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.assets.Find(ctx, q, opts)
	if err != nil {
		return nil, fmt.Errorf("listing assets: %w", err)
	}
	var docs []assetDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding assets: %w", err)
	}
	assets := make([]model.Asset, len(docs))
	for i, d := range docs {
		assets[i] = d.asset()
	}
	return assets, nil
}

// GetAsset implements custody.Store.
func (s *Store) GetAsset(ctx context.Context, id string) (*model.Asset, error) {
	var d assetDoc
	err := s.assets.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting asset: %w", err)
	}
	a := d.asset()
	return &a, nil
}

// CreateAssets implements custody.Store. The batch is all or nothing.
func (s *Store) CreateAssets(ctx context.Context, assets []model.Asset) error {
	return s.inTx(ctx, func(ctx context.Context) error {
		docs := make([]any, len(assets))
		for i, a := range assets {
			docs[i] = toAssetDoc(a)
		}
		_, err := s.assets.InsertMany(ctx, docs)
		if mongo.IsDuplicateKeyError(err) {
			id := duplicateID(err, assets)
			e := custody.ValidationError("piece %s already exists", id)
			e.AssetID = id
			return e
		}
		if err != nil {
			return fmt.Errorf("creating assets: %w", err)
		}
		return nil
	})
}

// duplicateID names the piece the server rejected, when it can be told.
func duplicateID(err error, assets []model.Asset) string {
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) && len(bwe.WriteErrors) > 0 {
		if i := bwe.WriteErrors[0].Index; i >= 0 && i < len(assets) {
			return assets[i].ID
		}
	}
	return "unknown id"
}

// Import implements custody.Store by replacing documents by id.
func (s *Store) Import(ctx context.Context, assets []model.Asset, orders []model.Order) error {
	upsert := options.Replace().SetUpsert(true)
	return s.inTx(ctx, func(ctx context.Context) error {
		for _, a := range assets {
			if _, err := s.assets.ReplaceOne(ctx, bson.M{"_id": a.ID}, toAssetDoc(a), upsert); err != nil {
				return fmt.Errorf("importing asset %s: %w", a.ID, err)
			}
		}
		for i := range orders {
			if _, err := s.orders.ReplaceOne(ctx, bson.M{"_id": orders[i].ID}, toOrderDoc(&orders[i]), upsert); err != nil {
				return fmt.Errorf("importing order %s: %w", orders[i].ID, err)
			}
		}
		return nil
	})
}

// RunInTx implements custody.Store.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx custody.Tx) error) error {
	return s.inTx(ctx, func(ctx context.Context) error {
		return fn(ctx, txView{s})
	})
}

// inTx runs fn in a snapshot transaction. Transient failures are returned as
// custody conflicts for the caller to retry.
func (s *Store) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	defer sess.EndSession(context.Background())

	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	err = mongo.WithSession(ctx, sess, func(sc mongo.SessionContext) error {
		if err := sess.StartTransaction(txOpts); err != nil {
			return fmt.Errorf("starting transaction: %w", err)
		}
		if err := fn(sc); err != nil {
			_ = sess.AbortTransaction(context.Background())
			return err
		}
		if err := commit(sc, sess.CommitTransaction); err != nil {
			return fmt.Errorf("committing transaction: %w", err)
		}
		return nil
	})
	return mapConflict(err)
}

// commitAttempts bounds commit retries when the outcome is unknown.
const commitAttempts = 3

// commit runs commitFn again while the server reports the outcome as unknown.
// Committing is idempotent on the server, whereas re-running the whole
// transaction after a commit that did land would insert the order twice.
func commit(ctx context.Context, commitFn func(context.Context) error) error {
	var err error
	for n := 0; n < commitAttempts; n++ {
		err = commitFn(ctx)
		if !hasLabel(err, driverUnknownCommitLabel) {
			return err
		}
	}
	return err
}

func hasLabel(err error, label string) bool {
	var le mongo.LabeledError
	return errors.As(err, &le) && le.HasErrorLabel(label)
}

// mapConflict reports transient transaction failures, such as write
// conflicts, as custody conflicts. Nothing was committed in that case, so
// the whole transaction may run again.
func mapConflict(err error) error {
	if custody.KindOf(err) != custody.KindInternal {
		return err
	}
	if hasLabel(err, driverTransientLabel) {
		return custody.ConflictError(err)
	}
	return err
}

const (
	driverTransientLabel     = "TransientTransactionError"
	driverUnknownCommitLabel = "UnknownTransactionCommitResult"
)

// txView implements custody.Tx. Every call must receive the session context
// handed to the RunInTx callback.
type txView struct{ s *Store }

func (t txView) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	return t.s.GetOrder(ctx, id)
}

func (t txView) OrdersHolding(ctx context.Context, ids []string) ([]model.Order, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	orders, err := t.s.findOrders(ctx, bson.M{"items.active": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("finding holders: %w", err)
	}
	return orders, nil
}

func (t txView) GetAssets(ctx context.Context, ids []string) (map[string]model.Asset, error) {
	out := make(map[string]model.Asset, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := t.s.assets.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("getting assets: %w", err)
	}
	var docs []assetDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding assets: %w", err)
	}
	for _, d := range docs {
		out[d.ID] = d.asset()
	}
	return out, nil
}

func (t txView) SetAssetStatus(ctx context.Context, ids []string, status string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := t.s.assets.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		bson.M{"$set": bson.M{"status": status, "updated_at": t.s.now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("setting asset status: %w", err)
	}
	return nil
}

func (t txView) InsertOrder(ctx context.Context, o *model.Order) error {
	if _, err := t.s.orders.InsertOne(ctx, toOrderDoc(o)); err != nil {
		return fmt.Errorf("inserting order: %w", err)
	}
	return nil
}

func (t txView) UpdateOrderItems(ctx context.Context, o *model.Order) error {
	_, err := t.s.orders.UpdateOne(ctx,
		bson.M{"_id": o.ID},
		bson.M{"$set": bson.M{"items": itemDocs(o.Items)}},
	)
	if err != nil {
		return fmt.Errorf("updating order items: %w", err)
	}
	return nil
}

func (t txView) UpdateLoanDays(ctx context.Context, orderID string, days int) error {
	_, err := t.s.orders.UpdateOne(ctx,
		bson.M{"_id": orderID},
		bson.M{"$set": bson.M{"loan_days": days}},
	)
	if err != nil {
		return fmt.Errorf("updating loan days: %w", err)
	}
	return nil
}
