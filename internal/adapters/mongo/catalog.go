package mongo

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/event-pass-gate/internal/domain"
	"github.com/robertarktes/event-pass-gate/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type PassTypeCatalog struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewPassTypeCatalog(db *mongo.Database, logger observability.Logger) *PassTypeCatalog {
	return &PassTypeCatalog{
		coll:   db.Collection("pass_types"),
		logger: logger,
	}
}

type PassTypeDoc struct {
	ID            string `bson:"_id"`
	Name          string `bson:"name"`
	Price         int64  `bson:"price"`
	MaxPeople     int    `bson:"max_people"`
	ValidForEvent string `bson:"valid_for_event"`
	Description   string `bson:"description"`
	IsActive      bool   `bson:"is_active"`
}

func (d PassTypeDoc) toDomain() domain.PassType {
	return domain.PassType{
		ID:            d.ID,
		Name:          d.Name,
		Price:         d.Price,
		MaxPeople:     d.MaxPeople,
		ValidForEvent: d.ValidForEvent,
		Description:   d.Description,
		IsActive:      d.IsActive,
	}
}

func fromDomain(p domain.PassType) PassTypeDoc {
	return PassTypeDoc{
		ID:            p.ID,
		Name:          p.Name,
		Price:         p.Price,
		MaxPeople:     p.MaxPeople,
		ValidForEvent: p.ValidForEvent,
		Description:   p.Description,
		IsActive:      p.IsActive,
	}
}

// DefaultPassTypes are seeded into an empty catalog.
var DefaultPassTypes = []domain.PassType{
	{ID: "teens", Name: "Teens", Price: 500, MaxPeople: 1, ValidForEvent: "Pool Party", Description: "Single entry pass for teens", IsActive: true},
	{ID: "couple", Name: "Couple", Price: 1200, MaxPeople: 2, ValidForEvent: "Pool Party", Description: "Entry pass for a couple", IsActive: true},
	{ID: "family", Name: "Family", Price: 2000, MaxPeople: 4, ValidForEvent: "Pool Party", Description: "Entry pass for a family of four", IsActive: true},
}

func (c *PassTypeCatalog) EnsureIndexes(ctx context.Context) error {
	_, err := c.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// SeedDefaults inserts DefaultPassTypes that are missing by name. Existing
// documents are left untouched.
func (c *PassTypeCatalog) SeedDefaults(ctx context.Context) error {
	for _, p := range DefaultPassTypes {
		_, err := c.coll.UpdateOne(ctx,
			bson.M{"name": p.Name},
			bson.M{"$setOnInsert": fromDomain(p)},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			c.logger.WithError(err).WithField("pass_type", p.Name).Error("failed to seed pass type")
			return err
		}
	}
	return nil
}

func (c *PassTypeCatalog) GetPassType(ctx context.Context, id string) (*domain.PassType, error) {
	var doc PassTypeDoc
	err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.Wrapf(domain.ErrNotFound, "pass type %s", id)
	}
	if err != nil {
		c.logger.WithError(err).Error("failed to get pass type")
		return nil, err
	}
	p := doc.toDomain()
	return &p, nil
}

// ListPassTypes returns the catalog sorted by price.
func (c *PassTypeCatalog) ListPassTypes(ctx context.Context, activeOnly bool) ([]domain.PassType, error) {
	filter := bson.M{}
	if activeOnly {
		filter["is_active"] = true
	}
	cur, err := c.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "price", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []PassTypeDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	types := make([]domain.PassType, 0, len(docs))
	for _, d := range docs {
		types = append(types, d.toDomain())
	}
	return types, nil
}

// CreatePassType inserts p and returns it with its id. A missing id is
// derived from the name, so "Early Bird" becomes "early-bird".
func (c *PassTypeCatalog) CreatePassType(ctx context.Context, p domain.PassType) (domain.PassType, error) {
	if p.ID == "" {
		p.ID = strings.ToLower(strings.Join(strings.Fields(p.Name), "-"))
	}
	_, err := c.coll.InsertOne(ctx, fromDomain(p))
	if mongo.IsDuplicateKeyError(err) {
		return domain.PassType{}, errors.Wrapf(domain.ErrConflict, "pass type %s already exists", p.Name)
	}
	if err != nil {
		c.logger.WithError(err).Error("failed to create pass type")
		return domain.PassType{}, err
	}
	return p, nil
}

func (c *PassTypeCatalog) Ping(ctx context.Context) error {
	return c.coll.Database().Client().Ping(ctx, nil)
}
