package venue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/azrayildirim/mekandamobil/internal/shared/apperr"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const Collection = "venues"

// MongoStore keeps active users as a sub-document keyed by user id and
// mutates single keys with $set/$unset.
type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(database *mongo.Database) *MongoStore {
	return &MongoStore{coll: database.Collection(Collection)}
}

var errInvalidUserKey = errors.New("user id cannot be used as a document key")

func (s *MongoStore) List(ctx context.Context) ([]Venue, error) {
	cur, err := s.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var venues []Venue
	for cur.Next(ctx) {
		var v Venue
		if err := cur.Decode(&v); err != nil {
			return nil, err
		}
		venues = append(venues, normalize(v))
	}
	return venues, cur.Err()
}

func (s *MongoStore) Get(ctx context.Context, id string) (Venue, error) {
	var v Venue
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&v)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Venue{}, fmt.Errorf("venue %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return Venue{}, err
	}
	return normalize(v), nil
}

func (s *MongoStore) Create(ctx context.Context, input Venue) (Venue, error) {
	if input.ID == "" {
		input.ID = uuid.NewString()
	}
	if input.Photos == nil {
		input.Photos = []string{}
	}
	input.Reviews = []Review{}
	input.ActiveUsers = map[string]ActiveUser{}
	input.CreatedAt = time.Now().UTC()

	if _, err := s.coll.InsertOne(ctx, input); err != nil {
		return Venue{}, err
	}
	return input, nil
}

func (s *MongoStore) AddActiveUser(ctx context.Context, venueID string, u ActiveUser) error {
	field, err := userField(u.ID)
	if err != nil {
		return err
	}
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": venueID, field: bson.M{"$exists": false}},
		bson.M{"$set": bson.M{field: u}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}
	// either the user is already present or the venue is missing
	n, err := s.coll.CountDocuments(ctx, bson.M{"_id": venueID})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("venue %s: %w", venueID, apperr.ErrNotFound)
	}
	return nil
}

func (s *MongoStore) RemoveActiveUser(ctx context.Context, venueID, userID string) error {
	field, err := userField(userID)
	if err != nil {
		return err
	}
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": venueID}, bson.M{"$unset": bson.M{field: ""}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("venue %s: %w", venueID, apperr.ErrNotFound)
	}
	return nil
}

func (s *MongoStore) RefreshActiveUser(ctx context.Context, userID string, patch ProfilePatch, seen time.Time) (int64, error) {
	field, err := userField(userID)
	if err != nil {
		return 0, err
	}
	set := bson.M{}
	for k, v := range patch.fields(seen) {
		set[field+"."+k] = v
	}
	res, err := s.coll.UpdateMany(ctx, bson.M{field: bson.M{"$exists": true}}, bson.M{"$set": set})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func userField(userID string) (string, error) {
	if userID == "" || strings.ContainsAny(userID, ".$") {
		return "", fmt.Errorf("%q: %w", userID, errInvalidUserKey)
	}
	return "activeUsers." + userID, nil
}

func normalize(v Venue) Venue {
	if v.ActiveUsers == nil {
		v.ActiveUsers = map[string]ActiveUser{}
	}
	if v.Photos == nil {
		v.Photos = []string{}
	}
	if v.Reviews == nil {
		v.Reviews = []Review{}
	}
	return v
}
