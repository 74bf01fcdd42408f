// Package archive persists durable command-invocation history in MongoDB.
// The Redis store holds live per-guild state; the archive is the long-lived
// trail the dashboard reads.
package archive

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Tonk1e/RickBot/internal/command"
)

const collectionName = "command_history"

// Record is one archived command invocation.
type Record struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	GuildID   string             `bson:"guild_id" json:"guildId"`
	GuildName string             `bson:"guild_name" json:"guildName"`
	ChannelID string             `bson:"channel_id" json:"channelId"`
	UserID    string             `bson:"user_id" json:"userId"`
	Username  string             `bson:"username" json:"username"`
	Command   string             `bson:"command" json:"command"`
	Content   string             `bson:"content" json:"content"`
	At        time.Time          `bson:"at" json:"at"`
}

// Store is the Mongo-backed archive.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// Open connects to Mongo and pings it so a bad URL fails at startup, not on
// the first command.
func Open(ctx context.Context, url, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(url))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Store{
		client: client,
		coll:   client.Database(database).Collection(collectionName),
	}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// RecordInvocation appends one dispatch record. Satisfies the dispatcher's
// Recorder.
func (s *Store) RecordInvocation(ctx context.Context, rec command.InvocationRecord) error {
	_, err := s.coll.InsertOne(ctx, newRecord(rec))
	if err != nil {
		return fmt.Errorf("insert invocation record: %w", err)
	}
	return nil
}

func newRecord(rec command.InvocationRecord) Record {
	return Record{
		GuildID:   rec.GuildID,
		GuildName: rec.GuildName,
		ChannelID: rec.ChannelID,
		UserID:    rec.UserID,
		Username:  rec.Username,
		Command:   rec.Command,
		Content:   rec.Content,
		At:        rec.At,
	}
}

// Recent returns the guild's newest records, newest first.
func (s *Store) Recent(ctx context.Context, guildID string, limit int) ([]Record, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "at", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := s.coll.Find(ctx, bson.M{"guild_id": guildID}, opts)
	if err != nil {
		return nil, fmt.Errorf("query invocation records: %w", err)
	}
	defer cur.Close(ctx)

	var records []Record
	if err := cur.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("decode invocation records: %w", err)
	}
	return records, nil
}

// Trim deletes everything beyond the guild's newest keep records. Run
// periodically so a chatty guild cannot grow the collection without bound.
func (s *Store) Trim(ctx context.Context, guildID string, keep int) (int64, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "at", Value: -1}}).
		SetSkip(int64(keep)).
		SetProjection(bson.M{"_id": 1})

	cur, err := s.coll.Find(ctx, bson.M{"guild_id": guildID}, opts)
	if err != nil {
		return 0, fmt.Errorf("query excess records: %w", err)
	}
	defer cur.Close(ctx)

	var excess []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cur.All(ctx, &excess); err != nil {
		return 0, fmt.Errorf("decode excess records: %w", err)
	}
	if len(excess) == 0 {
		return 0, nil
	}

	ids := make([]primitive.ObjectID, len(excess))
	for i, e := range excess {
		ids[i] = e.ID
	}
	res, err := s.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, fmt.Errorf("delete excess records: %w", err)
	}
	return res.DeletedCount, nil
}

// Guilds lists the distinct guild IDs present in the archive, used by the
// trim task to walk every guild.
func (s *Store) Guilds(ctx context.Context) ([]string, error) {
	raw, err := s.coll.Distinct(ctx, "guild_id", bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list archived guilds: %w", err)
	}
	guilds := make([]string, 0, len(raw))
	for _, v := range raw {
		if id, ok := v.(string); ok {
			guilds = append(guilds, id)
		}
	}
	return guilds, nil
}
