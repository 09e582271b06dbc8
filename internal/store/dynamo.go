package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/safewatch/safewatch-server/internal/apperr"
)

// DynamoDB key constants for the single-table design.
const (
	pkPrefix      = "USER#"
	skProfile     = "PROFILE"
	skEventPrefix = "EVENT#"
)

// DynamoStore implements EventStore using AWS DynamoDB.
type DynamoStore struct {
	client    *dynamodb.Client
	tableName string
}

// Compile-time interface check.
var _ EventStore = (*DynamoStore)(nil)

// NewDynamoStore creates a DynamoStore for the given table.
// The client should be initialized from the shared AWS config.
func NewDynamoStore(client *dynamodb.Client, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
	}
}

// userPK returns the partition key for an owner.
func userPK(ownerKey string) string {
	return pkPrefix + ownerKey
}

func eventSK(eventID string) string {
	return skEventPrefix + eventID
}

// getItem reads a single item and unmarshals it into out.
// Returns false if the item does not exist (out is not modified).
func (s *DynamoStore) getItem(ctx context.Context, pk, sk string, out interface{}) (bool, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: sk},
		},
	})
	if err != nil {
		return false, fmt.Errorf("GetItem PK=%s SK=%s: %w", pk, sk, err)
	}
	if result.Item == nil {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(result.Item, out); err != nil {
		return false, fmt.Errorf("unmarshal PK=%s SK=%s: %w", pk, sk, err)
	}
	return true, nil
}

// eventFromItem unmarshals an event item, recovering owner and event ID
// from the key attributes.
func eventFromItem(item map[string]types.AttributeValue) (EmergencyEvent, error) {
	var event EmergencyEvent
	if err := attributevalue.UnmarshalMap(item, &event); err != nil {
		return event, fmt.Errorf("unmarshal event: %w", err)
	}
	if pk, ok := item["PK"].(*types.AttributeValueMemberS); ok {
		event.OwnerKey = strings.TrimPrefix(pk.Value, pkPrefix)
	}
	if sk, ok := item["SK"].(*types.AttributeValueMemberS); ok {
		event.ID = strings.TrimPrefix(sk.Value, skEventPrefix)
	}
	return event, nil
}

// --- User operations ---

func (s *DynamoStore) CreateOrUpdateUser(ctx context.Context, user User) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	// Upsert: username and email follow the request, createdAt is written
	// once and preserved across later updates.
	expr := "SET #u = :u, createdAt = if_not_exists(createdAt, :now)"
	names := map[string]string{"#u": "username"}
	values := map[string]types.AttributeValue{
		":u":   &types.AttributeValueMemberS{Value: user.Username},
		":now": &types.AttributeValueMemberS{Value: now},
	}
	if user.Email != "" {
		expr += ", email = :email"
		values[":email"] = &types.AttributeValueMemberS{Value: user.Email}
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: userPK(user.OwnerKey)},
			"SK": &types.AttributeValueMemberS{Value: skProfile},
		},
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return &apperr.StorageError{Op: "upsert user " + user.OwnerKey, Err: err}
	}

	log.Debug().Str("ownerKey", user.OwnerKey).Str("username", user.Username).Msg("User profile upserted")
	return nil
}

func (s *DynamoStore) GetUser(ctx context.Context, ownerKey string) (*Profile, error) {
	var user User
	found, err := s.getItem(ctx, userPK(ownerKey), skProfile, &user)
	if err != nil {
		return nil, &apperr.StorageError{Op: "get user " + ownerKey, Err: err}
	}
	if !found {
		return nil, &apperr.NotFoundError{Resource: "user", Key: ownerKey}
	}
	user.OwnerKey = ownerKey

	events, err := s.eventsForOwner(ctx, ownerKey)
	if err != nil {
		return nil, err
	}
	sortEventsOldestFirst(events)

	return &Profile{User: user, Events: events}, nil
}

// eventsForOwner queries all event items under one partition key.
func (s *DynamoStore) eventsForOwner(ctx context.Context, ownerKey string) ([]EmergencyEvent, error) {
	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :skPrefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":       &types.AttributeValueMemberS{Value: userPK(ownerKey)},
			":skPrefix": &types.AttributeValueMemberS{Value: skEventPrefix},
		},
	}

	var events []EmergencyEvent

	// Handle pagination — DynamoDB returns up to 1MB per Query call.
	for {
		result, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, &apperr.StorageError{Op: "query events for " + ownerKey, Err: err}
		}
		for _, item := range result.Items {
			event, err := eventFromItem(item)
			if err != nil {
				log.Warn().Err(err).Str("ownerKey", ownerKey).Msg("Failed to unmarshal event, skipping")
				continue
			}
			events = append(events, event)
		}

		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}

	return events, nil
}

// --- Event operations ---

func (s *DynamoStore) AppendEvent(ctx context.Context, ownerKey string, event *EmergencyEvent) error {
	// A first report from an unknown owner registers them: the profile is
	// created with the owner key as username.
	var user User
	found, err := s.getItem(ctx, userPK(ownerKey), skProfile, &user)
	if err != nil {
		return &apperr.StorageError{Op: "get user " + ownerKey, Err: err}
	}
	if !found {
		user = User{OwnerKey: ownerKey, Username: ownerKey}
		if err := s.CreateOrUpdateUser(ctx, user); err != nil {
			return err
		}
	}

	event.ID = uuid.NewString()
	event.OwnerKey = ownerKey
	event.Username = user.Username
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	item, err := attributevalue.MarshalMap(event)
	if err != nil {
		return &apperr.StorageError{Op: "marshal event", Err: err}
	}
	item["PK"] = &types.AttributeValueMemberS{Value: userPK(ownerKey)}
	item["SK"] = &types.AttributeValueMemberS{Value: eventSK(event.ID)}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
		// Freshly minted uuid; the condition guards against ever clobbering
		// an existing event.
		ConditionExpression: aws.String("attribute_not_exists(SK)"),
	})
	if err != nil {
		return &apperr.StorageError{Op: "put event " + event.ID, Err: err}
	}

	log.Debug().
		Str("ownerKey", ownerKey).
		Str("eventId", event.ID).
		Float64("latitude", event.Location.Latitude).
		Float64("longitude", event.Location.Longitude).
		Msg("Emergency event persisted")
	return nil
}

func (s *DynamoStore) GetEvent(ctx context.Context, ownerKey, eventID string) (*EmergencyEvent, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: userPK(ownerKey)},
			"SK": &types.AttributeValueMemberS{Value: eventSK(eventID)},
		},
	})
	if err != nil {
		return nil, &apperr.StorageError{Op: "get event " + eventID, Err: err}
	}
	if result.Item == nil {
		return nil, &apperr.NotFoundError{Resource: "event", Key: eventID}
	}

	event, err := eventFromItem(result.Item)
	if err != nil {
		return nil, &apperr.StorageError{Op: "get event " + eventID, Err: err}
	}
	return &event, nil
}

func (s *DynamoStore) MergeEventFields(ctx context.Context, ownerKey, eventID string, update EventUpdate) error {
	if update.IsEmpty() {
		return &apperr.ValidationError{Field: "update", Reason: "no fields to merge"}
	}

	expr, names, values, err := buildEventUpdate(update, time.Now())
	if err != nil {
		return &apperr.StorageError{Op: "build update for event " + eventID, Err: err}
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: userPK(ownerKey)},
			"SK": &types.AttributeValueMemberS{Value: eventSK(eventID)},
		},
		// The merge must never create a phantom event from a stale ID.
		ConditionExpression:       aws.String("attribute_exists(PK) AND attribute_exists(SK)"),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return &apperr.NotFoundError{Resource: "event", Key: eventID}
		}
		return &apperr.StorageError{Op: "merge event " + eventID, Err: err}
	}

	log.Debug().
		Str("ownerKey", ownerKey).
		Str("eventId", eventID).
		Bool("description", update.Description != nil).
		Bool("emotions", update.Emotions != nil).
		Bool("audio", update.Audio != nil).
		Int("appendImages", len(update.AppendImages)).
		Msg("Event fields merged")
	return nil
}

// --- Cross-user reads ---

// scanAll walks the whole table, invoking fn for every item.
// Table sizes here are small; the feed and dump endpoints tolerate a scan.
func (s *DynamoStore) scanAll(ctx context.Context, input *dynamodb.ScanInput, fn func(map[string]types.AttributeValue)) error {
	for {
		result, err := s.client.Scan(ctx, input)
		if err != nil {
			return err
		}
		for _, item := range result.Items {
			fn(item)
		}
		if result.LastEvaluatedKey == nil {
			return nil
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
}

func (s *DynamoStore) ListUsersWithEvents(ctx context.Context) ([]Profile, error) {
	users := make(map[string]User)
	eventsByOwner := make(map[string][]EmergencyEvent)

	err := s.scanAll(ctx, &dynamodb.ScanInput{TableName: &s.tableName}, func(item map[string]types.AttributeValue) {
		pk, ok := item["PK"].(*types.AttributeValueMemberS)
		if !ok {
			return
		}
		sk, ok := item["SK"].(*types.AttributeValueMemberS)
		if !ok {
			return
		}
		ownerKey := strings.TrimPrefix(pk.Value, pkPrefix)

		if sk.Value == skProfile {
			var user User
			if err := attributevalue.UnmarshalMap(item, &user); err != nil {
				log.Warn().Err(err).Str("ownerKey", ownerKey).Msg("Failed to unmarshal user, skipping")
				return
			}
			user.OwnerKey = ownerKey
			users[ownerKey] = user
			return
		}

		if strings.HasPrefix(sk.Value, skEventPrefix) {
			event, err := eventFromItem(item)
			if err != nil {
				log.Warn().Err(err).Str("ownerKey", ownerKey).Msg("Failed to unmarshal event, skipping")
				return
			}
			eventsByOwner[ownerKey] = append(eventsByOwner[ownerKey], event)
		}
	})
	if err != nil {
		return nil, &apperr.StorageError{Op: "scan profiles", Err: err}
	}

	var profiles []Profile
	for ownerKey, events := range eventsByOwner {
		user, ok := users[ownerKey]
		if !ok {
			log.Warn().Str("ownerKey", ownerKey).Msg("Events without a profile record, skipping owner")
			continue
		}
		sortEventsOldestFirst(events)
		profiles = append(profiles, Profile{User: user, Events: events})
	}

	// Deterministic output order for the dump endpoint.
	sortProfilesByUsername(profiles)
	return profiles, nil
}

func (s *DynamoStore) MostRecentEvents(ctx context.Context, n int) ([]RecentEvent, error) {
	var events []EmergencyEvent

	input := &dynamodb.ScanInput{
		TableName:        &s.tableName,
		FilterExpression: aws.String("begins_with(SK, :skPrefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":skPrefix": &types.AttributeValueMemberS{Value: skEventPrefix},
		},
	}

	err := s.scanAll(ctx, input, func(item map[string]types.AttributeValue) {
		event, err := eventFromItem(item)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to unmarshal event, skipping")
			return
		}
		events = append(events, event)
	})
	if err != nil {
		return nil, &apperr.StorageError{Op: "scan recent events", Err: err}
	}

	return topRecent(events, n), nil
}
