package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// buildEventUpdate translates an EventUpdate into a DynamoDB update expression
// with its attribute names and values. Kept pure so the merge semantics are
// testable without a DynamoDB client.
//
// Image appends use list_append over if_not_exists so the first append works
// on events that have no images attribute yet, and concurrent appends to the
// same event both land.
func buildEventUpdate(update EventUpdate, now time.Time) (string, map[string]string, map[string]types.AttributeValue, error) {
	var clauses []string
	names := make(map[string]string)
	values := make(map[string]types.AttributeValue)

	if update.Description != nil {
		names["#desc"] = "description"
		values[":desc"] = &types.AttributeValueMemberS{Value: *update.Description}
		clauses = append(clauses, "#desc = :desc")
	}

	if update.Emotions != nil {
		av, err := attributevalue.Marshal(update.Emotions)
		if err != nil {
			return "", nil, nil, fmt.Errorf("marshal emotions: %w", err)
		}
		names["#emo"] = "emotions"
		values[":emo"] = av
		clauses = append(clauses, "#emo = :emo")
	}

	if update.Audio != nil {
		av, err := attributevalue.Marshal(update.Audio)
		if err != nil {
			return "", nil, nil, fmt.Errorf("marshal audio: %w", err)
		}
		names["#audio"] = "audio"
		values[":audio"] = av
		clauses = append(clauses, "#audio = :audio")
	}

	if len(update.AppendImages) > 0 {
		av, err := attributevalue.Marshal(update.AppendImages)
		if err != nil {
			return "", nil, nil, fmt.Errorf("marshal images: %w", err)
		}
		names["#imgs"] = "images"
		values[":imgs"] = av
		values[":emptyList"] = &types.AttributeValueMemberL{Value: []types.AttributeValue{}}
		clauses = append(clauses, "#imgs = list_append(if_not_exists(#imgs, :emptyList), :imgs)")
	}

	if len(clauses) == 0 {
		return "", nil, nil, fmt.Errorf("empty update")
	}

	names["#updatedAt"] = "updatedAt"
	values[":updatedAt"] = &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339Nano)}
	clauses = append(clauses, "#updatedAt = :updatedAt")

	return "SET " + strings.Join(clauses, ", "), names, values, nil
}
