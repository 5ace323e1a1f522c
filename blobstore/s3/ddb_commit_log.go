package s3

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hupe1980/recgo/blobstore"
)

// DDBCommitLog implements blobstore.CommitLog on DynamoDB.
//
// Every commit is an item keyed by the snapshot base URI and a monotonically
// increasing version. Appends use a conditional write, so two writers racing
// for the same version cannot both succeed.
//
// Table schema:
//   - Partition key: base_uri (string) - the S3 prefix/path
//   - Sort key: version (number) - monotonically increasing version
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name recgo-commits \
//	  --attribute-definitions AttributeName=base_uri,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=base_uri,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type DDBCommitLog struct {
	client    DDBClient
	tableName string
	baseURI   string
}

var _ blobstore.CommitLog = (*DDBCommitLog)(nil)

// DDBClient is the interface for DynamoDB operations.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

var _ DDBClient = (*dynamodb.Client)(nil)

// ErrConcurrentModification is returned when a concurrent write is detected.
var ErrConcurrentModification = errors.New("concurrent modification detected")

// NewDDBCommitLog creates a commit log. baseURI ("s3://bucket/prefix") is the
// partition key.
func NewDDBCommitLog(client DDBClient, tableName, baseURI string) *DDBCommitLog {
	return &DDBCommitLog{
		client:    client,
		tableName: tableName,
		baseURI:   baseURI,
	}
}

// NewDDBCommitLogFromConfig loads the default AWS configuration.
func NewDDBCommitLogFromConfig(ctx context.Context, tableName, baseURI string, optFns ...func(*config.LoadOptions) error) (*DDBCommitLog, error) {
	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, err
	}

	return NewDDBCommitLog(dynamodb.NewFromConfig(cfg), tableName, baseURI), nil
}

// Append writes c under the next version.
func (l *DDBCommitLog) Append(ctx context.Context, c blobstore.Commit) error {
	current, _, err := l.latest(ctx)
	if err != nil {
		return err
	}

	files := make([]types.AttributeValue, len(c.Files))
	for i, f := range c.Files {
		files[i] = &types.AttributeValueMemberS{Value: f}
	}

	_, err = l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(l.tableName),
		Item: map[string]types.AttributeValue{
			"base_uri":          &types.AttributeValueMemberS{Value: l.baseURI},
			"version":           &types.AttributeValueMemberN{Value: strconv.FormatUint(current+1, 10)},
			"commit_id":         &types.AttributeValueMemberS{Value: c.ID},
			"folder":            &types.AttributeValueMemberS{Value: c.Folder},
			"artists_version":   &types.AttributeValueMemberN{Value: strconv.FormatUint(c.ArtistsVersion, 10)},
			"playlists_version": &types.AttributeValueMemberN{Value: strconv.FormatUint(c.PlaylistsVersion, 10)},
			"files":             &types.AttributeValueMemberL{Value: files},
			"created_at":        &types.AttributeValueMemberS{Value: c.CreatedAt.UTC().Format(time.RFC3339Nano)},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrConcurrentModification
		}
		return fmt.Errorf("failed to commit version to DynamoDB: %w", err)
	}

	return nil
}

// Latest returns the newest commit.
func (l *DDBCommitLog) Latest(ctx context.Context) (blobstore.Commit, bool, error) {
	_, item, err := l.latest(ctx)
	if err != nil || item == nil {
		return blobstore.Commit{}, false, err
	}

	c, err := decodeCommit(item)
	if err != nil {
		return blobstore.Commit{}, false, err
	}

	return c, true, nil
}

func (l *DDBCommitLog) latest(ctx context.Context) (uint64, map[string]types.AttributeValue, error) {
	resp, err := l.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(l.tableName),
		KeyConditionExpression: aws.String("base_uri = :uri"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uri": &types.AttributeValueMemberS{Value: l.baseURI},
		},
		ScanIndexForward: aws.Bool(false), // Descending order
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, nil, fmt.Errorf("failed to query DynamoDB: %w", err)
	}

	if len(resp.Items) == 0 {
		return 0, nil, nil
	}

	item := resp.Items[0]

	version, err := numberAttr(item, "version")
	if err != nil {
		return 0, nil, err
	}

	return version, item, nil
}

func decodeCommit(item map[string]types.AttributeValue) (blobstore.Commit, error) {
	var (
		c   blobstore.Commit
		err error
	)

	if c.ID, err = stringAttr(item, "commit_id"); err != nil {
		return c, err
	}
	if c.Folder, err = stringAttr(item, "folder"); err != nil {
		return c, err
	}
	if c.ArtistsVersion, err = numberAttr(item, "artists_version"); err != nil {
		return c, err
	}
	if c.PlaylistsVersion, err = numberAttr(item, "playlists_version"); err != nil {
		return c, err
	}

	created, err := stringAttr(item, "created_at")
	if err != nil {
		return c, err
	}
	if c.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return c, fmt.Errorf("invalid created_at attribute: %w", err)
	}

	if list, ok := item["files"].(*types.AttributeValueMemberL); ok {
		for _, v := range list.Value {
			if s, ok := v.(*types.AttributeValueMemberS); ok {
				c.Files = append(c.Files, s.Value)
			}
		}
	}

	return c, nil
}

func stringAttr(item map[string]types.AttributeValue, name string) (string, error) {
	v, ok := item[name].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("invalid %s attribute in DynamoDB", name)
	}

	return v.Value, nil
}

func numberAttr(item map[string]types.AttributeValue, name string) (uint64, error) {
	v, ok := item[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("invalid %s attribute in DynamoDB", name)
	}

	n, err := strconv.ParseUint(v.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", name, err)
	}

	return n, nil
}
