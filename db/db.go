package db

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/jsphweid/midiroll/model"
	"github.com/jsphweid/midiroll/util"
	"github.com/pkg/errors"
)

// DynamoDB refuses more keys than this in one BatchGetItem.
const maxBatchKeys = 100

// Catalog keeps one item per normalized file, keyed by its path relative to
// the media dir.
type Catalog struct {
	client dynamodbiface.DynamoDBAPI
	table  string
}

func New(endpoint string, region string, table string) (*Catalog, error) {
	session, err := session.NewSession(&aws.Config{
		Region:   aws.String(region),
		Endpoint: aws.String(endpoint),
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not create a new DynamoDB session")
	}
	return NewWithClient(dynamodb.New(session), table), nil
}

func NewWithClient(client dynamodbiface.DynamoDBAPI, table string) *Catalog {
	return &Catalog{client: client, table: table}
}

func Key(filename string) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		"PK": {S: aws.String(filename)},
	}
}

func Item(summary model.RollSummary) (map[string]*dynamodb.AttributeValue, error) {
	item, err := dynamodbattribute.MarshalMap(summary)
	if err != nil {
		return nil, errors.Wrapf(err, "marshalling %s", summary.Name)
	}
	item["PK"] = &dynamodb.AttributeValue{S: aws.String(summary.Name)}
	return item, nil
}

// GetRollHashes returns the stored source hash of every filename the
// catalog knows about.
func (c *Catalog) GetRollHashes(filenames []string) (map[string]string, error) {
	res := make(map[string]string)
	for start := 0; start < len(filenames); start += maxBatchKeys {
		end := util.Min(start+maxBatchKeys, len(filenames))

		var keys []map[string]*dynamodb.AttributeValue
		for _, filename := range filenames[start:end] {
			keys = append(keys, Key(filename))
		}
		request := map[string]*dynamodb.KeysAndAttributes{
			c.table: {
				Keys:                 keys,
				ProjectionExpression: aws.String("PK, SourceHash"),
			},
		}

		for len(request) > 0 {
			out, err := c.client.BatchGetItem(&dynamodb.BatchGetItemInput{RequestItems: request})
			if err != nil {
				return nil, errors.Wrap(err, "error from DynamoDB")
			}
			for _, v := range out.Responses[c.table] {
				if v["PK"] == nil || v["PK"].S == nil || v["SourceHash"] == nil || v["SourceHash"].S == nil {
					continue
				}
				res[*v["PK"].S] = *v["SourceHash"].S
			}
			request = out.UnprocessedKeys
		}
	}
	return res, nil
}

func (c *Catalog) PutRoll(summary model.RollSummary) error {
	item, err := Item(summary)
	if err != nil {
		return err
	}
	_, err = c.client.PutItem(&dynamodb.PutItemInput{
		TableName: aws.String(c.table),
		Item:      item,
	})
	return errors.Wrapf(err, "putting %s", summary.Name)
}
