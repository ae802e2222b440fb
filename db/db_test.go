package db

import (
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/jsphweid/midiroll/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient serves a map of PK -> item, and holds back one key on the
// first call to exercise UnprocessedKeys.
type fakeClient struct {
	dynamodbiface.DynamoDBAPI
	items    map[string]map[string]*dynamodb.AttributeValue
	calls    int
	maxKeys  int
	withheld bool
}

func (f *fakeClient) BatchGetItem(in *dynamodb.BatchGetItemInput) (*dynamodb.BatchGetItemOutput, error) {
	f.calls++
	out := &dynamodb.BatchGetItemOutput{
		Responses:       map[string][]map[string]*dynamodb.AttributeValue{},
		UnprocessedKeys: map[string]*dynamodb.KeysAndAttributes{},
	}
	for table, ka := range in.RequestItems {
		if len(ka.Keys) > f.maxKeys {
			f.maxKeys = len(ka.Keys)
		}
		keys := ka.Keys
		if !f.withheld && len(keys) > 1 {
			f.withheld = true
			out.UnprocessedKeys[table] = &dynamodb.KeysAndAttributes{Keys: keys[len(keys)-1:]}
			keys = keys[:len(keys)-1]
		}
		for _, k := range keys {
			if item, ok := f.items[*k["PK"].S]; ok {
				out.Responses[table] = append(out.Responses[table], item)
			}
		}
	}
	return out, nil
}

func (f *fakeClient) PutItem(in *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
	f.items[*in.Item["PK"].S] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func TestPutThenGetHashes(t *testing.T) {
	client := &fakeClient{items: map[string]map[string]*dynamodb.AttributeValue{}}
	c := NewWithClient(client, "rolls")

	require.NoError(t, c.PutRoll(model.RollSummary{Name: "a.mid", SourceHash: "abc", NumTapes: 1,
		Labels: []model.Label{{Index: 0, Tempo: 500000, UnitLength: 48}}}))
	require.NoError(t, c.PutRoll(model.RollSummary{Name: "b.mid", SourceHash: "def"}))

	hashes, err := c.GetRollHashes([]string{"a.mid", "b.mid", "missing.mid"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a.mid": "abc", "b.mid": "def"}, hashes)
	assert.Equal(t, 2, client.calls)
}

func TestGetHashesChunksKeys(t *testing.T) {
	client := &fakeClient{items: map[string]map[string]*dynamodb.AttributeValue{}, withheld: true}
	c := NewWithClient(client, "rolls")

	var names []string
	for i := 0; i < 250; i++ {
		names = append(names, fmt.Sprintf("%03d.mid", i))
	}
	hashes, err := c.GetRollHashes(names)
	require.NoError(t, err)
	assert.Empty(t, hashes)
	assert.Equal(t, 3, client.calls)
	assert.Equal(t, maxBatchKeys, client.maxKeys)
}

func TestItem(t *testing.T) {
	item, err := Item(model.RollSummary{Name: "x/y.mid", SourceHash: "h", NumTapes: 2})
	require.NoError(t, err)

	assert := assert.New(t)
	assert.Equal(aws.String("x/y.mid"), item["PK"].S)
	assert.Equal(aws.String("h"), item["SourceHash"].S)
	assert.Equal(aws.String("2"), item["NumTapes"].N)
	assert.Equal(Key("x/y.mid")["PK"], item["PK"])
}
