package store

import (
	"context"
	"errors"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Shared behavior
// =============================================================================

// exerciseStore checks the cooldown contract every backing must honor.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	cooldown := 15 * time.Minute
	first := time.Unix(1_700_000_000, 0)

	rec, err := s.Last(ctx, "i-1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	ok, err := s.Reserve(ctx, "i-1", first, cooldown)
	require.NoError(t, err)
	assert.True(t, ok, "first alert must be allowed")

	ok, err = s.Reserve(ctx, "i-1", first.Add(cooldown-time.Second), cooldown)
	require.NoError(t, err)
	assert.False(t, ok, "alert within cooldown must be suppressed")

	rec, err = s.Last(ctx, "i-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, first.Equal(rec.LastAlert), "suppressed call must not move the window")

	ok, err = s.Reserve(ctx, "i-2", first.Add(time.Second), cooldown)
	require.NoError(t, err)
	assert.True(t, ok, "entities are independent")

	ok, err = s.Reserve(ctx, "i-1", first.Add(cooldown), cooldown)
	require.NoError(t, err)
	assert.True(t, ok, "alert exactly one cooldown later must be allowed")

	rec, err = s.Last(ctx, "i-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, first.Add(cooldown).Equal(rec.LastAlert))

	subSecond := first.Add(900 * time.Millisecond)
	ok, err = s.Reserve(ctx, "i-3", subSecond, cooldown)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Reserve(ctx, "i-3", subSecond.Add(cooldown-500*time.Millisecond), cooldown)
	require.NoError(t, err)
	assert.False(t, ok, "window must not be shortened by sub-second truncation")

	rec, err = s.Last(ctx, "i-3")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, subSecond.Equal(rec.LastAlert), "last alert keeps millisecond precision")
}

// exerciseConcurrentReserve checks that racing callers let exactly one alert through.
func exerciseConcurrentReserve(t *testing.T, s Store) {
	t.Helper()
	now := time.Unix(1_800_000_000, 0)
	var allowed int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Reserve(context.Background(), "race", now, time.Hour)
			if err == nil && ok {
				atomic.AddInt32(&allowed, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), allowed)
}

// =============================================================================
// Memory
// =============================================================================

func TestMemory(t *testing.T) {
	exerciseStore(t, NewMemory())
	exerciseConcurrentReserve(t, NewMemory())
}

// =============================================================================
// Redis
// =============================================================================

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	s, err := OpenRedis(context.Background(), "redis://"+mr.Addr()+"/0", zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	exerciseStore(t, s)
	exerciseConcurrentReserve(t, s)

	ttl := mr.TTL(redisKeyPrefix + "i-1")
	assert.Equal(t, 15*time.Minute, ttl)
}

func TestRedis_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := OpenRedis(context.Background(), "redis://"+addr, zerolog.Nop())
	assert.Error(t, err)
}

// =============================================================================
// DynamoDB
// =============================================================================

// fakeDynamo evaluates the cooldown condition the way DynamoDB would.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]string
	err   error
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]string)}
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	pk := in.Item[in.ExpressionAttributeNames["#pk"]].(*types.AttributeValueMemberS).Value
	ts := in.Item[in.ExpressionAttributeNames["#ts"]].(*types.AttributeValueMemberN).Value
	cutoff, _ := strconv.ParseFloat(in.ExpressionAttributeValues[":cutoff"].(*types.AttributeValueMemberN).Value, 64)

	if last, ok := f.items[pk]; ok {
		if secs, _ := strconv.ParseFloat(last, 64); secs > cutoff {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
		}
	}
	f.items[pk] = ts
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pk := in.Key[dynamoKey].(*types.AttributeValueMemberS).Value
	last, ok := f.items[pk]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
		dynamoKey:       &types.AttributeValueMemberS{Value: pk},
		dynamoTimestamp: &types.AttributeValueMemberN{Value: last},
	}}, nil
}

func TestDynamoDB(t *testing.T) {
	exerciseStore(t, NewDynamoDB(newFakeDynamo(), "ir-state", zerolog.Nop()))
	exerciseConcurrentReserve(t, NewDynamoDB(newFakeDynamo(), "ir-state", zerolog.Nop()))
}

func TestDynamoDB_StoresMilliseconds(t *testing.T) {
	api := newFakeDynamo()
	s := NewDynamoDB(api, "ir-state", zerolog.Nop())

	ok, err := s.Reserve(context.Background(), "i-1", time.UnixMilli(1_700_000_000_900), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1700000000.900", api.items["i-1"])
}

func TestDynamoDB_TransportError(t *testing.T) {
	api := newFakeDynamo()
	api.err = errors.New("RequestTimeout")
	s := NewDynamoDB(api, "ir-state", zerolog.Nop())

	ok, err := s.Reserve(context.Background(), "i-1", time.Now(), time.Minute)
	assert.False(t, ok)
	assert.ErrorContains(t, err, "RequestTimeout")
}

// =============================================================================
// PostgreSQL
// =============================================================================

func TestPostgres(t *testing.T) {
	dsn := os.Getenv("DETECT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DETECT_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	s, err := OpenPostgres(ctx, dsn, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.db.Exec(ctx, "DELETE FROM incident_cooldown WHERE entity_id IN ('i-1', 'i-2', 'i-3', 'race')")
	require.NoError(t, err)

	exerciseStore(t, s)
	exerciseConcurrentReserve(t, s)
}

// =============================================================================
// Open
// =============================================================================

func TestOpen(t *testing.T) {
	ctx := context.Background()
	opts := Options{AWS: aws.Config{Region: "us-east-1"}, Logger: zerolog.Nop()}

	t.Run("memory", func(t *testing.T) {
		s, err := Open(ctx, "memory://", opts)
		require.NoError(t, err)
		assert.IsType(t, &Memory{}, s)
	})

	t.Run("dynamodb", func(t *testing.T) {
		s, err := Open(ctx, "dynamodb://ir-state", opts)
		require.NoError(t, err)
		require.IsType(t, &DynamoDB{}, s)
		assert.Equal(t, "ir-state", s.(*DynamoDB).table)
	})

	t.Run("dynamodb without table", func(t *testing.T) {
		_, err := Open(ctx, "dynamodb://", opts)
		assert.Error(t, err)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		s, err := Open(ctx, "redis://"+mr.Addr(), opts)
		require.NoError(t, err)
		defer s.Close()
		assert.IsType(t, &Redis{}, s)
	})

	t.Run("unsupported scheme", func(t *testing.T) {
		_, err := Open(ctx, "etcd://localhost:2379", opts)
		assert.ErrorContains(t, err, "unsupported")
	})
}
