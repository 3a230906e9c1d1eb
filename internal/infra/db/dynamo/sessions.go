package dynamo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/Mahaseias/sendzap/internal/domain/wizard"
	"github.com/Mahaseias/sendzap/internal/infra/keylock"
)

const (
	attrID      = "wa_from"
	attrVersion = "version"
	attrUpdated = "updated_at"
)

type sessionItem struct {
	ID        string `dynamodbav:"wa_from"`
	State     string `dynamodbav:"state"`
	Payload   string `dynamodbav:"payload"`
	UpdatedAt int64  `dynamodbav:"updated_at"`
	Version   int64  `dynamodbav:"version"`
	// ExpiresAt (unix seconds) can be enabled as the table's TTL attribute.
	ExpiresAt int64 `dynamodbav:"expires_at,omitempty"`
}

// SessionStore keeps sessions in a DynamoDB table keyed by wa_from. Writes are
// conditioned on the version read, so a concurrent writer on another instance
// surfaces as wizard.ErrSessionConflict instead of a lost update.
type SessionStore struct {
	api   API
	table string
	locks *keylock.Locker
	ttl   time.Duration
	now   wizard.Clock
}

type Option func(*SessionStore)

func WithClock(c wizard.Clock) Option {
	return func(s *SessionStore) { s.now = c }
}

func NewSessionStore(api API, table string, ttl time.Duration, opts ...Option) *SessionStore {
	s := &SessionStore{api: api, table: table, locks: keylock.New(), ttl: ttl, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{attrID: &types.AttributeValueMemberS{Value: id}}
}

func (s *SessionStore) GetOrCreate(ctx context.Context, id string) (*wizard.Session, error) {
	if id == "" {
		return nil, wizard.ErrEmptySessionID
	}
	now := s.now()
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if len(out.Item) == 0 {
		return wizard.NewSession(id, now), nil
	}

	var (
		it   sessionItem
		sess *wizard.Session
	)
	decodeErr := attributevalue.UnmarshalMap(out.Item, &it)
	if decodeErr == nil {
		sess, decodeErr = it.decode()
	}
	if decodeErr != nil {
		log.Printf("dynamodb: dropping unreadable session id=%s err=%v", id, decodeErr)
	}
	if decodeErr != nil || sess.Expired(now, s.ttl) {
		if err := s.deleteVersion(ctx, id, it.Version); err != nil {
			return nil, err
		}
		return wizard.NewSession(id, now), nil
	}
	return sess, nil
}

func (it sessionItem) decode() (*wizard.Session, error) {
	var sess wizard.Session
	if err := json.Unmarshal([]byte(it.Payload), &sess); err != nil {
		return nil, err
	}
	st, err := wizard.ParseState(it.State)
	if err != nil {
		return nil, err
	}
	sess.ID = it.ID
	sess.State = st
	sess.UpdatedAt = time.Unix(0, it.UpdatedAt).UTC()
	sess.Version = it.Version
	return &sess, nil
}

// deleteVersion removes a stale item unless someone rewrote it meanwhile.
func (s *SessionStore) deleteVersion(ctx context.Context, id string, version int64) error {
	_, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(s.table),
		Key:                       key(id),
		ConditionExpression:       aws.String("#v = :v"),
		ExpressionAttributeNames:  map[string]string{"#v": attrVersion},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": number(version)},
	})
	var ccf *types.ConditionalCheckFailedException
	if err != nil && !errors.As(err, &ccf) {
		return fmt.Errorf("drop expired session: %w", err)
	}
	return nil
}

func number(n int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

func (s *SessionStore) Save(ctx context.Context, sess *wizard.Session) error {
	if sess.ID == "" {
		return wizard.ErrEmptySessionID
	}
	prev := sess.Version
	updated := s.now()

	next := *sess
	next.UpdatedAt = updated
	next.Version = prev + 1
	payload, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	it := sessionItem{
		ID:        sess.ID,
		State:     sess.State.String(),
		Payload:   string(payload),
		UpdatedAt: updated.UnixNano(),
		Version:   prev + 1,
	}
	if s.ttl > 0 {
		it.ExpiresAt = updated.Add(s.ttl).Unix()
	}
	av, err := attributevalue.MarshalMap(it)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	in := &dynamodb.PutItemInput{
		TableName:                 aws.String(s.table),
		Item:                      av,
		ConditionExpression:       aws.String("#v = :v"),
		ExpressionAttributeNames:  map[string]string{"#v": attrVersion},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": number(prev)},
	}
	if prev == 0 {
		in.ConditionExpression = aws.String("attribute_not_exists(#id) OR #v = :v")
		in.ExpressionAttributeNames["#id"] = attrID
	}

	if _, err := s.api.PutItem(ctx, in); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return wizard.ErrSessionConflict
		}
		return fmt.Errorf("save session: %w", err)
	}
	sess.UpdatedAt = updated
	sess.Version = prev + 1
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	_, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       key(id),
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *SessionStore) Update(ctx context.Context, id string, fn func(*wizard.Session) error) (*wizard.Session, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := s.GetOrCreate(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	if err := s.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *SessionStore) Sweep(ctx context.Context) (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	cutoff := number(s.now().Add(-s.ttl).UnixNano())
	p := dynamodb.NewScanPaginator(s.api, &dynamodb.ScanInput{
		TableName:                 aws.String(s.table),
		FilterExpression:          aws.String("#u < :cutoff"),
		ProjectionExpression:      aws.String("#id"),
		ExpressionAttributeNames:  map[string]string{"#u": attrUpdated, "#id": attrID},
		ExpressionAttributeValues: map[string]types.AttributeValue{":cutoff": cutoff},
	})
	n := 0
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return n, fmt.Errorf("scan sessions: %w", err)
		}
		for _, item := range page.Items {
			var it sessionItem
			if err := attributevalue.UnmarshalMap(item, &it); err != nil {
				continue
			}
			_, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName:                 aws.String(s.table),
				Key:                       key(it.ID),
				ConditionExpression:       aws.String("#u < :cutoff"),
				ExpressionAttributeNames:  map[string]string{"#u": attrUpdated},
				ExpressionAttributeValues: map[string]types.AttributeValue{":cutoff": cutoff},
			})
			var ccf *types.ConditionalCheckFailedException
			switch {
			case err == nil:
				n++
			case errors.As(err, &ccf):
			default:
				return n, fmt.Errorf("sweep session %s: %w", it.ID, err)
			}
		}
	}
	return n, nil
}
