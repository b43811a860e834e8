package survey

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/survey-collector/internal/document"
)

const configurationsCollection = "configurations"

// Key returns the store identity of a survey. The separator can occur
// in neither an owner nor a survey name.
func Key(owner, name string) string { return owner + "." + name }

func submissionsCollection(key string) string {
	return "surveys." + key + ".submissions"
}

func verifiedCollection(key string) string {
	return "surveys." + key + ".submissions.verified"
}

// Clock returns the current unix time in seconds.
type Clock func() int64

func defaultClock() int64 { return time.Now().Unix() }

type surveyState int

const (
	statePending surveyState = iota
	stateOpen
	stateClosed
)

// Survey binds one configuration to its compiled submission schema and
// carries the submission, verification and aggregation behavior for
// that survey. Instances are built by the Manager and shared across
// requests.
type Survey struct {
	Owner         string
	Configuration *Configuration

	schema     *Schema
	emailIndex int
	store      document.Store
	mailer     Mailer
	clock      Clock
	newToken   tokenFunc
	retryLimit int

	mu      sync.Mutex
	results Result
}

// NewSurvey builds a live survey from a validated configuration.
func NewSurvey(owner string, cfg *Configuration, store document.Store, m Mailer) (*Survey, error) {
	return newSurvey(owner, cfg, store, m, defaultClock, NewToken, defaultTokenRetryLimit)
}

const defaultTokenRetryLimit = 5

func newSurvey(owner string, cfg *Configuration, store document.Store, m Mailer, clock Clock, newToken tokenFunc, retryLimit int) (*Survey, error) {
	schema, err := Compile(cfg)
	if err != nil {
		return nil, err
	}
	if retryLimit < 1 {
		retryLimit = defaultTokenRetryLimit
	}
	return &Survey{
		Owner:         owner,
		Configuration: cfg,
		schema:        schema,
		emailIndex:    cfg.EmailFieldIndex(),
		store:         store,
		mailer:        m,
		clock:         clock,
		newToken:      newToken,
		retryLimit:    retryLimit,
	}, nil
}

// Key returns the survey's store identity.
func (s *Survey) Key() string { return Key(s.Owner, s.Configuration.Name) }

// state places now in the survey's lifecycle. A nil bound never
// triggers its transition; start is inclusive, end exclusive.
func (s *Survey) state(now int64) surveyState {
	if s.Configuration.Start != nil && now < *s.Configuration.Start {
		return statePending
	}
	if s.Configuration.End != nil && now >= *s.Configuration.End {
		return stateClosed
	}
	return stateOpen
}

// OpenNow reports whether the survey currently accepts submissions.
func (s *Survey) OpenNow() bool { return s.state(s.clock()) == stateOpen }

// gate rejects operations outside the submission window.
func (s *Survey) gate(now int64) error {
	switch s.state(now) {
	case statePending:
		return ErrNotOpenYet
	case stateClosed:
		return ErrClosed
	}
	return nil
}

func storeFailure(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreFailure, err)
}

// Submit validates and stores one submission according to the survey's
// authentication mode. Open surveys store the record immediately;
// email surveys park it under a fresh token until the recipient
// verifies.
func (s *Survey) Submit(ctx context.Context, payload map[string]any) error {
	now := s.clock()
	if err := s.gate(now); err != nil {
		return err
	}
	if !s.schema.Validate(payload) {
		return ErrInvalidSubmission
	}

	switch s.Configuration.Authentication {
	case AuthenticationOpen:
		record := document.Doc{
			"_id":          uuid.New().String(),
			"submitted_at": now,
			"data":         payload,
		}
		if err := s.store.InsertOne(ctx, submissionsCollection(s.Key()), record); err != nil {
			return storeFailure(err)
		}
		return nil
	case AuthenticationEmail:
		return s.submitForVerification(ctx, now, payload)
	default:
		return ErrNotImplemented
	}
}

// submitForVerification parks the submission under a fresh token and
// mails the verification link. Token collisions retry with a new
// token up to the configured limit.
func (s *Survey) submitForVerification(ctx context.Context, now int64, payload map[string]any) error {
	collection := submissionsCollection(s.Key())

	var token string
	inserted := false
	for attempt := 0; attempt < s.retryLimit; attempt++ {
		token = s.newToken()
		record := document.Doc{
			"_id":          token,
			"submitted_at": now,
			"data":         payload,
		}
		err := s.store.InsertOne(ctx, collection, record)
		if err == nil {
			inserted = true
			break
		}
		if !errors.Is(err, document.ErrDuplicateID) {
			return storeFailure(err)
		}
	}
	if !inserted {
		return fmt.Errorf("%w: token space exhausted after %d attempts", ErrStoreFailure, s.retryLimit)
	}

	recipient, _ := payload[strconv.Itoa(s.emailIndex+1)].(string)
	status, err := s.mailer.SendVerification(ctx, Verification{
		To:     recipient,
		Owner:  s.Owner,
		Survey: s.Configuration.Name,
		Title:  s.Configuration.Title,
		Token:  token,
	})
	if err != nil || status < 200 || status > 299 {
		// The pending record stays behind so a resubmission can
		// try again without losing the answers.
		return ErrDeliveryFailure
	}
	return nil
}

// Verify consumes a verification token. The pending record is re-keyed
// by its submitted email address and upserted into the verified
// collection, so a repeat verification from the same address replaces
// the earlier record. The token record is deleted, making each token
// single use.
func (s *Survey) Verify(ctx context.Context, token string) error {
	if s.Configuration.Authentication != AuthenticationEmail {
		return ErrWrongMode
	}
	now := s.clock()
	if err := s.gate(now); err != nil {
		return err
	}

	pending, err := s.store.FindOne(ctx, submissionsCollection(s.Key()), token)
	if errors.Is(err, document.ErrNoDocuments) {
		return ErrInvalidToken
	}
	if err != nil {
		return storeFailure(err)
	}

	data, _ := pending["data"].(map[string]any)
	email, _ := data[strconv.Itoa(s.emailIndex+1)].(string)
	if email == "" {
		return ErrInvalidToken
	}
	verified := document.Doc{
		"_id":          email,
		"submitted_at": pending["submitted_at"],
		"verified_at":  now,
		"data":         data,
	}
	if _, err := s.store.ReplaceOne(ctx, verifiedCollection(s.Key()), email, verified, true); err != nil {
		return storeFailure(err)
	}
	if err := s.store.DeleteOne(ctx, submissionsCollection(s.Key()), token); err != nil {
		return storeFailure(err)
	}
	return nil
}

// Aggregate returns the survey's results, computing them on first use
// and memoizing on the instance. The memo is dropped by Reset, Update
// and Delete, never by time.
func (s *Survey) Aggregate(ctx context.Context) (Result, error) {
	now := s.clock()
	if s.Configuration.End == nil || now < *s.Configuration.End {
		return nil, ErrNotYetClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.results != nil {
		return s.results, nil
	}

	collection := submissionsCollection(s.Key())
	if s.Configuration.Authentication == AuthenticationEmail {
		collection = verifiedCollection(s.Key())
	}
	records, err := s.store.FindAll(ctx, collection)
	if err != nil && !errors.Is(err, document.ErrNoDocuments) {
		return nil, storeFailure(err)
	}
	s.results = Aggregate(s.Configuration, records)
	return s.results, nil
}

// clearResults drops the memoized aggregate.
func (s *Survey) clearResults() {
	s.mu.Lock()
	s.results = nil
	s.mu.Unlock()
}
