package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	stripewebhook "github.com/angelmondragon/gigmarket-backend/internal/webhooks/stripe"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
)

const testSecret = "whsec_test"

func TestStripeWebhookProcessesOnceAndAcknowledgesReplay(t *testing.T) {
	payload, signature := signedSessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, testSecret)
	svc := &recordingService{}
	handler := newTestHandler(t, svc)

	require.Equal(t, http.StatusOK, post(handler, payload, signature).Code)
	require.Equal(t, http.StatusOK, post(handler, payload, signature).Code)
	require.Len(t, svc.types, 1)
	require.Equal(t, stripe.EventTypeCheckoutSessionCompleted, svc.types[0])
}

func TestStripeWebhookRejectsBadSignatures(t *testing.T) {
	payload, _ := signedSessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, testSecret)
	foreignPayload, foreignSig := signedSessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, "whsec_other")

	cases := []struct {
		name      string
		payload   []byte
		signature string
	}{
		{"missing header", payload, ""},
		{"garbage header", payload, "t=1,v1=invalid"},
		{"foreign secret", foreignPayload, foreignSig},
		{"stale timestamp", payload, signedHeader(payload, testSecret, time.Now().Add(-time.Hour))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &recordingService{}
			rec := post(newTestHandler(t, svc), tc.payload, tc.signature)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Contains(t, rec.Body.String(), string(pkgerrors.CodeValidation))
			require.Empty(t, svc.types)
		})
	}
}

func TestStripeWebhookFailureReleasesGuardForRetry(t *testing.T) {
	payload, signature := signedSessionEvent(t, stripe.EventTypeCheckoutSessionExpired, testSecret)
	svc := &recordingService{err: pkgerrors.New(pkgerrors.CodeDependency, "db down")}
	handler := newTestHandler(t, svc)

	require.Equal(t, http.StatusServiceUnavailable, post(handler, payload, signature).Code)

	svc.err = nil
	require.Equal(t, http.StatusOK, post(handler, payload, signature).Code)
	require.Len(t, svc.types, 2)
}

func TestStripeWebhookRequiresCollaborators(t *testing.T) {
	payload, signature := signedSessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, testSecret)
	handler := StripeWebhook(nil, signingSecret(testSecret), nil, nil)

	require.Equal(t, http.StatusInternalServerError, post(handler, payload, signature).Code)
}

func newTestHandler(t *testing.T, svc StripeWebhookService) http.HandlerFunc {
	t.Helper()
	guard, err := stripewebhook.NewEventGuard(newMemoryStore(), time.Minute, "stripe-webhook")
	require.NoError(t, err)
	return StripeWebhook(svc, signingSecret(testSecret), guard, nil)
}

func post(handler http.Handler, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func signedSessionEvent(t *testing.T, eventType stripe.EventType, secret string) ([]byte, string) {
	t.Helper()
	rawSession, err := json.Marshal(&stripe.CheckoutSession{
		ID:            "cs_test_" + uuid.NewString(),
		Object:        "checkout.session",
		PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
		Metadata:      map[string]string{"order_id": uuid.NewString()},
	})
	require.NoError(t, err)

	payload, err := json.Marshal(&stripe.Event{
		ID:         "evt_" + uuid.NewString(),
		Type:       eventType,
		Object:     "event",
		APIVersion: stripe.APIVersion,
		Data:       &stripe.EventData{Raw: rawSession},
	})
	require.NoError(t, err)
	return payload, signedHeader(payload, secret, time.Now())
}

func signedHeader(payload []byte, secret string, ts time.Time) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: ts,
	}).Header
}

type recordingService struct {
	err   error
	types []stripe.EventType
}

func (s *recordingService) HandleEvent(_ context.Context, event *stripe.Event) error {
	s.types = append(s.types, event.Type)
	return s.err
}

type signingSecret string

func (s signingSecret) SigningSecret() string { return string(s) }

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}}
}

func (s *memoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = fmt.Sprint(value)
	return true, nil
}

func (s *memoryStore) IdempotencyKey(scope, id string) string {
	return "gm:idempotency:" + scope + ":" + id
}

func (s *memoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}
