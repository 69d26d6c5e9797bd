package middleware_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/aretw0/casefile/pkg/adapters/memory"
	"github.com/aretw0/casefile/pkg/domain"
	"github.com/aretw0/casefile/pkg/persistence/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payload() domain.PostCallPayload {
	sc := domain.NewSessionContext("call-1", "+15551230000", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	sc.OwnerName = "Fox Mulder"
	sc.ValidatedEmail = "fox@example.com"
	sc.ValidatedAddress = "2630 Hegal Pl"
	sc.ZBStatus = domain.EmailValid
	sc.GeocodeLat = 38.8
	sc.FollowUpRequired = true
	return domain.NewPostCallPayload(sc, sc.CreatedAt)
}

func TestPIIMiddleware_Masking(t *testing.T) {
	sink := memory.NewSink()
	mw, err := middleware.NewPIIMiddleware(middleware.DefaultPIIPatterns)
	require.NoError(t, err)

	p := payload()
	require.NoError(t, mw(sink).Write(context.Background(), p))

	assert.Equal(t, "fox@example.com", p.ValidatedEmail, "the caller's payload is not modified")

	got, ok := sink.Get("call-1")
	require.True(t, ok)
	assert.Equal(t, middleware.Mask, got.ValidatedEmail)
	assert.Equal(t, middleware.Mask, got.ValidatedAddress)
	assert.Equal(t, middleware.Mask, got.OwnerName)
	assert.Equal(t, middleware.Mask, got.ANI)
	assert.Empty(t, got.CandidateEmail, "empty values stay empty")

	assert.Equal(t, "call-1", got.CallID)
	assert.Equal(t, domain.EmailValid, got.ZBStatus)
	assert.Equal(t, 38.8, got.GeocodeLat)
	assert.True(t, got.FollowUpRequired)
}

func TestPIIMiddleware_InvalidPattern(t *testing.T) {
	_, err := middleware.NewPIIMiddleware([]string{"("})
	assert.Error(t, err)
}

func TestRedact_NoPatterns(t *testing.T) {
	p := payload()
	got, err := middleware.Redact(p, []*regexp.Regexp{})
	require.NoError(t, err)
	assert.Equal(t, p.ValidatedEmail, got.ValidatedEmail)
	assert.Equal(t, p.CreatedAt, got.CreatedAt)
}
