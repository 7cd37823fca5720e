package audithook_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audithook "github.com/xraph/sigil/audit_hook"
	"github.com/xraph/sigil/id"
	"github.com/xraph/sigil/settlement"
	"github.com/xraph/sigil/tier"
	"github.com/xraph/sigil/token"
	"github.com/xraph/sigil/types"
)

type memRecorder struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
}

func (m *memRecorder) Record(_ context.Context, e *audithook.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memRecorder) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.Action
	}
	return out
}

func testEntry() *token.Entry {
	now := time.Now()
	return &token.Entry{
		ID:        "fda8a090bf74f422",
		Payer:     "wallet_abcdef123",
		Tier:      tier.Deeper,
		Amount:    0.07,
		Entity:    types.NewEntity(now),
		ExpiresAt: now.Add(time.Hour),
	}
}

func emitAll(t *testing.T, ext *audithook.Extension) {
	t.Helper()
	ctx := context.Background()
	e := testEntry()
	n := settlement.NewNotice(e, true)

	require.NoError(t, ext.OnTokenIssued(ctx, e))
	require.NoError(t, ext.OnIssueRejected(ctx, e.Payer, 0.02, tier.Deeper, tier.ErrInvalidPayment))
	require.NoError(t, ext.OnTokenConsumed(ctx, e))
	require.NoError(t, ext.OnConsumeMissed(ctx, e.ID, token.OutcomeAlreadyConsumed))
	require.NoError(t, ext.OnTokenExpired(ctx, e.ID))
	require.NoError(t, ext.OnCollision(ctx, e.ID, 1))
	require.NoError(t, ext.OnSettlementDelivered(ctx, n, 2))
	require.NoError(t, ext.OnSettlementFailed(ctx, n, errors.New("broker down")))
}

func TestExtensionRecordsAllActions(t *testing.T) {
	rec := &memRecorder{}
	ext := audithook.New(rec)
	emitAll(t, ext)

	assert.Equal(t, []string{
		audithook.ActionTokenIssued,
		audithook.ActionTokenRejected,
		audithook.ActionTokenConsumed,
		audithook.ActionConsumeMissed,
		audithook.ActionTokenExpired,
		audithook.ActionTokenCollided,
		audithook.ActionSettlementDelivered,
		audithook.ActionSettlementFailed,
	}, rec.actions())

	for _, e := range rec.events {
		assert.Equal(t, id.PrefixAudit, e.ID.Prefix())
		assert.False(t, e.Timestamp.IsZero())
	}

	issued := rec.events[0]
	assert.Equal(t, audithook.ResourceToken, issued.Resource)
	assert.Equal(t, "fda8a090bf74f422", issued.ResourceID)
	assert.Equal(t, "wallet_a", issued.Metadata["payer"])

	rejected := rec.events[1]
	assert.Equal(t, audithook.OutcomeFailure, rejected.Outcome)
	assert.Contains(t, rejected.Reason, "insufficient payment")

	missed := rec.events[3]
	assert.Equal(t, audithook.SeverityWarning, missed.Severity)
	assert.Equal(t, "already_consumed", missed.Metadata["outcome"])

	failed := rec.events[7]
	assert.Equal(t, audithook.SeverityCritical, failed.Severity)
	assert.True(t, strings.HasPrefix(failed.ResourceID, "stl_"))
	assert.Equal(t, "broker down", failed.Reason)
}

func TestExtensionEnabledActions(t *testing.T) {
	rec := &memRecorder{}
	ext := audithook.New(rec, audithook.WithEnabledActions(audithook.ActionTokenIssued, audithook.ActionTokenExpired))
	emitAll(t, ext)

	assert.Equal(t, []string{audithook.ActionTokenIssued, audithook.ActionTokenExpired}, rec.actions())
}

func TestExtensionDisabledActions(t *testing.T) {
	rec := &memRecorder{}
	ext := audithook.New(rec, audithook.WithDisabledActions(audithook.ActionConsumeMissed, audithook.ActionSettlementDelivered))
	emitAll(t, ext)

	got := rec.actions()
	assert.Len(t, got, 6)
	assert.NotContains(t, got, audithook.ActionConsumeMissed)
	assert.NotContains(t, got, audithook.ActionSettlementDelivered)
}

func TestExtensionSwallowsRecorderErrors(t *testing.T) {
	var calls int
	ext := audithook.New(
		audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
			calls++
			return errors.New("audit store unavailable")
		}),
		audithook.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	assert.NoError(t, ext.OnTokenExpired(context.Background(), "fda8a090bf74f422"))
	assert.Equal(t, 1, calls)
	assert.Equal(t, "audit-hook", ext.Name())
}
