// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package approval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamcalli/Pulsarr-sub009/internal/errs"
	"github.com/jamcalli/Pulsarr-sub009/internal/models"
	"github.com/jamcalli/Pulsarr-sub009/internal/quota"
	"github.com/jamcalli/Pulsarr-sub009/internal/routing"
	"github.com/jamcalli/Pulsarr-sub009/internal/store/fake"
	"github.com/jamcalli/Pulsarr-sub009/internal/submit"
)

type fakeSubmitter struct {
	calls []models.RouterDecision
	err   error
}

func (f *fakeSubmitter) Submit(_ context.Context, _ *models.WatchlistItem, d models.RouterDecision) (submit.Result, error) {
	f.calls = append(f.calls, d)
	return submit.Result{Primary: submit.InstanceResult{InstanceID: d.PrimaryInstanceID, Err: f.err}}, f.err
}

func routeDecision(instanceID int) routing.RoutingDecision {
	return routing.RoutingDecision{
		Action: routing.ActionRoute,
		Route: &routing.RouteOutcome{
			Primary: routing.RoutingSpec{
				InstanceType: models.TargetRadarr, InstanceID: instanceID, Priority: 50,
			},
		},
	}
}

func seedUserItem(t *testing.T, st *fake.Store, name, key string) (*models.User, *models.WatchlistItem) {
	t.Helper()
	ctx := context.Background()
	user := &models.User{Name: name, CanSync: true}
	require.NoError(t, st.CreateUser(ctx, user))
	item := &models.WatchlistItem{
		UserID: user.ID, Key: key, Title: "Example " + key,
		Type: models.ContentTypeMovie, GUIDs: []string{"tmdb:42"},
	}
	require.NoError(t, st.CreateWatchlistItem(ctx, item))
	return user, item
}

func TestGateProceedsWithoutConstraints(t *testing.T) {
	st := fake.New()
	user, item := seedUserItem(t, st, "alice", "k1")
	svc := New(st, &fakeSubmitter{}, quota.NewChecker(st, quota.Config{}), nil, Config{})

	out, err := svc.Gate(context.Background(), user, item, routeDecision(1))
	require.NoError(t, err)
	assert.True(t, out.Proceed)
	assert.Nil(t, out.Request)
}

func TestGateQuotaExceededCreatesRequest(t *testing.T) {
	st := fake.New()
	ctx := context.Background()
	user, item := seedUserItem(t, st, "bob", "k2")

	require.NoError(t, st.SetQuota(ctx, models.QuotaRecord{
		UserID: user.ID, ContentType: models.ContentTypeMovie,
		Type: models.QuotaMonthly, Limit: 3,
	}))
	checker := quota.NewChecker(st, quota.Config{MonthlyResetDay: 1})
	for i := 0; i < 3; i++ {
		require.NoError(t, checker.RecordUsage(ctx, user.ID, models.ContentTypeMovie))
	}

	svc := New(st, &fakeSubmitter{}, checker, nil, Config{})
	out, err := svc.Gate(ctx, user, item, routeDecision(1))
	require.NoError(t, err)
	assert.False(t, out.Proceed)
	require.NotNil(t, out.Request)
	assert.Equal(t, models.TriggerQuotaExceeded, out.Request.TriggeredBy)
	require.NotNil(t, out.Request.ApprovalReason)
	assert.Equal(t, "monthly quota exceeded (3/3)", *out.Request.ApprovalReason)

	// Approving submits and pushes usage to 4.
	sub := &fakeSubmitter{}
	svc = New(st, sub, checker, nil, Config{})
	require.NoError(t, svc.Approve(ctx, out.Request.ID, 1, nil))
	assert.Len(t, sub.calls, 1)

	n, err := st.UsageSince(ctx, user.ID, models.ContentTypeMovie, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestGateQuotaBypassSkipsApproval(t *testing.T) {
	st := fake.New()
	ctx := context.Background()
	user, item := seedUserItem(t, st, "carol", "k3")

	require.NoError(t, st.SetQuota(ctx, models.QuotaRecord{
		UserID: user.ID, ContentType: models.ContentTypeMovie,
		Type: models.QuotaDaily, Limit: 0, BypassApproval: true,
	}))
	svc := New(st, &fakeSubmitter{}, quota.NewChecker(st, quota.Config{}), nil, Config{})

	out, err := svc.Gate(ctx, user, item, routeDecision(1))
	require.NoError(t, err)
	assert.True(t, out.Proceed)
}

func TestGateFlaggedUser(t *testing.T) {
	st := fake.New()
	user, item := seedUserItem(t, st, "dave", "k4")
	user.RequiresApproval = true

	svc := New(st, &fakeSubmitter{}, quota.NewChecker(st, quota.Config{}), nil, Config{})
	out, err := svc.Gate(context.Background(), user, item, routeDecision(1))
	require.NoError(t, err)
	require.NotNil(t, out.Request)
	assert.Equal(t, models.TriggerUserRequiresApproval, out.Request.TriggeredBy)
}

func TestCrossUserFulfillmentSubmitsOnce(t *testing.T) {
	st := fake.New()
	ctx := context.Background()
	userC, itemC := seedUserItem(t, st, "cuser", "key-c")
	userD, itemD := seedUserItem(t, st, "duser", "key-d")
	userC.RequiresApproval = true
	userD.RequiresApproval = true

	sub := &fakeSubmitter{}
	svc := New(st, sub, quota.NewChecker(st, quota.Config{}), nil, Config{})

	outC, err := svc.Gate(ctx, userC, itemC, routeDecision(1))
	require.NoError(t, err)
	outD, err := svc.Gate(ctx, userD, itemD, routeDecision(1))
	require.NoError(t, err)

	require.NoError(t, svc.Approve(ctx, outC.Request.ID, 1, nil))

	// One submission only; D's request auto-approved with the note.
	assert.Len(t, sub.calls, 1)
	reqD, err := st.GetApproval(ctx, outD.Request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalApproved, reqD.Status)
	require.NotNil(t, reqD.ApprovalNotes)
	assert.Equal(t, "content already available", *reqD.ApprovalNotes)

	// D's item advanced to requested without a second submission.
	gotD, err := st.GetWatchlistItem(ctx, userD.ID, itemD.Key)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRequested, gotD.Status)
}

func TestRejectionDoesNotSubmit(t *testing.T) {
	st := fake.New()
	ctx := context.Background()
	user, item := seedUserItem(t, st, "erin", "k5")
	user.RequiresApproval = true

	sub := &fakeSubmitter{}
	svc := New(st, sub, quota.NewChecker(st, quota.Config{}), nil, Config{})
	out, err := svc.Gate(ctx, user, item, routeDecision(1))
	require.NoError(t, err)

	require.NoError(t, svc.Reject(ctx, out.Request.ID, 1, nil))
	assert.Empty(t, sub.calls)

	// Terminal requests cannot be re-approved.
	err = svc.Approve(ctx, out.Request.ID, 1, nil)
	assert.ErrorIs(t, err, errs.ErrTerminalApproval)
}

func TestMaintainExpiresAndReuses(t *testing.T) {
	st := fake.New()
	ctx := context.Background()
	user, item := seedUserItem(t, st, "frank", "k6")
	user.RequiresApproval = true

	svc := New(st, &fakeSubmitter{}, quota.NewChecker(st, quota.Config{}), nil,
		Config{Expiry: time.Millisecond})
	out, err := svc.Gate(ctx, user, item, routeDecision(1))
	require.NoError(t, err)
	firstID := out.Request.ID

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, svc.Maintain(ctx))
	expired, err := st.GetApproval(ctx, firstID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalExpired, expired.Status)

	// Re-gating the same content reuses the expired row atomically.
	svc2 := New(st, &fakeSubmitter{}, quota.NewChecker(st, quota.Config{}), nil, Config{})
	out2, err := svc2.Gate(ctx, user, item, routeDecision(1))
	require.NoError(t, err)
	assert.Equal(t, firstID, out2.Request.ID)
	assert.Equal(t, models.ApprovalPending, out2.Request.Status)
}
