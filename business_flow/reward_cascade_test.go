package businessflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/models"
)

func TestRewardCascade_AllStepsSucceed(t *testing.T) {
	growth := &stubGrowth{
		result:    GrowthResult{BonusApplied: true, Message: "bonus unlocked"},
		allowPush: true,
	}
	env := newFlowEnv(t, growth)

	referrer := env.addUser(2002, nil, nil)
	user := env.addUser(1001, &referrer.ID, nil)
	in := newCredited(7, user.ID, "40")
	in.TelegramID = 1001

	report := env.cascade.Dispatch(context.Background(), in)

	assert.Empty(t, report.Errors)
	require.NotNil(t, report.Referral)
	assert.True(t, report.Referral.Applied)
	require.NotNil(t, report.Growth)
	assert.True(t, report.Growth.BonusApplied)
	assert.True(t, report.Notified)
	assert.True(t, report.CampaignSent)

	var userMsgs []string
	for _, m := range env.notifier.GetSentMessages() {
		if !m.Admin && m.ChatID == 1001 {
			userMsgs = append(userMsgs, m.Message)
		}
	}
	require.Len(t, userMsgs, 2)
	assert.True(t, strings.Contains(userMsgs[0], "40.00 USD"))
	assert.True(t, strings.Contains(userMsgs[0], "bonus unlocked"))
	assert.Equal(t, campaignMessage, userMsgs[1])
}

func TestRewardCascade_PanickingStepDoesNotStopOthers(t *testing.T) {
	growth := &stubGrowth{panicMsg: "redis exploded"}
	env := newFlowEnv(t, growth)

	referrer := env.addUser(2002, nil, nil)
	user := env.addUser(1001, &referrer.ID, nil)
	in := newCredited(7, user.ID, "40")
	in.TelegramID = 1001

	report := env.cascade.Dispatch(context.Background(), in)

	require.Contains(t, report.Errors, CascadeStepGrowth)
	assert.Contains(t, report.Errors[CascadeStepGrowth].Error(), "redis exploded")
	assert.Len(t, report.Errors, 1)

	// referral ran before, notification ran after
	require.NotNil(t, report.Referral)
	assert.True(t, report.Referral.Applied)
	assert.True(t, report.Notified)
	requireDecimal(t, "4", env.store.User(referrer.ID).ReferralBalance)

	assert.Contains(t, env.store.AuditActions(), models.AuditActionCascadeStepFailed)
}

func TestRewardCascade_FailingNotifierIsIsolated(t *testing.T) {
	growth := &stubGrowth{allowPush: true}
	env := newFlowEnv(t, growth)
	env.notifier.Err = errors.New("telegram unavailable")

	user := env.addUser(1001, nil, nil)
	in := newCredited(7, user.ID, "40")
	in.TelegramID = 1001

	report := env.cascade.Dispatch(context.Background(), in)

	assert.Contains(t, report.Errors, CascadeStepNotification)
	assert.Contains(t, report.Errors, CascadeStepCampaign)
	assert.False(t, report.Notified)
	assert.False(t, report.CampaignSent)
	assert.Equal(t, 1, growth.calls)
	require.NotNil(t, report.Referral)
	assert.Equal(t, "no referrer", report.Referral.Reason)
}

func TestRewardCascade_GrowthErrorIsRecorded(t *testing.T) {
	growth := &stubGrowth{err: errors.New("growth down"), campaignErr: errors.New("cooldown lookup failed")}
	env := newFlowEnv(t, growth)

	user := env.addUser(1001, nil, nil)
	in := newCredited(7, user.ID, "40")
	in.TelegramID = 1001

	report := env.cascade.Dispatch(context.Background(), in)

	assert.Contains(t, report.Errors, CascadeStepGrowth)
	assert.Contains(t, report.Errors, CascadeStepCampaign)
	assert.NotContains(t, report.Errors, CascadeStepNotification)
	assert.Nil(t, report.Growth)
	assert.True(t, report.Notified)
}

func TestRewardCascade_NilNotifierSkipsDelivery(t *testing.T) {
	env := newFlowEnv(t, nil)
	cascade := NewRewardCascade(env.referral, nil, nil, env.store.AuditLogRepo(), nil)

	user := env.addUser(1001, nil, nil)
	report := cascade.Dispatch(context.Background(), newCredited(7, user.ID, "40"))

	assert.Empty(t, report.Errors)
	assert.False(t, report.Notified)
	assert.False(t, report.CampaignSent)
}

// countingCascade records dispatched top-ups
type countingCascade struct {
	mu    sync.Mutex
	seen  []uint
	delay time.Duration
	runs  atomic.Int32
}

func (c *countingCascade) DispatchRewards(ctx context.Context, credited CreditedTopUp) {
	c.Dispatch(ctx, credited)
}

func (c *countingCascade) Dispatch(ctx context.Context, credited CreditedTopUp) CascadeReport {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	c.mu.Lock()
	c.seen = append(c.seen, credited.TopUpID)
	c.mu.Unlock()
	c.runs.Add(1)
	return CascadeReport{}
}

func TestRewardQueue_WorkersDrainOnStop(t *testing.T) {
	cascade := &countingCascade{delay: 5 * time.Millisecond}
	queue := NewRewardQueue(cascade, 2, 16, nil)
	stop := queue.Start(context.Background())

	for i := uint(1); i <= 10; i++ {
		queue.DispatchRewards(context.Background(), CreditedTopUp{TopUpID: i})
	}
	stop()

	assert.Equal(t, int32(10), cascade.runs.Load())
	assert.ElementsMatch(t, []uint{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, cascade.seen)

	// stop is idempotent and later dispatches run inline
	stop()
	queue.DispatchRewards(context.Background(), CreditedTopUp{TopUpID: 11})
	assert.Equal(t, int32(11), cascade.runs.Load())
}

func TestRewardQueue_NotStartedRunsInline(t *testing.T) {
	cascade := &countingCascade{}
	queue := NewRewardQueue(cascade, 1, 4, nil)

	queue.DispatchRewards(context.Background(), CreditedTopUp{TopUpID: 1})
	assert.Equal(t, int32(1), cascade.runs.Load())
}

func TestRewardQueue_SurvivesCanceledCaller(t *testing.T) {
	cascade := &countingCascade{}
	queue := NewRewardQueue(cascade, 1, 4, nil)
	stop := queue.Start(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	queue.DispatchRewards(ctx, CreditedTopUp{TopUpID: 1})
	cancel()
	stop()

	assert.Equal(t, int32(1), cascade.runs.Load())
}
