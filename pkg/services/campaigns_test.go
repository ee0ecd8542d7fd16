package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot-engine/pkg/apperrors"
	"github.com/reviewpilot/reviewpilot-engine/pkg/models"
	"github.com/reviewpilot/reviewpilot-engine/pkg/sms"
)

type campaignFixture struct {
	org        *models.Organization
	business   *models.Business
	campaigns  *fakeCampaignRepo
	messages   *fakeSmsRepo
	sender     *sms.FakeSender
	notifyRepo *fakeNotificationRepo
	sleeps     []time.Duration
	svc        *campaignService
	smsSvc     *smsService
}

func newCampaignFixture(t *testing.T) *campaignFixture {
	t.Helper()
	f := &campaignFixture{}
	f.org = &models.Organization{ID: uuid.New(), Name: "Cafe Group", Plan: models.PlanFree}
	f.business = &models.Business{ID: uuid.New(), OrganizationID: f.org.ID, Name: "Corner Cafe"}
	f.campaigns = newFakeCampaignRepo()
	f.messages = &fakeSmsRepo{}
	f.sender = &sms.FakeSender{Fail: map[string]bool{}}
	f.notifyRepo = &fakeNotificationRepo{}

	orgs := newFakeOrgRepo(f.org)
	businesses := newFakeBusinessRepo(f.business)
	quotas := models.PlanQuotas{models.PlanFree: 5, models.PlanPro: 100}

	svc := NewCampaignService(f.campaigns, f.messages, orgs, businesses, f.sender,
		NewNotificationService(f.notifyRepo, zap.NewNop()), passthroughTenantCtx, quotas, 250*time.Millisecond, zap.NewNop())
	f.svc = svc.(*campaignService)
	f.svc.spawn = func(fn func()) { fn() }
	f.svc.sleep = func(_ context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return nil
	}

	f.smsSvc = NewSmsService(f.sender, f.messages, orgs, businesses, quotas, zap.NewNop()).(*smsService)
	return f
}

func (f *campaignFixture) draft(t *testing.T, recipients ...string) *models.Campaign {
	t.Helper()
	c, err := f.svc.Create(context.Background(), &models.Campaign{
		OrganizationID: f.org.ID,
		BusinessID:     f.business.ID,
		Name:           "Spring promo",
		Message:        "20% off this weekend!",
		Recipients:     recipients,
	})
	require.NoError(t, err)
	return c
}

func (f *campaignFixture) recordSent(n int, at time.Time) {
	for i := 0; i < n; i++ {
		f.messages.messages = append(f.messages.messages, &models.SmsMessage{
			ID: uuid.New(), OrganizationID: f.org.ID, Status: models.SmsSent, CreatedAt: at,
		})
	}
}

func TestCampaignService_CreateNormalizesRecipients(t *testing.T) {
	f := newCampaignFixture(t)

	c := f.draft(t, "(415) 555-0100", "+1 415 555 0100", "415.555.0101")
	assert.Equal(t, models.CampaignDraft, c.Status)
	assert.Equal(t, []string{"+14155550100", "+14155550101"}, c.Recipients)
}

func TestCampaignService_CreateValidation(t *testing.T) {
	f := newCampaignFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		c    models.Campaign
	}{
		{"no name", models.Campaign{Message: "hi", Recipients: []string{"4155550100"}}},
		{"no message", models.Campaign{Name: "x", Recipients: []string{"4155550100"}}},
		{"no recipients", models.Campaign{Name: "x", Message: "hi"}},
		{"bad number", models.Campaign{Name: "x", Message: "hi", Recipients: []string{"4155550100", "12345"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.c
			c.OrganizationID, c.BusinessID = f.org.ID, f.business.ID
			_, err := f.svc.Create(ctx, &c)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		})
	}

	_, err := f.svc.Create(ctx, &models.Campaign{OrganizationID: f.org.ID, BusinessID: uuid.New(), Name: "x", Message: "hi", Recipients: []string{"4155550100"}})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCampaignService_SendDeliversSequentially(t *testing.T) {
	f := newCampaignFixture(t)
	c := f.draft(t, "4155550100", "4155550101", "4155550102")
	f.sender.Fail["+14155550101"] = true

	got, err := f.svc.Send(context.Background(), f.org.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)

	stored := f.campaigns.campaigns[c.ID]
	assert.Equal(t, models.CampaignCompleted, stored.Status)
	assert.Equal(t, 2, stored.SentCount)
	assert.Equal(t, 1, stored.FailedCount)
	assert.NotNil(t, stored.SentAt)

	require.Len(t, f.messages.messages, 3)
	assert.Equal(t, models.SmsFailed, f.messages.messages[1].Status)
	assert.Equal(t, "+14155550100", f.sender.Sent[0].To)
	assert.Equal(t, "+14155550102", f.sender.Sent[1].To)
	assert.Equal(t, []time.Duration{250 * time.Millisecond, 250 * time.Millisecond}, f.sleeps)

	notes := f.notifyRepo.byType(models.NotificationCampaignSent)
	require.Len(t, notes, 1)
	assert.Equal(t, "2 sent, 1 failed.", notes[0].Message)
}

// goSpawn restores background delivery for tests that exercise shutdown.
func (f *campaignFixture) goSpawn() {
	f.svc.spawn = func(fn func()) {
		f.svc.wg.Add(1)
		go func() {
			defer f.svc.wg.Done()
			fn()
		}()
	}
}

func TestCampaignService_ShutdownInterruptsDelivery(t *testing.T) {
	f := newCampaignFixture(t)
	f.goSpawn()
	f.svc.sleep = sleepCtx
	f.svc.sendDelay = time.Hour
	c := f.draft(t, "4155550100", "4155550101", "4155550102")

	_, err := f.svc.Send(context.Background(), f.org.ID, c.ID)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.svc.Shutdown(ctx))

	stored := f.campaigns.campaigns[c.ID]
	assert.Equal(t, models.CampaignCompleted, stored.Status)
	assert.Equal(t, 1, stored.SentCount)
	assert.Equal(t, 2, stored.FailedCount)
	assert.Len(t, f.messages.messages, 1)
}

func TestCampaignService_ShutdownGivesUpAtDeadline(t *testing.T) {
	f := newCampaignFixture(t)
	f.goSpawn()
	release := make(chan struct{})
	f.svc.sleep = func(context.Context, time.Duration) error {
		<-release
		return nil
	}
	c := f.draft(t, "4155550100", "4155550101")

	_, err := f.svc.Send(context.Background(), f.org.ID, c.ID)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.svc.Shutdown(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, f.svc.Shutdown(context.Background()))
	assert.Equal(t, models.CampaignCompleted, f.campaigns.campaigns[c.ID].Status)
}

func TestCampaignService_SendAllFailedMarksFailed(t *testing.T) {
	f := newCampaignFixture(t)
	c := f.draft(t, "4155550100")
	f.sender.Fail["+14155550100"] = true

	_, err := f.svc.Send(context.Background(), f.org.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignFailed, f.campaigns.campaigns[c.ID].Status)
}

func TestCampaignService_SendRespectsMonthlyQuota(t *testing.T) {
	f := newCampaignFixture(t)
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	f.svc.quota.now = func() time.Time { return now }

	// last month's messages do not count
	f.recordSent(10, time.Date(2024, 2, 28, 23, 0, 0, 0, time.UTC))
	f.recordSent(3, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))

	c := f.draft(t, "4155550100", "4155550101", "4155550102")
	_, err := f.svc.Send(context.Background(), f.org.ID, c.ID)
	require.ErrorIs(t, err, apperrors.ErrQuotaExceeded)
	assert.Contains(t, err.Error(), "3 of 5")
	assert.Equal(t, models.CampaignDraft, f.campaigns.campaigns[c.ID].Status)
	assert.Empty(t, f.sender.Sent)

	exact := f.draft(t, "4155550100", "4155550101")
	_, err = f.svc.Send(context.Background(), f.org.ID, exact.ID)
	require.NoError(t, err)
	assert.Len(t, f.sender.Sent, 2)
}

func TestCampaignService_OnlyDraftsChange(t *testing.T) {
	f := newCampaignFixture(t)
	ctx := context.Background()
	c := f.draft(t, "4155550100")

	_, err := f.svc.Send(ctx, f.org.ID, c.ID)
	require.NoError(t, err)

	_, err = f.svc.Send(ctx, f.org.ID, c.ID)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.ErrorIs(t, f.svc.DeleteDraft(ctx, f.org.ID, c.ID), apperrors.ErrConflict)

	edit := &models.Campaign{ID: c.ID, OrganizationID: f.org.ID, BusinessID: f.business.ID, Name: "New", Message: "hi", Recipients: []string{"4155550100"}}
	_, err = f.svc.UpdateDraft(ctx, edit)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestCampaignService_UpdateDraft(t *testing.T) {
	f := newCampaignFixture(t)
	c := f.draft(t, "4155550100")

	updated, err := f.svc.UpdateDraft(context.Background(), &models.Campaign{
		ID: c.ID, OrganizationID: f.org.ID, BusinessID: f.business.ID,
		Name: " Renamed ", Message: "New text", Recipients: []string{"4155550199"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, []string{"+14155550199"}, updated.Recipients)
}

func TestCampaignService_Messages(t *testing.T) {
	f := newCampaignFixture(t)
	c := f.draft(t, "4155550100", "4155550101")
	_, err := f.svc.Send(context.Background(), f.org.ID, c.ID)
	require.NoError(t, err)

	msgs, err := f.svc.Messages(context.Background(), f.org.ID, c.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	_, err = f.svc.Messages(context.Background(), uuid.New(), c.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSmsService_Send(t *testing.T) {
	f := newCampaignFixture(t)
	ctx := context.Background()

	msg, err := f.smsSvc.Send(ctx, f.org.ID, f.business.ID, "415-555-0100", "Your table is ready")
	require.NoError(t, err)
	assert.Equal(t, models.SmsSent, msg.Status)
	assert.Equal(t, "SM0001", msg.ProviderMessageID)
	assert.Equal(t, "+14155550100", msg.ToNumber)

	_, err = f.smsSvc.Send(ctx, f.org.ID, f.business.ID, "555", "hi")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	f.sender.Fail["+14155550101"] = true
	msg, err = f.smsSvc.Send(ctx, f.org.ID, f.business.ID, "4155550101", "hi")
	require.Error(t, err)
	assert.Equal(t, models.SmsFailed, msg.Status)
	assert.Len(t, f.messages.messages, 2)
}

func TestSmsService_UsageAndQuota(t *testing.T) {
	f := newCampaignFixture(t)
	f.recordSent(5, time.Now())

	usage, err := f.smsSvc.Usage(context.Background(), f.org.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, usage.Used)
	assert.Equal(t, 5, usage.Limit)
	assert.Equal(t, 0, usage.Remaining)

	_, err = f.smsSvc.Send(context.Background(), f.org.ID, f.business.ID, "4155550100", "hi")
	assert.ErrorIs(t, err, apperrors.ErrQuotaExceeded)

	f.org.Plan = models.PlanPro
	usage, err = f.smsSvc.Usage(context.Background(), f.org.ID)
	require.NoError(t, err)
	assert.Equal(t, 95, usage.Remaining)
}

func TestMonthStart(t *testing.T) {
	loc := time.FixedZone("PST", -8*3600)
	got := monthStart(time.Date(2024, 3, 31, 20, 0, 0, 0, loc))
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), got)
}
