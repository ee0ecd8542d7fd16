package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot-engine/pkg/apperrors"
	"github.com/reviewpilot/reviewpilot-engine/pkg/logging"
	"github.com/reviewpilot/reviewpilot-engine/pkg/models"
	"github.com/reviewpilot/reviewpilot-engine/pkg/repositories"
	"github.com/reviewpilot/reviewpilot-engine/pkg/sms"
)

// maxSmsBody is ten concatenated segments.
const maxSmsBody = 1600

// monthStart returns midnight UTC on the first day of t's month.
func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// smsQuota reads an organization's month-to-date SMS usage against its plan.
type smsQuota struct {
	orgRepo repositories.OrganizationRepository
	smsRepo repositories.SmsRepository
	quotas  models.PlanQuotas
	now     func() time.Time
}

func (q *smsQuota) usage(ctx context.Context, organizationID uuid.UUID) (*models.SmsUsage, error) {
	org, err := q.orgRepo.GetByID(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	since := monthStart(q.now())
	used, err := q.smsRepo.CountSentSince(ctx, organizationID, since)
	if err != nil {
		return nil, err
	}
	limit := models.PlanQuota(q.quotas, org.Plan)
	return &models.SmsUsage{Used: used, Limit: limit, Remaining: max(limit-used, 0), Since: since}, nil
}

// reserve fails with ErrQuotaExceeded unless n more messages fit in this month's quota.
func (q *smsQuota) reserve(ctx context.Context, organizationID uuid.UUID, n int) (*models.SmsUsage, error) {
	u, err := q.usage(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	if u.Used+n > u.Limit {
		return u, fmt.Errorf("%w: %s of %s messages used this month, %s more requested",
			apperrors.ErrQuotaExceeded, humanize.Comma(int64(u.Used)), humanize.Comma(int64(u.Limit)), humanize.Comma(int64(n)))
	}
	return u, nil
}

// SmsService sends one-off texts on behalf of a business.
type SmsService interface {
	Send(ctx context.Context, organizationID, businessID uuid.UUID, to, body string) (*models.SmsMessage, error)
	Usage(ctx context.Context, organizationID uuid.UUID) (*models.SmsUsage, error)
}

type smsService struct {
	quota        *smsQuota
	sender       sms.Sender
	smsRepo      repositories.SmsRepository
	businessRepo repositories.BusinessRepository
	logger       *zap.Logger
}

// NewSmsService creates a new SMS service.
func NewSmsService(
	sender sms.Sender,
	smsRepo repositories.SmsRepository,
	orgRepo repositories.OrganizationRepository,
	businessRepo repositories.BusinessRepository,
	quotas models.PlanQuotas,
	logger *zap.Logger,
) SmsService {
	return &smsService{
		quota:        &smsQuota{orgRepo: orgRepo, smsRepo: smsRepo, quotas: quotas, now: time.Now},
		sender:       sender,
		smsRepo:      smsRepo,
		businessRepo: businessRepo,
		logger:       logger.Named("sms"),
	}
}

func validateSmsBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", fmt.Errorf("%w: message is required", apperrors.ErrInvalidInput)
	}
	if len([]rune(body)) > maxSmsBody {
		return "", fmt.Errorf("%w: message exceeds %d characters", apperrors.ErrInvalidInput, maxSmsBody)
	}
	return body, nil
}

func (s *smsService) Send(ctx context.Context, organizationID, businessID uuid.UUID, to, body string) (*models.SmsMessage, error) {
	number, err := sms.Normalize(to)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	if body, err = validateSmsBody(body); err != nil {
		return nil, err
	}
	if _, err := s.businessRepo.GetByID(ctx, organizationID, businessID); err != nil {
		return nil, err
	}
	if _, err := s.quota.reserve(ctx, organizationID, 1); err != nil {
		return nil, err
	}

	msg := deliver(ctx, s.sender, s.logger, &models.SmsMessage{
		OrganizationID: organizationID,
		BusinessID:     businessID,
		ToNumber:       number,
		Body:           body,
	})
	if err := s.smsRepo.Create(ctx, msg); err != nil {
		return nil, err
	}
	if msg.Status == models.SmsFailed {
		return msg, fmt.Errorf("failed to send sms: %s", msg.ErrorMessage)
	}
	return msg, nil
}

func (s *smsService) Usage(ctx context.Context, organizationID uuid.UUID) (*models.SmsUsage, error) {
	return s.quota.usage(ctx, organizationID)
}

// deliver hands msg to the provider once and records the outcome on msg.
func deliver(ctx context.Context, sender sms.Sender, logger *zap.Logger, msg *models.SmsMessage) *models.SmsMessage {
	sid, err := sender.Send(ctx, msg.ToNumber, msg.Body)
	if err != nil {
		msg.Status = models.SmsFailed
		msg.ErrorMessage = logging.TruncateString(err.Error(), 500)
		logger.Warn("SMS send failed",
			zap.String("to", logging.MaskPhone(msg.ToNumber)),
			zap.String("error", logging.SanitizeError(err)))
		return msg
	}
	now := time.Now()
	msg.Status = models.SmsSent
	msg.ProviderMessageID = sid
	msg.SentAt = &now
	return msg
}

// CampaignService manages bulk SMS campaigns.
type CampaignService interface {
	Create(ctx context.Context, c *models.Campaign) (*models.Campaign, error)
	List(ctx context.Context, organizationID, businessID uuid.UUID) ([]*models.Campaign, error)
	Get(ctx context.Context, organizationID, id uuid.UUID) (*models.Campaign, error)
	UpdateDraft(ctx context.Context, c *models.Campaign) (*models.Campaign, error)
	DeleteDraft(ctx context.Context, organizationID, id uuid.UUID) error
	// Send checks the quota, marks the campaign sending and delivers it in the background.
	Send(ctx context.Context, organizationID, id uuid.UUID) (*models.Campaign, error)
	Messages(ctx context.Context, organizationID, id uuid.UUID) ([]*models.SmsMessage, error)
	// Shutdown stops background deliveries after the message in flight and waits for them
	// to record their outcome, or until ctx is done.
	Shutdown(ctx context.Context) error
}

type campaignService struct {
	campaignRepo  repositories.CampaignRepository
	smsRepo       repositories.SmsRepository
	businessRepo  repositories.BusinessRepository
	quota         *smsQuota
	sender        sms.Sender
	notifications NotificationService
	getTenantCtx  TenantContextFunc
	sendDelay     time.Duration
	logger        *zap.Logger

	wg    sync.WaitGroup
	spawn func(fn func())
	sleep func(ctx context.Context, d time.Duration) error

	// stopCtx is cancelled by Shutdown; deliveries run under it.
	stopCtx context.Context
	stop    context.CancelFunc
}

// NewCampaignService creates a new campaign service. sendDelay spaces out
// consecutive messages of one campaign.
func NewCampaignService(
	campaignRepo repositories.CampaignRepository,
	smsRepo repositories.SmsRepository,
	orgRepo repositories.OrganizationRepository,
	businessRepo repositories.BusinessRepository,
	sender sms.Sender,
	notifications NotificationService,
	getTenantCtx TenantContextFunc,
	quotas models.PlanQuotas,
	sendDelay time.Duration,
	logger *zap.Logger,
) CampaignService {
	s := &campaignService{
		campaignRepo:  campaignRepo,
		smsRepo:       smsRepo,
		businessRepo:  businessRepo,
		quota:         &smsQuota{orgRepo: orgRepo, smsRepo: smsRepo, quotas: quotas, now: time.Now},
		sender:        sender,
		notifications: notifications,
		getTenantCtx:  getTenantCtx,
		sendDelay:     sendDelay,
		logger:        logger.Named("campaigns"),
		sleep:         sleepCtx,
	}
	s.stopCtx, s.stop = context.WithCancel(context.Background())
	s.spawn = func(fn func()) {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			fn()
		}()
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// prepareCampaign validates and normalizes the editable fields of c in place.
func prepareCampaign(c *models.Campaign) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", apperrors.ErrInvalidInput)
	}
	body, err := validateSmsBody(c.Message)
	if err != nil {
		return err
	}
	c.Message = body

	valid, invalid := sms.NormalizeAll(c.Recipients)
	if len(invalid) > 0 {
		masked := make([]string, 0, len(invalid))
		for _, n := range invalid {
			masked = append(masked, logging.MaskPhone(n))
		}
		return fmt.Errorf("%w: %d invalid phone %s: %s", apperrors.ErrInvalidInput,
			len(invalid), pluralize("number", len(invalid)), strings.Join(masked, ", "))
	}
	if len(valid) == 0 {
		return fmt.Errorf("%w: at least one recipient is required", apperrors.ErrInvalidInput)
	}
	c.Recipients = valid
	return nil
}

func (s *campaignService) Create(ctx context.Context, c *models.Campaign) (*models.Campaign, error) {
	if err := prepareCampaign(c); err != nil {
		return nil, err
	}
	if _, err := s.businessRepo.GetByID(ctx, c.OrganizationID, c.BusinessID); err != nil {
		return nil, err
	}
	c.Status = models.CampaignDraft
	if err := s.campaignRepo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *campaignService) List(ctx context.Context, organizationID, businessID uuid.UUID) ([]*models.Campaign, error) {
	return s.campaignRepo.ListByBusiness(ctx, organizationID, businessID)
}

func (s *campaignService) Get(ctx context.Context, organizationID, id uuid.UUID) (*models.Campaign, error) {
	return s.campaignRepo.GetByID(ctx, organizationID, id)
}

func (s *campaignService) UpdateDraft(ctx context.Context, c *models.Campaign) (*models.Campaign, error) {
	if err := prepareCampaign(c); err != nil {
		return nil, err
	}
	if err := s.campaignRepo.UpdateDraft(ctx, c); err != nil {
		return nil, err
	}
	return s.campaignRepo.GetByID(ctx, c.OrganizationID, c.ID)
}

func (s *campaignService) DeleteDraft(ctx context.Context, organizationID, id uuid.UUID) error {
	return s.campaignRepo.DeleteDraft(ctx, organizationID, id)
}

func (s *campaignService) Messages(ctx context.Context, organizationID, id uuid.UUID) ([]*models.SmsMessage, error) {
	if _, err := s.campaignRepo.GetByID(ctx, organizationID, id); err != nil {
		return nil, err
	}
	return s.smsRepo.ListByCampaign(ctx, organizationID, id)
}

func (s *campaignService) Send(ctx context.Context, organizationID, id uuid.UUID) (*models.Campaign, error) {
	c, err := s.campaignRepo.GetByID(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}
	if c.Status != models.CampaignDraft {
		return nil, fmt.Errorf("%w: campaign is %s", apperrors.ErrConflict, c.Status)
	}
	if _, err := s.quota.reserve(ctx, organizationID, len(c.Recipients)); err != nil {
		return nil, err
	}
	if err := s.campaignRepo.MarkSending(ctx, organizationID, id); err != nil {
		return nil, err
	}
	c.Status = models.CampaignSending

	s.logger.Info("Campaign sending",
		zap.String("organization_id", organizationID.String()),
		zap.String("campaign_id", id.String()),
		zap.Int("recipients", len(c.Recipients)))

	// The request's connection is released when the handler returns.
	snapshot := *c
	s.spawn(func() {
		err := inTenant(s.stopCtx, s.getTenantCtx, organizationID, func(ctx context.Context) error {
			return s.dispatch(ctx, &snapshot)
		})
		if err != nil {
			s.logger.Error("Campaign delivery aborted",
				zap.String("campaign_id", id.String()),
				zap.Error(err))
		}
	})
	return c, nil
}

// dispatch delivers c to each recipient in order, one attempt each. When ctx is cancelled
// the remaining recipients are counted as failed and the campaign is still finished.
func (s *campaignService) dispatch(ctx context.Context, c *models.Campaign) error {
	// Outcomes are recorded even after ctx is cancelled.
	recordCtx := context.WithoutCancel(ctx)

	sent, failed := 0, 0
	for i, to := range c.Recipients {
		if i > 0 {
			if err := s.sleep(ctx, s.sendDelay); err != nil {
				s.logger.Warn("Campaign delivery interrupted",
					zap.String("campaign_id", c.ID.String()),
					zap.Int("undelivered", len(c.Recipients)-i))
				break
			}
		}
		campaignID := c.ID
		msg := deliver(ctx, s.sender, s.logger, &models.SmsMessage{
			OrganizationID: c.OrganizationID,
			BusinessID:     c.BusinessID,
			CampaignID:     &campaignID,
			ToNumber:       to,
			Body:           c.Message,
		})
		if err := s.smsRepo.Create(recordCtx, msg); err != nil {
			s.logger.Error("Failed to record campaign message",
				zap.String("campaign_id", c.ID.String()),
				zap.Error(err))
		}
		if msg.Status == models.SmsSent {
			sent++
		} else {
			failed++
		}
	}
	failed += len(c.Recipients) - sent - failed

	status := models.CampaignCompleted
	if sent == 0 {
		status = models.CampaignFailed
	}
	if err := s.campaignRepo.Finish(recordCtx, c.OrganizationID, c.ID, status, sent, failed, time.Now()); err != nil {
		return fmt.Errorf("failed to finish campaign: %w", err)
	}

	s.logger.Info("Campaign finished",
		zap.String("campaign_id", c.ID.String()),
		zap.String("status", status),
		zap.Int("sent", sent),
		zap.Int("failed", failed))

	businessID := c.BusinessID
	s.notifications.Notify(recordCtx, &models.Notification{
		OrganizationID: c.OrganizationID,
		BusinessID:     &businessID,
		Type:           models.NotificationCampaignSent,
		Title:          fmt.Sprintf("Campaign %q %s", c.Name, status),
		Message:        fmt.Sprintf("%d sent, %d failed.", sent, failed),
		Data:           map[string]any{"campaign_id": c.ID.String(), "sent": sent, "failed": failed},
	})
	return nil
}

func (s *campaignService) Shutdown(ctx context.Context) error {
	s.stop()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var (
	_ SmsService      = (*smsService)(nil)
	_ CampaignService = (*campaignService)(nil)
)
