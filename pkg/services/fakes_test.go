package services

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reviewpilot/reviewpilot-engine/pkg/apperrors"
	"github.com/reviewpilot/reviewpilot-engine/pkg/models"
	"github.com/reviewpilot/reviewpilot-engine/pkg/repositories"
)

// In-memory repositories shared by the service tests. They honor the same
// contracts as the PostgreSQL implementations for the paths the services use.

type fakeUserRepo struct {
	users     map[uuid.UUID]*models.User
	attachErr error
}

func newFakeUserRepo(users ...*models.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[uuid.UUID]*models.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) Create(_ context.Context, u *models.User) error {
	for _, existing := range r.users {
		if existing.Subject == u.Subject {
			return apperrors.ErrConflict
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	r.users[u.ID] = u
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) GetBySubject(_ context.Context, subject string) (*models.User, error) {
	for _, u := range r.users {
		if u.Subject == subject {
			return u, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *fakeUserRepo) UpdateProfile(_ context.Context, id uuid.UUID, email, name, pictureURL string) error {
	u, ok := r.users[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	u.Email, u.Name, u.PictureURL = email, name, pictureURL
	return nil
}

func (r *fakeUserRepo) ListByOrganization(_ context.Context, organizationID uuid.UUID) ([]*models.User, error) {
	var out []*models.User
	for _, u := range r.users {
		if u.OrganizationID != nil && *u.OrganizationID == organizationID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *fakeUserRepo) AttachToOrganization(_ context.Context, userID, organizationID uuid.UUID, role string) error {
	if r.attachErr != nil {
		return r.attachErr
	}
	u, ok := r.users[userID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if u.OrganizationID != nil {
		return apperrors.ErrConflict
	}
	u.OrganizationID = &organizationID
	u.Role = role
	return nil
}

func (r *fakeUserRepo) owners(organizationID uuid.UUID) int {
	n := 0
	for _, u := range r.users {
		if u.OrganizationID != nil && *u.OrganizationID == organizationID && u.Role == models.RoleOwner {
			n++
		}
	}
	return n
}

func (r *fakeUserRepo) member(organizationID, userID uuid.UUID) (*models.User, error) {
	u, ok := r.users[userID]
	if !ok || u.OrganizationID == nil || *u.OrganizationID != organizationID {
		return nil, apperrors.ErrNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) UpdateRoleWithOwnerCheck(_ context.Context, organizationID, userID uuid.UUID, newRole string) error {
	u, err := r.member(organizationID, userID)
	if err != nil {
		return err
	}
	if u.Role == models.RoleOwner && newRole != models.RoleOwner && r.owners(organizationID) <= 1 {
		return apperrors.ErrLastOwner
	}
	u.Role = newRole
	return nil
}

func (r *fakeUserRepo) RemoveWithOwnerCheck(_ context.Context, organizationID, userID uuid.UUID) error {
	u, err := r.member(organizationID, userID)
	if err != nil {
		return err
	}
	if u.Role == models.RoleOwner && r.owners(organizationID) <= 1 {
		return apperrors.ErrLastOwner
	}
	u.OrganizationID = nil
	return nil
}

type fakeOrgRepo struct {
	orgs map[uuid.UUID]*models.Organization
}

func newFakeOrgRepo(orgs ...*models.Organization) *fakeOrgRepo {
	r := &fakeOrgRepo{orgs: make(map[uuid.UUID]*models.Organization)}
	for _, o := range orgs {
		r.orgs[o.ID] = o
	}
	return r
}

func (r *fakeOrgRepo) Create(_ context.Context, o *models.Organization) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.Plan == "" {
		o.Plan = models.PlanFree
	}
	r.orgs[o.ID] = o
	return nil
}

func (r *fakeOrgRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Organization, error) {
	o, ok := r.orgs[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return o, nil
}

func (r *fakeOrgRepo) Update(_ context.Context, o *models.Organization) error {
	r.orgs[o.ID] = o
	return nil
}

type fakeBusinessRepo struct {
	businesses map[uuid.UUID]*models.Business
}

func newFakeBusinessRepo(bs ...*models.Business) *fakeBusinessRepo {
	r := &fakeBusinessRepo{businesses: make(map[uuid.UUID]*models.Business)}
	for _, b := range bs {
		r.businesses[b.ID] = b
	}
	return r
}

func (r *fakeBusinessRepo) Create(_ context.Context, b *models.Business) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	r.businesses[b.ID] = b
	return nil
}

func (r *fakeBusinessRepo) GetByID(_ context.Context, organizationID, id uuid.UUID) (*models.Business, error) {
	b, ok := r.businesses[id]
	if !ok || b.OrganizationID != organizationID || b.DeletedAt != nil {
		return nil, apperrors.ErrNotFound
	}
	return b, nil
}

func (r *fakeBusinessRepo) List(_ context.Context, organizationID uuid.UUID) ([]*models.Business, error) {
	var out []*models.Business
	for _, b := range r.businesses {
		if b.OrganizationID == organizationID && b.DeletedAt == nil {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *fakeBusinessRepo) Update(_ context.Context, b *models.Business) error {
	if _, ok := r.businesses[b.ID]; !ok {
		return apperrors.ErrNotFound
	}
	r.businesses[b.ID] = b
	return nil
}

func (r *fakeBusinessRepo) SoftDelete(ctx context.Context, organizationID, id uuid.UUID) error {
	b, err := r.GetByID(ctx, organizationID, id)
	if err != nil {
		return err
	}
	now := time.Now()
	b.DeletedAt = &now
	return nil
}

type fakeLocationRepo struct {
	locations map[uuid.UUID]*models.Location
}

func newFakeLocationRepo(ls ...*models.Location) *fakeLocationRepo {
	r := &fakeLocationRepo{locations: make(map[uuid.UUID]*models.Location)}
	for _, l := range ls {
		r.locations[l.ID] = l
	}
	return r
}

func (r *fakeLocationRepo) Create(_ context.Context, l *models.Location) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	r.locations[l.ID] = l
	return nil
}

func (r *fakeLocationRepo) GetByID(_ context.Context, organizationID, id uuid.UUID) (*models.Location, error) {
	l, ok := r.locations[id]
	if !ok || l.OrganizationID != organizationID || l.DeletedAt != nil {
		return nil, apperrors.ErrNotFound
	}
	return l, nil
}

func (r *fakeLocationRepo) GetByGoogleName(_ context.Context, name string) (*models.Location, error) {
	for _, l := range r.locations {
		if l.GoogleLocationName == name && l.DeletedAt == nil {
			return l, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *fakeLocationRepo) List(_ context.Context, organizationID uuid.UUID, ids []uuid.UUID) ([]*models.Location, error) {
	var out []*models.Location
	for _, l := range r.locations {
		if l.OrganizationID != organizationID || l.DeletedAt != nil {
			continue
		}
		if ids != nil && !slices.Contains(ids, l.ID) {
			continue
		}
		out = append(out, l)
	}
	slices.SortFunc(out, func(a, b *models.Location) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (r *fakeLocationRepo) Update(_ context.Context, l *models.Location) error {
	if _, ok := r.locations[l.ID]; !ok {
		return apperrors.ErrNotFound
	}
	r.locations[l.ID] = l
	return nil
}

func (r *fakeLocationRepo) SoftDelete(ctx context.Context, organizationID, id uuid.UUID) error {
	l, err := r.GetByID(ctx, organizationID, id)
	if err != nil {
		return err
	}
	now := time.Now()
	l.DeletedAt = &now
	return nil
}

func (r *fakeLocationRepo) active(l *models.Location, organizationID uuid.UUID) bool {
	return l.OrganizationID == organizationID && l.IsActive && l.DeletedAt == nil
}

func (r *fakeLocationRepo) ListActiveByOrganization(_ context.Context, organizationID uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for _, l := range r.locations {
		if r.active(l, organizationID) {
			out = append(out, l.ID)
		}
	}
	return out, nil
}

func (r *fakeLocationRepo) ListByGroups(_ context.Context, organizationID uuid.UUID, groupIDs []uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for _, l := range r.locations {
		if r.active(l, organizationID) && l.GroupID != nil && slices.Contains(groupIDs, *l.GroupID) {
			out = append(out, l.ID)
		}
	}
	return out, nil
}

func (r *fakeLocationRepo) FilterActive(_ context.Context, organizationID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for _, id := range ids {
		if l, ok := r.locations[id]; ok && r.active(l, organizationID) {
			out = append(out, id)
		}
	}
	return out, nil
}

type fakeGroupRepo struct {
	groups        map[uuid.UUID]*models.LocationGroup
	locations     *fakeLocationRepo
	childrenCalls int
}

func newFakeGroupRepo(locations *fakeLocationRepo, gs ...*models.LocationGroup) *fakeGroupRepo {
	r := &fakeGroupRepo{groups: make(map[uuid.UUID]*models.LocationGroup), locations: locations}
	for _, g := range gs {
		r.groups[g.ID] = g
	}
	return r
}

func (r *fakeGroupRepo) Create(_ context.Context, g *models.LocationGroup) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	r.groups[g.ID] = g
	return nil
}

func (r *fakeGroupRepo) GetByID(_ context.Context, organizationID, id uuid.UUID) (*models.LocationGroup, error) {
	g, ok := r.groups[id]
	if !ok || g.OrganizationID != organizationID {
		return nil, apperrors.ErrNotFound
	}
	return g, nil
}

func (r *fakeGroupRepo) List(_ context.Context, organizationID uuid.UUID) ([]*models.LocationGroup, error) {
	var out []*models.LocationGroup
	for _, g := range r.groups {
		if g.OrganizationID == organizationID {
			out = append(out, g)
		}
	}
	slices.SortFunc(out, func(a, b *models.LocationGroup) int {
		if a.Level != b.Level {
			return a.Level - b.Level
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

func (r *fakeGroupRepo) ListChildren(_ context.Context, organizationID, parentID uuid.UUID) ([]*models.LocationGroup, error) {
	r.childrenCalls++
	var out []*models.LocationGroup
	for _, g := range r.groups {
		if g.OrganizationID == organizationID && g.ParentID != nil && *g.ParentID == parentID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (r *fakeGroupRepo) Rename(ctx context.Context, organizationID, id uuid.UUID, name string) error {
	g, err := r.GetByID(ctx, organizationID, id)
	if err != nil {
		return err
	}
	g.Name = name
	return nil
}

func (r *fakeGroupRepo) relevel(organizationID, id uuid.UUID, level int) {
	r.groups[id].Level = level
	for _, g := range r.groups {
		if g.OrganizationID == organizationID && g.ParentID != nil && *g.ParentID == id {
			r.relevel(organizationID, g.ID, level+1)
		}
	}
}

func (r *fakeGroupRepo) Move(ctx context.Context, organizationID, id uuid.UUID, parentID *uuid.UUID, level int) error {
	g, err := r.GetByID(ctx, organizationID, id)
	if err != nil {
		return err
	}
	g.ParentID = parentID
	r.relevel(organizationID, id, level)
	return nil
}

func (r *fakeGroupRepo) Delete(ctx context.Context, organizationID, id uuid.UUID) error {
	g, err := r.GetByID(ctx, organizationID, id)
	if err != nil {
		return err
	}
	for _, child := range r.groups {
		if child.ParentID != nil && *child.ParentID == id {
			child.ParentID = g.ParentID
			r.relevel(organizationID, child.ID, g.Level)
		}
	}
	if r.locations != nil {
		for _, l := range r.locations.locations {
			if l.GroupID != nil && *l.GroupID == id {
				l.GroupID = nil
			}
		}
	}
	delete(r.groups, id)
	return nil
}

type fakeAccessRepo struct {
	grants []*models.LocationAccess
	// grantErr fails grants of one access type.
	grantErr map[string]error
}

func (r *fakeAccessRepo) ListByUser(_ context.Context, organizationID, userID uuid.UUID) ([]*models.LocationAccess, error) {
	var out []*models.LocationAccess
	for _, g := range r.grants {
		if g.OrganizationID == organizationID && g.UserID == userID {
			out = append(out, g)
		}
	}
	return out, nil
}

func sameTarget(a, b *models.LocationAccess) bool {
	if a.UserID != b.UserID || a.AccessType != b.AccessType {
		return false
	}
	eq := func(x, y *uuid.UUID) bool { return (x == nil && y == nil) || (x != nil && y != nil && *x == *y) }
	return eq(a.LocationID, b.LocationID) && eq(a.GroupID, b.GroupID)
}

func (r *fakeAccessRepo) Grant(_ context.Context, access *models.LocationAccess) error {
	if err, ok := r.grantErr[access.AccessType]; ok {
		return err
	}
	for _, g := range r.grants {
		if sameTarget(g, access) {
			*access = *g
			return nil
		}
	}
	access.ID = uuid.New()
	access.CreatedAt = time.Now()
	r.grants = append(r.grants, access)
	return nil
}

func (r *fakeAccessRepo) ReplaceWithAll(_ context.Context, organizationID, userID uuid.UUID) (*models.LocationAccess, error) {
	kept := r.grants[:0]
	for _, g := range r.grants {
		if !(g.OrganizationID == organizationID && g.UserID == userID) {
			kept = append(kept, g)
		}
	}
	all := &models.LocationAccess{ID: uuid.New(), OrganizationID: organizationID, UserID: userID, AccessType: models.AccessAll}
	r.grants = append(kept, all)
	return all, nil
}

func (r *fakeAccessRepo) Revoke(_ context.Context, organizationID, userID, id uuid.UUID) error {
	for i, g := range r.grants {
		if g.ID == id && g.OrganizationID == organizationID && g.UserID == userID {
			r.grants = append(r.grants[:i], r.grants[i+1:]...)
			return nil
		}
	}
	return apperrors.ErrNotFound
}

type fakeReviewRepo struct {
	reviews []*models.Review
}

func (r *fakeReviewRepo) InsertBatch(_ context.Context, reviews []*models.Review) (int, error) {
	n := 0
	for _, rv := range reviews {
		dup := false
		for _, existing := range r.reviews {
			if existing.BusinessID == rv.BusinessID && existing.Platform == rv.Platform && existing.ExternalID == rv.ExternalID {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		if rv.ID == uuid.Nil {
			rv.ID = uuid.New()
		}
		r.reviews = append(r.reviews, rv)
		n++
	}
	return n, nil
}

func (r *fakeReviewRepo) GetByID(_ context.Context, organizationID, id uuid.UUID) (*models.Review, error) {
	for _, rv := range r.reviews {
		if rv.ID == id && rv.OrganizationID == organizationID {
			return rv, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *fakeReviewRepo) ExistingExternalIDs(_ context.Context, businessID uuid.UUID, platform string, externalIDs []string) (map[string]bool, error) {
	out := make(map[string]bool)
	for _, rv := range r.reviews {
		if rv.BusinessID == businessID && rv.Platform == platform && slices.Contains(externalIDs, rv.ExternalID) {
			out[rv.ExternalID] = true
		}
	}
	return out, nil
}

func (r *fakeReviewRepo) List(_ context.Context, organizationID uuid.UUID, f *models.ReviewFilter) ([]*models.Review, int, error) {
	var out []*models.Review
	for _, rv := range r.reviews {
		if rv.OrganizationID != organizationID {
			continue
		}
		if f.BusinessID != uuid.Nil && rv.BusinessID != f.BusinessID {
			continue
		}
		if f.LocationIDs != nil && (rv.LocationID == nil || !slices.Contains(f.LocationIDs, *rv.LocationID)) {
			continue
		}
		if f.Platform != "" && rv.Platform != f.Platform {
			continue
		}
		out = append(out, rv)
	}
	return out, len(out), nil
}

func (r *fakeReviewRepo) Unanswered(_ context.Context, businessID uuid.UUID, platforms []string, minRating, limit int) ([]*models.Review, error) {
	var out []*models.Review
	for _, rv := range r.reviews {
		if rv.BusinessID == businessID && !rv.HasResponse() && rv.Rating >= minRating && slices.Contains(platforms, rv.Platform) {
			out = append(out, rv)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeReviewRepo) Recent(_ context.Context, businessID uuid.UUID, limit int) ([]*models.Review, error) {
	var out []*models.Review
	for _, rv := range r.reviews {
		if rv.BusinessID == businessID {
			out = append(out, rv)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeReviewRepo) SetResponse(ctx context.Context, organizationID, id uuid.UUID, text string, byAI bool, at time.Time) error {
	rv, err := r.GetByID(ctx, organizationID, id)
	if err != nil {
		return err
	}
	rv.ResponseText = &text
	rv.ResponseDate = &at
	rv.RespondedByAI = byAI
	return nil
}

func (r *fakeReviewRepo) UpdateSentiment(ctx context.Context, organizationID, id uuid.UUID, sentiment string) error {
	rv, err := r.GetByID(ctx, organizationID, id)
	if err != nil {
		return err
	}
	rv.Sentiment = sentiment
	return nil
}

func (r *fakeReviewRepo) Stats(_ context.Context, organizationID, businessID uuid.UUID, locationIDs []uuid.UUID) (*models.ReviewStats, error) {
	stats := &models.ReviewStats{RatingDistribution: map[int]int{}, Sentiment: map[string]int{}, ByPlatform: map[string]*models.PlatformStats{}}
	sum := 0
	for _, rv := range r.reviews {
		if rv.OrganizationID != organizationID || rv.BusinessID != businessID {
			continue
		}
		if locationIDs != nil && (rv.LocationID == nil || !slices.Contains(locationIDs, *rv.LocationID)) {
			continue
		}
		stats.TotalReviews++
		sum += rv.Rating
		stats.RatingDistribution[rv.Rating]++
	}
	if stats.TotalReviews > 0 {
		stats.AverageRating = float64(sum) / float64(stats.TotalReviews)
	}
	return stats, nil
}

type fakeConnectionRepo struct {
	conns     map[uuid.UUID]*models.PlatformConnection
	syncedAt  map[uuid.UUID]time.Time
	lastError map[uuid.UUID]string
}

func newFakeConnectionRepo(cs ...*models.PlatformConnection) *fakeConnectionRepo {
	r := &fakeConnectionRepo{
		conns:     make(map[uuid.UUID]*models.PlatformConnection),
		syncedAt:  make(map[uuid.UUID]time.Time),
		lastError: make(map[uuid.UUID]string),
	}
	for _, c := range cs {
		r.conns[c.ID] = c
	}
	return r
}

func (r *fakeConnectionRepo) Upsert(_ context.Context, c *models.PlatformConnection) error {
	for id, existing := range r.conns {
		if existing.BusinessID == c.BusinessID && existing.Platform == c.Platform {
			c.ID = id
			r.conns[id] = c
			return nil
		}
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	r.conns[c.ID] = c
	return nil
}

func (r *fakeConnectionRepo) Get(_ context.Context, organizationID, businessID uuid.UUID, platform string) (*models.PlatformConnection, error) {
	for _, c := range r.conns {
		if c.OrganizationID == organizationID && c.BusinessID == businessID && c.Platform == platform {
			return c, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *fakeConnectionRepo) ListByBusiness(_ context.Context, organizationID, businessID uuid.UUID) ([]*models.PlatformConnection, error) {
	var out []*models.PlatformConnection
	for _, c := range r.conns {
		if c.OrganizationID == organizationID && c.BusinessID == businessID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeConnectionRepo) ListActiveByPlatforms(_ context.Context, platforms []string) ([]*models.PlatformConnection, error) {
	var out []*models.PlatformConnection
	for _, c := range r.conns {
		if c.Status == models.ConnectionActive && slices.Contains(platforms, c.Platform) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeConnectionRepo) FindByExternalAccount(_ context.Context, platform, externalAccountID string) ([]*models.PlatformConnection, error) {
	var out []*models.PlatformConnection
	for _, c := range r.conns {
		if c.Platform == platform && c.ExternalAccountID == externalAccountID && c.Status == models.ConnectionActive {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeConnectionRepo) UpdateTokens(_ context.Context, c *models.PlatformConnection) error {
	r.conns[c.ID] = c
	return nil
}

func (r *fakeConnectionRepo) MarkSynced(_ context.Context, id uuid.UUID, at time.Time) error {
	r.syncedAt[id] = at
	if c, ok := r.conns[id]; ok {
		c.LastSyncedAt = &at
		c.Status = models.ConnectionActive
		c.LastError = ""
	}
	return nil
}

func (r *fakeConnectionRepo) MarkError(_ context.Context, id uuid.UUID, message string) error {
	r.lastError[id] = message
	if c, ok := r.conns[id]; ok {
		c.Status = models.ConnectionError
		c.LastError = message
	}
	return nil
}

func (r *fakeConnectionRepo) Delete(_ context.Context, organizationID, businessID uuid.UUID, platform string) error {
	for id, c := range r.conns {
		if c.OrganizationID == organizationID && c.BusinessID == businessID && c.Platform == platform {
			delete(r.conns, id)
			return nil
		}
	}
	return apperrors.ErrNotFound
}

type fakeNotificationRepo struct {
	mu            sync.Mutex
	notifications []*models.Notification
}

func (r *fakeNotificationRepo) Create(_ context.Context, n *models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n.ID = uuid.New()
	n.CreatedAt = time.Now()
	r.notifications = append(r.notifications, n)
	return nil
}

func visibleTo(n *models.Notification, organizationID, userID uuid.UUID) bool {
	return n.OrganizationID == organizationID && (n.UserID == nil || *n.UserID == userID)
}

func (r *fakeNotificationRepo) List(_ context.Context, organizationID, userID uuid.UUID, unreadOnly bool, limit int) ([]*models.Notification, error) {
	var out []*models.Notification
	for _, n := range r.notifications {
		if visibleTo(n, organizationID, userID) && (!unreadOnly || !n.IsRead()) {
			out = append(out, n)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeNotificationRepo) UnreadCount(_ context.Context, organizationID, userID uuid.UUID) (int, error) {
	n := 0
	for _, x := range r.notifications {
		if visibleTo(x, organizationID, userID) && !x.IsRead() {
			n++
		}
	}
	return n, nil
}

func (r *fakeNotificationRepo) MarkRead(_ context.Context, organizationID, userID, id uuid.UUID) error {
	for _, n := range r.notifications {
		if n.ID == id && visibleTo(n, organizationID, userID) {
			now := time.Now()
			n.ReadAt = &now
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (r *fakeNotificationRepo) MarkAllRead(_ context.Context, organizationID, userID uuid.UUID) (int, error) {
	count := 0
	for _, n := range r.notifications {
		if visibleTo(n, organizationID, userID) && !n.IsRead() {
			now := time.Now()
			n.ReadAt = &now
			count++
		}
	}
	return count, nil
}

func (r *fakeNotificationRepo) Delete(_ context.Context, organizationID, userID, id uuid.UUID) error {
	for i, n := range r.notifications {
		if n.ID == id && visibleTo(n, organizationID, userID) {
			r.notifications = append(r.notifications[:i], r.notifications[i+1:]...)
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (r *fakeNotificationRepo) byType(typ string) []*models.Notification {
	var out []*models.Notification
	for _, n := range r.notifications {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

type fakeAISettingsRepo struct {
	settings map[uuid.UUID]*models.AISettings
}

func newFakeAISettingsRepo(ss ...*models.AISettings) *fakeAISettingsRepo {
	r := &fakeAISettingsRepo{settings: make(map[uuid.UUID]*models.AISettings)}
	for _, s := range ss {
		r.settings[s.BusinessID] = s
	}
	return r
}

func (r *fakeAISettingsRepo) Get(_ context.Context, organizationID, businessID uuid.UUID) (*models.AISettings, error) {
	s, ok := r.settings[businessID]
	if !ok || s.OrganizationID != organizationID {
		return nil, apperrors.ErrNotFound
	}
	return s, nil
}

func (r *fakeAISettingsRepo) Upsert(_ context.Context, s *models.AISettings) error {
	r.settings[s.BusinessID] = s
	return nil
}

func (r *fakeAISettingsRepo) ListAutoReplyEnabled(context.Context) ([]*models.AISettings, error) {
	var out []*models.AISettings
	for _, s := range r.settings {
		if s.AutoReplyEnabled {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeCompetitorRepo struct {
	competitors map[uuid.UUID]*models.Competitor
	snapshots   []*models.CompetitorSnapshot
}

func newFakeCompetitorRepo(cs ...*models.Competitor) *fakeCompetitorRepo {
	r := &fakeCompetitorRepo{competitors: make(map[uuid.UUID]*models.Competitor)}
	for _, c := range cs {
		r.competitors[c.ID] = c
	}
	return r
}

func (r *fakeCompetitorRepo) Create(_ context.Context, c *models.Competitor) error {
	for _, existing := range r.competitors {
		if existing.DeletedAt == nil && existing.BusinessID == c.BusinessID && existing.Platform == c.Platform && existing.ExternalID == c.ExternalID {
			return apperrors.ErrConflict
		}
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	r.competitors[c.ID] = c
	return nil
}

func (r *fakeCompetitorRepo) GetByID(_ context.Context, organizationID, id uuid.UUID) (*models.Competitor, error) {
	c, ok := r.competitors[id]
	if !ok || c.OrganizationID != organizationID || c.DeletedAt != nil {
		return nil, apperrors.ErrNotFound
	}
	return c, nil
}

func (r *fakeCompetitorRepo) ListByBusiness(_ context.Context, organizationID, businessID uuid.UUID) ([]*models.Competitor, error) {
	var out []*models.Competitor
	for _, c := range r.competitors {
		if c.OrganizationID == organizationID && c.BusinessID == businessID && c.DeletedAt == nil {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b *models.Competitor) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (r *fakeCompetitorRepo) ListAll(context.Context) ([]*models.Competitor, error) {
	var out []*models.Competitor
	for _, c := range r.competitors {
		if c.DeletedAt == nil {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeCompetitorRepo) SoftDelete(ctx context.Context, organizationID, id uuid.UUID) error {
	c, err := r.GetByID(ctx, organizationID, id)
	if err != nil {
		return err
	}
	now := time.Now()
	c.DeletedAt = &now
	return nil
}

func (r *fakeCompetitorRepo) RecordRating(_ context.Context, c *models.Competitor, rating *float64, reviewCount int, at time.Time) error {
	c.Rating = rating
	c.ReviewCount = reviewCount
	c.LastCheckedAt = &at
	r.snapshots = append(r.snapshots, &models.CompetitorSnapshot{
		ID: uuid.New(), OrganizationID: c.OrganizationID, CompetitorID: c.ID, Rating: rating, ReviewCount: reviewCount, CapturedAt: at,
	})
	return nil
}

func (r *fakeCompetitorRepo) ListSnapshots(_ context.Context, competitorID uuid.UUID, limit int) ([]*models.CompetitorSnapshot, error) {
	var out []*models.CompetitorSnapshot
	for i := len(r.snapshots) - 1; i >= 0 && len(out) < limit; i-- {
		if r.snapshots[i].CompetitorID == competitorID {
			out = append(out, r.snapshots[i])
		}
	}
	return out, nil
}

type fakeCampaignRepo struct {
	campaigns map[uuid.UUID]*models.Campaign
}

func newFakeCampaignRepo() *fakeCampaignRepo {
	return &fakeCampaignRepo{campaigns: make(map[uuid.UUID]*models.Campaign)}
}

func (r *fakeCampaignRepo) Create(_ context.Context, c *models.Campaign) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.Status = models.CampaignDraft
	r.campaigns[c.ID] = c
	return nil
}

func (r *fakeCampaignRepo) GetByID(_ context.Context, organizationID, id uuid.UUID) (*models.Campaign, error) {
	c, ok := r.campaigns[id]
	if !ok || c.OrganizationID != organizationID {
		return nil, apperrors.ErrNotFound
	}
	return c, nil
}

func (r *fakeCampaignRepo) ListByBusiness(_ context.Context, organizationID, businessID uuid.UUID) ([]*models.Campaign, error) {
	var out []*models.Campaign
	for _, c := range r.campaigns {
		if c.OrganizationID == organizationID && c.BusinessID == businessID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeCampaignRepo) draft(organizationID, id uuid.UUID) (*models.Campaign, error) {
	c, ok := r.campaigns[id]
	if !ok || c.OrganizationID != organizationID {
		return nil, apperrors.ErrNotFound
	}
	if c.Status != models.CampaignDraft {
		return nil, apperrors.ErrConflict
	}
	return c, nil
}

func (r *fakeCampaignRepo) UpdateDraft(_ context.Context, c *models.Campaign) error {
	existing, err := r.draft(c.OrganizationID, c.ID)
	if err != nil {
		return err
	}
	existing.Name, existing.Message, existing.Recipients = c.Name, c.Message, c.Recipients
	return nil
}

func (r *fakeCampaignRepo) DeleteDraft(_ context.Context, organizationID, id uuid.UUID) error {
	if _, err := r.draft(organizationID, id); err != nil {
		return err
	}
	delete(r.campaigns, id)
	return nil
}

func (r *fakeCampaignRepo) MarkSending(_ context.Context, organizationID, id uuid.UUID) error {
	c, err := r.draft(organizationID, id)
	if err != nil {
		return err
	}
	c.Status = models.CampaignSending
	return nil
}

func (r *fakeCampaignRepo) Finish(_ context.Context, organizationID, id uuid.UUID, status string, sent, failed int, at time.Time) error {
	c, ok := r.campaigns[id]
	if !ok || c.OrganizationID != organizationID {
		return apperrors.ErrNotFound
	}
	c.Status, c.SentCount, c.FailedCount, c.SentAt = status, sent, failed, &at
	return nil
}

type fakeSmsRepo struct {
	messages []*models.SmsMessage
}

func (r *fakeSmsRepo) Create(_ context.Context, m *models.SmsMessage) error {
	m.ID = uuid.New()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	r.messages = append(r.messages, m)
	return nil
}

func (r *fakeSmsRepo) CountSentSince(_ context.Context, organizationID uuid.UUID, since time.Time) (int, error) {
	n := 0
	for _, m := range r.messages {
		if m.OrganizationID == organizationID && m.Status == models.SmsSent && !m.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *fakeSmsRepo) ListByCampaign(_ context.Context, organizationID, campaignID uuid.UUID) ([]*models.SmsMessage, error) {
	var out []*models.SmsMessage
	for _, m := range r.messages {
		if m.OrganizationID == organizationID && m.CampaignID != nil && *m.CampaignID == campaignID {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeInvitationRepo struct {
	invitations map[uuid.UUID]*models.TeamInvitation
}

func newFakeInvitationRepo() *fakeInvitationRepo {
	return &fakeInvitationRepo{invitations: make(map[uuid.UUID]*models.TeamInvitation)}
}

func (r *fakeInvitationRepo) Create(_ context.Context, inv *models.TeamInvitation) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	inv.Status = models.InvitationPending
	r.invitations[inv.ID] = inv
	return nil
}

func (r *fakeInvitationRepo) GetByID(_ context.Context, organizationID, id uuid.UUID) (*models.TeamInvitation, error) {
	inv, ok := r.invitations[id]
	if !ok || inv.OrganizationID != organizationID {
		return nil, apperrors.ErrNotFound
	}
	return inv, nil
}

func (r *fakeInvitationRepo) GetByToken(_ context.Context, token string) (*models.TeamInvitation, error) {
	for _, inv := range r.invitations {
		if inv.Token == token {
			return inv, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *fakeInvitationRepo) ListByOrganization(_ context.Context, organizationID uuid.UUID) ([]*models.TeamInvitation, error) {
	var out []*models.TeamInvitation
	for _, inv := range r.invitations {
		if inv.OrganizationID == organizationID {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (r *fakeInvitationRepo) SetStatus(_ context.Context, id uuid.UUID, status string, acceptedBy *uuid.UUID) error {
	inv, ok := r.invitations[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	if inv.Status != models.InvitationPending {
		return apperrors.ErrInvitationUsed
	}
	inv.Status = status
	inv.AcceptedBy = acceptedBy
	if status == models.InvitationAccepted {
		now := time.Now()
		inv.AcceptedAt = &now
	}
	return nil
}

var (
	_ repositories.UserRepository               = (*fakeUserRepo)(nil)
	_ repositories.OrganizationRepository       = (*fakeOrgRepo)(nil)
	_ repositories.BusinessRepository           = (*fakeBusinessRepo)(nil)
	_ repositories.LocationRepository           = (*fakeLocationRepo)(nil)
	_ repositories.LocationGroupRepository      = (*fakeGroupRepo)(nil)
	_ repositories.LocationAccessRepository     = (*fakeAccessRepo)(nil)
	_ repositories.ReviewRepository             = (*fakeReviewRepo)(nil)
	_ repositories.PlatformConnectionRepository = (*fakeConnectionRepo)(nil)
	_ repositories.NotificationRepository       = (*fakeNotificationRepo)(nil)
	_ repositories.AISettingsRepository         = (*fakeAISettingsRepo)(nil)
	_ repositories.CompetitorRepository         = (*fakeCompetitorRepo)(nil)
	_ repositories.CampaignRepository           = (*fakeCampaignRepo)(nil)
	_ repositories.SmsRepository                = (*fakeSmsRepo)(nil)
	_ repositories.TeamInvitationRepository     = (*fakeInvitationRepo)(nil)
)
