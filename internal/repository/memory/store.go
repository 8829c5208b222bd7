// Package memrepo is an in-process implementation of repository.Repository.
// It backs the "memory" db driver and the package tests.
package memrepo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"buybox/internal/models"
	"buybox/internal/repository"
)

// Store keeps every table in memory. Transactions are serialized; each *Tx
// write records an undo step and a failing InTx replays them in reverse, so
// plain writes made meanwhile survive the rollback.
type Store struct {
	// FailWrite, when set, is consulted before every write. A non-nil
	// return aborts the write with that error.
	FailWrite func(op string, item any) error

	txMu sync.Mutex
	mu   sync.RWMutex
	seq  uint64

	inTx    bool
	journal []func()

	products    map[string]models.TrackedProduct
	offers      []models.Offer
	intervals   []models.BuyBoxInterval
	insights    []models.Insight
	sellers     map[string]models.SellerCache
	brandOwners []models.BrandOwner
	ownerItems  []models.BrandOwnerProduct
	pairs       []models.ManualCompetitor
	samples     []models.CompetitorMonitoring
	syncLogs    []models.SyncLog
	settings    map[string]models.SystemSetting
}

func New() *Store {
	return &Store{
		products: map[string]models.TrackedProduct{},
		sellers:  map[string]models.SellerCache{},
		settings: map[string]models.SystemSetting{},
	}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	s.inTx = true
	s.journal = nil
	s.mu.Unlock()

	err := fn(nil)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		for i := len(s.journal) - 1; i >= 0; i-- {
			s.journal[i]()
		}
	}
	s.inTx = false
	s.journal = nil
	return err
}

// undo registers a rollback step. Callers hold s.mu.
func (s *Store) undo(fn func()) {
	if s.inTx {
		s.journal = append(s.journal, fn)
	}
}

func (s *Store) intervalIndex(id uint64) int {
	for i := range s.intervals {
		if s.intervals[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) check(op string, item any) error {
	if s.FailWrite == nil {
		return nil
	}
	return s.FailWrite(op, item)
}

func (s *Store) nextID() uint64 {
	s.seq++
	return s.seq
}

// --- tracked products -------------------------------------------------------

func (s *Store) UpsertTrackedProduct(ctx context.Context, item *models.TrackedProduct) error {
	if item == nil || strings.TrimSpace(item.ASIN) == "" {
		return nil
	}
	if err := s.check("UpsertTrackedProduct", item); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	item.ASIN = strings.TrimSpace(item.ASIN)
	now := time.Now().UTC()
	if existing, ok := s.products[item.ASIN]; ok {
		existing.Title = item.Title
		existing.Marketplace = item.Marketplace
		existing.IsActive = item.IsActive
		existing.UpdatedAt = now
		s.products[item.ASIN] = existing
		*item = existing
		return nil
	}
	item.ID = s.nextID()
	item.CreatedAt = now
	item.UpdatedAt = now
	s.products[item.ASIN] = *item
	return nil
}

func (s *Store) GetTrackedProduct(ctx context.Context, asin string) (*models.TrackedProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.products[strings.TrimSpace(asin)]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *Store) ListActiveTrackedProducts(ctx context.Context, limit int) ([]models.TrackedProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.TrackedProduct
	for _, p := range s.products {
		if p.IsActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastCheckedAt, out[j].LastCheckedAt
		switch {
		case a == nil && b == nil:
			return out[i].ID < out[j].ID
		case a == nil:
			return true
		case b == nil:
			return false
		case a.Equal(*b):
			return out[i].ID < out[j].ID
		default:
			return a.Before(*b)
		}
	})
	return truncate(out, normalizeLimit(limit, 50)), nil
}

func (s *Store) ListHotProducts(ctx context.Context, since time.Time, minObservations int, limit int) ([]repository.HotProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := map[string]int64{}
	for _, o := range s.offers {
		if o.ObservedAt.Before(since) {
			continue
		}
		if p, ok := s.products[o.ASIN]; !ok || !p.IsActive {
			continue
		}
		counts[o.ASIN]++
	}
	var out []repository.HotProduct
	for asin, n := range counts {
		if n >= int64(minObservations) {
			out = append(out, repository.HotProduct{ASIN: asin, Observations: n})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Observations == out[j].Observations {
			return out[i].ASIN < out[j].ASIN
		}
		return out[i].Observations > out[j].Observations
	})
	return truncate(out, normalizeLimit(limit, 20)), nil
}

func (s *Store) MarkProductCheckedTx(ctx context.Context, tx *gorm.DB, asin string, at time.Time) error {
	if err := s.check("MarkProductChecked", asin); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[asin]
	if !ok {
		return nil
	}
	prev := p.LastCheckedAt
	s.undo(func() {
		if cur, ok := s.products[asin]; ok {
			cur.LastCheckedAt = prev
			s.products[asin] = cur
		}
	})
	t := at
	p.LastCheckedAt = &t
	s.products[asin] = p
	return nil
}

// --- offer ledger -----------------------------------------------------------

func (s *Store) InsertOffersTx(ctx context.Context, tx *gorm.DB, items []models.Offer) error {
	if len(items) == 0 {
		return nil
	}
	if err := s.check("InsertOffers", items); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make(map[uint64]struct{}, len(items))
	for i := range items {
		items[i].ID = s.nextID()
		ids[items[i].ID] = struct{}{}
		s.offers = append(s.offers, items[i])
	}
	s.undo(func() {
		kept := s.offers[:0]
		for _, o := range s.offers {
			if _, ok := ids[o.ID]; !ok {
				kept = append(kept, o)
			}
		}
		s.offers = kept
	})
	return nil
}

func (s *Store) GetLatestWinningOfferTx(ctx context.Context, tx *gorm.DB, asin string, before time.Time) (*models.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *models.Offer
	for i := range s.offers {
		o := s.offers[i]
		if o.ASIN != asin || !o.IsBuyBoxWinner || !o.ObservedAt.Before(before) {
			continue
		}
		if best == nil || o.ObservedAt.After(best.ObservedAt) || (o.ObservedAt.Equal(best.ObservedAt) && o.ID > best.ID) {
			cp := o
			best = &cp
		}
	}
	return best, nil
}

func (s *Store) ListOffers(ctx context.Context, params repository.ListOffersParams) ([]models.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Offer
	for _, o := range s.offers {
		if params.ASIN != nil && *params.ASIN != "" && o.ASIN != *params.ASIN {
			continue
		}
		if params.SellerID != nil && *params.SellerID != "" && o.SellerID != *params.SellerID {
			continue
		}
		if params.Since != nil && o.ObservedAt.Before(*params.Since) {
			continue
		}
		out = append(out, o)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ObservedAt.Equal(out[j].ObservedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].ObservedAt.After(out[j].ObservedAt)
	})
	return page(out, params.Offset, normalizeLimit(params.Limit, 200)), nil
}

func (s *Store) ListNewCompetitors(ctx context.Context, since time.Time, minAppearances int) ([]repository.NewCompetitorRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	type key struct{ asin, seller string }
	seenBefore := map[key]bool{}
	rows := map[key]*repository.NewCompetitorRow{}
	sums := map[key]decimal.Decimal{}
	for _, o := range s.offers {
		k := key{o.ASIN, o.SellerID}
		if o.ObservedAt.Before(since) {
			seenBefore[k] = true
			continue
		}
		row, ok := rows[k]
		if !ok {
			row = &repository.NewCompetitorRow{ASIN: o.ASIN, SellerID: o.SellerID, FirstSeen: o.ObservedAt}
			rows[k] = row
		}
		row.Appearances++
		if o.SellerName > row.SellerName {
			row.SellerName = o.SellerName
		}
		if o.ObservedAt.Before(row.FirstSeen) {
			row.FirstSeen = o.ObservedAt
		}
		sums[k] = sums[k].Add(o.Price)
	}
	var out []repository.NewCompetitorRow
	for k, row := range rows {
		if seenBefore[k] || row.Appearances < int64(minAppearances) {
			continue
		}
		row.AvgPrice = sums[k].Div(decimal.NewFromInt(row.Appearances))
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FirstSeen.Before(out[j].FirstSeen) })
	return out, nil
}

func (s *Store) DeleteOffersBefore(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.offers[:0]
	var n int64
	for _, o := range s.offers {
		if o.ObservedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, o)
	}
	s.offers = kept
	return n, nil
}

// --- ownership intervals ----------------------------------------------------

func (s *Store) GetOpenIntervalTx(ctx context.Context, tx *gorm.DB, asin string) (*models.BuyBoxInterval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.intervals) - 1; i >= 0; i-- {
		if s.intervals[i].ASIN == asin && s.intervals[i].EndedAt == nil {
			cp := s.intervals[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) InsertIntervalTx(ctx context.Context, tx *gorm.DB, item *models.BuyBoxInterval) error {
	if item == nil {
		return nil
	}
	if err := s.check("InsertInterval", item); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	item.ID = s.nextID()
	item.CreatedAt = now
	item.UpdatedAt = now
	s.intervals = append(s.intervals, *item)
	id := item.ID
	s.undo(func() {
		if i := s.intervalIndex(id); i >= 0 {
			s.intervals = append(s.intervals[:i], s.intervals[i+1:]...)
		}
	})
	return nil
}

func (s *Store) CloseIntervalTx(ctx context.Context, tx *gorm.DB, id uint64, endedAt time.Time, durationMinutes int, averagePrice decimal.Decimal) error {
	if err := s.check("CloseInterval", id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.intervals {
		if s.intervals[i].ID != id || s.intervals[i].EndedAt != nil {
			continue
		}
		s.undoInterval(s.intervals[i])
		end := endedAt
		d := durationMinutes
		s.intervals[i].EndedAt = &end
		s.intervals[i].DurationMinutes = &d
		s.intervals[i].AveragePrice = decimal.NewNullDecimal(averagePrice)
		s.intervals[i].UpdatedAt = time.Now().UTC()
		return nil
	}
	return gorm.ErrRecordNotFound
}

func (s *Store) TouchIntervalTx(ctx context.Context, tx *gorm.DB, id uint64, lastPrice decimal.Decimal, lastSeenAt time.Time) error {
	if err := s.check("TouchInterval", id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.intervals {
		if s.intervals[i].ID == id {
			s.undoInterval(s.intervals[i])
			s.intervals[i].LastPrice = lastPrice
			s.intervals[i].LastSeenAt = lastSeenAt
			s.intervals[i].UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return nil
}

func (s *Store) undoInterval(prev models.BuyBoxInterval) {
	s.undo(func() {
		if i := s.intervalIndex(prev.ID); i >= 0 {
			s.intervals[i] = prev
		}
	})
}

func (s *Store) ListOpenIntervals(ctx context.Context, limit int) ([]models.BuyBoxInterval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.BuyBoxInterval
	for _, it := range s.intervals {
		if it.EndedAt == nil {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeenAt.After(out[j].LastSeenAt) })
	return truncate(out, normalizeLimit(limit, 200)), nil
}

func (s *Store) ListIntervals(ctx context.Context, params repository.ListIntervalsParams) ([]models.BuyBoxInterval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.BuyBoxInterval
	for _, it := range s.intervals {
		if params.ASIN != nil && *params.ASIN != "" && it.ASIN != *params.ASIN {
			continue
		}
		if params.SellerID != nil && *params.SellerID != "" && it.SellerID != *params.SellerID {
			continue
		}
		if params.Since != nil && it.StartedAt.Before(*params.Since) {
			continue
		}
		out = append(out, it)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return page(out, params.Offset, normalizeLimit(params.Limit, 100)), nil
}

func (s *Store) DeleteClosedIntervalsBefore(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.intervals[:0]
	var n int64
	for _, it := range s.intervals {
		if it.EndedAt != nil && it.StartedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, it)
	}
	s.intervals = kept
	return n, nil
}

// --- insights ---------------------------------------------------------------

func (s *Store) InsertInsightTx(ctx context.Context, tx *gorm.DB, item *models.Insight) error {
	return s.insertInsight(item, true)
}

func (s *Store) InsertInsight(ctx context.Context, item *models.Insight) error {
	return s.insertInsight(item, false)
}

func (s *Store) insertInsight(item *models.Insight, inTx bool) error {
	if item == nil {
		return nil
	}
	if err := s.check("InsertInsight", item); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	item.ID = s.nextID()
	if item.Status == "" {
		item.Status = models.InsightStatusPending
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	item.UpdatedAt = item.CreatedAt
	s.insights = append(s.insights, *item)
	if inTx {
		id := item.ID
		s.undo(func() {
			for i := range s.insights {
				if s.insights[i].ID == id {
					s.insights = append(s.insights[:i], s.insights[i+1:]...)
					return
				}
			}
		})
	}
	return nil
}

func (s *Store) GetInsight(ctx context.Context, id uint64) (*models.Insight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, it := range s.insights {
		if it.ID == id {
			cp := it
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) HasInsightSince(ctx context.Context, asin, insightType, competitorSellerID string, since time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, it := range s.insights {
		if it.ASIN != asin || it.InsightType != insightType || it.CreatedAt.Before(since) {
			continue
		}
		if competitorSellerID != "" && it.CompetitorSellerID != competitorSellerID {
			continue
		}
		return true, nil
	}
	return false, nil
}

func (s *Store) ListInsights(ctx context.Context, params repository.ListInsightsParams) ([]models.Insight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Insight
	for _, it := range s.insights {
		if params.ASIN != nil && *params.ASIN != "" && it.ASIN != *params.ASIN {
			continue
		}
		if params.Type != nil && *params.Type != "" && it.InsightType != *params.Type {
			continue
		}
		if params.Status != nil && *params.Status != "" && it.Status != *params.Status {
			continue
		}
		if params.Priority != nil && *params.Priority != "" && it.Priority != *params.Priority {
			continue
		}
		if params.Since != nil && it.CreatedAt.Before(*params.Since) {
			continue
		}
		out = append(out, it)
	}
	asc := params.Asc != nil && *params.Asc
	sort.SliceStable(out, func(i, j int) bool {
		if asc {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, params.Offset, normalizeLimit(params.Limit, 100)), nil
}

func (s *Store) UpdateInsightStatus(ctx context.Context, id uint64, status string) error {
	if err := s.check("UpdateInsightStatus", id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.insights {
		if s.insights[i].ID == id {
			s.insights[i].Status = status
			s.insights[i].UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (s *Store) DeleteDismissedInsightsBefore(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.insights[:0]
	var n int64
	for _, it := range s.insights {
		if it.Status == models.InsightStatusDismissed && it.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, it)
	}
	s.insights = kept
	return n, nil
}

// --- seller cache -----------------------------------------------------------

func (s *Store) GetSellerCache(ctx context.Context, sellerID string) (*models.SellerCache, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.sellers[sellerID]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *Store) UpsertSellerCache(ctx context.Context, item *models.SellerCache) error {
	if item == nil || strings.TrimSpace(item.SellerID) == "" {
		return nil
	}
	if err := s.check("UpsertSellerCache", item); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := *item
	if prev, ok := s.sellers[item.SellerID]; ok {
		if next.FeedbackRating == nil {
			next.FeedbackRating = prev.FeedbackRating
		}
		if next.FeedbackCount == nil {
			next.FeedbackCount = prev.FeedbackCount
		}
	}
	s.sellers[item.SellerID] = next
	return nil
}

func (s *Store) DeleteSellerCacheBefore(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, it := range s.sellers {
		if it.LastUpdated.Before(before) {
			delete(s.sellers, id)
			n++
		}
	}
	return n, nil
}

// --- sync logs and settings -------------------------------------------------

func (s *Store) InsertSyncLog(ctx context.Context, item *models.SyncLog) error {
	if item == nil {
		return nil
	}
	if err := s.check("InsertSyncLog", item); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	item.ID = s.nextID()
	s.syncLogs = append(s.syncLogs, *item)
	return nil
}

func (s *Store) ListSyncLogs(ctx context.Context, params repository.ListSyncLogsParams) ([]models.SyncLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.SyncLog
	for _, it := range s.syncLogs {
		if params.SyncType != nil && *params.SyncType != "" && it.SyncType != *params.SyncType {
			continue
		}
		out = append(out, it)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return truncate(out, normalizeLimit(params.Limit, 50)), nil
}

func (s *Store) CollectionStats(ctx context.Context, since time.Time) (repository.CollectionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := repository.CollectionStats{Since: since}
	products := map[string]struct{}{}
	for _, o := range s.offers {
		if o.ObservedAt.Before(since) {
			continue
		}
		out.Offers++
		products[o.ASIN] = struct{}{}
	}
	out.Products = int64(len(products))
	for _, it := range s.intervals {
		if it.EndedAt != nil && !it.EndedAt.Before(since) {
			out.Transitions++
		}
	}
	for _, it := range s.insights {
		if it.Status == models.InsightStatusPending {
			out.PendingInsights++
		}
	}
	out.CachedSellers = int64(len(s.sellers))
	for _, p := range s.products {
		if p.IsActive {
			out.ActiveProducts++
		}
	}
	for _, p := range s.pairs {
		if p.IsActive {
			out.ActiveManualPair++
		}
	}
	return out, nil
}

func (s *Store) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if item == nil || strings.TrimSpace(item.Key) == "" {
		return nil
	}
	if err := s.check("UpsertSystemSetting", item); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	item.Key = strings.TrimSpace(item.Key)
	if prev, ok := s.settings[item.Key]; ok {
		item.ID = prev.ID
		item.CreatedAt = prev.CreatedAt
	} else {
		item.ID = s.nextID()
	}
	s.settings[item.Key] = *item
	return nil
}

func (s *Store) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.settings[strings.TrimSpace(key)]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *Store) ListSystemSettings(ctx context.Context) ([]models.SystemSetting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SystemSetting, 0, len(s.settings))
	for _, it := range s.settings {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// --- helpers ----------------------------------------------------------------

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	return truncate(items[offset:], limit)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

var _ repository.Repository = (*Store)(nil)
