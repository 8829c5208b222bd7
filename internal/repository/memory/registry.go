package memrepo

import (
	"context"
	"sort"
	"strings"
	"time"

	"buybox/internal/models"
)

func (s *Store) UpsertBrandOwner(ctx context.Context, item *models.BrandOwner) error {
	if item == nil || strings.TrimSpace(item.SellerID) == "" {
		return nil
	}
	if err := s.check("UpsertBrandOwner", item); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	item.SellerID = strings.TrimSpace(item.SellerID)
	now := time.Now().UTC()
	for i := range s.brandOwners {
		if s.brandOwners[i].SellerID == item.SellerID {
			s.brandOwners[i].BrandName = item.BrandName
			s.brandOwners[i].IsExclusive = item.IsExclusive
			s.brandOwners[i].UpdatedAt = now
			*item = s.brandOwners[i]
			return nil
		}
	}
	item.ID = s.nextID()
	item.CreatedAt = now
	item.UpdatedAt = now
	s.brandOwners = append(s.brandOwners, *item)
	return nil
}

func (s *Store) GetBrandOwnerBySellerID(ctx context.Context, sellerID string) (*models.BrandOwner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sellerID = strings.TrimSpace(sellerID)
	for _, it := range s.brandOwners {
		if it.SellerID == sellerID {
			cp := it
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) ListBrandOwners(ctx context.Context) ([]models.BrandOwner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.BrandOwner(nil), s.brandOwners...), nil
}

func (s *Store) UpsertBrandOwnerProduct(ctx context.Context, item *models.BrandOwnerProduct) error {
	if item == nil {
		return nil
	}
	if err := s.check("UpsertBrandOwnerProduct", item); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for i := range s.ownerItems {
		it := &s.ownerItems[i]
		if it.BrandOwnerID == item.BrandOwnerID && it.ASIN == item.ASIN {
			it.ProductName = item.ProductName
			it.Category = item.Category
			it.UpdatedAt = now
			*item = *it
			return nil
		}
	}
	item.ID = s.nextID()
	item.CreatedAt = now
	item.UpdatedAt = now
	s.ownerItems = append(s.ownerItems, *item)
	return nil
}

func (s *Store) ListBrandOwnerProducts(ctx context.Context, brandOwnerID uint64) ([]models.BrandOwnerProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.BrandOwnerProduct
	for _, it := range s.ownerItems {
		if it.BrandOwnerID == brandOwnerID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ASIN < out[j].ASIN })
	return out, nil
}

func (s *Store) UpsertManualCompetitor(ctx context.Context, item *models.ManualCompetitor) error {
	if item == nil {
		return nil
	}
	if err := s.check("UpsertManualCompetitor", item); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for i := range s.pairs {
		p := &s.pairs[i]
		if p.BrandOwnerID == item.BrandOwnerID && p.OurASIN == item.OurASIN && p.CompetitorASIN == item.CompetitorASIN {
			p.CompetitorBrand = item.CompetitorBrand
			p.CompetitionLevel = item.CompetitionLevel
			p.Notes = item.Notes
			p.IsActive = item.IsActive
			p.UpdatedAt = now
			*item = *p
			return nil
		}
	}
	item.ID = s.nextID()
	item.CreatedAt = now
	item.UpdatedAt = now
	s.pairs = append(s.pairs, *item)
	return nil
}

func (s *Store) GetManualCompetitor(ctx context.Context, id uint64) (*models.ManualCompetitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.pairs {
		if p.ID == id {
			cp := p
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) ListManualCompetitors(ctx context.Context, brandOwnerID uint64, activeOnly bool) ([]models.ManualCompetitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ManualCompetitor
	for _, p := range s.pairs {
		if p.BrandOwnerID != brandOwnerID || (activeOnly && !p.IsActive) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) SetManualCompetitorActive(ctx context.Context, id uint64, active bool) (int64, error) {
	if err := s.check("SetManualCompetitorActive", id); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.pairs {
		if s.pairs[i].ID == id {
			s.pairs[i].IsActive = active
			s.pairs[i].UpdatedAt = time.Now().UTC()
			return 1, nil
		}
	}
	return 0, nil
}

func (s *Store) InsertCompetitorMonitoring(ctx context.Context, item *models.CompetitorMonitoring) error {
	if item == nil {
		return nil
	}
	if err := s.check("InsertCompetitorMonitoring", item); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	item.ID = s.nextID()
	s.samples = append(s.samples, *item)
	return nil
}

func (s *Store) ListCompetitorMonitoring(ctx context.Context, pairID uint64, limit int) ([]models.CompetitorMonitoring, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.CompetitorMonitoring
	for _, it := range s.samples {
		if it.ManualCompetitorID == pairID {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SampledAt.After(out[j].SampledAt) })
	return truncate(out, normalizeLimit(limit, 100)), nil
}

func (s *Store) GetLatestCompetitorMonitoring(ctx context.Context, pairID uint64) (*models.CompetitorMonitoring, error) {
	items, err := s.ListCompetitorMonitoring(ctx, pairID, 1)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return &items[0], nil
}
