package validation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"htngsync/internal/htngerr"
	"htngsync/internal/htngxml"
	"htngsync/internal/repository"
)

// DefaultRuleCap bounds how many business-rule violations are collected
// before the pass stops.
const DefaultRuleCap = 50

// DefaultLookupCacheTTL is how long a repository existence lookup is cached.
const DefaultLookupCacheTTL = 900 * time.Second

// lookupCacheEntry memoizes one repository existence check.
type lookupCacheEntry struct {
	value    bool
	cachedAt time.Time
}

// RuleSet runs the repository-backed business-rule pass: hotel code
// exists, room type exists for property, rate plan exists for property,
// layered on top of the pure per-kind rule tables already enforced by
// internal/htngxml's builders.
type RuleSet struct {
	repo    repository.PMS
	ttl     time.Duration
	ruleCap int

	mu            sync.Mutex
	roomTypeCache map[string]lookupCacheEntry
	ratePlanCache map[string]lookupCacheEntry
	propertyCache map[int64]lookupCacheEntry
}

// NewRuleSet builds a business-rule pass backed by repo. ruleCap <= 0 uses
// DefaultRuleCap; ttl <= 0 uses DefaultLookupCacheTTL.
func NewRuleSet(repo repository.PMS, ruleCap int, ttl time.Duration) *RuleSet {
	if ruleCap <= 0 {
		ruleCap = DefaultRuleCap
	}
	if ttl <= 0 {
		ttl = DefaultLookupCacheTTL
	}
	return &RuleSet{
		repo:          repo,
		ttl:           ttl,
		ruleCap:       ruleCap,
		roomTypeCache: map[string]lookupCacheEntry{},
		ratePlanCache: map[string]lookupCacheEntry{},
		propertyCache: map[int64]lookupCacheEntry{},
	}
}

func roomTypeKey(propertyID int64, code string) string {
	return fmt.Sprintf("%d/%s", propertyID, code)
}

func (r *RuleSet) propertyExists(ctx context.Context, propertyID int64) (bool, error) {
	r.mu.Lock()
	entry, ok := r.propertyCache[propertyID]
	r.mu.Unlock()
	if ok && time.Since(entry.cachedAt) < r.ttl {
		return entry.value, nil
	}
	exists, err := r.repo.PropertyExists(ctx, propertyID)
	if err != nil {
		return false, err
	}
	r.mu.Lock()
	r.propertyCache[propertyID] = lookupCacheEntry{value: exists, cachedAt: time.Now()}
	r.mu.Unlock()
	return exists, nil
}

func (r *RuleSet) roomTypeExists(ctx context.Context, propertyID int64, code string) (bool, error) {
	if code == "" {
		return true, nil // property-level records carry no room type
	}
	key := roomTypeKey(propertyID, code)
	r.mu.Lock()
	entry, ok := r.roomTypeCache[key]
	r.mu.Unlock()
	if ok && time.Since(entry.cachedAt) < r.ttl {
		return entry.value, nil
	}
	exists, err := r.repo.RoomTypeExistsForProperty(ctx, propertyID, code)
	if err != nil {
		return false, err
	}
	r.mu.Lock()
	r.roomTypeCache[key] = lookupCacheEntry{value: exists, cachedAt: time.Now()}
	r.mu.Unlock()
	return exists, nil
}

func (r *RuleSet) ratePlanExists(ctx context.Context, propertyID int64, code string) (bool, error) {
	key := roomTypeKey(propertyID, code)
	r.mu.Lock()
	entry, ok := r.ratePlanCache[key]
	r.mu.Unlock()
	if ok && time.Since(entry.cachedAt) < r.ttl {
		return entry.value, nil
	}
	exists, err := r.repo.RatePlanExistsForProperty(ctx, propertyID, code)
	if err != nil {
		return false, err
	}
	r.mu.Lock()
	r.ratePlanCache[key] = lookupCacheEntry{value: exists, cachedAt: time.Now()}
	r.mu.Unlock()
	return exists, nil
}

// violationCollector bounds how many messages are gathered before the pass
// gives up collecting further violations.
type violationCollector struct {
	cap      int
	messages []string
}

func (v *violationCollector) add(format string, args ...interface{}) {
	if len(v.messages) >= v.cap {
		return
	}
	v.messages = append(v.messages, fmt.Sprintf(format, args...))
}

func (v *violationCollector) err(code string) error {
	if len(v.messages) == 0 {
		return nil
	}
	joined := v.messages[0]
	for _, m := range v.messages[1:] {
		joined += "\n" + m
	}
	return htngerr.New(htngerr.KindValidation, code, joined, nil)
}

// ValidateInventory runs the business-rule pass for an inventory DTO:
// property and room-type existence against the repository.
func (r *RuleSet) ValidateInventory(ctx context.Context, propertyID int64, dto htngxml.InventoryDTO) error {
	v := &violationCollector{cap: r.ruleCap}
	if ok, err := r.propertyExists(ctx, propertyID); err != nil {
		return err
	} else if !ok {
		v.add("property %d does not exist", propertyID)
	}
	for i, rec := range dto.Records {
		ok, err := r.roomTypeExists(ctx, propertyID, rec.RoomTypeCode)
		if err != nil {
			return err
		}
		if !ok {
			v.add("inventory record %d: room type %q does not exist for property %d", i, rec.RoomTypeCode, propertyID)
		}
	}
	return v.err("BUS_INVENTORY")
}

// ValidateRates runs the business-rule pass for a rates DTO: property, room
// type (when scoped), and rate plan existence.
func (r *RuleSet) ValidateRates(ctx context.Context, propertyID int64, dto htngxml.RatesDTO) error {
	v := &violationCollector{cap: r.ruleCap}
	if ok, err := r.propertyExists(ctx, propertyID); err != nil {
		return err
	} else if !ok {
		v.add("property %d does not exist", propertyID)
	}
	for i, plan := range dto.Plans {
		if plan.RoomTypeCode != "" {
			ok, err := r.roomTypeExists(ctx, propertyID, plan.RoomTypeCode)
			if err != nil {
				return err
			}
			if !ok {
				v.add("rate plan %d: room type %q does not exist for property %d", i, plan.RoomTypeCode, propertyID)
			}
		}
		ok, err := r.ratePlanExists(ctx, propertyID, plan.Code)
		if err != nil {
			return err
		}
		if !ok {
			v.add("rate plan %d: rate plan %q does not exist for property %d", i, plan.Code, propertyID)
		}
	}
	return v.err("BUS_RATES")
}

// ValidateRestrictions runs the business-rule pass for a restrictions DTO.
func (r *RuleSet) ValidateRestrictions(ctx context.Context, propertyID int64, dto htngxml.RestrictionsDTO) error {
	v := &violationCollector{cap: r.ruleCap}
	if ok, err := r.propertyExists(ctx, propertyID); err != nil {
		return err
	} else if !ok {
		v.add("property %d does not exist", propertyID)
	}
	for i, rec := range dto.Records {
		if rec.RoomTypeCode != "" {
			ok, err := r.roomTypeExists(ctx, propertyID, rec.RoomTypeCode)
			if err != nil {
				return err
			}
			if !ok {
				v.add("restriction record %d: room type %q does not exist for property %d", i, rec.RoomTypeCode, propertyID)
			}
		}
		if rec.RatePlanCode != "" {
			ok, err := r.ratePlanExists(ctx, propertyID, rec.RatePlanCode)
			if err != nil {
				return err
			}
			if !ok {
				v.add("restriction record %d: rate plan %q does not exist for property %d", i, rec.RatePlanCode, propertyID)
			}
		}
	}
	return v.err("BUS_RESTRICTIONS")
}

// ValidateReservation runs the business-rule pass for an inbound or outbound
// reservation DTO: property and room-type existence for every room stay.
func (r *RuleSet) ValidateReservation(ctx context.Context, propertyID int64, dto htngxml.ReservationDTO) error {
	v := &violationCollector{cap: r.ruleCap}
	if ok, err := r.propertyExists(ctx, propertyID); err != nil {
		return err
	} else if !ok {
		v.add("property %d does not exist", propertyID)
	}
	for i, rs := range dto.RoomStays {
		ok, err := r.roomTypeExists(ctx, propertyID, rs.RoomTypeCode)
		if err != nil {
			return err
		}
		if !ok {
			v.add("room stay %d: room type %q does not exist for property %d", i, rs.RoomTypeCode, propertyID)
		}
	}
	return v.err("BUS_RESERVATION")
}
