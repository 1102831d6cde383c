package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"phones/internal/phone/models"
	"phones/pkg/platform/sentinel"
)

// InMemory is the map-backed store used by unit tests and local runs. It
// mirrors the Postgres store's behavior, including the foreign-key check from
// phone rows into the type registry.
type InMemory struct {
	mu     sync.RWMutex
	phones map[uuid.UUID]models.Phone
	order  []uuid.UUID
	types  map[string]bool
}

// NewInMemory builds an empty store whose registry holds only the void type.
func NewInMemory() *InMemory {
	return &InMemory{
		phones: make(map[uuid.UUID]models.Phone),
		types:  map[string]bool{models.VoidEntityType: true},
	}
}

func (s *InMemory) List(_ context.Context, f models.ListFilter) (*models.ListResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]models.Phone, 0, len(s.order))
	for _, id := range s.order {
		p := s.phones[id]
		if matchesWhere(p, f.Where) && matchesSearch(p, f.Search) {
			matched = append(matched, p)
		}
	}
	total := len(matched)

	sortPhones(matched, f.OrderBy)

	limit := f.Limit
	if limit == 0 {
		limit = 1
	}
	start := f.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	nodes := make([]models.Phone, 0, end-start)
	for _, p := range matched[start:end] {
		nodes = append(nodes, clonePhone(p))
	}

	return &models.ListResult{
		Nodes:      nodes,
		TotalCount: total,
		Limit:      limit,
		Offset:     f.Offset,
		OrderBy:    f.OrderBy,
		Where:      f.Where,
	}, nil
}

func (s *InMemory) Upsert(_ context.Context, phones []models.Phone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertLocked(phones)
}

func (s *InMemory) UpsertAndDelete(_ context.Context, phones []models.Phone, deleteIDs []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.upsertLocked(phones); err != nil {
		return err
	}
	s.deleteLocked(deleteIDs)
	return nil
}

func (s *InMemory) Update(_ context.Context, phone models.Phone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.phones[phone.ID]
	if !ok {
		return fmt.Errorf("update phone %s: %w", phone.ID, sentinel.ErrNotFound)
	}
	if !s.types[phone.Type] {
		return fmt.Errorf("update phone %s: type %q: %w", phone.ID, phone.Type, sentinel.ErrInvalidReference)
	}
	phone.CreatedAt = existing.CreatedAt
	s.phones[phone.ID] = clonePhone(phone)
	return nil
}

func (s *InMemory) Delete(_ context.Context, ids []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLocked(ids)
	return nil
}

func (s *InMemory) DeleteByEntities(_ context.Context, entityIDs []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uuid.UUID
	for _, id := range s.order {
		for _, entity := range entityIDs {
			if s.phones[id].Entity == entity {
				ids = append(ids, id)
				break
			}
		}
	}
	s.deleteLocked(ids)
	return nil
}

func (s *InMemory) RebaseTypes(_ context.Context, types []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	desired := map[string]bool{models.VoidEntityType: true}
	for _, t := range types {
		desired[t] = true
	}
	for t := range desired {
		s.types[t] = true
	}
	for t := range s.types {
		if desired[t] {
			continue
		}
		for _, p := range s.phones {
			if p.Type == t {
				return fmt.Errorf("rebase types: %q still referenced: %w", t, sentinel.ErrConflict)
			}
		}
		delete(s.types, t)
	}
	return nil
}

func (s *InMemory) ListTypes(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.types))
	for t := range s.types {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

func (s *InMemory) upsertLocked(phones []models.Phone) error {
	for _, p := range phones {
		if !s.types[p.Type] {
			return fmt.Errorf("upsert phone %s: type %q: %w", p.ID, p.Type, sentinel.ErrInvalidReference)
		}
	}
	for _, p := range phones {
		if existing, ok := s.phones[p.ID]; ok {
			p.CreatedAt = existing.CreatedAt
		} else {
			s.order = append(s.order, p.ID)
		}
		s.phones[p.ID] = clonePhone(p)
	}
	return nil
}

func (s *InMemory) deleteLocked(ids []uuid.UUID) {
	for _, id := range ids {
		if _, ok := s.phones[id]; !ok {
			continue
		}
		delete(s.phones, id)
		for i, o := range s.order {
			if o == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
}

func clonePhone(p models.Phone) models.Phone {
	out := p
	if p.Description != nil {
		d := *p.Description
		out.Description = &d
	}
	out.MetaData = make([]json.RawMessage, len(p.MetaData))
	for i, m := range p.MetaData {
		out.MetaData[i] = append(json.RawMessage(nil), m...)
	}
	return out
}

func matchesWhere(p models.Phone, where []models.WhereClause) bool {
	for _, c := range where {
		v := fieldValue(p, c.Field)
		switch c.Op {
		case models.OpEq:
			if v != c.Values[0] {
				return false
			}
		case models.OpNotEq:
			if v == c.Values[0] {
				return false
			}
		case models.OpIn:
			if !containsString(c.Values, v) {
				return false
			}
		case models.OpNotIn:
			if containsString(c.Values, v) {
				return false
			}
		case models.OpGt:
			if !(v > c.Values[0]) {
				return false
			}
		case models.OpGte:
			if !(v >= c.Values[0]) {
				return false
			}
		case models.OpLt:
			if !(v < c.Values[0]) {
				return false
			}
		case models.OpLte:
			if !(v <= c.Values[0]) {
				return false
			}
		case models.OpLike:
			pattern := strings.ToLower(strings.Trim(c.Values[0], "%"))
			if !strings.Contains(strings.ToLower(v), pattern) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func matchesSearch(p models.Phone, search string) bool {
	if search == "" {
		return true
	}
	needle := strings.ToLower(search)
	if strings.Contains(strings.ToLower(p.Number), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(p.Country), needle) {
		return true
	}
	return p.Description != nil && strings.Contains(strings.ToLower(*p.Description), needle)
}

// fieldValue renders a filterable field in the string form clauses compare
// against. Timestamps use RFC3339Nano in UTC so lexicographic order matches
// chronological order.
func fieldValue(p models.Phone, field string) string {
	switch field {
	case "id":
		return p.ID.String()
	case "entity":
		return p.Entity.String()
	case "type":
		return p.Type
	case "country":
		return p.Country
	case "number":
		return p.Number
	case "primary":
		return boolString(p.Primary)
	case "confirmed":
		return boolString(p.Confirmed)
	case "createdAt":
		return p.CreatedAt.UTC().Format(time.RFC3339Nano)
	case "updatedAt":
		return p.UpdatedAt.UTC().Format(time.RFC3339Nano)
	default:
		return ""
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func containsString(vals []string, v string) bool {
	for _, candidate := range vals {
		if candidate == v {
			return true
		}
	}
	return false
}

func sortPhones(phones []models.Phone, orderBy []models.OrderBy) {
	if len(orderBy) == 0 {
		return
	}
	sort.SliceStable(phones, func(i, j int) bool {
		for _, o := range orderBy {
			a, b := fieldValue(phones[i], o.Field), fieldValue(phones[j], o.Field)
			if a == b {
				continue
			}
			if o.Direction == models.OrderDesc {
				return a > b
			}
			return a < b
		}
		return false
	})
}
