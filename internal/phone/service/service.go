package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"phones/internal/phone/events"
	"phones/internal/phone/metrics"
	"phones/internal/phone/models"
	"phones/internal/phone/normalize"
	dErrors "phones/pkg/domain-errors"
	"phones/pkg/platform/sentinel"
	"phones/pkg/requestcontext"
)

var tracer = otel.Tracer("phones/service")

// Store is the persistence contract the service reconciles against.
type Store interface {
	List(ctx context.Context, f models.ListFilter) (*models.ListResult, error)
	Upsert(ctx context.Context, phones []models.Phone) error
	UpsertAndDelete(ctx context.Context, phones []models.Phone, deleteIDs []uuid.UUID) error
	Update(ctx context.Context, phone models.Phone) error
	Delete(ctx context.Context, ids []uuid.UUID) error
	DeleteByEntities(ctx context.Context, entityIDs []uuid.UUID) error
	RebaseTypes(ctx context.Context, types []string) error
	ListTypes(ctx context.Context) ([]string, error)
}

// Service owns every read and write of phone records. Reads shape rows into
// views through the normalizer; writes merge partial input onto a baseline
// and apply the minimal diff against the store.
type Service struct {
	store          Store
	logger         *slog.Logger
	metrics        *metrics.Metrics
	events         *events.Publisher
	defaultCountry string
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithEvents(p *events.Publisher) Option {
	return func(s *Service) {
		s.events = p
	}
}

// WithDefaultCountry sets the fallback region merged into records that carry
// no country of their own.
func WithDefaultCountry(country string) Option {
	return func(s *Service) {
		s.defaultCountry = country
	}
}

// New constructs a Service.
func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:          store,
		logger:         slog.Default(),
		defaultCountry: "RU",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ViewList is a page of views plus the pre-pagination total, echoing the
// filter that produced it.
type ViewList struct {
	Nodes      []models.PhoneView   `json:"nodes"`
	TotalCount int                  `json:"totalCount"`
	Limit      int                  `json:"limit"`
	Offset     int                  `json:"offset"`
	OrderBy    []models.OrderBy     `json:"orderBy"`
	Where      []models.WhereClause `json:"where"`
}

// List returns one page of phone views. TotalCount reflects the filter before
// limit/offset; the store computes it in the same pass as the page itself.
func (s *Service) List(ctx context.Context, f models.ListFilter) (*ViewList, error) {
	start := time.Now()
	if err := f.Validate(); err != nil {
		return nil, err
	}
	result, err := s.store.List(ctx, f)
	if err != nil {
		return nil, s.storeFailure(ctx, err, "list phones")
	}
	s.metrics.ObserveList(time.Since(start).Seconds())
	return &ViewList{
		Nodes:      s.toViews(result.Nodes),
		TotalCount: result.TotalCount,
		Limit:      result.Limit,
		Offset:     result.Offset,
		OrderBy:    result.OrderBy,
		Where:      result.Where,
	}, nil
}

// GetByIDs fetches views for the given ids, unpaginated up to len(ids).
func (s *Service) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.PhoneView, error) {
	if len(ids) == 0 {
		return []models.PhoneView{}, nil
	}
	result, err := s.store.List(ctx, models.ListFilter{
		Where: []models.WhereClause{{Field: "id", Op: models.OpIn, Values: uuidStrings(ids)}},
		Limit: len(ids),
	})
	if err != nil {
		return nil, s.storeFailure(ctx, err, "get phones by ids")
	}
	return s.toViews(result.Nodes), nil
}

// GetPhone fetches a single view. Absence is reported through the boolean,
// not an error, so callers branch on presence.
func (s *Service) GetPhone(ctx context.Context, id uuid.UUID) (models.PhoneView, bool, error) {
	views, err := s.GetByIDs(ctx, []uuid.UUID{id})
	if err != nil {
		return models.PhoneView{}, false, err
	}
	if len(views) == 0 {
		return models.PhoneView{}, false, nil
	}
	return views[0], true, nil
}

// GetByEntities fetches every phone owned by the given entities, without a
// row cap, ordered oldest first.
func (s *Service) GetByEntities(ctx context.Context, entityIDs []uuid.UUID) ([]models.PhoneView, error) {
	if len(entityIDs) == 0 {
		return []models.PhoneView{}, nil
	}
	result, err := s.store.List(ctx, entityScan(entityIDs))
	if err != nil {
		return nil, s.storeFailure(ctx, err, "get phones by entities")
	}
	return s.toViews(result.Nodes), nil
}

// Create writes one record, synthesizing every omitted field from the default
// record. A caller-supplied id is honored; otherwise a fresh one is generated.
func (s *Service) Create(ctx context.Context, in models.PhoneInput) (uuid.UUID, error) {
	ctx, span := tracer.Start(ctx, "phones.create")
	defer span.End()

	now := requestcontext.Now(ctx)
	merged := models.Merge(models.DefaultPhone(now, s.defaultCountry), in)
	merged.CreatedAt = now
	merged.UpdatedAt = now
	if err := merged.Validate(); err != nil {
		return uuid.Nil, err
	}
	if err := s.store.Upsert(ctx, []models.Phone{merged}); err != nil {
		return uuid.Nil, s.writeFailure(ctx, err, "create phone", []uuid.UUID{merged.ID})
	}
	s.metrics.RecordWritten("create", 1)
	s.events.Emit(ctx, events.Event{Action: events.ActionCreated, ID: merged.ID, Entity: merged.Entity, At: now})
	return merged.ID, nil
}

// Update merges the provided fields onto the existing record and stamps only
// updatedAt. Referencing a missing id is an input error, not a silent create.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in models.PhoneInput) error {
	ctx, span := tracer.Start(ctx, "phones.update",
		trace.WithAttributes(attribute.String("phone.id", id.String())))
	defer span.End()

	existing, err := s.fetchRecords(ctx, []uuid.UUID{id})
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		return dErrors.Newf(dErrors.CodeInvalidInput, "phone %s does not exist", id)
	}

	merged := models.Merge(existing[0], in)
	merged.ID = id
	merged.CreatedAt = existing[0].CreatedAt
	merged.UpdatedAt = requestcontext.Now(ctx)
	if err := merged.Validate(); err != nil {
		return err
	}
	if err := s.store.Update(ctx, merged); err != nil {
		return s.writeFailure(ctx, err, "update phone", []uuid.UUID{id})
	}
	s.metrics.RecordWritten("update", 1)
	s.events.Emit(ctx, events.Event{Action: events.ActionUpdated, ID: id, Entity: merged.Entity, At: merged.UpdatedAt})
	return nil
}

// Delete removes records by id. Unknown ids are a no-op, so the operation is
// idempotent.
func (s *Service) Delete(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, span := tracer.Start(ctx, "phones.delete",
		trace.WithAttributes(attribute.Int("phone.count", len(ids))))
	defer span.End()

	if err := s.store.Delete(ctx, ids); err != nil {
		return s.writeFailure(ctx, err, "delete phones", ids)
	}
	s.metrics.RecordDeleted(len(ids))
	s.events.EmitAll(ctx, events.ActionDeleted, uuid.Nil, ids, requestcontext.Now(ctx))
	return nil
}

// DeleteByEntity removes every phone owned by one entity.
func (s *Service) DeleteByEntity(ctx context.Context, entityID uuid.UUID) error {
	return s.DeleteByEntities(ctx, []uuid.UUID{entityID})
}

// DeleteByEntities removes every phone owned by the given entities.
func (s *Service) DeleteByEntities(ctx context.Context, entityIDs []uuid.UUID) error {
	if len(entityIDs) == 0 {
		return nil
	}
	if err := s.store.DeleteByEntities(ctx, entityIDs); err != nil {
		return s.storeFailure(ctx, err, "delete phones by entity")
	}
	return nil
}

// CreateOrUpdatePhones is the batch upsert primitive. Every input is merged
// onto the default record, the whole batch shares one timestamp, and the
// store applies it as a single insert-or-update statement: there is no
// partial application. Returns the resulting ids in input order.
func (s *Service) CreateOrUpdatePhones(ctx context.Context, inputs []models.PhoneInput) ([]uuid.UUID, error) {
	ctx, span := tracer.Start(ctx, "phones.createOrUpdate",
		trace.WithAttributes(attribute.Int("phone.count", len(inputs))))
	defer span.End()

	now := requestcontext.Now(ctx)
	merged, err := s.mergeBatch(inputs, nil, now)
	if err != nil {
		return nil, err
	}
	if err := s.store.Upsert(ctx, merged); err != nil {
		return nil, s.writeFailure(ctx, err, "upsert phones", phoneIDs(merged))
	}
	s.metrics.RecordWritten("upsert", len(merged))
	for _, p := range merged {
		s.events.Emit(ctx, events.Event{Action: events.ActionUpdated, ID: p.ID, Entity: p.Entity, At: now})
	}
	return phoneIDs(merged), nil
}

// Replace reconciles an entity's phone set to exactly the desired list:
//
//  1. fetch the entity's current set (Old)
//  2. merge each spec onto its baseline - the matching Old record when the
//     spec references one, the default record otherwise - forcing ownership
//     to entityID
//  3. upsert the merged batch
//  4. diff Old against the kept ids
//  5. delete the difference
//
// Steps 3 and 5 run in one store transaction, so a failed delete never leaves
// old and new rows side by side. A spec referencing an id that exists under a
// different entity is rejected: ownership is not transferable through replace.
func (s *Service) Replace(ctx context.Context, entityID uuid.UUID, specs []models.PhoneInput) (*models.ReplaceResult, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "phones.replace", trace.WithAttributes(
		attribute.String("entity.id", entityID.String()),
		attribute.Int("phone.count", len(specs)),
	))
	defer span.End()

	if entityID == uuid.Nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "entity id is required")
	}

	oldResult, err := s.store.List(ctx, entityScan([]uuid.UUID{entityID}))
	if err != nil {
		return nil, s.storeFailure(ctx, err, "replace phones: fetch current set")
	}
	old := oldResult.Nodes

	baselines := make(map[uuid.UUID]models.Phone, len(old))
	for _, p := range old {
		baselines[p.ID] = p
	}

	now := requestcontext.Now(ctx)
	merged, err := s.mergeBatch(specs, baselines, now)
	if err != nil {
		return nil, err
	}

	// Ownership is forced; a spec cannot move a phone to another entity, and
	// adopting an id that lives under a different entity is rejected below.
	var foreign []uuid.UUID
	for i := range merged {
		merged[i].Entity = entityID
		if _, known := baselines[merged[i].ID]; !known && specs[i].ID != nil {
			foreign = append(foreign, merged[i].ID)
		}
	}
	if err := s.rejectForeignIDs(ctx, foreign); err != nil {
		return nil, err
	}

	persisted := phoneIDs(merged)
	kept := make(map[uuid.UUID]bool, len(persisted))
	for _, id := range persisted {
		kept[id] = true
	}
	var deleted []uuid.UUID
	for _, p := range old {
		if !kept[p.ID] {
			deleted = append(deleted, p.ID)
		}
	}

	if err := s.store.UpsertAndDelete(ctx, merged, deleted); err != nil {
		return nil, s.writeFailure(ctx, err, "replace phones", append(append([]uuid.UUID{}, persisted...), deleted...))
	}

	s.metrics.RecordWritten("replace", len(persisted))
	s.metrics.RecordDeleted(len(deleted))
	s.metrics.ObserveReplace(time.Since(start).Seconds())
	s.events.EmitAll(ctx, events.ActionDeleted, entityID, deleted, now)
	s.events.EmitAll(ctx, events.ActionReplaced, entityID, persisted, now)

	affected := make([]uuid.UUID, 0, len(deleted)+len(persisted))
	affected = append(affected, deleted...)
	affected = append(affected, persisted...)
	return &models.ReplaceResult{
		Deleted:   emptyIfNil(deleted),
		Persisted: persisted,
		Affected:  affected,
	}, nil
}

// RebaseTypes reconciles the owner-type registry to types plus the void
// sentinel. It is idempotent but not cheap; call it once per process
// lifetime, at startup, not per request.
func (s *Service) RebaseTypes(ctx context.Context, types []string) error {
	for _, t := range types {
		if err := models.ValidateTypeTag(t); err != nil {
			return err
		}
	}
	if err := s.store.RebaseTypes(ctx, types); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.Wrap(err, dErrors.CodeConflict, "a removed type is still referenced by phone records")
		}
		return s.storeFailure(ctx, err, "rebase types")
	}
	s.logger.InfoContext(ctx, "type registry rebased", "types", len(types)+1)
	return nil
}

// EntityTypes lists the registered owner type tags.
func (s *Service) EntityTypes(ctx context.Context) ([]string, error) {
	types, err := s.store.ListTypes(ctx)
	if err != nil {
		return nil, s.storeFailure(ctx, err, "list types")
	}
	return types, nil
}

// mergeBatch merges each input onto its baseline (or the default record),
// stamps the shared instant, validates, and rejects duplicate ids, which the
// set-based upsert cannot apply.
func (s *Service) mergeBatch(inputs []models.PhoneInput, baselines map[uuid.UUID]models.Phone, now time.Time) ([]models.Phone, error) {
	merged := make([]models.Phone, 0, len(inputs))
	seen := make(map[uuid.UUID]bool, len(inputs))
	for _, in := range inputs {
		base := models.DefaultPhone(now, s.defaultCountry)
		if in.ID != nil {
			if existing, ok := baselines[*in.ID]; ok {
				base = existing
			}
		}
		p := models.Merge(base, in)
		p.UpdatedAt = now
		if _, isBaseline := baselines[p.ID]; isBaseline {
			p.CreatedAt = base.CreatedAt
		} else {
			p.CreatedAt = now
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if seen[p.ID] {
			return nil, dErrors.Newf(dErrors.CodeInvalidInput, "duplicate phone id %s in batch", p.ID)
		}
		seen[p.ID] = true
		merged = append(merged, p)
	}
	return merged, nil
}

// rejectForeignIDs fails when any of the given ids already exists in the
// store - they were not in the target entity's set, so they belong elsewhere.
func (s *Service) rejectForeignIDs(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	result, err := s.store.List(ctx, models.ListFilter{
		Where: []models.WhereClause{{Field: "id", Op: models.OpIn, Values: uuidStrings(ids)}},
		Limit: len(ids),
	})
	if err != nil {
		return s.storeFailure(ctx, err, "replace phones: verify spec ids")
	}
	if len(result.Nodes) > 0 {
		return dErrors.Newf(dErrors.CodeInvalidInput,
			"phone %s belongs to another entity", result.Nodes[0].ID)
	}
	return nil
}

func (s *Service) fetchRecords(ctx context.Context, ids []uuid.UUID) ([]models.Phone, error) {
	result, err := s.store.List(ctx, models.ListFilter{
		Where: []models.WhereClause{{Field: "id", Op: models.OpIn, Values: uuidStrings(ids)}},
		Limit: len(ids),
	})
	if err != nil {
		return nil, s.storeFailure(ctx, err, "fetch phones")
	}
	return result.Nodes, nil
}

// toViews derives the view fields for each record. A stored pair that no
// longer parses yields zero-valued derived fields rather than a failed read;
// the calling code never sees the parse error.
func (s *Service) toViews(phones []models.Phone) []models.PhoneView {
	views := make([]models.PhoneView, 0, len(phones))
	for _, p := range phones {
		view := models.PhoneView{Phone: p}
		if n, err := normalize.Normalize(p.Number, p.Country); err == nil {
			view.CountryCallingCode = n.CountryCallingCode
			view.NumberType = n.NumberType
			view.Formatted = models.Formatted{
				National:      n.National,
				International: n.International,
				URI:           n.URI,
			}
		}
		views = append(views, view)
	}
	return views
}

// storeFailure wraps a read-path store error with operation context.
func (s *Service) storeFailure(ctx context.Context, err error, op string) error {
	s.logger.ErrorContext(ctx, op, "error", err, "request_id", requestcontext.RequestID(ctx))
	return dErrors.Wrap(err, dErrors.CodeInternal, op+" failed")
}

// writeFailure wraps a write-path store error with operation context and the
// ids involved. Constraint violations become caller errors; everything else
// stays opaque.
func (s *Service) writeFailure(ctx context.Context, err error, op string, ids []uuid.UUID) error {
	s.logger.ErrorContext(ctx, op,
		"error", err,
		"phone_ids", uuidStrings(ids),
		"request_id", requestcontext.RequestID(ctx),
	)
	switch {
	case errors.Is(err, sentinel.ErrInvalidReference):
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "type tag is not registered")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, op+" rejected by the store")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, op+": record does not exist")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, op+" failed")
	}
}

// entityScan is the filter for an entity-wide fetch: no row cap, stable
// oldest-first order.
func entityScan(entityIDs []uuid.UUID) models.ListFilter {
	return models.ListFilter{
		Where: []models.WhereClause{{Field: "entity", Op: models.OpIn, Values: uuidStrings(entityIDs)}},
		OrderBy: []models.OrderBy{
			{Field: "createdAt", Direction: models.OrderAsc},
			{Field: "id", Direction: models.OrderAsc},
		},
		Limit: -1,
	}
}

func phoneIDs(phones []models.Phone) []uuid.UUID {
	ids := make([]uuid.UUID, len(phones))
	for i, p := range phones {
		ids[i] = p.ID
	}
	return ids
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func emptyIfNil(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}
