package signals

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"pattern-engine/internal/patterns"
)

// MemoryStore is the in-process Store implementation. Signals are held in a
// primary map plus per-strategy and per-symbol indices kept sorted by
// detection time, so listings reverse-iterate and range queries binary
// search instead of filtering the whole set. All reads return copies.
type MemoryStore struct {
	mu sync.RWMutex

	signals    map[string]*patterns.PatternSignal
	byTime     []string            // all signal ids, DetectedAt ascending
	byStrategy map[string][]string // ids per strategy, DetectedAt ascending
	bySymbol   map[string][]string // ids per symbol, DetectedAt ascending

	configs      map[string]*patterns.PatternConfig
	activeConfig map[string]map[patterns.PatternType]string // strategy -> type -> config id

	outcomes  map[string]*patterns.PatternOutcome
	bySignal  map[string][]string // outcome ids per signal, record order
	recordSeq []string            // all outcome ids, record order
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		signals:      make(map[string]*patterns.PatternSignal),
		byStrategy:   make(map[string][]string),
		bySymbol:     make(map[string][]string),
		configs:      make(map[string]*patterns.PatternConfig),
		activeConfig: make(map[string]map[patterns.PatternType]string),
		outcomes:     make(map[string]*patterns.PatternOutcome),
		bySignal:     make(map[string][]string),
	}
}

// CreateSignal stores a signal, assigning an id and activating it when the
// detector has not done so already.
func (s *MemoryStore) CreateSignal(ctx context.Context, sig *patterns.PatternSignal) error {
	if sig.Symbol == "" {
		return &ValidationError{Field: "symbol", Reason: "must not be empty"}
	}
	if !sig.PatternType.Valid() {
		return &patterns.InvalidPatternTypeError{Value: string(sig.PatternType)}
	}
	if sig.Confidence < 0 || sig.Confidence > 100 {
		return &ValidationError{Field: "confidence", Reason: "must be between 0 and 100"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sig.ID == "" {
		sig.ID = uuid.New().String()
	}
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = time.Now().UTC()
		sig.IsActive = true
	}

	stored := cloneSignal(sig)
	s.signals[stored.ID] = stored
	s.byTime = s.insertSorted(s.byTime, stored)
	s.byStrategy[stored.StrategyID] = s.insertSorted(s.byStrategy[stored.StrategyID], stored)
	s.bySymbol[stored.Symbol] = s.insertSorted(s.bySymbol[stored.Symbol], stored)
	return nil
}

// insertSorted places the id at its DetectedAt-ascending position.
// Caller holds the write lock.
func (s *MemoryStore) insertSorted(ids []string, sig *patterns.PatternSignal) []string {
	at := sort.Search(len(ids), func(i int) bool {
		return s.signals[ids[i]].DetectedAt.After(sig.DetectedAt)
	})
	ids = append(ids, "")
	copy(ids[at+1:], ids[at:])
	ids[at] = sig.ID
	return ids
}

// GetSignal returns the signal with the given id.
func (s *MemoryStore) GetSignal(ctx context.Context, id string) (*patterns.PatternSignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sig, ok := s.signals[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSignal(sig), nil
}

// ListByStrategy returns a strategy's signals, newest detection first,
// optionally filtered on the active flag.
func (s *MemoryStore) ListByStrategy(ctx context.Context, strategyID string, active *bool) ([]*patterns.PatternSignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byStrategy[strategyID]
	out := make([]*patterns.PatternSignal, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		sig := s.signals[ids[i]]
		if active != nil && sig.IsActive != *active {
			continue
		}
		out = append(out, cloneSignal(sig))
	}
	return out, nil
}

// ListBySymbol returns a symbol's active signals, newest detection first,
// optionally restricted to one pattern type.
func (s *MemoryStore) ListBySymbol(ctx context.Context, symbol string, patternType patterns.PatternType) ([]*patterns.PatternSignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.bySymbol[symbol]
	out := make([]*patterns.PatternSignal, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		sig := s.signals[ids[i]]
		if !sig.IsActive {
			continue
		}
		if patternType != "" && sig.PatternType != patternType {
			continue
		}
		out = append(out, cloneSignal(sig))
	}
	return out, nil
}

// ListByPatternType returns all signals of the given pattern type, newest
// detection first, optionally scoped to one strategy.
func (s *MemoryStore) ListByPatternType(ctx context.Context, pt patterns.PatternType, strategyID string) ([]*patterns.PatternSignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byTime
	if strategyID != "" {
		ids = s.byStrategy[strategyID]
	}

	var out []*patterns.PatternSignal
	for i := len(ids) - 1; i >= 0; i-- {
		sig := s.signals[ids[i]]
		if sig.PatternType != pt {
			continue
		}
		out = append(out, cloneSignal(sig))
	}
	return out, nil
}

// UpdateSignal applies a partial update: flipping IsActive and/or merging
// metadata. Unknown ids return ErrNotFound.
func (s *MemoryStore) UpdateSignal(ctx context.Context, id string, upd SignalUpdate) (*patterns.PatternSignal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig, ok := s.signals[id]
	if !ok {
		return nil, ErrNotFound
	}

	if upd.IsActive != nil {
		sig.IsActive = *upd.IsActive
	}
	if upd.Metadata != nil {
		sig.Metadata.Merge(*upd.Metadata)
	}
	return cloneSignal(sig), nil
}

// ListInRange returns signals detected in [Start, End], chronologically
// ascending, filtered by strategy, symbols and pattern types when given.
func (s *MemoryStore) ListInRange(ctx context.Context, q RangeQuery) ([]*patterns.PatternSignal, error) {
	if !q.End.After(q.Start) {
		return nil, ErrInvalidRange
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byTime
	if q.StrategyID != "" {
		ids = s.byStrategy[q.StrategyID]
	}

	lo := sort.Search(len(ids), func(i int) bool {
		return !s.signals[ids[i]].DetectedAt.Before(q.Start)
	})

	symbols := make(map[string]bool, len(q.Symbols))
	for _, sym := range q.Symbols {
		symbols[sym] = true
	}
	types := make(map[patterns.PatternType]bool, len(q.PatternTypes))
	for _, pt := range q.PatternTypes {
		types[pt] = true
	}

	var out []*patterns.PatternSignal
	for i := lo; i < len(ids); i++ {
		sig := s.signals[ids[i]]
		if sig.DetectedAt.After(q.End) {
			break
		}
		if len(symbols) > 0 && !symbols[sig.Symbol] {
			continue
		}
		if len(types) > 0 && !types[sig.PatternType] {
			continue
		}
		out = append(out, cloneSignal(sig))
	}
	return out, nil
}

// CreateConfig stores a detector config. An active config replaces the
// previous active entry for its (strategy, patternType) pair in the index.
func (s *MemoryStore) CreateConfig(ctx context.Context, cfg *patterns.PatternConfig) error {
	if !cfg.PatternType.Valid() {
		return &patterns.InvalidPatternTypeError{Value: string(cfg.PatternType)}
	}
	if err := cfg.Config.Validate(); err != nil {
		return &ValidationError{Field: "config", Reason: err.Error()}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now

	stored := *cfg
	s.configs[stored.ID] = &stored
	if stored.IsActive {
		s.indexActiveConfig(&stored)
	}
	return nil
}

// indexActiveConfig points the (strategy, patternType) pair at this config,
// deactivating any previous holder. Caller holds the write lock.
func (s *MemoryStore) indexActiveConfig(cfg *patterns.PatternConfig) {
	byType, ok := s.activeConfig[cfg.StrategyID]
	if !ok {
		byType = make(map[patterns.PatternType]string)
		s.activeConfig[cfg.StrategyID] = byType
	}
	if prevID, ok := byType[cfg.PatternType]; ok && prevID != cfg.ID {
		if prev, ok := s.configs[prevID]; ok {
			prev.IsActive = false
		}
	}
	byType[cfg.PatternType] = cfg.ID
}

// GetConfig returns the config with the given id.
func (s *MemoryStore) GetConfig(ctx context.Context, id string) (*patterns.PatternConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *cfg
	return &out, nil
}

// ActiveConfig resolves the active config for a (strategy, patternType)
// pair through the nested index.
func (s *MemoryStore) ActiveConfig(ctx context.Context, strategyID string, pt patterns.PatternType) (*patterns.PatternConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.activeConfig[strategyID][pt]
	if !ok {
		return nil, ErrNotFound
	}
	out := *s.configs[id]
	return &out, nil
}

// ListConfigs returns a strategy's configs, newest created first.
func (s *MemoryStore) ListConfigs(ctx context.Context, strategyID string) ([]*patterns.PatternConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*patterns.PatternConfig
	for _, cfg := range s.configs {
		if strategyID != "" && cfg.StrategyID != strategyID {
			continue
		}
		c := *cfg
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// UpdateConfig applies a partial update, refreshing the active index.
func (s *MemoryStore) UpdateConfig(ctx context.Context, id string, upd ConfigUpdate) (*patterns.PatternConfig, error) {
	if upd.Config != nil {
		if err := upd.Config.Validate(); err != nil {
			return nil, &ValidationError{Field: "config", Reason: err.Error()}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.configs[id]
	if !ok {
		return nil, ErrNotFound
	}

	if upd.Config != nil {
		cfg.Config = *upd.Config
	}
	if upd.IsActive != nil {
		cfg.IsActive = *upd.IsActive
		if cfg.IsActive {
			s.indexActiveConfig(cfg)
		} else if s.activeConfig[cfg.StrategyID][cfg.PatternType] == id {
			delete(s.activeConfig[cfg.StrategyID], cfg.PatternType)
		}
	}
	cfg.UpdatedAt = time.Now().UTC()

	out := *cfg
	return &out, nil
}

// DeleteConfig removes a config and its active-index entry.
func (s *MemoryStore) DeleteConfig(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.configs[id]
	if !ok {
		return ErrNotFound
	}
	if s.activeConfig[cfg.StrategyID][cfg.PatternType] == id {
		delete(s.activeConfig[cfg.StrategyID], cfg.PatternType)
	}
	delete(s.configs, id)
	return nil
}

// CreateOutcome appends an outcome. The referenced signal must exist; the
// caller (OutcomeRecorder) is responsible for deactivating it.
func (s *MemoryStore) CreateOutcome(ctx context.Context, o *patterns.PatternOutcome) error {
	if !o.Outcome.Valid() {
		return &ValidationError{Field: "outcome", Reason: "must be success, failure or pending"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.signals[o.PatternSignalID]; !ok {
		return ErrNotFound
	}

	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.RecordedAt.IsZero() {
		o.RecordedAt = time.Now().UTC()
	}

	stored := cloneOutcome(o)
	s.outcomes[stored.ID] = stored
	s.bySignal[stored.PatternSignalID] = append(s.bySignal[stored.PatternSignalID], stored.ID)
	s.recordSeq = append(s.recordSeq, stored.ID)
	return nil
}

// ListOutcomesBySignal returns a signal's outcomes in record order.
func (s *MemoryStore) ListOutcomesBySignal(ctx context.Context, signalID string) ([]*patterns.PatternOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.bySignal[signalID]
	out := make([]*patterns.PatternOutcome, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneOutcome(s.outcomes[id]))
	}
	return out, nil
}

// ListOutcomesBySignals returns outcomes for a set of signals in global
// record order, the ordering the backtest drawdown fold depends on.
func (s *MemoryStore) ListOutcomesBySignals(ctx context.Context, signalIDs []string) ([]*patterns.PatternOutcome, error) {
	wanted := make(map[string]bool, len(signalIDs))
	for _, id := range signalIDs {
		wanted[id] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*patterns.PatternOutcome
	for _, id := range s.recordSeq {
		o := s.outcomes[id]
		if wanted[o.PatternSignalID] {
			out = append(out, cloneOutcome(o))
		}
	}
	return out, nil
}

func cloneSignal(sig *patterns.PatternSignal) *patterns.PatternSignal {
	out := *sig
	if sig.Metadata.Notes != nil {
		notes := make(map[string]string, len(sig.Metadata.Notes))
		for k, v := range sig.Metadata.Notes {
			notes[k] = v
		}
		out.Metadata.Notes = notes
	}
	if sig.Metadata.Flag != nil {
		ev := *sig.Metadata.Flag
		out.Metadata.Flag = &ev
	}
	if sig.Metadata.HeadShoulders != nil {
		ev := *sig.Metadata.HeadShoulders
		out.Metadata.HeadShoulders = &ev
	}
	return &out
}

func cloneOutcome(o *patterns.PatternOutcome) *patterns.PatternOutcome {
	out := *o
	if o.Metadata != nil {
		md := make(map[string]string, len(o.Metadata))
		for k, v := range o.Metadata {
			md[k] = v
		}
		out.Metadata = md
	}
	return &out
}
