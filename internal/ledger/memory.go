package ledger

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// keyedMutex hands out one mutex per natural key, giving each key its own
// critical section without serializing unrelated upserts.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Memory is the in-memory Ledger used by tests and by deployments without a
// database. Mutations take a per-natural-key lock first, then the store lock,
// so two imports touching the same record cannot interleave their
// read-merge-write cycles.
type Memory struct {
	keys keyedMutex

	mu          sync.RWMutex
	resources   map[string]*Resource // by surrogate ID
	rates       map[string]*LabourRate
	commitments map[string]*CommitmentPeriod
	allocations map[string][]Allocation
	configs     map[string]*ConfigEntry
	runs        []ImportRun
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{
		resources:   make(map[string]*Resource),
		rates:       make(map[string]*LabourRate),
		commitments: make(map[string]*CommitmentPeriod),
		allocations: make(map[string][]Allocation),
		configs:     make(map[string]*ConfigEntry),
	}
}

// Verify interface compliance.
var _ Ledger = (*Memory)(nil)

func (m *Memory) UpsertResource(ctx context.Context, r Resource) (Outcome, error) {
	unlock := m.keys.lock("resource:" + resourceNaturalKey(r))
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.findResourceLocked(r.EmployeeID, r.Name)
	if existing == nil {
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		stored := r
		m.resources[stored.ID] = &stored
		return Inserted, nil
	}

	// Present fields overwrite; absent optionals are preserved so a partial
	// re-import never nulls out data.
	existing.Name = r.Name
	existing.ContractType = r.ContractType
	if r.Email != "" {
		existing.Email = r.Email
	}
	if r.WorkArea != "" {
		existing.WorkArea = r.WorkArea
	}
	if r.EmployeeID != "" {
		existing.EmployeeID = r.EmployeeID
	}
	if r.ActivityTypeCap != nil {
		existing.ActivityTypeCap = r.ActivityTypeCap
	}
	if r.ActivityTypeOpx != nil {
		existing.ActivityTypeOpx = r.ActivityTypeOpx
	}
	return Updated, nil
}

func (m *Memory) GetResource(ctx context.Context, id string) (*Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.resources[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *Memory) FindResourceByName(ctx context.Context, name string) (*Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.resources {
		if r.Name == name {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) SaveSnapshot(ctx context.Context, snap CapacitySnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.resources[snap.ResourceID]
	if !ok {
		return ErrNotFound
	}
	cp := snap
	r.Snapshot = &cp
	return nil
}

func (m *Memory) UpsertLabourRate(ctx context.Context, rate LabourRate) (Outcome, error) {
	key := rateNaturalKey(rate)
	unlock := m.keys.lock("rate:" + key)
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.rates[key]
	if !ok {
		stored := rate
		m.rates[key] = &stored
		return Inserted, nil
	}

	existing.HourlyRate = rate.HourlyRate
	existing.DailyRate = rate.DailyRate
	if rate.Description != "" {
		existing.Description = rate.Description
	}
	if rate.DollarUplift != nil {
		existing.DollarUplift = rate.DollarUplift
	}
	if rate.PercentUplift != nil {
		existing.PercentUplift = rate.PercentUplift
	}
	return Updated, nil
}

func (m *Memory) LabourRates(ctx context.Context, fiscalYear string) ([]LabourRate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []LabourRate
	for _, r := range m.rates {
		if fiscalYear == "" || r.FiscalYear == fiscalYear {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Band != out[j].Band {
			return out[i].Band < out[j].Band
		}
		return out[i].ActivityType < out[j].ActivityType
	})
	return out, nil
}

func (m *Memory) UpsertCommitment(ctx context.Context, c CommitmentPeriod) (Outcome, error) {
	key := commitmentNaturalKey(c)
	unlock := m.keys.lock("commitment:" + key)
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.commitments[key]
	if !ok {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		stored := c
		m.commitments[key] = &stored
		return Inserted, nil
	}

	existing.PeriodEnd = c.PeriodEnd
	existing.Frequency = c.Frequency
	existing.HoursPerUnit = c.HoursPerUnit
	return Updated, nil
}

func (m *Memory) CommitmentsFor(ctx context.Context, resourceID string) ([]CommitmentPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []CommitmentPeriod
	for _, c := range m.commitments {
		if c.ResourceID == resourceID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].PeriodStart.Before(out[j].PeriodStart)
	})
	return out, nil
}

func (m *Memory) AddAllocation(ctx context.Context, a Allocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.resources[a.ResourceID]; !ok {
		return ErrNotFound
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	m.allocations[a.ResourceID] = append(m.allocations[a.ResourceID], a)
	return nil
}

func (m *Memory) AllocationsFor(ctx context.Context, resourceID string) ([]Allocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]Allocation(nil), m.allocations[resourceID]...), nil
}

func (m *Memory) UpsertConfigEntry(ctx context.Context, e ConfigEntry) (Outcome, error) {
	key := configNaturalKey(e)
	unlock := m.keys.lock("config:" + key)
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.configs[key]
	if !ok {
		stored := e
		m.configs[key] = &stored
		return Inserted, nil
	}

	existing.Value = e.Value
	if e.Description != "" {
		existing.Description = e.Description
	}
	return Updated, nil
}

func (m *Memory) RecordImportRun(ctx context.Context, run ImportRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs = append(m.runs, run)
	return nil
}

func (m *Memory) ImportRuns(ctx context.Context) ([]ImportRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]ImportRun(nil), m.runs...), nil
}

// ResourceCount reports the number of stored resources. Test helper.
func (m *Memory) ResourceCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.resources)
}

// RateCount reports the number of stored labour rates. Test helper.
func (m *Memory) RateCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rates)
}

// findResourceLocked resolves the natural-key fallback: EmployeeID when the
// incoming record has one, otherwise Name. Caller holds m.mu.
func (m *Memory) findResourceLocked(employeeID, name string) *Resource {
	if employeeID != "" {
		for _, r := range m.resources {
			if r.EmployeeID == employeeID {
				return r
			}
		}
		// A record imported earlier by name may be the same person now
		// arriving with an employee id.
		for _, r := range m.resources {
			if r.EmployeeID == "" && r.Name == name {
				return r
			}
		}
		return nil
	}
	for _, r := range m.resources {
		if r.Name == name {
			return r
		}
	}
	return nil
}

func resourceNaturalKey(r Resource) string {
	if r.EmployeeID != "" {
		return "emp/" + r.EmployeeID
	}
	return "name/" + r.Name
}

func rateNaturalKey(r LabourRate) string {
	return strings.Join([]string{string(r.Band), string(r.ActivityType), r.FiscalYear}, "/")
}

func commitmentNaturalKey(c CommitmentPeriod) string {
	return c.ResourceID + "/" + c.PeriodStart.Format("2006-01-02")
}

func configNaturalKey(e ConfigEntry) string {
	return e.ConfigType + "/" + itoa(e.Position)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	return string(b[n:])
}
