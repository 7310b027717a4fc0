// farm_store.go provides the in-memory implementation of FarmStore.
//
// The store is the published view of the reconciler: one UserFarmInfo per
// chainID:account:farm, replaced as a whole on every cycle. Readers always
// receive deep copies, so a value handed out can never change underneath them.
//
// Subscribers receive a FarmUpdate for every changed or removed farm. A slow
// subscriber whose buffer is full misses updates instead of blocking writers.
package memory

import (
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/farmsync/internal/domain/entity"
	"github.com/archon-research/farmsync/internal/ports/outbound"
)

// Compile-time check that FarmStore implements outbound.FarmStore
var _ outbound.FarmStore = (*FarmStore)(nil)

type accountKey struct {
	chainID int64
	account common.Address
}

// FarmStore is an in-memory implementation of the FarmStore port.
type FarmStore struct {
	mu       sync.RWMutex
	accounts map[accountKey]map[common.Address]entity.UserFarmInfo

	subMu   sync.Mutex
	subs    map[int]chan outbound.FarmUpdate
	nextSub int
	dropped int

	logger *slog.Logger
}

// NewFarmStore creates an empty store. logger may be nil.
func NewFarmStore(logger *slog.Logger) *FarmStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FarmStore{
		accounts: make(map[accountKey]map[common.Address]entity.UserFarmInfo),
		subs:     make(map[int]chan outbound.FarmUpdate),
		logger:   logger.With("component", "farm-store"),
	}
}

// ReplaceAccount replaces the account's published farms with infos.
func (s *FarmStore) ReplaceAccount(chainID int64, account common.Address, infos []entity.UserFarmInfo) {
	key := accountKey{chainID: chainID, account: account}
	next := make(map[common.Address]entity.UserFarmInfo, len(infos))
	for _, info := range infos {
		next[info.Farm] = info.Clone()
	}

	var updates []outbound.FarmUpdate

	s.mu.Lock()
	prev := s.accounts[key]
	for farm, info := range next {
		if old, ok := prev[farm]; ok && old.Generation == info.Generation && info.Generation != 0 {
			continue
		}
		updates = append(updates, outbound.FarmUpdate{Key: info.Key(), Info: info.Clone()})
	}
	for farm, old := range prev {
		if _, ok := next[farm]; !ok {
			updates = append(updates, outbound.FarmUpdate{Key: old.Key(), Info: old.Clone(), Removed: true})
		}
	}
	if len(next) == 0 {
		delete(s.accounts, key)
	} else {
		s.accounts[key] = next
	}
	s.mu.Unlock()

	s.notify(updates)
}

// Get returns a copy of the published aggregate for one farm.
func (s *FarmStore) Get(key entity.FarmKey) (entity.UserFarmInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.accounts[accountKey{chainID: key.ChainID, account: key.Account}][key.Farm]
	if !ok {
		return entity.UserFarmInfo{}, false
	}
	return info.Clone(), true
}

// Account returns copies of every published farm of the account.
func (s *FarmStore) Account(chainID int64, account common.Address) map[common.Address]entity.UserFarmInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	farms := s.accounts[accountKey{chainID: chainID, account: account}]
	out := make(map[common.Address]entity.UserFarmInfo, len(farms))
	for farm, info := range farms {
		out[farm] = info.Clone()
	}
	return out
}

// Subscribe registers a buffered listener.
func (s *FarmStore) Subscribe(buffer int) (<-chan outbound.FarmUpdate, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan outbound.FarmUpdate, buffer)

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			close(ch)
			s.subMu.Unlock()
		})
	}
}

// Dropped returns how many updates were dropped because a subscriber was full.
func (s *FarmStore) Dropped() int {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return s.dropped
}

func (s *FarmStore) notify(updates []outbound.FarmUpdate) {
	if len(updates) == 0 {
		return
	}
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, u := range updates {
		for id, ch := range s.subs {
			select {
			case ch <- u:
			default:
				s.dropped++
				s.logger.Warn("subscriber buffer full, dropping farm update", "subscriber", id, "key", u.Key.String())
			}
		}
	}
}
