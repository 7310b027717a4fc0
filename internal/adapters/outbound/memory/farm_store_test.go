package memory

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/farmsync/internal/domain/entity"
	"github.com/archon-research/farmsync/internal/ports/outbound"
	"github.com/archon-research/farmsync/internal/testutil"
)

var (
	account = testutil.Addr(100)
	farmA   = testutil.Addr(1)
	farmB   = testutil.Addr(2)
)

func info(farm common.Address, generation uint64, ids ...int64) entity.UserFarmInfo {
	u := entity.NewUserFarmInfo(entity.FarmKey{ChainID: 1, Account: account, Farm: farm})
	for _, id := range ids {
		u.DepositedPositions = append(u.DepositedPositions, entity.NFTPosition{ID: big.NewInt(id), Liquidity: big.NewInt(1)})
	}
	u.Generation = generation
	return u
}

func recv(t *testing.T, ch <-chan outbound.FarmUpdate) outbound.FarmUpdate {
	t.Helper()
	select {
	case u := <-ch:
		return u
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for update")
		return outbound.FarmUpdate{}
	}
}

func TestFarmStore_ReplaceAndGet(t *testing.T) {
	s := NewFarmStore(testutil.DiscardLogger())

	s.ReplaceAccount(1, account, []entity.UserFarmInfo{info(farmA, 1, 7), info(farmB, 1)})

	got, ok := s.Get(entity.FarmKey{ChainID: 1, Account: account, Farm: farmA})
	if !ok {
		t.Fatal("expected farm A to be published")
	}
	if len(got.DepositedPositions) != 1 || got.DepositedPositions[0].ID.Int64() != 7 {
		t.Errorf("deposited = %v", got.DepositedIDs())
	}
	if n := len(s.Account(1, account)); n != 2 {
		t.Errorf("Account() returned %d farms, want 2", n)
	}
	if _, ok := s.Get(entity.FarmKey{ChainID: 10, Account: account, Farm: farmA}); ok {
		t.Error("farms must be scoped by chain id")
	}
}

func TestFarmStore_ReadersGetCopies(t *testing.T) {
	s := NewFarmStore(testutil.DiscardLogger())
	s.ReplaceAccount(1, account, []entity.UserFarmInfo{info(farmA, 1, 7)})

	key := entity.FarmKey{ChainID: 1, Account: account, Farm: farmA}
	first, _ := s.Get(key)
	first.DepositedPositions[0].ID.SetInt64(999)

	second, _ := s.Get(key)
	if second.DepositedPositions[0].ID.Int64() != 7 {
		t.Errorf("mutating a read value changed the store: got %s", second.DepositedPositions[0].ID)
	}
}

func TestFarmStore_ReplaceRemovesMissingFarms(t *testing.T) {
	s := NewFarmStore(testutil.DiscardLogger())
	updates, cancel := s.Subscribe(8)
	defer cancel()

	s.ReplaceAccount(1, account, []entity.UserFarmInfo{info(farmA, 1), info(farmB, 1)})
	recv(t, updates)
	recv(t, updates)

	s.ReplaceAccount(1, account, nil)

	removed := map[common.Address]bool{}
	for i := 0; i < 2; i++ {
		u := recv(t, updates)
		if !u.Removed {
			t.Errorf("expected removal update, got %+v", u.Key)
		}
		removed[u.Key.Farm] = true
	}
	if !removed[farmA] || !removed[farmB] {
		t.Errorf("removed = %v, want both farms", removed)
	}
	if n := len(s.Account(1, account)); n != 0 {
		t.Errorf("Account() returned %d farms, want 0", n)
	}
}

func TestFarmStore_UnchangedGenerationIsNotRenotified(t *testing.T) {
	s := NewFarmStore(testutil.DiscardLogger())
	s.ReplaceAccount(1, account, []entity.UserFarmInfo{info(farmA, 1), info(farmB, 1)})

	updates, cancel := s.Subscribe(8)
	defer cancel()

	s.ReplaceAccount(1, account, []entity.UserFarmInfo{info(farmA, 2), info(farmB, 1)})

	u := recv(t, updates)
	if u.Key.Farm != farmA || u.Info.Generation != 2 {
		t.Errorf("update = %s gen %d, want farm A gen 2", u.Key, u.Info.Generation)
	}
	select {
	case extra := <-updates:
		t.Errorf("unexpected update for %s", extra.Key)
	default:
	}
}

func TestFarmStore_FullSubscriberDropsUpdates(t *testing.T) {
	s := NewFarmStore(testutil.DiscardLogger())
	_, cancel := s.Subscribe(1)
	defer cancel()

	s.ReplaceAccount(1, account, []entity.UserFarmInfo{info(farmA, 1), info(farmB, 1)})

	if s.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", s.Dropped())
	}
}

func TestFarmStore_CancelClosesChannel(t *testing.T) {
	s := NewFarmStore(testutil.DiscardLogger())
	updates, cancel := s.Subscribe(1)
	cancel()
	cancel()

	if _, ok := <-updates; ok {
		t.Error("expected closed channel")
	}
	s.ReplaceAccount(1, account, []entity.UserFarmInfo{info(farmA, 1)})
}
