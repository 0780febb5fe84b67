package cdnsift

import (
	"encoding/json"
	"errors"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/cdnsift/cdnsift/data"
	"github.com/cdnsift/cdnsift/store"
)

const blockNamespace = "bl"

// BlockStore persists block decisions so repeated runs over fresh log
// snapshots do not forget who is currently blocked. Entries expire after
// the configured TTL.
type BlockStore struct {
	kv  store.KVStore
	ttl time.Duration
}

// NewBlockStore creates a BlockStore on top of a KV database.
func NewBlockStore(kv store.KVStore, ttl time.Duration) *BlockStore {
	return &BlockStore{
		kv:  kv,
		ttl: ttl,
	}
}

// Block writes a block decision derived from a risk assessment. Sources
// that are already blocked keep their existing entry and TTL.
func (bs *BlockStore) Block(sa *data.RiskAssessment) error {
	if sa == nil {
		return errors.New("assessment is nil")
	}

	key := []byte(sa.Source)

	ok, err := bs.kv.Has([]byte(blockNamespace), key)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	log.Infof("blocking %s (%.1f: %s)", sa.Source, sa.Score, sa.Reasons)

	encoded, err := json.Marshal(data.BlockedSource{
		Source:    sa.Source,
		Score:     sa.Score,
		Reasons:   sa.Reasons,
		Hostname:  sa.Hostname,
		BlockedAt: time.Now(),
	})
	if err != nil {
		return err
	}

	return bs.kv.SetEx([]byte(blockNamespace), key, encoded, bs.ttl)
}

// BlockPlan persists every source on the plan's immediate-block list.
func (bs *BlockStore) BlockPlan(plan *data.BlockPlan, suspicious []*data.RiskAssessment) error {
	bySource := make(map[string]*data.RiskAssessment, len(suspicious))
	for _, sa := range suspicious {
		bySource[sa.Source] = sa
	}

	for _, source := range plan.ImmediateBlock {
		sa, ok := bySource[source]
		if !ok {
			continue
		}
		if err := bs.Block(sa); err != nil {
			return err
		}
	}

	return nil
}

// Get returns the stored decision for a source or ErrNotFound.
func (bs *BlockStore) Get(source string) (*data.BlockedSource, error) {
	raw, err := bs.kv.Get([]byte(blockNamespace), []byte(source))
	if err != nil {
		return nil, err
	}

	var blocked data.BlockedSource
	if err := json.Unmarshal(raw, &blocked); err != nil {
		return nil, err
	}

	return &blocked, nil
}

// All returns every stored block decision, most recent first.
func (bs *BlockStore) All() ([]data.BlockedSource, error) {
	blocked := make([]data.BlockedSource, 0)

	err := bs.kv.Each([]byte(blockNamespace), []byte{}, func(v []byte) {
		var b data.BlockedSource
		if err := json.Unmarshal(v, &b); err != nil {
			log.Warnf("undecodable block entry: %s", err)
			return
		}
		blocked = append(blocked, b)
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(blocked, func(i, j int) bool {
		return blocked[i].BlockedAt.After(blocked[j].BlockedAt)
	})

	return blocked, nil
}

// Count returns the number of currently blocked sources.
func (bs *BlockStore) Count() (int, error) {
	return bs.kv.Count([]byte(blockNamespace), []byte{})
}
