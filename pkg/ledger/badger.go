package ledger

import (
	"context"
	"encoding/json"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"github.com/betbot/ordersync/internal/domain"
)

const keyPrefix = "position/"

// Badger 持久化账本（Badger KV）
//
// key: position/{symbol}/{strategy}，value: Entry 的 JSON。
// 新鲜度比较与写入在同一个读写事务内完成。
type Badger struct {
	db *badger.DB
}

// OpenBadger 打开（或创建）账本目录
func OpenBadger(path string) (*Badger, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("ledger: path is required")
	}
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "ledger: open %s", path)
	}
	return &Badger{db: db}, nil
}

func positionKey(symbol, strategyID string) []byte {
	return []byte(keyPrefix + symbol + "/" + strategyID)
}

// UpdatePosition 实现 ports.PositionLedger
func (b *Badger) UpdatePosition(ctx context.Context, update domain.PositionUpdate) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	applied := false
	err := b.db.Update(func(txn *badger.Txn) error {
		k := positionKey(update.Symbol, update.StrategyID)
		cur, found, err := readEntry(txn, k)
		if err != nil {
			return err
		}
		if found && !update.IsNewerThan(cur.Recency) {
			return nil
		}
		val, err := json.Marshal(entryFromUpdate(update))
		if err != nil {
			return err
		}
		applied = true
		return txn.Set(k, val)
	})
	if err != nil {
		return false, errors.Wrapf(err, "ledger: update %s/%s", update.Symbol, update.StrategyID)
	}
	return applied, nil
}

// Position 查询策略持仓
func (b *Badger) Position(symbol, strategyID string) (Entry, bool, error) {
	var (
		out   Entry
		found bool
	)
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		out, found, err = readEntry(txn, positionKey(symbol, strategyID))
		return err
	})
	return out, found, err
}

// Entries 所有持仓记录（按标的、策略排序）
func (b *Badger) Entries() ([]Entry, error) {
	var out []Entry
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var e Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortEntries(out)
	return out, nil
}

func readEntry(txn *badger.Txn, k []byte) (Entry, bool, error) {
	var e Entry
	item, err := txn.Get(k)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return e, false, nil
		}
		return e, false, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &e)
	})
	return e, err == nil, err
}

// Close 关闭数据库
func (b *Badger) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}
