// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package badger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/blinklabs-io/warden/database/types"
	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
)

const (
	sequenceBandwidth = 100
	maxTxnRetries     = 5
)

var (
	prefixMute     = []byte("mute:")
	prefixActive   = []byte("active:")
	prefixWarn     = []byte("warn:")
	prefixGuild    = []byte("guild:")
	prefixUser     = []byte("user:")
	keyMuteSeq     = []byte("seq:mute")
	keyWarnSeq     = []byte("seq:warn")
	cborEncodeMode = sync.OnceValues(func() (cbor.EncMode, error) {
		return cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	})
)

// StoreBadger is a BadgerDB-based implementation of the moderation store.
// Badger transactions are serializable, so concurrent writes touching the
// same active-mute key conflict and are retried.
type StoreBadger struct {
	db        *badger.DB
	muteSeq   *badger.Sequence
	warnSeq   *badger.Sequence
	logger    *slog.Logger
	gcTicker  *time.Ticker
	gcStopCh  chan struct{}
	gcWg      sync.WaitGroup
	dataDir   string
	gcEnabled bool
}

// New creates a badger store. Uses an in-memory database if dataDir is empty.
func New(dataDir string, logger *slog.Logger) (*StoreBadger, error) {
	return NewWithOptions(
		WithDataDir(dataDir),
		WithLogger(logger),
	)
}

// NewWithOptions creates a badger store with options. The database is
// opened in Start()
func NewWithOptions(opts ...BadgerOptionFunc) (*StoreBadger, error) {
	s := &StoreBadger{}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return s, nil
}

// SetLogger replaces the logger used by the store. It must be called before Start()
func (s *StoreBadger) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Start implements the plugin.Plugin interface
func (s *StoreBadger) Start() error {
	badgerOpts := badger.DefaultOptions(s.dataDir).
		WithLogger(newBadgerLogger(s.logger)).
		// The default INFO logging is a bit verbose
		WithLoggingLevel(badger.WARNING)
	if s.dataDir == "" {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return fmt.Errorf("open badger: %w", err)
	}
	s.db = db
	if s.muteSeq, err = db.GetSequence(keyMuteSeq, sequenceBandwidth); err != nil {
		_ = db.Close()
		return err
	}
	if s.warnSeq, err = db.GetSequence(keyWarnSeq, sequenceBandwidth); err != nil {
		_ = s.muteSeq.Release()
		_ = db.Close()
		return err
	}
	if s.gcEnabled && s.dataDir != "" {
		s.gcTicker = time.NewTicker(5 * time.Minute)
		s.gcStopCh = make(chan struct{})
		s.gcWg.Add(1)
		go s.runGc(s.gcTicker, s.gcStopCh)
	}
	return nil
}

func (s *StoreBadger) runGc(t *time.Ticker, stop <-chan struct{}) {
	defer s.gcWg.Done()
	for {
		select {
		case <-t.C:
			// Keep collecting while there is something to rewrite
			for {
				err := s.db.RunValueLogGC(0.5)
				if err == nil {
					continue
				}
				if !errors.Is(err, badger.ErrNoRewrite) {
					s.logger.Warn(
						"value log GC failure",
						"component", "store",
						"error", err,
					)
				}
				break
			}
		case <-stop:
			return
		}
	}
}

// Stop implements the plugin.Plugin interface
func (s *StoreBadger) Stop() error {
	if s.db == nil {
		return nil
	}
	return s.Close()
}

// Close releases sequences, stops GC and closes the database
func (s *StoreBadger) Close() error {
	if s.gcTicker != nil {
		s.gcTicker.Stop()
		close(s.gcStopCh)
		s.gcWg.Wait()
		s.gcTicker = nil
	}
	var err error
	if s.muteSeq != nil {
		err = errors.Join(err, s.muteSeq.Release())
	}
	if s.warnSeq != nil {
		err = errors.Join(err, s.warnSeq.Release())
	}
	err = errors.Join(err, s.db.Close())
	s.db = nil
	return err
}

// update runs fn in a read-write transaction, retrying on conflicts with
// concurrent transactions
func (s *StoreBadger) update(fn func(txn *badger.Txn) error) error {
	var err error
	for range maxTxnRetries {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func (s *StoreBadger) nextID(seq *badger.Sequence) (uint, error) {
	id, err := seq.Next()
	if err != nil {
		return 0, err
	}
	// Sequences start at zero
	return uint(id + 1), nil
}

func encode(v any) ([]byte, error) {
	em, err := cborEncodeMode()
	if err != nil {
		return nil, err
	}
	return em.Marshal(v)
}

func getValue(txn *badger.Txn, key []byte, dest any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return cbor.Unmarshal(val, dest)
	})
}

func setValue(txn *badger.Txn, key []byte, v any) error {
	data, err := encode(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func idKey(prefix []byte, ids ...uint64) []byte {
	key := make([]byte, 0, len(prefix)+8*len(ids))
	key = append(key, prefix...)
	for _, id := range ids {
		key = binary.BigEndian.AppendUint64(key, id)
	}
	return key
}

func muteKey(id uint) []byte {
	return idKey(prefixMute, uint64(id))
}

func activeKey(guildID, userID types.Snowflake) []byte {
	return idKey(prefixActive, uint64(guildID), uint64(userID))
}

func warnKey(guildID, userID types.Snowflake, id uint) []byte {
	return idKey(prefixWarn, uint64(guildID), uint64(userID), uint64(id))
}

func guildKey(guildID types.Snowflake) []byte {
	return idKey(prefixGuild, uint64(guildID))
}

func userKey(userID types.Snowflake) []byte {
	return idKey(prefixUser, uint64(userID))
}
