// Package store holds parsed intents awaiting human confirmation.
// Entries live in memory only, keyed by (user, command id), and expire a fixed
// window after they are staged. All operations are guarded by one mutex per
// Store, so a Store may be shared across request goroutines.
package store

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "leadbot/cli/internal/errors"
	"leadbot/cli/internal/intent"
)

// DefaultTTL is how long a staged command stays confirmable.
const DefaultTTL = 300 * time.Second

var (
	// ErrNotFound reports an unknown (user, command id) pair.
	ErrNotFound = apperrors.New(apperrors.NotFound, "command not found")
	// ErrExpired reports a command whose confirmation window has passed.
	// It matches ErrNotFound under errors.Is.
	ErrExpired = apperrors.Wrap(apperrors.NotFound, "command expired", ErrNotFound)
	// ErrAlreadyExecuted reports a second confirmation of an executed command.
	ErrAlreadyExecuted = apperrors.New(apperrors.AlreadyExecuted, "command already executed")
	// ErrInFlight reports a confirmation racing an execution in progress.
	ErrInFlight = apperrors.New(apperrors.AlreadyExecuted, "command is already being executed")
)

// State is the lifecycle position of a staged command.
type State int

const (
	Pending State = iota
	Executing
	Executed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Executing:
		return "executing"
	case Executed:
		return "executed"
	}
	return "unknown"
}

// Command is a staged intent.
type Command struct {
	UserID     string
	ID         string
	Intent     intent.Intent
	CreatedAt  time.Time
	ExecutedAt time.Time
	State      State
}

// Options tune a Store. Zero values select defaults.
type Options struct {
	// TTL is the confirmation window measured from staging.
	TTL time.Duration

	// Retention keeps executed commands around after execution so that
	// duplicate confirmations are answered with AlreadyExecuted rather than
	// NotFound. Defaults to TTL.
	Retention time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time

	// OnChange, if set, is called with the entry count after every mutation.
	// It runs under the store lock and must not call back into the Store.
	OnChange func(n int)
}

// Store is the in-memory command store.
type Store struct {
	mu        sync.Mutex
	commands  map[string]map[string]*Command
	count     int
	ttl       time.Duration
	retention time.Duration
	now       func() time.Time
	onChange  func(int)
}

// New creates an empty Store.
func New(opts Options) *Store {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Retention <= 0 {
		opts.Retention = opts.TTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		commands:  make(map[string]map[string]*Command),
		ttl:       opts.TTL,
		retention: opts.Retention,
		now:       opts.Now,
		onChange:  opts.OnChange,
	}
}

// Stage stores in for userID and returns a fresh random command id.
func (s *Store) Stage(userID string, in intent.Intent) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", apperrors.Wrap(apperrors.Internal, "failed to generate command id", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.commands[userID]
	if !ok {
		user = make(map[string]*Command)
		s.commands[userID] = user
	}
	user[id.String()] = &Command{
		UserID:    userID,
		ID:        id.String(),
		Intent:    in,
		CreatedAt: s.now(),
		State:     Pending,
	}
	s.count++
	s.changed()
	return id.String(), nil
}

// Fetch returns the staged intent if present and unexpired. An expired entry
// is evicted and reported as ErrExpired.
func (s *Store) Fetch(userID, commandID string) (intent.Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.lookup(userID, commandID)
	if err != nil {
		return intent.Intent{}, err
	}
	return c.Intent, nil
}

// Get returns a copy of the staged command.
func (s *Store) Get(userID, commandID string) (Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.lookup(userID, commandID)
	if err != nil {
		return Command{}, err
	}
	return *c, nil
}

// Claim atomically moves a pending command to Executing and returns its
// intent. Executed commands report ErrAlreadyExecuted and commands being
// executed report ErrInFlight; either way nothing changes.
func (s *Store) Claim(userID, commandID string) (intent.Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.lookup(userID, commandID)
	if err != nil {
		return intent.Intent{}, err
	}
	switch c.State {
	case Executed:
		return intent.Intent{}, ErrAlreadyExecuted
	case Executing:
		return intent.Intent{}, ErrInFlight
	}
	c.State = Executing
	return c.Intent, nil
}

// Release returns a claimed command to Pending after a failed execution.
func (s *Store) Release(userID, commandID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c := s.commands[userID][commandID]; c != nil && c.State == Executing {
		c.State = Pending
	}
}

// MarkExecuted flags a command as executed. It is idempotent and keeps the
// entry so later confirmations can be rejected as duplicates.
func (s *Store) MarkExecuted(userID, commandID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.commands[userID][commandID]
	if c == nil || c.State == Executed {
		return
	}
	c.State = Executed
	c.ExecutedAt = s.now()
}

// Discard removes a pending command. Executed or executing commands are left
// in place and reported with the same errors Claim uses.
func (s *Store) Discard(userID, commandID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.lookup(userID, commandID)
	if err != nil {
		return err
	}
	switch c.State {
	case Executed:
		return ErrAlreadyExecuted
	case Executing:
		return ErrInFlight
	}
	s.delete(userID, commandID)
	s.changed()
	return nil
}

// TTL returns the confirmation window.
func (s *Store) TTL() time.Duration { return s.ttl }

// Sweep evicts every expired entry and returns how many were removed.
// Commands mid-execution are never evicted.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for userID, user := range s.commands {
		for id, c := range user {
			if c.State != Executing && s.expired(c, now) {
				s.delete(userID, id)
				removed++
			}
		}
	}
	if removed > 0 {
		s.changed()
	}
	return removed
}

// Len returns the number of entries currently held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Run sweeps every interval until ctx is done. The optional callback receives
// the number of entries removed by each non-empty sweep.
func (s *Store) Run(ctx context.Context, interval time.Duration, swept func(n int)) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := s.Sweep(); n > 0 && swept != nil {
				swept(n)
			}
		}
	}
}

// lookup finds an entry and applies lazy expiry. Callers hold s.mu.
func (s *Store) lookup(userID, commandID string) (*Command, error) {
	c := s.commands[userID][commandID]
	if c == nil {
		return nil, ErrNotFound
	}
	if c.State != Executing && s.expired(c, s.now()) {
		s.delete(userID, commandID)
		s.changed()
		return nil, ErrExpired
	}
	return c, nil
}

func (s *Store) expired(c *Command, now time.Time) bool {
	deadline := c.CreatedAt.Add(s.ttl)
	if c.State == Executed {
		if kept := c.ExecutedAt.Add(s.retention); kept.After(deadline) {
			deadline = kept
		}
	}
	return now.After(deadline)
}

func (s *Store) delete(userID, commandID string) {
	delete(s.commands[userID], commandID)
	if len(s.commands[userID]) == 0 {
		delete(s.commands, userID)
	}
	s.count--
}

func (s *Store) changed() {
	if s.onChange != nil {
		s.onChange(s.count)
	}
}

// IsExpired reports whether err is the expiry flavour of NotFound.
func IsExpired(err error) bool { return stderrors.Is(err, ErrExpired) }
