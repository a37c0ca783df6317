package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"mystery-box/models"
)

type memoryData struct {
	games        map[string]*models.Game
	participants map[string]*models.Participant
	grants       map[string]*models.ReferralGrant
	submissions  map[string]*models.Submission
	validations  map[string]*models.ValidationResult
}

func newMemoryData() *memoryData {
	return &memoryData{
		games:        make(map[string]*models.Game),
		participants: make(map[string]*models.Participant),
		grants:       make(map[string]*models.ReferralGrant),
		submissions:  make(map[string]*models.Submission),
		validations:  make(map[string]*models.ValidationResult),
	}
}

func (d *memoryData) clone() *memoryData {
	out := newMemoryData()
	for k, v := range d.games {
		out.games[k] = v.Clone()
	}
	for k, v := range d.participants {
		out.participants[k] = v.Clone()
	}
	for k, v := range d.grants {
		g := *v
		out.grants[k] = &g
	}
	for k, v := range d.submissions {
		s := *v
		out.submissions[k] = &s
	}
	for k, v := range d.validations {
		r := *v
		out.validations[k] = &r
	}
	return out
}

type memoryState struct {
	txMu sync.Mutex // one writer at a time, transactions included
	mu   sync.RWMutex
	data *memoryData
}

// MemoryStore keeps everything in process. Transactions are fully
// serialized and restore a snapshot on error.
type MemoryStore struct {
	st   *memoryState
	inTx bool
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{st: &memoryState{data: newMemoryData()}}
}

// Transaction runs fn against a snapshot-backed view. A nested call acts
// as a savepoint: its failure undoes only its own writes.
func (s *MemoryStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.inTx {
		return s.runWithSnapshot(fn, s)
	}

	s.st.txMu.Lock()
	defer s.st.txMu.Unlock()
	return s.runWithSnapshot(fn, &MemoryStore{st: s.st, inTx: true})
}

func (s *MemoryStore) runWithSnapshot(fn func(tx Store) error, tx *MemoryStore) error {
	s.st.mu.RLock()
	snapshot := s.st.data.clone()
	s.st.mu.RUnlock()

	if err := fn(tx); err != nil {
		s.st.mu.Lock()
		s.st.data = snapshot
		s.st.mu.Unlock()
		return err
	}
	return nil
}

func (s *MemoryStore) write(fn func(d *memoryData) error) error {
	if !s.inTx {
		s.st.txMu.Lock()
		defer s.st.txMu.Unlock()
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return fn(s.st.data)
}

func (s *MemoryStore) read(fn func(d *memoryData) error) error {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	return fn(s.st.data)
}

// --- games ---

func (s *MemoryStore) CreateGame(ctx context.Context, game *models.Game) error {
	return s.write(func(d *memoryData) error {
		if _, ok := d.games[game.ID]; ok {
			return ErrDuplicate
		}
		for _, g := range d.games {
			if g.BroadcasterID == game.BroadcasterID {
				return ErrDuplicate
			}
		}
		now := time.Now()
		if game.CreatedAt.IsZero() {
			game.CreatedAt = now
		}
		game.UpdatedAt = now
		d.games[game.ID] = game.Clone()
		return nil
	})
}

func (s *MemoryStore) GetGame(ctx context.Context, id string) (*models.Game, error) {
	var out *models.Game
	err := s.read(func(d *memoryData) error {
		g, ok := d.games[id]
		if !ok {
			return ErrNotFound
		}
		out = g.Clone()
		return nil
	})
	return out, err
}

// LockGame is a plain read: transactions are already serialized.
func (s *MemoryStore) LockGame(ctx context.Context, id string, mode LockMode) (*models.Game, error) {
	return s.GetGame(ctx, id)
}

func (s *MemoryStore) ActiveGame(ctx context.Context, broadcasterID string) (*models.Game, error) {
	var out *models.Game
	err := s.read(func(d *memoryData) error {
		for _, g := range d.games {
			if g.BroadcasterID == broadcasterID {
				out = g.Clone()
				return nil
			}
		}
		return ErrNotFound
	})
	return out, err
}

func (s *MemoryStore) SaveGame(ctx context.Context, game *models.Game) error {
	return s.write(func(d *memoryData) error {
		if _, ok := d.games[game.ID]; !ok {
			return ErrNotFound
		}
		game.UpdatedAt = time.Now()
		d.games[game.ID] = game.Clone()
		return nil
	})
}

func (s *MemoryStore) DeleteGame(ctx context.Context, id string) error {
	return s.write(func(d *memoryData) error {
		if _, ok := d.games[id]; !ok {
			return ErrNotFound
		}
		delete(d.games, id)
		for sid, sub := range d.submissions {
			if sub.GameID == id {
				delete(d.submissions, sid)
			}
		}
		return nil
	})
}

// --- participants ---

func (s *MemoryStore) CreateParticipant(ctx context.Context, p *models.Participant) error {
	return s.write(func(d *memoryData) error {
		if _, ok := d.participants[p.ID]; ok {
			return ErrDuplicate
		}
		for _, existing := range d.participants {
			if existing.Phone == p.Phone || existing.ReferralCode == p.ReferralCode {
				return ErrDuplicate
			}
		}
		now := time.Now()
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		p.UpdatedAt = now
		d.participants[p.ID] = p.Clone()
		return nil
	})
}

func (s *MemoryStore) GetParticipant(ctx context.Context, id string) (*models.Participant, error) {
	var out *models.Participant
	err := s.read(func(d *memoryData) error {
		p, ok := d.participants[id]
		if !ok {
			return ErrNotFound
		}
		out = p.Clone()
		return nil
	})
	return out, err
}

func (s *MemoryStore) LockParticipant(ctx context.Context, id string) (*models.Participant, error) {
	return s.GetParticipant(ctx, id)
}

func (s *MemoryStore) findParticipant(match func(p *models.Participant) bool) (*models.Participant, error) {
	var out *models.Participant
	err := s.read(func(d *memoryData) error {
		for _, p := range d.participants {
			if match(p) {
				out = p.Clone()
				return nil
			}
		}
		return ErrNotFound
	})
	return out, err
}

func (s *MemoryStore) FindParticipantByPhone(ctx context.Context, phone string) (*models.Participant, error) {
	return s.findParticipant(func(p *models.Participant) bool { return p.Phone == phone })
}

func (s *MemoryStore) FindParticipantByReferralCode(ctx context.Context, code string) (*models.Participant, error) {
	return s.findParticipant(func(p *models.Participant) bool { return p.ReferralCode == code })
}

func (s *MemoryStore) SetReferredBy(ctx context.Context, participantID, referrerID string) error {
	return s.write(func(d *memoryData) error {
		p, ok := d.participants[participantID]
		if !ok {
			return ErrNotFound
		}
		if p.ReferredBy != nil {
			return ErrDuplicate
		}
		ref := referrerID
		p.ReferredBy = &ref
		p.UpdatedAt = time.Now()
		return nil
	})
}

func (s *MemoryStore) IncrementExtraGuesses(ctx context.Context, participantID string, delta int) error {
	return s.write(func(d *memoryData) error {
		p, ok := d.participants[participantID]
		if !ok {
			return ErrNotFound
		}
		p.ExtraGuesses += delta
		p.UpdatedAt = time.Now()
		return nil
	})
}

// --- referral grants ---

func (s *MemoryStore) CreateReferralGrant(ctx context.Context, grant *models.ReferralGrant) error {
	return s.write(func(d *memoryData) error {
		for _, g := range d.grants {
			if g.ID == grant.ID || g.ReferredID == grant.ReferredID {
				return ErrDuplicate
			}
		}
		g := *grant
		d.grants[g.ID] = &g
		return nil
	})
}

func (s *MemoryStore) ListReferralGrants(ctx context.Context, referrerID string) ([]models.ReferralGrant, error) {
	var out []models.ReferralGrant
	err := s.read(func(d *memoryData) error {
		for _, g := range d.grants {
			if g.ReferrerID == referrerID {
				out = append(out, *g)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].GrantedAt.Equal(out[j].GrantedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].GrantedAt.Before(out[j].GrantedAt)
	})
	return out, err
}

// --- submissions ---

func (s *MemoryStore) CreateSubmission(ctx context.Context, sub *models.Submission) error {
	return s.write(func(d *memoryData) error {
		if _, ok := d.submissions[sub.ID]; ok {
			return ErrDuplicate
		}
		if sub.CreatedAt.IsZero() {
			sub.CreatedAt = time.Now()
		}
		sub.UpdatedAt = sub.CreatedAt
		cp := *sub
		d.submissions[sub.ID] = &cp
		return nil
	})
}

func (s *MemoryStore) GetSubmission(ctx context.Context, id string) (*models.Submission, error) {
	var out *models.Submission
	err := s.read(func(d *memoryData) error {
		sub, ok := d.submissions[id]
		if !ok {
			return ErrNotFound
		}
		cp := *sub
		out = &cp
		return nil
	})
	return out, err
}

func (s *MemoryStore) UpdateSubmissionGuess(ctx context.Context, id, guess string) error {
	return s.write(func(d *memoryData) error {
		sub, ok := d.submissions[id]
		if !ok {
			return ErrNotFound
		}
		sub.Guess = guess
		sub.UpdatedAt = time.Now()
		return nil
	})
}

func (s *MemoryStore) DeleteSubmission(ctx context.Context, id string) error {
	return s.write(func(d *memoryData) error {
		if _, ok := d.submissions[id]; !ok {
			return ErrNotFound
		}
		delete(d.submissions, id)
		return nil
	})
}

func (s *MemoryStore) CountSubmissions(ctx context.Context, gameID, participantID string) (int64, error) {
	var n int64
	err := s.read(func(d *memoryData) error {
		for _, sub := range d.submissions {
			if sub.GameID == gameID && sub.ParticipantID == participantID {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (s *MemoryStore) ListSubmissions(ctx context.Context, gameID string) ([]models.Submission, error) {
	var out []models.Submission
	err := s.read(func(d *memoryData) error {
		for _, sub := range d.submissions {
			if sub.GameID == gameID {
				out = append(out, *sub)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, err
}

// --- validation cache ---

func (s *MemoryStore) GetValidation(ctx context.Context, key string) (*models.ValidationResult, error) {
	var out *models.ValidationResult
	err := s.read(func(d *memoryData) error {
		r, ok := d.validations[key]
		if !ok {
			return ErrNotFound
		}
		cp := *r
		out = &cp
		return nil
	})
	return out, err
}

func (s *MemoryStore) PutValidation(ctx context.Context, result *models.ValidationResult) error {
	return s.write(func(d *memoryData) error {
		cp := *result
		d.validations[result.Key] = &cp
		return nil
	})
}

func (s *MemoryStore) PruneValidations(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	err := s.write(func(d *memoryData) error {
		for k, r := range d.validations {
			if r.ValidatedAt.Before(before) {
				delete(d.validations, k)
				n++
			}
		}
		return nil
	})
	return n, err
}
