package testing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/models"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/repository"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/utils"
)

type memoryTxKey struct{}

// memoryTx collects undo steps for the writes made inside one transaction
type memoryTx struct {
	mu   sync.Mutex
	undo []func()
}

// MemoryStore keeps every table in maps so flows can be tested without PostgreSQL.
// Transactions are not serialized: writes are visible immediately, and a failed
// transaction reverts only its own writes. Concurrent callers therefore race on
// TransitionStatus exactly as they race on the conditional UPDATE in PostgreSQL.
type MemoryStore struct {
	mu         sync.Mutex
	nextID     uint
	users      map[uint]models.User
	topUps     map[uint]models.TopUp
	rewards    map[uint]models.ReferralReward
	balanceTxs []models.BalanceTransaction
	audits     []models.AuditLog
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[uint]models.User),
		topUps:  make(map[uint]models.TopUp),
		rewards: make(map[uint]models.ReferralReward),
	}
}

func (s *MemoryStore) id() uint {
	s.nextID++
	return s.nextID
}

// WithinTransaction implements repository.Transactor
func (s *MemoryStore) WithinTransaction(ctx context.Context, fn func(context.Context) error) (err error) {
	if _, ok := ctx.Value(memoryTxKey{}).(*memoryTx); ok {
		return fn(ctx)
	}

	tx := &memoryTx{}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in transaction: %v", r)
		}
		if err != nil {
			s.rollback(tx)
		}
	}()

	return fn(context.WithValue(ctx, memoryTxKey{}, tx))
}

// onRollback registers an undo step for the transaction in ctx. Callers hold s.mu.
func (s *MemoryStore) onRollback(ctx context.Context, undo func()) {
	tx, ok := ctx.Value(memoryTxKey{}).(*memoryTx)
	if !ok {
		return
	}
	tx.mu.Lock()
	tx.undo = append(tx.undo, undo)
	tx.mu.Unlock()
}

func (s *MemoryStore) rollback(tx *memoryTx) {
	tx.mu.Lock()
	undo := tx.undo
	tx.undo = nil
	tx.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}
}

// AddUser inserts u and returns the stored copy with ID and UUID set
func (s *MemoryStore) AddUser(u models.User) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.id()
	}
	if u.UUID == uuid.Nil {
		u.UUID = uuid.New()
	}
	now := utils.UTCNow()
	u.CreatedAt, u.UpdatedAt = now, now
	s.users[u.ID] = u
	return &u
}

// AddTopUp inserts t and returns the stored copy with ID and UUIDs set
func (s *MemoryStore) AddTopUp(t models.TopUp) *models.TopUp {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fillTopUp(&t)
	s.topUps[t.ID] = t
	return &t
}

func (s *MemoryStore) fillTopUp(t *models.TopUp) {
	if t.ID == 0 {
		t.ID = s.id()
	}
	if t.UUID == uuid.Nil {
		t.UUID = uuid.New()
	}
	if t.CorrelationID == uuid.Nil {
		t.CorrelationID = uuid.New()
	}
	if t.Status == "" {
		t.Status = models.TopUpStatusCreated
	}
	now := utils.UTCNow()
	t.CreatedAt, t.UpdatedAt = now, now
}

// User returns the current state of a user
func (s *MemoryStore) User(id uint) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id]
}

// TopUp returns the current state of a top-up
func (s *MemoryStore) TopUp(id uint) models.TopUp {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topUps[id]
}

// Rewards returns every referral reward row
func (s *MemoryStore) Rewards() []models.ReferralReward {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ReferralReward, 0, len(s.rewards))
	for _, r := range s.rewards {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// BalanceTransactions returns the journal in insertion order
func (s *MemoryStore) BalanceTransactions() []models.BalanceTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.BalanceTransaction(nil), s.balanceTxs...)
}

// AuditLogs returns every audit row in insertion order
func (s *MemoryStore) AuditLogs() []models.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AuditLog(nil), s.audits...)
}

// AuditActions returns the action of every audit row in insertion order
func (s *MemoryStore) AuditActions() []string {
	logs := s.AuditLogs()
	out := make([]string, len(logs))
	for i, l := range logs {
		out[i] = l.Action
	}
	return out
}

// Repositories

// MemoryTopUpRepository implements repository.TopUpRepository over a MemoryStore
type MemoryTopUpRepository struct{ s *MemoryStore }

func (s *MemoryStore) TopUps() repository.TopUpRepository { return &MemoryTopUpRepository{s: s} }

func (r *MemoryTopUpRepository) ByID(ctx context.Context, id uint) (*models.TopUp, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.topUps[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

// ByIDForUpdate takes no lock, so only TransitionStatus keeps concurrent credits apart
func (r *MemoryTopUpRepository) ByIDForUpdate(ctx context.Context, id uint) (*models.TopUp, error) {
	return r.ByID(ctx, id)
}

func (r *MemoryTopUpRepository) ByUUID(ctx context.Context, id uuid.UUID) (*models.TopUp, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.topUps {
		if t.UUID == id {
			return &t, nil
		}
	}
	return nil, nil
}

func (r *MemoryTopUpRepository) ByOrderID(ctx context.Context, provider models.PaymentProvider, orderID string) (*models.TopUp, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.topUps {
		if t.Provider == provider && t.OrderID == orderID {
			return &t, nil
		}
	}
	return nil, nil
}

func (r *MemoryTopUpRepository) ListPending(ctx context.Context, afterID uint, limit int) ([]*models.TopUp, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*models.TopUp
	for _, t := range r.s.topUps {
		if t.Status != models.TopUpStatusCreated || t.ID <= afterID {
			continue
		}
		t := t
		out = append(out, &t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryTopUpRepository) Update(ctx context.Context, topUp *models.TopUp) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.topUps[topUp.ID]
	if !ok {
		return nil
	}
	prev := t
	t.PayURL = topUp.PayURL
	t.ExpiresAt = topUp.ExpiresAt
	t.UpdatedAt = utils.UTCNow()
	r.s.topUps[t.ID] = t
	r.s.onRollback(ctx, func() { r.s.topUps[prev.ID] = prev })
	return nil
}

func (r *MemoryTopUpRepository) TransitionStatus(ctx context.Context, id uint, from, to models.TopUpStatus, reason string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.topUps[id]
	if !ok || t.Status != from {
		return false, nil
	}
	prev := t
	now := utils.UTCNow()
	t.Status = to
	t.StatusReason = reason
	t.UpdatedAt = now
	if to == models.TopUpStatusCompleted {
		t.CompletedAt = &now
	}
	r.s.topUps[id] = t
	r.s.onRollback(ctx, func() { r.s.topUps[id] = prev })
	return true, nil
}

func (r *MemoryTopUpRepository) Save(ctx context.Context, topUp *models.TopUp) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.topUps {
		if t.Provider == topUp.Provider && t.OrderID == topUp.OrderID {
			return fmt.Errorf("failed to save entity: %w", gorm.ErrDuplicatedKey)
		}
	}
	r.s.fillTopUp(topUp)
	r.s.topUps[topUp.ID] = *topUp
	id := topUp.ID
	r.s.onRollback(ctx, func() { delete(r.s.topUps, id) })
	return nil
}

// MemoryUserRepository implements repository.UserRepository over a MemoryStore
type MemoryUserRepository struct{ s *MemoryStore }

func (s *MemoryStore) Users() repository.UserRepository { return &MemoryUserRepository{s: s} }

func (r *MemoryUserRepository) ByID(ctx context.Context, id uint) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *MemoryUserRepository) ByIDForUpdate(ctx context.Context, id uint) (*models.User, error) {
	return r.ByID(ctx, id)
}

func (r *MemoryUserRepository) ListAdmins(ctx context.Context) ([]*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.User
	for _, u := range r.s.users {
		if u.IsAdmin {
			u := u
			out = append(out, &u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryUserRepository) IncreaseBalance(ctx context.Context, userID uint, amount decimal.Decimal) error {
	return r.increase(ctx, userID, amount, false)
}

func (r *MemoryUserRepository) IncreaseReferralBalance(ctx context.Context, userID uint, amount decimal.Decimal) error {
	return r.increase(ctx, userID, amount, true)
}

func (r *MemoryUserRepository) increase(ctx context.Context, userID uint, amount decimal.Decimal, referral bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.addToBalance(userID, amount, referral); err != nil {
		return err
	}
	r.s.onRollback(ctx, func() { _ = r.s.addToBalance(userID, amount.Neg(), referral) })
	return nil
}

// addToBalance applies a delta so that undoing one transaction keeps concurrent increments. Callers hold s.mu.
func (s *MemoryStore) addToBalance(userID uint, amount decimal.Decimal, referral bool) error {
	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %d not found", userID)
	}
	if referral {
		u.ReferralBalance = u.ReferralBalance.Add(amount)
	} else {
		u.Balance = u.Balance.Add(amount)
	}
	u.UpdatedAt = utils.UTCNow()
	s.users[userID] = u
	return nil
}

func (r *MemoryUserRepository) Save(ctx context.Context, user *models.User) error {
	stored := r.s.AddUser(*user)
	*user = *stored
	return nil
}

// MemoryReferralRewardRepository implements repository.ReferralRewardRepository over a MemoryStore
type MemoryReferralRewardRepository struct{ s *MemoryStore }

func (s *MemoryStore) ReferralRewards() repository.ReferralRewardRepository {
	return &MemoryReferralRewardRepository{s: s}
}

func (r *MemoryReferralRewardRepository) ByID(ctx context.Context, id uint) (*models.ReferralReward, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rw, ok := r.s.rewards[id]
	if !ok {
		return nil, nil
	}
	return &rw, nil
}

func (r *MemoryReferralRewardRepository) ByTopUpID(ctx context.Context, topUpID uint) (*models.ReferralReward, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rw := range r.s.rewards {
		if rw.TopUpID == topUpID {
			return &rw, nil
		}
	}
	return nil, nil
}

func (r *MemoryReferralRewardRepository) Save(ctx context.Context, reward *models.ReferralReward) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rw := range r.s.rewards {
		if rw.TopUpID == reward.TopUpID {
			return repository.ErrDuplicateReferralReward
		}
	}
	reward.ID = r.s.id()
	if reward.UUID == uuid.Nil {
		reward.UUID = uuid.New()
	}
	reward.CreatedAt = utils.UTCNow()
	r.s.rewards[reward.ID] = *reward
	id := reward.ID
	r.s.onRollback(ctx, func() { delete(r.s.rewards, id) })
	return nil
}

// MemoryBalanceTransactionRepository implements repository.BalanceTransactionRepository over a MemoryStore
type MemoryBalanceTransactionRepository struct{ s *MemoryStore }

func (s *MemoryStore) BalanceTransactionRepo() repository.BalanceTransactionRepository {
	return &MemoryBalanceTransactionRepository{s: s}
}

// ErrDuplicateBalanceTransaction mirrors the (type, top_up_id, user_id) unique index
var ErrDuplicateBalanceTransaction = errors.New("balance transaction already exists")

func (r *MemoryBalanceTransactionRepository) Save(ctx context.Context, tx *models.BalanceTransaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.balanceTxs {
		if e.Type == tx.Type && e.TopUpID == tx.TopUpID && e.UserID == tx.UserID {
			return ErrDuplicateBalanceTransaction
		}
	}
	tx.ID = r.s.id()
	if tx.UUID == uuid.Nil {
		tx.UUID = uuid.New()
	}
	tx.CreatedAt = utils.UTCNow()
	r.s.balanceTxs = append(r.s.balanceTxs, *tx)
	id := tx.ID
	r.s.onRollback(ctx, func() {
		for i, e := range r.s.balanceTxs {
			if e.ID == id {
				r.s.balanceTxs = append(r.s.balanceTxs[:i], r.s.balanceTxs[i+1:]...)
				return
			}
		}
	})
	return nil
}

// MemoryAuditLogRepository implements repository.AuditLogRepository over a MemoryStore
type MemoryAuditLogRepository struct{ s *MemoryStore }

func (s *MemoryStore) AuditLogRepo() repository.AuditLogRepository {
	return &MemoryAuditLogRepository{s: s}
}

func (r *MemoryAuditLogRepository) ByID(ctx context.Context, id uint) (*models.AuditLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, l := range r.s.audits {
		if l.ID == id {
			return &l, nil
		}
	}
	return nil, nil
}

func (r *MemoryAuditLogRepository) Save(ctx context.Context, log *models.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	log.ID = r.s.id()
	log.CreatedAt = utils.UTCNow()
	r.s.audits = append(r.s.audits, *log)
	id := log.ID
	r.s.onRollback(ctx, func() {
		for i, l := range r.s.audits {
			if l.ID == id {
				r.s.audits = append(r.s.audits[:i], r.s.audits[i+1:]...)
				return
			}
		}
	})
	return nil
}
