package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type memoryState struct {
	accounts     map[int64]Account
	nameKeys     map[int64]string
	categories   map[int64]Category
	categoryKeys map[int64]string
	transactions map[int64]Transaction
	recurring    map[int64]RecurringExpense
	nextID       int64
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		accounts:     make(map[int64]Account, len(s.accounts)),
		nameKeys:     make(map[int64]string, len(s.nameKeys)),
		categories:   make(map[int64]Category, len(s.categories)),
		categoryKeys: make(map[int64]string, len(s.categoryKeys)),
		transactions: make(map[int64]Transaction, len(s.transactions)),
		recurring:    make(map[int64]RecurringExpense, len(s.recurring)),
		nextID:       s.nextID,
	}
	for k, v := range s.accounts {
		out.accounts[k] = v
	}
	for k, v := range s.nameKeys {
		out.nameKeys[k] = v
	}
	for k, v := range s.categories {
		out.categories[k] = v
	}
	for k, v := range s.categoryKeys {
		out.categoryKeys[k] = v
	}
	for k, v := range s.transactions {
		out.transactions[k] = v
	}
	for k, v := range s.recurring {
		out.recurring[k] = v
	}
	return out
}

// memoryRepo serialises units of work and discards every change of a failed unit.
type memoryRepo struct {
	mu    sync.Mutex
	state memoryState
	// failInsert makes the n-th InsertTransaction call (1-based, counted per unit) fail.
	failInsert int
	failErr    error
	// beforeAdvance runs inside AdvanceRecurring ahead of the compare-and-swap.
	beforeAdvance func(state *memoryState, id int64)
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: memoryState{
		accounts:     map[int64]Account{},
		nameKeys:     map[int64]string{},
		categories:   map[int64]Category{},
		categoryKeys: map[int64]string{},
		transactions: map[int64]Transaction{},
		recurring:    map[int64]RecurringExpense{},
	}}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	work := &memoryTx{repo: r, state: r.state.clone()}
	if err := fn(ctx, work); err != nil {
		return err
	}
	r.state = work.state
	return nil
}

func (r *memoryRepo) seedCategory(name string, role CategoryRole, reserved, prohibited bool) Category {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.nextID++
	c := Category{ID: r.state.nextID, Name: name, Role: role, Reserved: reserved, DeletionProhibited: prohibited, CreatedAt: time.Now()}
	r.state.categories[c.ID] = c
	r.state.categoryKeys[c.ID] = foldName(name)
	return c
}

func (r *memoryRepo) account(id int64) Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.accounts[id]
}

func (r *memoryRepo) transactionsOf(accountID int64) []Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Transaction
	for _, t := range r.state.transactions {
		if t.AccountID == accountID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memoryRepo) recurringByID(id int64) RecurringExpense {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.recurring[id]
}

func (r *memoryRepo) setRecurring(e RecurringExpense) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.recurring[e.ID] = e
}

// ledgerSum recomputes the balance from history.
func (r *memoryRepo) ledgerSum(accountID int64) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range r.transactionsOf(accountID) {
		sum = sum.Add(t.Type.Signed(t.Amount))
	}
	return sum
}

type memoryTx struct {
	repo    *memoryRepo
	state   memoryState
	inserts int
}

func (tx *memoryTx) id() int64 {
	tx.state.nextID++
	return tx.state.nextID
}

func (tx *memoryTx) GetAccount(ctx context.Context, id int64) (Account, error) {
	a, ok := tx.state.accounts[id]
	if !ok {
		return Account{}, ErrAccountMissing
	}
	return a, nil
}

func (tx *memoryTx) FindActiveAccountByName(ctx context.Context, ownerID int64, nameKey string) (Account, error) {
	for id, a := range tx.state.accounts {
		if a.OwnerID == ownerID && a.Active && tx.state.nameKeys[id] == nameKey {
			return a, nil
		}
	}
	return Account{}, ErrAccountMissing
}

func (tx *memoryTx) ListAccounts(ctx context.Context, ownerID int64) ([]Account, error) {
	var out []Account
	for _, a := range tx.state.accounts {
		if a.OwnerID == ownerID && a.Active {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (tx *memoryTx) InsertAccount(ctx context.Context, ownerID int64, name, nameKey string, balance decimal.Decimal) (Account, error) {
	if _, err := tx.FindActiveAccountByName(ctx, ownerID, nameKey); err == nil {
		return Account{}, ErrDuplicateAccount
	}
	now := time.Now()
	a := Account{ID: tx.id(), OwnerID: ownerID, Name: name, Balance: balance, Active: true, Version: 1, CreatedAt: now, UpdatedAt: now}
	tx.state.accounts[a.ID] = a
	tx.state.nameKeys[a.ID] = nameKey
	return a, nil
}

func (tx *memoryTx) UpdateAccountBalance(ctx context.Context, id, expectedVersion int64, balance decimal.Decimal) (Account, error) {
	a, ok := tx.state.accounts[id]
	if !ok || a.Version != expectedVersion {
		return Account{}, ErrVersionConflict
	}
	a.Balance = balance
	a.Version++
	a.UpdatedAt = time.Now()
	tx.state.accounts[id] = a
	return a, nil
}

func (tx *memoryTx) UpdateAccountIdentity(ctx context.Context, id, expectedVersion int64, name, nameKey string, active bool) (Account, error) {
	a, ok := tx.state.accounts[id]
	if !ok || a.Version != expectedVersion {
		return Account{}, ErrVersionConflict
	}
	a.Name = name
	a.Active = active
	a.Version++
	a.UpdatedAt = time.Now()
	tx.state.accounts[id] = a
	tx.state.nameKeys[id] = nameKey
	return a, nil
}

func (tx *memoryTx) GetCategory(ctx context.Context, id int64) (Category, error) {
	c, ok := tx.state.categories[id]
	if !ok {
		return Category{}, ErrCategoryMissing
	}
	return c, nil
}

func (tx *memoryTx) GetCategoryByRole(ctx context.Context, role CategoryRole) (Category, error) {
	for _, c := range tx.state.categories {
		if c.Role == role && role != CategoryRoleNone {
			return c, nil
		}
	}
	return Category{}, ErrCategoryMissing
}

func (tx *memoryTx) ListCategories(ctx context.Context) ([]Category, error) {
	var out []Category
	for _, c := range tx.state.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (tx *memoryTx) InsertCategory(ctx context.Context, name, nameKey string) (Category, error) {
	for _, key := range tx.state.categoryKeys {
		if key == nameKey {
			return Category{}, ErrDuplicateCategory
		}
	}
	c := Category{ID: tx.id(), Name: name, CreatedAt: time.Now()}
	tx.state.categories[c.ID] = c
	tx.state.categoryKeys[c.ID] = nameKey
	return c, nil
}

func (tx *memoryTx) InsertTransaction(ctx context.Context, in NewTransaction) (Transaction, error) {
	tx.inserts++
	if tx.repo.failInsert > 0 && tx.inserts == tx.repo.failInsert {
		return Transaction{}, tx.repo.failErr
	}
	t := Transaction{
		ID:          tx.id(),
		AccountID:   in.AccountID,
		CategoryID:  in.CategoryID,
		Amount:      in.Amount,
		Type:        in.Type,
		Date:        in.Date,
		Description: in.Description,
		TransferID:  in.TransferID,
		RecurringID: in.RecurringID,
		CreatedAt:   time.Now(),
	}
	tx.state.transactions[t.ID] = t
	return t, nil
}

func (tx *memoryTx) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	t, ok := tx.state.transactions[id]
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	return t, nil
}

func (tx *memoryTx) ListTransactions(ctx context.Context, accountID int64) ([]Transaction, error) {
	var out []Transaction
	for _, t := range tx.state.transactions {
		if t.AccountID == accountID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (tx *memoryTx) DeleteTransaction(ctx context.Context, id int64) error {
	if _, ok := tx.state.transactions[id]; !ok {
		return ErrTransactionNotFound
	}
	delete(tx.state.transactions, id)
	return nil
}

func (tx *memoryTx) InsertRecurring(ctx context.Context, in NewRecurringExpense) (RecurringExpense, error) {
	next := in.NextDueDate
	now := time.Now()
	e := RecurringExpense{
		ID:          tx.id(),
		OwnerID:     in.OwnerID,
		Name:        in.Name,
		Amount:      in.Amount,
		AccountID:   in.AccountID,
		CategoryID:  in.CategoryID,
		Frequency:   in.Frequency,
		StartDate:   in.StartDate,
		NextDueDate: &next,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx.state.recurring[e.ID] = e
	return e, nil
}

func (tx *memoryTx) GetRecurring(ctx context.Context, id int64) (RecurringExpense, error) {
	e, ok := tx.state.recurring[id]
	if !ok {
		return RecurringExpense{}, ErrPaymentNotFound
	}
	return e, nil
}

func (tx *memoryTx) ListRecurring(ctx context.Context, ownerID int64) ([]RecurringExpense, error) {
	var out []RecurringExpense
	for _, e := range tx.state.recurring {
		if e.OwnerID == ownerID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tx *memoryTx) ListDueRecurring(ctx context.Context, today time.Time) ([]RecurringExpense, error) {
	var out []RecurringExpense
	for _, e := range tx.state.recurring {
		if e.Active && e.NextDueDate != nil && !e.NextDueDate.After(today) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tx *memoryTx) UpdateRecurring(ctx context.Context, e RecurringExpense) error {
	if _, ok := tx.state.recurring[e.ID]; !ok {
		return ErrPaymentNotFound
	}
	e.UpdatedAt = time.Now()
	tx.state.recurring[e.ID] = e
	return nil
}

func (tx *memoryTx) AdvanceRecurring(ctx context.Context, id int64, expectedDue, lastPayment, nextDue time.Time) error {
	if tx.repo.beforeAdvance != nil {
		tx.repo.beforeAdvance(&tx.state, id)
	}
	e, ok := tx.state.recurring[id]
	if !ok || !e.Active || e.NextDueDate == nil || !e.NextDueDate.Equal(expectedDue) {
		return ErrAlreadyCharged
	}
	e.LastPayment = &lastPayment
	e.NextDueDate = &nextDue
	e.UpdatedAt = time.Now()
	tx.state.recurring[id] = e
	return nil
}

func (tx *memoryTx) DeleteRecurring(ctx context.Context, id int64) error {
	if _, ok := tx.state.recurring[id]; !ok {
		return ErrPaymentNotFound
	}
	delete(tx.state.recurring, id)
	return nil
}
