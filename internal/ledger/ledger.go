package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/tokenmarket/internal/models"
)

var (
	// ErrInsufficientBalance is returned when the sender can't cover a transfer or a burn
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrMissingRole is returned when the caller lacks the role for an operation
	ErrMissingRole = errors.New("missing role")
	// ErrInvalidAmount is returned for negative or fractional amounts
	ErrInvalidAmount = errors.New("amount must be a non-negative integer")
)

// Role is an access control role on a ledger.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMinter Role = "minter"
	RoleBurner Role = "burner"
)

// Ledger is the balance-keeping side of a fungible asset.
type Ledger interface {
	BalanceOf(account models.Address) decimal.Decimal
	Transfer(from, to models.Address, amount decimal.Decimal) error
}

// Issuer creates and destroys supply. It is handed out as a capability bound
// to the holder of the minter and burner roles.
type Issuer interface {
	Mint(to models.Address, amount decimal.Decimal) error
	Burn(from models.Address, amount decimal.Decimal) error
}

// Memory is an in-memory ledger with role based issuance.
type Memory struct {
	symbol string

	mu          sync.RWMutex
	balances    map[models.Address]decimal.Decimal
	roles       map[Role]map[models.Address]bool
	totalSupply decimal.Decimal
}

// NewMemory creates a ledger for the given symbol with admin holding the
// admin role.
func NewMemory(symbol string, admin models.Address) *Memory {
	l := &Memory{
		symbol:   symbol,
		balances: make(map[models.Address]decimal.Decimal),
		roles: map[Role]map[models.Address]bool{
			RoleAdmin:  {},
			RoleMinter: {},
			RoleBurner: {},
		},
	}
	l.roles[RoleAdmin][admin] = true
	return l
}

// Symbol returns the asset symbol.
func (l *Memory) Symbol() string {
	return l.symbol
}

func (l *Memory) BalanceOf(account models.Address) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[account]
}

// TotalSupply returns the amount currently in circulation.
func (l *Memory) TotalSupply() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totalSupply
}

func (l *Memory) Transfer(from, to models.Address, amount decimal.Decimal) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[from].LessThan(amount) {
		return fmt.Errorf("%s transfer of %s from %s: %w", l.symbol, amount, from, ErrInsufficientBalance)
	}
	l.balances[from] = l.balances[from].Sub(amount)
	l.balances[to] = l.balances[to].Add(amount)
	return nil
}

// HasRole reports whether account holds role.
func (l *Memory) HasRole(role Role, account models.Address) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.roles[role][account]
}

// Grant gives role to account. Only admins may grant.
func (l *Memory) Grant(caller models.Address, role Role, account models.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.roles[RoleAdmin][caller] {
		return fmt.Errorf("account %s is missing role %s: %w", caller, RoleAdmin, ErrMissingRole)
	}
	if _, ok := l.roles[role]; !ok {
		l.roles[role] = make(map[models.Address]bool)
	}
	l.roles[role][account] = true
	return nil
}

// Revoke removes role from account. Only admins may revoke.
func (l *Memory) Revoke(caller models.Address, role Role, account models.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.roles[RoleAdmin][caller] {
		return fmt.Errorf("account %s is missing role %s: %w", caller, RoleAdmin, ErrMissingRole)
	}
	delete(l.roles[role], account)
	return nil
}

// Capability returns the issuance capability of holder. Roles are checked on
// every call, so revoking a role disables an outstanding capability.
func (l *Memory) Capability(holder models.Address) Issuer {
	return &capability{ledger: l, holder: holder}
}

func (l *Memory) mint(holder, to models.Address, amount decimal.Decimal) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.roles[RoleMinter][holder] {
		return fmt.Errorf("account %s is missing role %s: %w", holder, RoleMinter, ErrMissingRole)
	}
	l.balances[to] = l.balances[to].Add(amount)
	l.totalSupply = l.totalSupply.Add(amount)
	return nil
}

func (l *Memory) burn(holder, from models.Address, amount decimal.Decimal) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.roles[RoleBurner][holder] {
		return fmt.Errorf("account %s is missing role %s: %w", holder, RoleBurner, ErrMissingRole)
	}
	if l.balances[from].LessThan(amount) {
		return fmt.Errorf("%s burn of %s from %s: %w", l.symbol, amount, from, ErrInsufficientBalance)
	}
	l.balances[from] = l.balances[from].Sub(amount)
	l.totalSupply = l.totalSupply.Sub(amount)
	return nil
}

type capability struct {
	ledger *Memory
	holder models.Address
}

func (c *capability) Mint(to models.Address, amount decimal.Decimal) error {
	return c.ledger.mint(c.holder, to, amount)
}

func (c *capability) Burn(from models.Address, amount decimal.Decimal) error {
	return c.ledger.burn(c.holder, from, amount)
}

func validAmount(amount decimal.Decimal) error {
	if amount.IsNegative() || !amount.Equal(amount.Truncate(0)) {
		return ErrInvalidAmount
	}
	return nil
}
