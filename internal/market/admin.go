package market

import (
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/xtrntr/tokenmarket/internal/models"
)

// RegisterUser records referrer as the upline of user.
func (e *Engine) RegisterUser(user, referrer models.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.referrals.Register(user, referrer); err != nil {
		return err
	}
	e.publish(models.UserRegistered{User: user, Referrer: referrer})
	return nil
}

// Pause stops purchases and order placement. Cancellations and round
// changes keep working so sellers can always get their escrow back.
func (e *Engine) Pause(caller models.Address) error {
	return e.setPaused(caller, true)
}

// Unpause resumes trading.
func (e *Engine) Unpause(caller models.Address) error {
	return e.setPaused(caller, false)
}

func (e *Engine) setPaused(caller models.Address, paused bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.cfg.Owner {
		return ErrNotOwner
	}
	if e.paused == paused {
		if paused {
			return ErrPaused
		}
		return ErrNotPaused
	}
	e.paused = paused

	log.Infof("marketplace paused: %v", paused)
	e.publish(models.PauseChanged{Paused: paused})
	return nil
}

// Withdraw sends amount of the marketplace revenue to the given account.
func (e *Engine) Withdraw(caller, to models.Address, amount decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.cfg.Owner {
		return ErrNotOwner
	}
	if err := wholeUnits(amount); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return ErrZeroAmount
	}
	if err := e.funds.Transfer(e.cfg.Self, to, amount); err != nil {
		return err
	}

	log.WithFields(log.Fields{"to": to, "amount": amount}).Info("revenue withdrawn")
	e.publish(models.Withdrawal{To: to, Amount: amount})
	return nil
}
