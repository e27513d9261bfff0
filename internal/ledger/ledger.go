// Package ledger реализует учёт краудфандинговых кампаний: состояния,
// вклады, дедлайны и выплаты.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mmeshcher/crowdfund-system/internal/event"
	"github.com/mmeshcher/crowdfund-system/internal/model"
)

// Сигнальные ошибки операций леджера.
var (
	ErrCampaignNotFound      = errors.New("campaign not found")
	ErrNotRegistered         = errors.New("caller is not a registered creator")
	ErrNotCreator            = errors.New("caller is not the campaign creator")
	ErrInvalidState          = errors.New("operation not allowed in current campaign state")
	ErrCampaignExpired       = errors.New("campaign deadline has passed")
	ErrDeadlineNotReached    = errors.New("campaign deadline has not been reached")
	ErrNoContribution        = errors.New("no contribution to refund")
	ErrInvalidAmount         = errors.New("contribution amount must be positive")
	ErrNegativeGoal          = errors.New("campaign goal must not be negative")
	ErrNegativeDuration      = errors.New("campaign duration must not be negative")
	ErrEmptyUpdate           = errors.New("update message is empty")
	ErrUpdateTooLong         = errors.New("update message is too long")
	ErrUpdateIndexOutOfRange = errors.New("update index out of range")
	ErrTransferFailed        = errors.New("funds transfer failed")
)

const (
	// CentsPerUnit — масштаб перевода денежных единиц в минимальные единицы учёта.
	CentsPerUnit = 100
	// UpdateMaxLength — максимальная длина сообщения обновления в байтах.
	UpdateMaxLength = 500
	// hoursPerDay используется при расчёте дедлайна из срока в днях.
	hoursPerDay = 24
)

// AuthChecker отвечает, разрешено ли участнику создавать кампании.
type AuthChecker interface {
	IsRegistered(principal model.Principal) bool
}

// Payer выполняет внешний перевод средств получателю. Перевод либо
// выполняется целиком, либо возвращает ошибку.
type Payer interface {
	Transfer(ctx context.Context, to model.Principal, amount int64) error
}

// Events описывает контракт шины уведомлений, используемый леджером.
type Events interface {
	Publish(evt event.Event) bool
}

// campaign — внутренняя запись кампании с собственным суб-леджером вкладов.
// Записи никогда не покидают леджер: наружу отдаются только копии.
type campaign struct {
	id          int64
	creator     model.Principal
	goal        int64
	totalRaised int64
	state       model.CampaignState
	deadline    time.Time
	createdAt   time.Time
	pledges     map[model.Principal]int64
	updates     []model.Update
}

func (c *campaign) snapshot() model.Campaign {
	return model.Campaign{
		ID:          c.id,
		Creator:     c.creator,
		Goal:        c.goal,
		TotalRaised: c.totalRaised,
		State:       c.state,
		Deadline:    c.deadline,
		CreatedAt:   c.createdAt,
		Backers:     len(c.pledges),
		Updates:     len(c.updates),
	}
}

// Ledger владеет коллекцией кампаний. Идентификаторы кампаний — плотные
// последовательные числа, стабильные на всё время жизни процесса.
type Ledger struct {
	mu        sync.Mutex
	campaigns []*campaign

	auth   AuthChecker
	payer  Payer
	events Events

	now func() time.Time
}

// New создаёт леджер. Реестр создателей обязателен, система переводов и
// шина уведомлений могут отсутствовать.
func New(auth AuthChecker, payer Payer, events Events) (*Ledger, error) {
	if auth == nil {
		return nil, errors.New("auth checker is required")
	}
	return &Ledger{
		auth:   auth,
		payer:  payer,
		events: events,
		now:    time.Now,
	}, nil
}

func (l *Ledger) publish(t event.Type, data any) {
	if l.events != nil {
		l.events.Publish(event.NewEvent(t, data))
	}
}

func (l *Ledger) transfer(ctx context.Context, to model.Principal, amount int64) error {
	if l.payer == nil {
		return errors.New("payout system not configured")
	}
	return l.payer.Transfer(ctx, to, amount)
}

// campaignLocked возвращает запись кампании по идентификатору.
// Вызывается только под l.mu.
func (l *Ledger) campaignLocked(id int64) (*campaign, error) {
	if id < 0 || id >= int64(len(l.campaigns)) {
		return nil, ErrCampaignNotFound
	}
	return l.campaigns[id], nil
}

// CreateCampaign создаёт кампанию в состоянии сбора средств. Цель задаётся
// в денежных единицах и переводится в минимальные единицы учёта, срок — в
// днях от момента создания. Кампания с нулевой целью допустима: она станет
// успешной при первом же положительном вкладе.
func (l *Ledger) CreateCampaign(caller model.Principal, goalUnits, durationDays int64) (model.Campaign, error) {
	if caller.IsZero() {
		return model.Campaign{}, model.ErrZeroPrincipal
	}
	if !l.auth.IsRegistered(caller) {
		return model.Campaign{}, ErrNotRegistered
	}
	if goalUnits < 0 {
		return model.Campaign{}, ErrNegativeGoal
	}
	if durationDays < 0 {
		return model.Campaign{}, ErrNegativeDuration
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c := &campaign{
		id:        int64(len(l.campaigns)),
		creator:   caller,
		goal:      goalUnits * CentsPerUnit,
		state:     model.CampaignFundraising,
		deadline:  now.Add(time.Duration(durationDays) * hoursPerDay * time.Hour),
		createdAt: now,
		pledges:   make(map[model.Principal]int64),
	}
	l.campaigns = append(l.campaigns, c)

	l.publish(event.TypeCampaignLaunched, event.CampaignLaunched{
		CampaignID: c.id,
		Creator:    c.creator,
		Goal:       c.goal,
		Deadline:   c.deadline,
	})

	return c.snapshot(), nil
}

// Contribute принимает вклад в кампанию. Вклад зачисляется на суб-леджер
// вкладчика, и если собранная сумма достигла цели, кампания в той же
// операции становится успешной.
func (l *Ledger) Contribute(caller model.Principal, id, amount int64) (model.Campaign, error) {
	if caller.IsZero() {
		return model.Campaign{}, model.ErrZeroPrincipal
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	c, err := l.campaignLocked(id)
	if err != nil {
		return model.Campaign{}, err
	}
	if c.state != model.CampaignFundraising {
		return model.Campaign{}, ErrInvalidState
	}
	if !l.now().Before(c.deadline) {
		return model.Campaign{}, ErrCampaignExpired
	}
	if amount <= 0 {
		return model.Campaign{}, ErrInvalidAmount
	}

	c.pledges[caller] += amount
	c.totalRaised += amount

	l.publish(event.TypeContribution, event.Contribution{
		CampaignID:  id,
		Contributor: caller,
		Amount:      amount,
	})

	if c.totalRaised >= c.goal {
		c.state = model.CampaignSuccessful
		l.publish(event.TypeCampaignStateChanged, event.CampaignStateChanged{
			CampaignID: id,
			NewState:   model.CampaignSuccessful,
		})
	}

	return c.snapshot(), nil
}

// CheckUpkeep оценивает дедлайн кампании: если срок сбора истёк, кампания
// переводится в состояние Failed. Операция вызывается внешним планировщиком
// и повторный вызов после перехода возвращает ErrInvalidState.
func (l *Ledger) CheckUpkeep(id int64) (model.Campaign, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, err := l.campaignLocked(id)
	if err != nil {
		return model.Campaign{}, err
	}
	if c.state != model.CampaignFundraising {
		return model.Campaign{}, ErrInvalidState
	}
	if l.now().Before(c.deadline) {
		return model.Campaign{}, ErrDeadlineNotReached
	}

	c.state = model.CampaignFailed
	l.publish(event.TypeCampaignStateChanged, event.CampaignStateChanged{
		CampaignID: id,
		NewState:   model.CampaignFailed,
	})

	return c.snapshot(), nil
}

// WithdrawFunds выводит собранные средства создателю успешной кампании и
// закрывает её. Кампания закрывается до внешнего перевода, поэтому повторный
// вход со стороны получателя перевода видит её уже закрытой. При неудаче
// перевода закрытие откатывается и операция завершается ErrTransferFailed.
func (l *Ledger) WithdrawFunds(ctx context.Context, caller model.Principal, id int64) (int64, error) {
	if caller.IsZero() {
		return 0, model.ErrZeroPrincipal
	}

	l.mu.Lock()
	c, err := l.campaignLocked(id)
	if err != nil {
		l.mu.Unlock()
		return 0, err
	}
	if c.creator != caller {
		l.mu.Unlock()
		return 0, ErrNotCreator
	}
	if c.state != model.CampaignSuccessful {
		l.mu.Unlock()
		return 0, ErrInvalidState
	}

	amount := c.totalRaised
	c.state = model.CampaignClosed
	l.mu.Unlock()

	if err := l.transfer(ctx, caller, amount); err != nil {
		l.mu.Lock()
		c.state = model.CampaignSuccessful
		l.mu.Unlock()
		return 0, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	l.publish(event.TypeCampaignStateChanged, event.CampaignStateChanged{
		CampaignID: id,
		NewState:   model.CampaignClosed,
	})
	l.publish(event.TypeFundsWithdrawn, event.FundsWithdrawn{
		CampaignID: id,
		Amount:     amount,
	})

	return amount, nil
}

// Refund возвращает вкладчику его вклад в провалившуюся кампанию. Баланс
// вкладчика обнуляется до внешнего перевода, поэтому повторный вход со
// стороны получателя получает ErrNoContribution. При неудаче перевода баланс
// восстанавливается для повторной попытки.
func (l *Ledger) Refund(ctx context.Context, caller model.Principal, id int64) (int64, error) {
	if caller.IsZero() {
		return 0, model.ErrZeroPrincipal
	}

	l.mu.Lock()
	c, err := l.campaignLocked(id)
	if err != nil {
		l.mu.Unlock()
		return 0, err
	}
	if c.state != model.CampaignFailed {
		l.mu.Unlock()
		return 0, ErrInvalidState
	}
	amount := c.pledges[caller]
	if amount <= 0 {
		l.mu.Unlock()
		return 0, ErrNoContribution
	}

	delete(c.pledges, caller)
	l.mu.Unlock()

	if err := l.transfer(ctx, caller, amount); err != nil {
		l.mu.Lock()
		c.pledges[caller] = amount
		l.mu.Unlock()
		return 0, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	l.publish(event.TypeRefundIssued, event.RefundIssued{
		CampaignID:  id,
		Contributor: caller,
		Amount:      amount,
	})

	return amount, nil
}

// PostUpdate добавляет обновление в журнал кампании. Журнал только
// пополняется, сообщение ограничено по длине в байтах. Публиковать
// обновления может только создатель кампании, состояние кампании при этом
// не проверяется.
func (l *Ledger) PostUpdate(caller model.Principal, id int64, message string) (model.Update, error) {
	if caller.IsZero() {
		return model.Update{}, model.ErrZeroPrincipal
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	c, err := l.campaignLocked(id)
	if err != nil {
		return model.Update{}, err
	}
	if c.creator != caller {
		return model.Update{}, ErrNotCreator
	}
	if len(message) == 0 {
		return model.Update{}, ErrEmptyUpdate
	}
	if len(message) > UpdateMaxLength {
		return model.Update{}, ErrUpdateTooLong
	}

	u := model.Update{
		Message:  message,
		PostedAt: l.now(),
	}
	c.updates = append(c.updates, u)

	l.publish(event.TypeCampaignUpdatePosted, event.CampaignUpdatePosted{
		CampaignID: id,
		Message:    u.Message,
		PostedAt:   u.PostedAt,
	})

	return u, nil
}

// Campaigns возвращает копии всех кампаний в порядке их создания.
func (l *Ledger) Campaigns() []model.Campaign {
	l.mu.Lock()
	defer l.mu.Unlock()

	list := make([]model.Campaign, 0, len(l.campaigns))
	for _, c := range l.campaigns {
		list = append(list, c.snapshot())
	}
	return list
}

// CampaignByID возвращает копию кампании по идентификатору.
func (l *Ledger) CampaignByID(id int64) (model.Campaign, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, err := l.campaignLocked(id)
	if err != nil {
		return model.Campaign{}, err
	}
	return c.snapshot(), nil
}

// CampaignCount возвращает количество созданных кампаний.
func (l *Ledger) CampaignCount() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return int64(len(l.campaigns))
}

// PledgeOf возвращает текущий баланс вкладчика в кампании. Для участника,
// никогда не вносившего вклад, возвращается 0.
func (l *Ledger) PledgeOf(id int64, principal model.Principal) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, err := l.campaignLocked(id)
	if err != nil {
		return 0, err
	}
	return c.pledges[principal], nil
}

// Updates возвращает копию журнала обновлений кампании в порядке публикации.
func (l *Ledger) Updates(id int64) ([]model.Update, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, err := l.campaignLocked(id)
	if err != nil {
		return nil, err
	}
	list := make([]model.Update, len(c.updates))
	copy(list, c.updates)
	return list, nil
}

// UpdateCount возвращает количество обновлений кампании.
func (l *Ledger) UpdateCount(id int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, err := l.campaignLocked(id)
	if err != nil {
		return 0, err
	}
	return int64(len(c.updates)), nil
}

// UpdateAt возвращает обновление кампании по порядковому индексу.
func (l *Ledger) UpdateAt(id, index int64) (model.Update, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, err := l.campaignLocked(id)
	if err != nil {
		return model.Update{}, err
	}
	if index < 0 || index >= int64(len(c.updates)) {
		return model.Update{}, ErrUpdateIndexOutOfRange
	}
	return c.updates[index], nil
}
