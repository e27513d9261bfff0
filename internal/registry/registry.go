// Package registry реализует реестр создателей кампаний.
package registry

import (
	"errors"
	"sync"

	"github.com/mmeshcher/crowdfund-system/internal/event"
	"github.com/mmeshcher/crowdfund-system/internal/model"
)

// ErrNotController возвращается, когда регистрацию запрашивает не контроллер.
var ErrNotController = errors.New("caller is not the controller")

// Events описывает контракт шины уведомлений, используемый реестром.
type Events interface {
	Publish(evt event.Event) bool
}

// Gate — реестр участников, которым разрешено создавать кампании.
// Реестром управляет единственный контроллер, назначаемый при создании
// и не подлежащий замене.
type Gate struct {
	mu         sync.RWMutex
	controller model.Principal
	registered map[model.Principal]bool
	events     Events
}

// NewGate создаёт реестр с указанным контроллером.
func NewGate(controller model.Principal, events Events) (*Gate, error) {
	if controller.IsZero() {
		return nil, model.ErrZeroPrincipal
	}
	return &Gate{
		controller: controller,
		registered: make(map[model.Principal]bool),
		events:     events,
	}, nil
}

// Controller возвращает контроллера реестра.
func (g *Gate) Controller() model.Principal {
	return g.controller
}

// RegisterCreator регистрирует участника как создателя кампаний. Операция
// доступна только контроллеру. Повторная регистрация завершается успешно,
// но уведомление публикуется только при первой.
func (g *Gate) RegisterCreator(caller, creator model.Principal) error {
	if caller != g.controller {
		return ErrNotController
	}
	if creator.IsZero() {
		return model.ErrZeroPrincipal
	}

	g.mu.Lock()
	already := g.registered[creator]
	if !already {
		g.registered[creator] = true
	}
	g.mu.Unlock()

	if !already && g.events != nil {
		g.events.Publish(event.NewEvent(event.TypeCreatorRegistered, event.CreatorRegistered{
			Principal: creator,
		}))
	}

	return nil
}

// IsRegistered сообщает, зарегистрирован ли участник как создатель кампаний.
// Запрос не имеет отказов: для незнакомого участника возвращается false.
func (g *Gate) IsRegistered(principal model.Principal) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.registered[principal]
}
