// Package model содержит доменные сущности сервиса краудфандинга.
package model

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Principal — идентификатор внешнего участника (создателя, вкладчика, контроллера).
// Формат — адрес внешнего счёта вида 0x + 40 шестнадцатеричных символов.
type Principal string

// ZeroPrincipal — нулевой адрес; недопустим везде, где принимается Principal.
const ZeroPrincipal Principal = "0x0000000000000000000000000000000000000000"

// ErrZeroPrincipal возвращается при передаче пустого или нулевого идентификатора участника.
var ErrZeroPrincipal = errors.New("zero principal")

// IsZero сообщает, является ли идентификатор пустым или нулевым адресом.
func (p Principal) IsZero() bool {
	if p == "" {
		return true
	}
	s := strings.TrimPrefix(strings.ToLower(string(p)), "0x")
	if s == "" {
		return true
	}
	for _, ch := range s {
		if ch != '0' {
			return false
		}
	}
	return true
}

// CampaignState описывает состояние кампании.
type CampaignState string

const (
	// CampaignFundraising — сбор средств продолжается.
	CampaignFundraising CampaignState = "FUNDRAISING"
	// CampaignSuccessful — цель достигнута до дедлайна, средства ожидают вывода создателем.
	CampaignSuccessful CampaignState = "SUCCESSFUL"
	// CampaignFailed — дедлайн прошёл, цель не достигнута, вкладчикам доступен возврат.
	CampaignFailed CampaignState = "FAILED"
	// CampaignClosed — средства выведены создателем, кампания завершена.
	CampaignClosed CampaignState = "CLOSED"
)

// Campaign — снимок состояния кампании. Денежные суммы хранятся в центах.
type Campaign struct {
	ID          int64
	Creator     Principal
	Goal        int64
	TotalRaised int64
	State       CampaignState
	Deadline    time.Time
	CreatedAt   time.Time
	Backers     int
	Updates     int
}

// Update — запись в журнале обновлений кампании.
type Update struct {
	Message  string
	PostedAt time.Time
}

// Notification — сохранённое уведомление из журнала уведомлений.
type Notification struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
