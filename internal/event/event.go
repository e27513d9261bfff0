// Package event содержит уведомления сервиса краудфандинга и шину их доставки.
package event

import (
	"time"

	"github.com/mmeshcher/crowdfund-system/internal/model"
)

// Type — тип уведомления.
type Type string

const (
	// TypeCreatorRegistered — контроллер зарегистрировал нового создателя кампаний.
	TypeCreatorRegistered Type = "creator.registered"
	// TypeCampaignLaunched — создана новая кампания.
	TypeCampaignLaunched Type = "campaign.launched"
	// TypeContribution — принят вклад в кампанию.
	TypeContribution Type = "campaign.contribution"
	// TypeCampaignStateChanged — кампания перешла в новое состояние.
	TypeCampaignStateChanged Type = "campaign.state_changed"
	// TypeFundsWithdrawn — создатель вывел собранные средства.
	TypeFundsWithdrawn Type = "campaign.funds_withdrawn"
	// TypeRefundIssued — вкладчику возвращён его вклад.
	TypeRefundIssued Type = "campaign.refund_issued"
	// TypeCampaignUpdatePosted — создатель опубликовал обновление кампании.
	TypeCampaignUpdatePosted Type = "campaign.update_posted"
)

// Types возвращает все типы уведомлений, публикуемые сервисом.
func Types() []Type {
	return []Type{
		TypeCreatorRegistered,
		TypeCampaignLaunched,
		TypeContribution,
		TypeCampaignStateChanged,
		TypeFundsWithdrawn,
		TypeRefundIssued,
		TypeCampaignUpdatePosted,
	}
}

// Event — конверт уведомления, передаваемый подписчикам шины.
type Event struct {
	Type      Type
	Timestamp time.Time
	Data      any
}

// NewEvent создаёт конверт уведомления с текущим временем.
func NewEvent(t Type, data any) Event {
	return Event{
		Type:      t,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// CreatorRegistered — полезная нагрузка уведомления о регистрации создателя.
type CreatorRegistered struct {
	Principal model.Principal `json:"principal"`
}

// CampaignLaunched — полезная нагрузка уведомления о запуске кампании.
type CampaignLaunched struct {
	CampaignID int64           `json:"campaign_id"`
	Creator    model.Principal `json:"creator"`
	Goal       int64           `json:"goal"`
	Deadline   time.Time       `json:"deadline"`
}

// Contribution — полезная нагрузка уведомления о вкладе.
type Contribution struct {
	CampaignID  int64           `json:"campaign_id"`
	Contributor model.Principal `json:"contributor"`
	Amount      int64           `json:"amount"`
}

// CampaignStateChanged — полезная нагрузка уведомления о смене состояния кампании.
type CampaignStateChanged struct {
	CampaignID int64               `json:"campaign_id"`
	NewState   model.CampaignState `json:"new_state"`
}

// FundsWithdrawn — полезная нагрузка уведомления о выводе средств создателем.
type FundsWithdrawn struct {
	CampaignID int64 `json:"campaign_id"`
	Amount     int64 `json:"amount"`
}

// RefundIssued — полезная нагрузка уведомления о возврате вклада.
type RefundIssued struct {
	CampaignID  int64           `json:"campaign_id"`
	Contributor model.Principal `json:"contributor"`
	Amount      int64           `json:"amount"`
}

// CampaignUpdatePosted — полезная нагрузка уведомления о публикации обновления.
type CampaignUpdatePosted struct {
	CampaignID int64     `json:"campaign_id"`
	Message    string    `json:"message"`
	PostedAt   time.Time `json:"posted_at"`
}
