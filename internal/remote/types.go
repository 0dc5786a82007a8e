package remote

import "github.com/pv/callpanel-go/internal/model"

// Типы кадров протокола document gateway
const (
	frameGet     = "get"
	frameSet     = "set"
	frameWatch   = "watch"
	frameUnwatch = "unwatch"
	frameResult  = "result"
	frameUpdate  = "update"
)

// Frame кадр обмена с document gateway. Запросы get/set несут ID для
// корреляции с ответом; кадры update приходят без запроса для документов,
// на которые оформлена подписка.
type Frame struct {
	Type   string                 `json:"type"`
	ID     int64                  `json:"id,omitempty"`
	DocID  string                 `json:"docId,omitempty"`
	Record *model.PersistedRecord `json:"record,omitempty"`
	OK     bool                   `json:"ok,omitempty"`
	Found  bool                   `json:"found,omitempty"`
	Error  string                 `json:"error,omitempty"`
}
