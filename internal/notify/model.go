package notify

import "time"

// Tipos de notificação gravados na coluna tipo.
const (
	TipoVinculoSolicitado = "care_link_request"
	TipoVinculoAceito     = "care_link_accepted"
	TipoVinculoRejeitado  = "care_link_rejected"
	TipoVinculoRemovido   = "care_link_removed"
	TipoShareSolicitado   = "share_request"
	TipoShareAceito       = "share_accepted"
	TipoShareRejeitado    = "share_rejected"
	TipoPedidoAjuda       = "help_request"
)

// Notificacao é o registro entregue ao destinatário. Workflows criam;
// só a flag Lida muda depois, e CareLinkID pode ser anulado quando o
// vínculo referenciado é removido.
type Notificacao struct {
	ID             int64      `json:"id"`
	UserID         int64      `json:"user_id"`
	Tipo           string     `json:"tipo"`
	Titulo         string     `json:"titulo"`
	Mensagem       string     `json:"mensagem"`
	Lida           bool       `json:"lida"`
	CareLinkID     *int64     `json:"care_link_id"`
	ShareID        *int64     `json:"share_id"`
	ShareRequestID *int64     `json:"share_request_id"`
	CriadoEm       time.Time  `json:"created_at"`
}
