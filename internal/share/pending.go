package share

import (
	"regexp"
	"strconv"
	"strings"
)

// A solicitação pendente hoje vive na tabela share_requests, mas a
// mensagem da notificação continua carregando os ids no sufixo
// histórico para interoperar com dados gravados pelo formato antigo,
// em que a notificação era o único registro do pedido.
const (
	marcadorViewer = "|||VIEWER_ID:"
	marcadorOwner  = "|||OWNER_ID:"
)

var (
	reViewerPrimario = regexp.MustCompile(`\|\|\|VIEWER_ID:(\d+)`)
	reViewerLegado   = regexp.MustCompile(`\[VIEWER_ID:(\d+)\]`)
	reEmailParens    = regexp.MustCompile(`\(([^)]+@[^)]+)\)`)
)

// EncodeMensagem monta a mensagem da notificação de solicitação:
// texto visível seguido do sufixo estruturado, removido na UI.
func EncodeMensagem(visivel string, viewerID, ownerID int64) string {
	return visivel +
		marcadorViewer + strconv.FormatInt(viewerID, 10) +
		marcadorOwner + strconv.FormatInt(ownerID, 10)
}

// ExtrairViewerID recupera o id do profissional da mensagem, tentando o
// marcador atual e depois o formato legado entre colchetes.
func ExtrairViewerID(mensagem string) (int64, bool) {
	for _, re := range []*regexp.Regexp{reViewerPrimario, reViewerLegado} {
		if m := re.FindStringSubmatch(mensagem); m != nil {
			id, err := strconv.ParseInt(m[1], 10, 64)
			if err == nil {
				return id, true
			}
		}
	}
	return 0, false
}

// ExtrairEmail recupera o e-mail entre parênteses do texto visível,
// último recurso quando nenhum marcador está presente.
func ExtrairEmail(mensagem string) (string, bool) {
	if m := reEmailParens.FindStringSubmatch(mensagem); m != nil {
		return m[1], true
	}
	return "", false
}

// MensagemContemViewer verifica se a mensagem referencia o profissional
// pelo id embutido ou pelo e-mail em qualquer posição do texto. Usado na
// guarda de duplicidade sobre notificações antigas.
func MensagemContemViewer(mensagem string, viewerID int64, viewerEmail string) bool {
	if id, ok := ExtrairViewerID(mensagem); ok && id == viewerID {
		return true
	}
	return viewerEmail != "" && strings.Contains(mensagem, viewerEmail)
}
