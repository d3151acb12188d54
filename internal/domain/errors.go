package domain

import "errors"

// Categorias de falha do núcleo. O boundary HTTP traduz cada categoria
// para status e código; os serviços nunca dependem de status HTTP.
var (
	// ErrBadRequest indica entrada ausente ou inválida.
	ErrBadRequest = errors.New("dados inválidos")
	// ErrForbidden indica falha de papel ou de posse do recurso.
	ErrForbidden = errors.New("sem permissão")
	// ErrNotFound indica entidade inexistente.
	ErrNotFound = errors.New("registro não encontrado")
	// ErrConflict indica duplicidade ou solicitação já tratada.
	ErrConflict = errors.New("registro já existe")
	// ErrInvalidState indica violação de guarda do workflow.
	ErrInvalidState = errors.New("operação não permitida neste estado")
	// ErrInvalidRole indica contraparte com perfil incompatível.
	ErrInvalidRole = errors.New("perfil incompatível com a operação")
)

// Error carrega a categoria e uma mensagem voltada ao usuário.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

// BadRequest cria erro de validação com mensagem própria.
func BadRequest(msg string) error { return &Error{Kind: ErrBadRequest, Msg: msg} }

// Forbidden cria erro de permissão com mensagem própria.
func Forbidden(msg string) error { return &Error{Kind: ErrForbidden, Msg: msg} }

// NotFound cria erro de ausência com mensagem própria.
func NotFound(msg string) error { return &Error{Kind: ErrNotFound, Msg: msg} }

// Conflict cria erro de duplicidade com mensagem própria.
func Conflict(msg string) error { return &Error{Kind: ErrConflict, Msg: msg} }

// InvalidState cria erro de guarda de workflow com mensagem própria.
func InvalidState(msg string) error { return &Error{Kind: ErrInvalidState, Msg: msg} }

// InvalidRole cria erro de perfil incompatível com mensagem própria.
func InvalidRole(msg string) error { return &Error{Kind: ErrInvalidRole, Msg: msg} }

// Message devolve a mensagem do erro quando for de domínio, ou fallback.
func Message(err error, fallback string) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Msg
	}
	return fallback
}
