package notify

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// Evento é o payload publicado quando uma notificação é criada.
type Evento struct {
	NotificacaoID int64     `json:"notificacao_id"`
	UserID        int64     `json:"user_id"`
	Tipo          string    `json:"tipo"`
	CriadoEm      time.Time `json:"criado_em"`
}

// Publisher replica notificações em uma fila durável para consumidores
// externos (push, e-mail). Totalmente opcional: nil desliga a publicação.
type Publisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
	cb    *gobreaker.CircuitBreaker
}

// NewPublisher conecta ao broker e declara a fila. URL vazia devolve nil.
func NewPublisher(amqpURL, queue string) (*Publisher, error) {
	if amqpURL == "" {
		return nil, nil
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "notificacoes-amqp",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("de", from.String()).Str("para", to.String()).Msg("circuito mudou de estado")
		},
	})

	return &Publisher{conn: conn, ch: ch, queue: queue, cb: cb}, nil
}

// Publish envia o evento; falha de broker nunca derruba o workflow que
// criou a notificação, apenas é registrada.
func (p *Publisher) Publish(ctx context.Context, ev Evento) {
	if p == nil {
		return
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return
	}

	_, err = p.cb.Execute(func() (any, error) {
		return nil, p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		})
	})
	if err != nil {
		log.Error().Err(err).Int64("notificacao_id", ev.NotificacaoID).Msg("falha ao publicar evento de notificação")
	}
}

// Close libera canal e conexão.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	if p.ch != nil {
		if err := p.ch.Close(); err != nil {
			return err
		}
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
