package wizard

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/Mahaseias/sendzap/internal/domain/proposal/dispatch"
)

// Submitter runs the assemble, render and send pipeline.
type Submitter interface {
	Dispatch(ctx context.Context, req dispatch.Request) (dispatch.Result, error)
}

type Observer interface {
	ObserveStep(from, to State)
	ObserveReplay()
}

type Inbound struct {
	SessionID string
	MessageID string
	Text      string
}

type Reply struct {
	Text      string
	State     State
	Replayed  bool
	Submitted bool
	Proposal  *dispatch.Result
}

type Service struct {
	store    Store
	machine  *Machine
	submit   Submitter
	observer Observer
}

func NewService(store Store, machine *Machine, submit Submitter, observer Observer) *Service {
	return &Service{store: store, machine: machine, submit: submit, observer: observer}
}

// Handle processes one inbound message: fetch, step, optionally submit, and
// store, all under the session's lock. A message whose id matches the last
// one handled gets the same reply again without being stepped.
func (s *Service) Handle(ctx context.Context, in Inbound) (Reply, error) {
	id := strings.TrimSpace(in.SessionID)
	if id == "" {
		return Reply{}, ErrEmptySessionID
	}
	var out Reply
	_, err := s.store.Update(ctx, id, func(sess *Session) error {
		if in.MessageID != "" && sess.LastMessageID == in.MessageID {
			log.Printf("wizard: replay session_id=%s message_id=%s", id, in.MessageID)
			if s.observer != nil {
				s.observer.ObserveReplay()
			}
			out = Reply{Text: sess.LastReply, State: sess.State, Replayed: true}
			return nil
		}

		from := sess.State
		res := s.machine.Step(sess, in.Text)
		out = Reply{Text: res.Reply}
		if res.Action == ActionSubmit {
			out = s.runSubmit(ctx, sess)
		}
		out.State = sess.State
		sess.LastMessageID = in.MessageID
		sess.LastReply = out.Text

		if from != sess.State {
			log.Printf("wizard: step session_id=%s from=%s to=%s", id, from, sess.State)
		}
		if s.observer != nil {
			s.observer.ObserveStep(from, sess.State)
		}
		return nil
	})
	if err != nil {
		return Reply{}, fmt.Errorf("wizard: handle %s: %w", id, err)
	}
	return out, nil
}

// runSubmit leaves the session in SUMMARY with its draft untouched unless the
// proposal went out (or was dry-run), in which case the draft is cleared.
func (s *Service) runSubmit(ctx context.Context, sess *Session) Reply {
	req := dispatch.Request{
		ConversationID: sess.ID,
		SellerID:       sess.ID,
		Client:         sess.Draft.Client,
		Notes:          sess.Draft.Notes,
		Quantities:     sess.Draft.QuantityMap(),
	}
	if s.submit == nil {
		return Reply{Text: join("Envio de propostas indisponível no momento.", msgSummaryHelp)}
	}
	res, err := s.submit.Dispatch(ctx, req)
	if err != nil {
		log.Printf("wizard: submit failed session_id=%s err=%v", sess.ID, err)
		return Reply{Text: join(
			fmt.Sprintf("Não foi possível enviar a proposta: %v.", err),
			"Seus dados foram mantidos. Responda 1 para tentar de novo, 2 para editar os itens ou 3 para cancelar.",
		)}
	}

	var ack string
	switch {
	case res.DryRun:
		ack = fmt.Sprintf("Proposta gerada para %s, mas o e-mail não foi enviado (modo de teste: %s).", res.SentTo, res.Reason)
	case res.CC != "":
		ack = fmt.Sprintf("Proposta enviada para %s com cópia para %s.", res.SentTo, res.CC)
	default:
		ack = fmt.Sprintf("Proposta enviada para %s.", res.SentTo)
	}
	log.Printf("wizard: submitted session_id=%s proposal_id=%s sent=%t dry_run=%t", sess.ID, res.ProposalID, res.Sent, res.DryRun)

	sess.Draft.Reset()
	sess.State = StateMenu
	return Reply{Text: join(ack, msgMenu), Submitted: true, Proposal: &res}
}

// Session returns the stored session without stepping it.
func (s *Service) Session(ctx context.Context, id string) (*Session, error) {
	return s.store.GetOrCreate(ctx, id)
}

// Prompt is the question the session is currently waiting on.
func (s *Service) Prompt(sess *Session) string { return s.machine.Prompt(sess) }

func (s *Service) Reset(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}
