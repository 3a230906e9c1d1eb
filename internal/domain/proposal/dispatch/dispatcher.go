package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Mahaseias/sendzap/internal/domain/catalog"
	"github.com/Mahaseias/sendzap/internal/domain/mail"
	"github.com/Mahaseias/sendzap/internal/domain/proposal"
	"github.com/Mahaseias/sendzap/internal/domain/quote"
	"github.com/Mahaseias/sendzap/internal/domain/quote/pdf"
	"github.com/Mahaseias/sendzap/internal/domain/seller"
)

const DefaultTimeout = 30 * time.Second

// Outcome labels reported to the Observer.
const (
	OutcomeSent    = "sent"
	OutcomeDryRun  = "dry_run"
	OutcomeInvalid = "invalid"
	OutcomeFailed  = "failed"
)

const (
	StageRender  = "render"
	StageCompose = "compose"
	StageSend    = "send"
)

// DeliveryError wraps a collaborator failure (renderer or mail transport).
type DeliveryError struct {
	Stage string
	Err   error
}

func (e *DeliveryError) Error() string { return fmt.Sprintf("%s failed: %v", e.Stage, e.Err) }
func (e *DeliveryError) Unwrap() error { return e.Err }

type Request struct {
	ConversationID string
	SellerID       string
	Client         proposal.Client
	Notes          string
	Quantities     quote.Quantities
}

type Result struct {
	ProposalID string
	Sent       bool
	DryRun     bool
	Reason     string
	SentTo     string
	CC         string
	Totals     proposal.Totals
	ItemsCount int
}

type Record struct {
	ID             string
	ConversationID string
	ClientEmail    string
	CreatedAt      time.Time
}

// Log keeps an audit trail of dispatched proposals.
type Log interface {
	RecordProposal(ctx context.Context, rec Record) error
}

// Lister is implemented by logs that can list what they recorded, newest first.
type Lister interface {
	RecentProposals(ctx context.Context, limit int) ([]Record, error)
}

type Observer interface {
	ObserveDispatch(outcome string, took time.Duration)
}

type Dispatcher struct {
	Catalog     *catalog.Catalog
	Rules       quote.Rules
	CompanyName string
	Sellers     *seller.Directory
	Renderer    pdf.Renderer
	Mailer      mail.Sender
	Log         Log
	Observer    Observer
	Timeout     time.Duration
}

func (d *Dispatcher) observe(outcome string, start time.Time) {
	if d.Observer != nil {
		d.Observer.ObserveDispatch(outcome, time.Since(start))
	}
}

// Dispatch computes the quote, renders the document and mails it. Validation
// problems come back unchanged (*proposal.ValidationError, quote.ErrUnknownSKU,
// quote.ErrQuantityOutOfRange); collaborator problems as *DeliveryError.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	id := uuid.NewString()

	q, err := quote.Compute(req.Quantities, d.Catalog, d.Rules)
	if err != nil {
		d.observe(OutcomeInvalid, start)
		return Result{}, err
	}
	pc, err := proposal.Assemble(req.Client, req.Notes, q, d.CompanyName)
	if err != nil {
		d.observe(OutcomeInvalid, start)
		return Result{}, err
	}

	res := Result{
		ProposalID: id,
		SentTo:     pc.Client.Email,
		CC:         d.Sellers.CC(req.SellerID, pc.Client.Email),
		Totals:     pc.Totals,
		ItemsCount: len(pc.Breakdown),
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	doc, err := d.Renderer.Render(ctx, pc)
	if err != nil {
		log.Printf("proposal dispatch: render failed id=%s err=%v", id, err)
		d.observe(OutcomeFailed, start)
		return res, &DeliveryError{Stage: StageRender, Err: err}
	}

	body, err := proposal.HTMLBody(pc)
	if err != nil {
		d.observe(OutcomeFailed, start)
		return res, &DeliveryError{Stage: StageCompose, Err: err}
	}
	msg := mail.Message{
		To:      pc.Client.Email,
		CC:      res.CC,
		Subject: proposal.Subject(pc),
		HTML:    body,
		Attachments: []mail.Attachment{{
			Filename:    proposal.AttachmentName(pc),
			ContentType: "application/pdf",
			Content:     doc,
		}},
	}
	sent, err := d.Mailer.Send(ctx, msg)
	if err != nil {
		log.Printf("proposal dispatch: send failed id=%s to=%s err=%v", id, msg.To, err)
		d.observe(OutcomeFailed, start)
		return res, &DeliveryError{Stage: StageSend, Err: err}
	}
	res.Sent = sent.Sent
	res.DryRun = sent.DryRun
	res.Reason = sent.Reason
	if !sent.Sent && !sent.DryRun {
		reason := strings.TrimSpace(sent.Reason)
		if reason == "" {
			reason = "mail transport did not accept the message"
		}
		log.Printf("proposal dispatch: send rejected id=%s to=%s reason=%s", id, msg.To, reason)
		d.observe(OutcomeFailed, start)
		return res, &DeliveryError{Stage: StageSend, Err: errors.New(reason)}
	}

	if sent.DryRun {
		log.Printf("proposal dispatch: dry run id=%s to=%s reason=%s", id, msg.To, sent.Reason)
		d.observe(OutcomeDryRun, start)
	} else {
		log.Printf("proposal dispatch: sent id=%s to=%s cc=%s items=%d bytes=%d took=%s", id, msg.To, msg.CC, res.ItemsCount, len(doc), time.Since(start))
		d.observe(OutcomeSent, start)
	}

	if d.Log != nil {
		rec := Record{ID: id, ConversationID: req.ConversationID, ClientEmail: pc.Client.Email, CreatedAt: time.Now().UTC()}
		if err := d.Log.RecordProposal(context.WithoutCancel(ctx), rec); err != nil {
			log.Printf("proposal dispatch: record failed id=%s err=%v", id, err)
		}
	}
	return res, nil
}

// IsValidation reports whether err is an input problem rather than a
// collaborator failure.
func IsValidation(err error) bool {
	var ve *proposal.ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, quote.ErrUnknownSKU) ||
		errors.Is(err, quote.ErrQuantityOutOfRange)
}
