package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Mahaseias/sendzap/internal/domain/proposal"
	"github.com/Mahaseias/sendzap/internal/domain/proposal/dispatch"
	"github.com/Mahaseias/sendzap/internal/domain/quote"
)

type CreateQuoteRequest struct {
	SellerID   string           `json:"seller_id"`
	Client     proposal.Client  `json:"client"`
	Quantities quote.Quantities `json:"quantities"`
	Notes      string           `json:"notes"`
}

type quoteTotals struct {
	MaterialTotal        json.Number `json:"material_total"`
	LaborTotal           json.Number `json:"labor_total"`
	GrandTotal           json.Number `json:"grand_total"`
	CashTotal            json.Number `json:"cash_total"`
	CashDiscountPercent  string      `json:"cash_discount_percent"`
	CardInstallments     int         `json:"card_installments"`
	CardInstallmentValue json.Number `json:"card_installment_value"`
}

type CreateQuoteResponse struct {
	OK         bool        `json:"ok"`
	ProposalID string      `json:"proposal_id"`
	Sent       bool        `json:"sent"`
	DryRun     bool        `json:"dry_run"`
	Reason     string      `json:"reason,omitempty"`
	SentTo     string      `json:"sent_to"`
	CC         string      `json:"cc,omitempty"`
	Totals     quoteTotals `json:"totals"`
	ItemsCount int         `json:"items_count"`
}

func money(d decimal.Decimal) json.Number { return json.Number(d.StringFixed(2)) }

func totalsJSON(t proposal.Totals) quoteTotals {
	return quoteTotals{
		MaterialTotal:        money(t.MaterialTotal),
		LaborTotal:           money(t.LaborTotal),
		GrandTotal:           money(t.GrandTotal),
		CashTotal:            money(t.CashTotal),
		CashDiscountPercent:  t.CashDiscountPercent,
		CardInstallments:     t.CardInstallments,
		CardInstallmentValue: money(t.CardInstallmentValue),
	}
}

// CreateQuote runs the proposal pipeline synchronously for a structured
// submission. Input problems are 400; renderer or mail failures are 502.
func (h *Handlers) CreateQuote(w http.ResponseWriter, r *http.Request) {
	var req CreateQuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if h.Quotes == nil {
		writeError(w, http.StatusServiceUnavailable, "proposal dispatch unavailable")
		return
	}

	conversation := "api"
	if id := strings.TrimSpace(req.SellerID); id != "" {
		conversation += ":" + id
	}
	res, err := h.Quotes.Dispatch(r.Context(), dispatch.Request{
		ConversationID: conversation,
		SellerID:       req.SellerID,
		Client:         req.Client,
		Notes:          req.Notes,
		Quantities:     req.Quantities,
	})
	var de *dispatch.DeliveryError
	switch {
	case err == nil:
	case dispatch.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.As(err, &de):
		log.Printf("quotes: delivery failed stage=%s err=%v", de.Stage, de.Err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	default:
		log.Printf("quotes: dispatch failed err=%v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, CreateQuoteResponse{
		OK:         true,
		ProposalID: res.ProposalID,
		Sent:       res.Sent,
		DryRun:     res.DryRun,
		Reason:     res.Reason,
		SentTo:     res.SentTo,
		CC:         res.CC,
		Totals:     totalsJSON(res.Totals),
		ItemsCount: res.ItemsCount,
	})
}
