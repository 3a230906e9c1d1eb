package resend

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	resendapi "github.com/resend/resend-go/v2"

	"github.com/Mahaseias/sendzap/internal/domain/mail"
)

const DefaultBaseURL = "https://api.resend.com"

// ReasonNotConfigured is reported on dry runs.
const ReasonNotConfigured = "mail transport not configured"

// Client sends e-mail through the Resend API. Without an API key or a
// verified from-address it runs dry: nothing is transmitted and the result
// says so.
type Client struct {
	APIKey  string
	From    string
	BaseURL string

	api *resendapi.Client
}

func New(apiKey, from, baseURL string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		APIKey:  strings.TrimSpace(apiKey),
		From:    strings.TrimSpace(from),
		BaseURL: strings.TrimRight(baseURL, "/"),
	}
	u, err := url.Parse(c.BaseURL + "/")
	if err != nil {
		return nil, fmt.Errorf("resend: base url: %w", err)
	}
	c.api = resendapi.NewCustomClient(&http.Client{Timeout: timeout}, c.APIKey)
	c.api.BaseURL = u
	return c, nil
}

func (c *Client) Configured() bool { return c.APIKey != "" && c.From != "" }

func (c *Client) request(msg mail.Message) *resendapi.SendEmailRequest {
	req := &resendapi.SendEmailRequest{
		From:    c.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
	}
	if msg.CC != "" {
		req.Cc = []string{msg.CC}
	}
	for _, a := range msg.Attachments {
		req.Attachments = append(req.Attachments, &resendapi.Attachment{
			Content:     a.Content,
			Filename:    a.Filename,
			ContentType: a.ContentType,
		})
	}
	return req
}

func (c *Client) Send(ctx context.Context, msg mail.Message) (mail.Result, error) {
	if !c.Configured() {
		log.Printf("mail: dry run to=%s subject=%q attachments=%d", msg.To, msg.Subject, len(msg.Attachments))
		return mail.Result{DryRun: true, Reason: ReasonNotConfigured}, nil
	}

	sent, err := c.api.Emails.SendWithContext(ctx, c.request(msg))
	if err != nil {
		log.Printf("mail: resend failed to=%s err=%v", msg.To, err)
		return mail.Result{}, fmt.Errorf("resend: %w", err)
	}
	var id string
	if sent != nil {
		id = sent.Id
	}
	log.Printf("mail: sent to=%s cc=%s id=%s", msg.To, msg.CC, id)
	return mail.Result{Sent: true, ID: id}, nil
}
