package mail

import "context"

type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

type Message struct {
	To          string
	CC          string
	Subject     string
	HTML        string
	Attachments []Attachment
}

// Result reports the outcome of a send that did not hard-fail. DryRun is set
// when the transport has no credentials and nothing was transmitted.
type Result struct {
	Sent   bool
	DryRun bool
	Reason string
	ID     string
}

// Sender returns an error only on hard transport failures.
type Sender interface {
	Send(ctx context.Context, msg Message) (Result, error)
}
