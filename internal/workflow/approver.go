package workflow

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fyrsmithlabs/complyd/internal/validation"
)

const autoApprovedFeedback = "Auto-approved (testing mode)"

// Review is what an approver sees before deciding.
type Review struct {
	Query           string
	Response        string
	QueryType       QueryType
	CitationQuality validation.Tier
}

// Approval is the approver's decision.
type Approval struct {
	Approved bool
	Feedback string
}

// Approver decides whether an exchange may be stored in memory.
type Approver interface {
	Approve(ctx context.Context, r Review) (Approval, error)
}

// ApproverFunc adapts a function to Approver.
type ApproverFunc func(ctx context.Context, r Review) (Approval, error)

// Approve implements Approver.
func (f ApproverFunc) Approve(ctx context.Context, r Review) (Approval, error) {
	return f(ctx, r)
}

// StdinApprover asks a human on a terminal.
type StdinApprover struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

// NewStdinApprover reads decisions from in and writes prompts to out.
func NewStdinApprover(in io.Reader, out io.Writer) *StdinApprover {
	return &StdinApprover{in: bufio.NewReader(in), out: out}
}

// Approve prints the response and reads one line. yes, y and approve
// approve the exchange; anything else rejects it with the input as feedback.
func (a *StdinApprover) Approve(ctx context.Context, r Review) (Approval, error) {
	if err := ctx.Err(); err != nil {
		return Approval{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	fmt.Fprintf(a.out, "%s\n\n%s\nHUMAN APPROVAL REQUIRED\n%s\n", r.Response, banner, banner)
	fmt.Fprintf(a.out, "Citation Quality: %s\nQuery Type: %s\n\n", r.CitationQuality, r.QueryType)
	fmt.Fprint(a.out, "Store this response in memory? ('yes' or 'approve' to approve, anything else to reject)\nYour decision: ")

	line, err := a.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return Approval{}, fmt.Errorf("read decision: %w", err)
	}
	return decide(line), nil
}

func decide(input string) Approval {
	answer := strings.ToLower(strings.TrimSpace(input))
	switch answer {
	case "yes", "y", "approve":
		return Approval{Approved: true, Feedback: "Approved"}
	case "":
		return Approval{Feedback: "Rejected"}
	default:
		return Approval{Feedback: answer}
	}
}
