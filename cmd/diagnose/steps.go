package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ignite/mautic-dnc-proxy/internal/mautic"
)

// Step statuses.
const (
	Pass = "PASS"
	Fail = "FAIL"
	Warn = "WARN"
	Skip = "SKIP"
)

// Suspects are the failure hypotheses a run can confirm or clear.
var Suspects = map[string]string{
	"A": "DNC endpoint returns 200 but body contains errors",
	"B": "DNC not persisted after successful response",
	"F": "Idempotency issue on repeated DNC add",
}

var rule = strings.Repeat("=", 70)

// StepResult is the outcome of one diagnostic step.
type StepResult struct {
	Num       int
	Name      string
	Status    string
	Notes     string
	Confirmed []string
	Cleared   []string
}

// DiagnosticClient is the part of *mautic.Client the steps use.
type DiagnosticClient interface {
	Ping(ctx context.Context) error
	SearchByEmail(ctx context.Context, email string) ([]mautic.ContactCandidate, error)
	GetContact(ctx context.Context, id string) (*mautic.Contact, error)
	AddEmailDNC(ctx context.Context, id string, req mautic.DNCRequest) (*mautic.DNCResponse, error)
}

// Diagnoser runs the steps in order, carrying state between them.
type Diagnoser struct {
	client DiagnosticClient
	email  string
	reason int
	out    io.Writer

	candidates  []mautic.ContactCandidate
	contactID   string
	pre         *mautic.Contact
	step5Status int
}

// NewDiagnoser creates a diagnoser for one normalized email.
func NewDiagnoser(client DiagnosticClient, email string, reason int, out io.Writer) *Diagnoser {
	return &Diagnoser{client: client, email: email, reason: reason, out: out}
}

// Run executes all seven steps. Later steps are skipped when no contact
// was matched.
func (d *Diagnoser) Run(ctx context.Context) []StepResult {
	steps := []func(context.Context) StepResult{
		d.connectivity,
		d.search,
		d.exactMatch,
		d.preState,
		d.dncAdd,
		d.postVerify,
		d.idempotency,
	}
	results := make([]StepResult, 0, len(steps))
	for _, step := range steps {
		results = append(results, step(ctx))
	}
	return results
}

func (d *Diagnoser) banner(num int, name string) {
	fmt.Fprintf(d.out, "\n%s\n  STEP %d: %s\n%s\n", rule, num, name, rule)
}

func (d *Diagnoser) connectivity(ctx context.Context) StepResult {
	const num, name = 1, "Connectivity"
	d.banner(num, name)

	err := d.client.Ping(ctx)
	if err == nil {
		return StepResult{Num: num, Name: name, Status: Pass, Notes: "Mautic reachable, credentials valid"}
	}
	fmt.Fprintf(d.out, "  ERROR: %v\n", err)
	var se *mautic.HTTPStatusError
	switch {
	case errors.As(err, &se) && se.Status == 401:
		return StepResult{Num: num, Name: name, Status: Fail, Notes: "Authentication failed (HTTP 401)"}
	case errors.As(err, &se):
		return StepResult{Num: num, Name: name, Status: Fail, Notes: fmt.Sprintf("Unexpected status %d", se.Status)}
	}
	return StepResult{Num: num, Name: name, Status: Fail, Notes: fmt.Sprintf("Connection error: %v", err)}
}

func (d *Diagnoser) search(ctx context.Context) StepResult {
	const num, name = 2, "Contact search"
	d.banner(num, name)

	candidates, err := d.client.SearchByEmail(ctx, d.email)
	if err != nil {
		fmt.Fprintf(d.out, "  ERROR: %v\n", err)
		if status := mautic.StatusOf(err); status != 0 {
			return StepResult{Num: num, Name: name, Status: Fail, Notes: fmt.Sprintf("Search returned HTTP %d", status)}
		}
		return StepResult{Num: num, Name: name, Status: Fail, Notes: fmt.Sprintf("Request error: %v", err)}
	}
	d.candidates = candidates
	fmt.Fprintf(d.out, "  Contacts returned: %d\n", len(candidates))
	if len(candidates) == 0 {
		return StepResult{Num: num, Name: name, Status: Fail, Notes: "No contacts found for this email"}
	}
	return StepResult{Num: num, Name: name, Status: Pass, Notes: fmt.Sprintf("%d candidate(s) returned", len(candidates))}
}

func (d *Diagnoser) exactMatch(ctx context.Context) StepResult {
	const num, name = 3, "Exact match"
	d.banner(num, name)

	if len(d.candidates) == 0 {
		fmt.Fprintln(d.out, "  No candidates to check")
		return StepResult{Num: num, Name: name, Status: Skip, Notes: "No candidates from step 2"}
	}
	for _, c := range d.candidates {
		fmt.Fprintf(d.out, "  Candidate ID=%s  email=%q\n", c.ID, c.Email)
		if strings.EqualFold(strings.TrimSpace(c.Email), d.email) {
			d.contactID = c.ID
			fmt.Fprintf(d.out, "  >> Exact match found: contact_id=%s\n", c.ID)
			return StepResult{Num: num, Name: name, Status: Pass, Notes: "contact_id=" + c.ID}
		}
	}
	return StepResult{Num: num, Name: name, Status: Fail, Notes: "API returned contacts but none matched exactly"}
}

func (d *Diagnoser) preState(ctx context.Context) StepResult {
	const num, name = 4, "Pre-DNC state"
	d.banner(num, name)
	if d.contactID == "" {
		return d.skipped(num, name)
	}

	contact, err := d.client.GetContact(ctx, d.contactID)
	if err != nil {
		return d.requestFailed(num, name, err)
	}
	d.pre = contact
	d.printDNC(contact)
	if contact.HasEmailDNC() {
		return StepResult{Num: num, Name: name, Status: Warn, Notes: "Already on email DNC before add"}
	}
	return StepResult{Num: num, Name: name, Status: Pass, Notes: "Not on email DNC (as expected)"}
}

func (d *Diagnoser) dncAdd(ctx context.Context) StepResult {
	const num, name = 5, "DNC add"
	d.banner(num, name)
	if d.contactID == "" {
		return d.skipped(num, name)
	}

	resp, err := d.client.AddEmailDNC(ctx, d.contactID, mautic.DNCRequest{
		Reason:   d.reason,
		Comments: "Unsubscribed via website (diagnose)",
	})
	if err != nil {
		d.step5Status = mautic.StatusOf(err)
		return d.requestFailed(num, name, err)
	}
	d.step5Status = resp.Status
	fmt.Fprintf(d.out, "  Status: %d\n", resp.Status)

	res := StepResult{Num: num, Name: name, Status: Pass, Notes: fmt.Sprintf("HTTP %d", resp.Status)}
	if resp.BodyErrors != "" {
		fmt.Fprintf(d.out, "  !! ERRORS in response body despite HTTP %d: %s\n", resp.Status, resp.BodyErrors)
		res.Status = Fail
		res.Notes += "; Body contains errors: " + resp.BodyErrors
		res.Confirmed = []string{"A"}
	} else {
		res.Cleared = []string{"A"}
	}
	return res
}

func (d *Diagnoser) postVerify(ctx context.Context) StepResult {
	const num, name = 6, "Post-DNC verify"
	d.banner(num, name)
	if d.contactID == "" {
		return d.skipped(num, name)
	}

	contact, err := d.client.GetContact(ctx, d.contactID)
	if err != nil {
		return d.requestFailed(num, name, err)
	}
	d.printDNC(contact)
	if d.pre != nil {
		fmt.Fprintf(d.out, "  Pre-DNC had email DNC:  %t\n", d.pre.HasEmailDNC())
	}
	fmt.Fprintf(d.out, "  Post-DNC has email DNC: %t\n", contact.HasEmailDNC())

	if contact.HasEmailDNC() {
		return StepResult{Num: num, Name: name, Status: Pass, Notes: "DNC persisted, email channel present", Cleared: []string{"B"}}
	}
	return StepResult{Num: num, Name: name, Status: Fail, Notes: "DNC NOT persisted, email channel missing after add", Confirmed: []string{"B"}}
}

func (d *Diagnoser) idempotency(ctx context.Context) StepResult {
	const num, name = 7, "Idempotency"
	d.banner(num, name)
	if d.contactID == "" {
		return d.skipped(num, name)
	}

	resp, err := d.client.AddEmailDNC(ctx, d.contactID, mautic.DNCRequest{
		Reason:   d.reason,
		Comments: "Unsubscribed via website (diagnose re-add)",
	})
	status := mautic.StatusOf(err)
	if err == nil {
		status = resp.Status
	} else if status == 0 {
		return d.requestFailed(num, name, err)
	}

	res := StepResult{Num: num, Name: name, Status: Pass, Notes: fmt.Sprintf("HTTP %d", status)}
	if d.step5Status != 0 && status != d.step5Status {
		res.Notes += fmt.Sprintf("; Status differs from step 5 (%d -> %d)", d.step5Status, status)
	}
	switch {
	case err != nil:
		res.Status = Warn
		res.Notes += "; Non-2xx on re-add"
	case resp.BodyErrors != "":
		fmt.Fprintf(d.out, "  !! ERRORS on re-add: %s\n", resp.BodyErrors)
		res.Status = Warn
		res.Notes += "; Errors on re-add: " + resp.BodyErrors
		res.Confirmed = []string{"F"}
	default:
		res.Cleared = []string{"F"}
	}
	return res
}

func (d *Diagnoser) skipped(num int, name string) StepResult {
	fmt.Fprintln(d.out, "  Skipped: no contact_id from step 3")
	return StepResult{Num: num, Name: name, Status: Skip, Notes: "No contact_id"}
}

func (d *Diagnoser) requestFailed(num int, name string, err error) StepResult {
	fmt.Fprintf(d.out, "  ERROR: %v\n", err)
	if status := mautic.StatusOf(err); status != 0 {
		return StepResult{Num: num, Name: name, Status: Fail, Notes: fmt.Sprintf("HTTP %d", status)}
	}
	return StepResult{Num: num, Name: name, Status: Fail, Notes: fmt.Sprintf("Request error: %v", err)}
}

func (d *Diagnoser) printDNC(c *mautic.Contact) {
	if len(c.DoNotContact) == 0 {
		fmt.Fprintln(d.out, "  doNotContact entries: none")
		return
	}
	fmt.Fprintln(d.out, "  doNotContact entries:")
	for _, e := range c.DoNotContact {
		fmt.Fprintf(d.out, "    channel=%s reason=%s comments=%q\n", e.Channel, string(e.Reason), e.Comments)
	}
}
