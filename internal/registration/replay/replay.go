// Package replay feeds exported payment captures through the reconciler.
// It is the offline path for backfills and merges: every capture goes through
// the same idempotent contract as live confirmations, so rerunning a file is
// harmless.
package replay

import (
	"context"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"eventpay/internal/registration/models"
	dErrors "eventpay/pkg/domain-errors"
)

// Capture is one exported payment.
type Capture struct {
	UserID        string   `yaml:"userId"`
	UserEmail     string   `yaml:"userEmail"`
	OrderID       string   `yaml:"orderId"`
	PaymentID     string   `yaml:"paymentId"`
	EventNames    []string `yaml:"eventNames"`
	Amount        int64    `yaml:"amount"`
	Authoritative bool     `yaml:"authoritative"`
}

type file struct {
	Captures []Capture `yaml:"captures"`
}

// Reconciler is the subset of the registration service replay needs.
type Reconciler interface {
	Reconcile(ctx context.Context, in models.Input) (*models.Result, error)
}

// Failure is a capture the reconciler refused.
type Failure struct {
	PaymentID string
	Err       error
}

// Report summarizes a replay run.
type Report struct {
	Applied    int
	Duplicates int
	Failures   []Failure
}

// Load decodes a captures file.
func Load(r io.Reader) ([]Capture, error) {
	var f file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode captures: %w", err)
	}
	return f.Captures, nil
}

// Input converts a capture into a reconciliation input. Captures are
// recorded as webhook payments with fallback trust unless marked
// authoritative.
func (c Capture) Input() models.Input {
	trust := models.TrustFallback
	if c.Authoritative {
		trust = models.TrustAuthoritative
	}
	return models.Input{
		UserID:     strings.TrimSpace(c.UserID),
		UserEmail:  strings.TrimSpace(c.UserEmail),
		OrderID:    strings.TrimSpace(c.OrderID),
		PaymentID:  strings.TrimSpace(c.PaymentID),
		EventNames: c.EventNames,
		Amount:     c.Amount,
		Source:     models.SourceWebhook,
		Trust:      trust,
	}
}

// Run reconciles captures in order. A refused capture is recorded and the
// run continues; an unavailable store or a cancelled context stops it.
func Run(ctx context.Context, r Reconciler, captures []Capture) (*Report, error) {
	report := &Report{}
	for _, c := range captures {
		res, err := r.Reconcile(ctx, c.Input())
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeUnavailable) || dErrors.HasCode(err, dErrors.CodeTimeout) {
				return report, err
			}
			report.Failures = append(report.Failures, Failure{PaymentID: c.PaymentID, Err: err})
			continue
		}
		if res.AlreadyProcessed {
			report.Duplicates++
			continue
		}
		report.Applied++
	}
	return report, nil
}
