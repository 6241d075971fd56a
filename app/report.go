package app

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"text/template"
	"time"

	"github.com/artpar/carebill/domain/billing"
	"github.com/artpar/carebill/ports"
	"github.com/rs/zerolog"
)

const reportText = `Billing run {{.Date}} ({{.Trigger}})
{{range .Runs}}
{{.Family}}: {{.BilledCount}} billed, {{.SkippedCount}} skipped, {{.ErrorCount}} failed of {{.TotalActiveClients}} active
{{- range .BilledClients}}
  {{.Reference}}  {{.Client}}  {{.Amount.StringFixed 2}}
{{- end}}
{{- range .Errors}}
  FAILED {{.Client}}: {{.Message}}
{{- end}}
{{end}}`

const reportHTML = `<h2>Billing run {{.Date}}</h2>
{{range .Runs}}<h3>{{.Family}}</h3>
<p>{{.BilledCount}} billed, {{.SkippedCount}} skipped, {{.ErrorCount}} failed of {{.TotalActiveClients}} active</p>
{{if .BilledClients}}<table>
<tr><th>Invoice</th><th>Client</th><th>Amount</th></tr>
{{range .BilledClients}}<tr><td>{{.Reference}}</td><td>{{.Client}}</td><td>{{.Amount.StringFixed 2}}</td></tr>
{{end}}</table>{{end}}
{{if .Errors}}<ul>{{range .Errors}}<li><b>{{.Client}}</b>: {{.Message}}</li>{{end}}</ul>{{end}}
{{end}}`

var (
	reportTextTmpl = template.Must(template.New("report").Parse(reportText))
	reportHTMLTmpl = htmltemplate.Must(htmltemplate.New("report").Parse(reportHTML))
)

type reportData struct {
	Date    string
	Trigger string
	Runs    []RunSummary
}

// RenderReport renders run summaries as an email. The date is taken from the
// first summary.
func RenderReport(trigger string, sums []RunSummary) (ports.EmailMessage, error) {
	date := time.Now()
	if len(sums) > 0 {
		date = sums[0].Timestamp
	}
	data := reportData{Date: billing.FormatDate(date), Trigger: trigger, Runs: sums}

	var text, html bytes.Buffer
	if err := reportTextTmpl.Execute(&text, data); err != nil {
		return ports.EmailMessage{}, fmt.Errorf("render text report: %w", err)
	}
	if err := reportHTMLTmpl.Execute(&html, data); err != nil {
		return ports.EmailMessage{}, fmt.Errorf("render html report: %w", err)
	}

	billed, failed := 0, 0
	for _, s := range sums {
		billed += s.BilledCount
		failed += s.ErrorCount
	}
	subject := fmt.Sprintf("Billing run %s: %d invoice(s)", data.Date, billed)
	if failed > 0 {
		subject += fmt.Sprintf(", %d failure(s)", failed)
	}

	return ports.EmailMessage{Subject: subject, TextBody: text.String(), HTMLBody: html.String()}, nil
}

// ReportConfig configures a ReportingRunner.
type ReportConfig struct {
	To             []string
	OnlyOnActivity bool
	SendTimeout    time.Duration // default 1m
}

// ReportingRunner wraps a DailyRunner and mails a report after every run.
// A failed report is logged and never affects the run.
type ReportingRunner struct {
	runner DailyRunner
	sender ports.EmailSender
	logger zerolog.Logger
	cfg    ReportConfig
}

// NewReportingRunner creates a reporting wrapper around runner.
func NewReportingRunner(runner DailyRunner, sender ports.EmailSender, logger zerolog.Logger, cfg ReportConfig) *ReportingRunner {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = time.Minute
	}
	return &ReportingRunner{
		runner: runner,
		sender: sender,
		logger: logger.With().Str("service", "report").Logger(),
		cfg:    cfg,
	}
}

// RunAll runs every family and then sends the report.
func (r *ReportingRunner) RunAll(ctx context.Context, trigger string) []RunSummary {
	sums := r.runner.RunAll(ctx, trigger)

	if r.cfg.OnlyOnActivity && !hasActivity(sums) {
		r.logger.Debug().Msg("quiet run, report skipped")
		return sums
	}

	msg, err := RenderReport(trigger, sums)
	if err != nil {
		r.logger.Error().Err(err).Msg("report render failed")
		return sums
	}
	msg.To = r.cfg.To

	// Independent of ctx, which may have expired with the run.
	sendCtx, cancel := context.WithTimeout(context.Background(), r.cfg.SendTimeout)
	defer cancel()
	if err := r.sender.Send(sendCtx, msg); err != nil {
		r.logger.Error().Err(err).Strs("to", r.cfg.To).Msg("report send failed")
	}
	return sums
}

func hasActivity(sums []RunSummary) bool {
	for _, s := range sums {
		if s.BilledCount > 0 || s.ErrorCount > 0 {
			return true
		}
		for _, sk := range s.Skipped {
			if sk.Reason == billing.SkipDuplicate {
				return true
			}
		}
	}
	return false
}

var _ DailyRunner = (*ReportingRunner)(nil)
