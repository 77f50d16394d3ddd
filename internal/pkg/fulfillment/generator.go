package fulfillment

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/template/html/v2"

	"github.com/ManuelReschke/PlanFox/app/models"
	"github.com/ManuelReschke/PlanFox/views"
)

const (
	deliveryTemplate = "emails/plan_delivery"
	dateLayout       = "2006-01-02"
)

// Document is rendered plan content ready for archiving and delivery.
type Document struct {
	Subject     string
	ContentType string
	Body        []byte
}

// ContentGenerator produces the purchased content for one fulfillment.
type ContentGenerator interface {
	Generate(ctx context.Context, f *models.Fulfillment, plan *models.UserPlan) (*Document, error)
}

// TemplateGenerator renders plans from the embedded HTML templates.
type TemplateGenerator struct {
	engine *html.Engine
}

// NewTemplateGenerator loads the embedded templates once.
func NewTemplateGenerator() (*TemplateGenerator, error) {
	engine := html.NewFileSystem(http.FS(views.FS), ".html")
	if err := engine.Load(); err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	return &TemplateGenerator{engine: engine}, nil
}

type week struct {
	Number int
	From   string
	To     string
}

type planView struct {
	Name            string
	DurationDays    int
	StartDate       string
	ExpirationDate  string
	Reference       string
	PaymentIntentID string
	Weeks           []week
}

// Generate implements ContentGenerator.
func (g *TemplateGenerator) Generate(ctx context.Context, f *models.Fulfillment, plan *models.UserPlan) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := g.engine.Render(&buf, deliveryTemplate, newPlanView(f, plan)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	return &Document{
		Subject:     fmt.Sprintf("Your %d-day plan is ready", f.DurationDays),
		ContentType: "text/html; charset=utf-8",
		Body:        buf.Bytes(),
	}, nil
}

func newPlanView(f *models.Fulfillment, plan *models.UserPlan) planView {
	start := plan.StartDate.UTC()
	end := plan.ExpirationDate.UTC()
	return planView{
		Name:            f.Name,
		DurationDays:    f.DurationDays,
		StartDate:       start.Format(dateLayout),
		ExpirationDate:  end.Format(dateLayout),
		Reference:       f.StripeSessionID,
		PaymentIntentID: f.PaymentIntentID,
		Weeks:           splitWeeks(start, f.DurationDays),
	}
}

// splitWeeks cuts the plan period into 7-day blocks; the last may be shorter.
func splitWeeks(start time.Time, days int) []week {
	var out []week
	for offset, n := 0, 1; offset < days; offset, n = offset+7, n+1 {
		length := 7
		if days-offset < length {
			length = days - offset
		}
		from := start.AddDate(0, 0, offset)
		to := from.AddDate(0, 0, length-1)
		out = append(out, week{Number: n, From: from.Format(dateLayout), To: to.Format(dateLayout)})
	}
	return out
}
