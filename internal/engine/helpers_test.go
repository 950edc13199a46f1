package engine

import (
	"context"
	"time"

	"github.com/picklr-io/reportchain/pkg/resource"
)

// countingWait replaces the real sleep in tests and records every wait.
type countingWait struct {
	waits     int
	durations []time.Duration
}

func (w *countingWait) wait(ctx context.Context, d time.Duration) error {
	w.waits++
	w.durations = append(w.durations, d)
	return ctx.Err()
}

func newTestEngine(client resource.Client, opts ...Option) (*Engine, *countingWait) {
	e := NewEngine(client, opts...)
	w := &countingWait{}
	e.wait = w.wait
	return e, w
}

// steamSpecs is the four-resource report chain used across engine tests.
func steamSpecs() []resource.Spec {
	return []resource.Spec{
		{
			Kind: resource.KindNamespace,
			Name: "steam_data",
		},
		{
			Kind:      resource.KindCollection,
			Name:      "steam_product_listings",
			Namespace: Ref("steam_data", "id"),
			Collection: &resource.CollectionParams{
				SourceURI: "s3://steam-data/listings.csv",
				Format:    "csv",
			},
		},
		{
			Kind:      resource.KindParameterizedQuery,
			Name:      "report",
			Namespace: Ref("steam_data", "id"),
			Query: &resource.QueryParams{
				SQL: "SELECT name, price FROM " + Ref("steam_product_listings", "id") +
					" WHERE released > CURRENT_DATE() - DAYS(:past_days) AND price < :game_price",
				Parameters: []resource.QueryParameter{
					{Name: "past_days", Type: "int", Default: "2555"},
					{Name: "game_price", Type: "float", Default: "1.99"},
				},
			},
		},
		{
			Kind:      resource.KindScheduledAutomation,
			Name:      "daily_report",
			Namespace: Ref("steam_data", "id"),
			Automation: &resource.AutomationParams{
				Schedule:     "0 16 * * *",
				QueryName:    Ref("report", "name"),
				QueryVersion: Ref("report", "version"),
				RepeatCount:  1,
				Callback: &resource.Callback{
					URL:          "https://api.sendgrid.com/v3/mail/send",
					AuthToken:    "Bearer test",
					BodyTemplate: `{"content":[{"type":"text/plain","value":"{{QUERY_RESULTS}}"}]}`,
				},
			},
		},
	}
}
