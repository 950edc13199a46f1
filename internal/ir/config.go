package ir

import (
	"strings"

	"github.com/picklr-io/reportchain/pkg/resource"
)

// Reference placeholders used by Specs. They match the engine's ref:// scheme.
const refPrefix = "ref://"

func ref(name, attr string) string {
	return refPrefix + name + "/" + attr
}

// Config represents the top-level configuration of one report chain.
type Config struct {
	Provider   string            `pkl:"provider"`
	Namespace  *NamespaceConfig  `pkl:"namespace"`
	Collection *CollectionConfig `pkl:"collection"`
	Query      *QueryConfig      `pkl:"query"`
	Automation *AutomationConfig `pkl:"automation"`
	Email      *EmailConfig      `pkl:"email"`
	Webhook    *WebhookConfig    `pkl:"webhook"`
}

type NamespaceConfig struct {
	Name        string `pkl:"name"`
	Description string `pkl:"description"`
}

type CollectionConfig struct {
	Name           string `pkl:"name"`
	SourceURI      string `pkl:"sourceUri"`
	Format         string `pkl:"format"`
	Transformation string `pkl:"transformation"`
}

type QueryConfig struct {
	Name       string            `pkl:"name"`
	SQL        string            `pkl:"sql"`
	Parameters []*QueryParameter `pkl:"parameters"`
}

type QueryParameter struct {
	Name    string `pkl:"name"`
	Type    string `pkl:"type"`
	Default string `pkl:"defaultValue"`
}

type AutomationConfig struct {
	Name        string `pkl:"name"`
	Schedule    string `pkl:"schedule"`
	RepeatCount int    `pkl:"repeatCount"` // 0 = unlimited
}

// EmailConfig describes the report mail rendered into the webhook body.
type EmailConfig struct {
	Sender    string `pkl:"sender"`
	Recipient string `pkl:"recipient"`
	Subject   string `pkl:"subject"`
}

// WebhookConfig is the callback target of the scheduled automation. BodyTemplate
// is usually left empty and rendered from Email.
type WebhookConfig struct {
	URL          string `pkl:"url"`
	Token        string `pkl:"token"`
	BodyTemplate string `pkl:"bodyTemplate"`
}

// Specs builds the resource chain in creation order: namespace, collection, query,
// automation. Later specs refer to earlier ones through placeholders, so the query
// reads the created collection and the automation pins the created query version.
// Sections that are not configured are left out.
func (c *Config) Specs() []resource.Spec {
	var specs []resource.Spec
	if c.Namespace == nil {
		return specs
	}
	ns := c.Namespace.Name
	specs = append(specs, resource.Spec{Kind: resource.KindNamespace, Name: ns})
	nsRef := ref(ns, "id")

	var collectionName string
	if cc := c.Collection; cc != nil {
		collectionName = cc.Name
		specs = append(specs, resource.Spec{
			Kind:      resource.KindCollection,
			Name:      cc.Name,
			Namespace: nsRef,
			Collection: &resource.CollectionParams{
				SourceURI:      cc.SourceURI,
				Format:         cc.Format,
				Transformation: cc.Transformation,
			},
		})
	}

	var queryName string
	if qc := c.Query; qc != nil {
		queryName = qc.Name
		q := &resource.QueryParams{SQL: qc.SQL}
		for _, p := range qc.Parameters {
			if p == nil {
				continue
			}
			q.Parameters = append(q.Parameters, resource.QueryParameter{Name: p.Name, Type: p.Type, Default: p.Default})
		}
		spec := resource.Spec{Kind: resource.KindParameterizedQuery, Name: qc.Name, Namespace: nsRef, Query: q}
		if collectionName != "" {
			spec.DependsOn = []string{collectionName}
		}
		specs = append(specs, spec)
	}

	if ac := c.Automation; ac != nil {
		a := &resource.AutomationParams{
			Schedule:    ac.Schedule,
			RepeatCount: ac.RepeatCount,
		}
		if queryName != "" {
			a.QueryName = ref(queryName, "name")
			a.QueryVersion = ref(queryName, "version")
		}
		if w := c.Webhook; w != nil {
			a.Callback = &resource.Callback{URL: w.URL, AuthToken: w.AuthHeader(), BodyTemplate: w.BodyTemplate}
		}
		specs = append(specs, resource.Spec{
			Kind:       resource.KindScheduledAutomation,
			Name:       ac.Name,
			Namespace:  nsRef,
			Automation: a,
		})
	}
	return specs
}

// AuthHeader returns the Authorization header value sent with each callback. A
// bare API key gets the Bearer scheme; a value that already names a scheme is
// sent as is.
func (w *WebhookConfig) AuthHeader() string {
	token := strings.TrimSpace(w.Token)
	if token == "" || strings.Contains(token, " ") {
		return token
	}
	return "Bearer " + token
}
