// internal/service/template_service.go
package service

import (
	"regexp"
	"strconv"
)

// Known template variable names.
const (
	VarFirstName          = "firstName"
	VarLastName           = "lastName"
	VarEmail              = "email"
	VarPhone              = "phone"
	VarRiskScore          = "riskScore"
	VarPrimaryRiskReason  = "primaryRiskReason"
	VarDaysSinceLastVisit = "daysSinceLastVisit"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// TemplateContext holds the values a message template can reference. Extra
// carries caller-supplied variables beyond the known set.
type TemplateContext struct {
	FirstName          string
	LastName           string
	Email              string
	Phone              string
	RiskScore          *int
	PrimaryRiskReason  string
	DaysSinceLastVisit *int
	Extra              map[string]string
}

// lookup resolves a variable name. ok is false for names that are neither
// known nor present in Extra.
func (c TemplateContext) lookup(name string) (value string, ok bool) {
	switch name {
	case VarFirstName:
		return c.FirstName, true
	case VarLastName:
		return c.LastName, true
	case VarEmail:
		return c.Email, true
	case VarPhone:
		return c.Phone, true
	case VarRiskScore:
		return optionalInt(c.RiskScore), true
	case VarPrimaryRiskReason:
		return c.PrimaryRiskReason, true
	case VarDaysSinceLastVisit:
		return optionalInt(c.DaysSinceLastVisit), true
	}
	v, ok := c.Extra[name]
	return v, ok
}

func optionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

// RenderTemplate substitutes {{name}} placeholders. Unknown names are left in
// the output as written and passed to onUnknown once per distinct name.
func RenderTemplate(template string, data TemplateContext, onUnknown func(name string)) string {
	reported := map[string]bool{}
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if v, ok := data.lookup(name); ok {
			return v
		}
		if onUnknown != nil && !reported[name] {
			reported[name] = true
			onUnknown(name)
		}
		return match
	})
}

// RenderedMessage is a play's subject and body rendered for one member.
type RenderedMessage struct {
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
	Unknown []string `json:"unknown_variables,omitempty"`
}

// RenderMessage renders both templates and collects unknown names.
func RenderMessage(subject, body string, data TemplateContext) RenderedMessage {
	var unknown []string
	seen := map[string]bool{}
	collect := func(name string) {
		if !seen[name] {
			seen[name] = true
			unknown = append(unknown, name)
		}
	}
	return RenderedMessage{
		Subject: RenderTemplate(subject, data, collect),
		Body:    RenderTemplate(body, data, collect),
		Unknown: unknown,
	}
}
