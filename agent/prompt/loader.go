package prompt

import (
	"embed"
	"strings"

	"github.com/tanpawarit/chative-pizzeria/agent/intent"
)

//go:embed template/*.txt
var templates embed.FS

// PromptSet holds loaded prompt content.
type PromptSet struct {
	System          string
	Identity        string
	CustomerKnown   string
	CustomerUnknown string
	ActiveOrder     string
	Finalize        string

	GreetingNew       string
	GreetingReturning string
	Steps             map[intent.Label]string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
func LoadPromptSet() PromptSet {
	return PromptSet{
		System:            mustRead("system"),
		Identity:          mustRead("identity"),
		CustomerKnown:     mustRead("customer_known"),
		CustomerUnknown:   mustRead("customer_unknown"),
		ActiveOrder:       mustRead("active_order"),
		Finalize:          mustRead("finalize"),
		GreetingNew:       mustRead("greeting_new"),
		GreetingReturning: mustRead("greeting_returning"),
		Steps: map[intent.Label]string{
			intent.Menu:         mustRead("menu"),
			intent.FullMenu:     mustRead("full_menu"),
			intent.Order:        mustRead("order"),
			intent.Confirmation: mustRead("confirmation"),
			intent.General:      mustRead("general"),
		},
	}
}

// StepContext picks the situational text for step. Greetings depend on
// whether the customer is known.
func (p PromptSet) StepContext(step intent.Label, customerKnown bool) string {
	if step == intent.Greeting {
		if customerKnown {
			return p.GreetingReturning
		}
		return p.GreetingNew
	}
	if text, ok := p.Steps[step]; ok {
		return text
	}
	return p.Steps[intent.General]
}

func mustRead(name string) string {
	raw, err := templates.ReadFile("template/" + name + ".txt")
	if err != nil {
		panic(err)
	}
	return strings.TrimSpace(string(raw))
}
