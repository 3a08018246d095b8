// Package intent maps the latest user utterance to a conversational step.
package intent

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

type Label string

const (
	Greeting     Label = "greeting"
	Menu         Label = "menu"
	FullMenu     Label = "full_menu"
	Order        Label = "order"
	Confirmation Label = "confirmation"
	General      Label = "general"
)

var labels = []Label{Greeting, Menu, FullMenu, Order, Confirmation, General}

func (l Label) Valid() bool {
	for _, v := range labels {
		if v == l {
			return true
		}
	}
	return false
}

func (l Label) String() string {
	return string(l)
}

// Keyword sets are stored in normalized form (lowercase, no accents).
var (
	specificMenuKeywords = []string{
		"precio de", "precios de", "precio del", "precio", "cuesta la", "cuanto cuesta", "cuanto vale",
		"cuesta", "ingredientes de", "ingredientes", "lleva la", "pizza de", "tamano de", "tamanos de",
		"tamano", "tamanos",
	}
	fullMenuKeywords = []string{
		"menu completo", "el menu", "ver el menu", "muestrame el menu", "enviame el menu",
		"quiero ver el menu", "menu", "carta", "que tienen", "que hay", "que venden", "opciones",
		"productos", "comida", "pizzas tienen", "pizzas hay",
	}
	orderKeywords = []string{
		"pedido", "orden", "comprar", "quiero una", "me gustaria una", "voy a pedir", "hacer pedido",
		"ordenar", "pedir una",
	}
	// Confirmation words are short, so they only match whole words.
	confirmationKeywords = []string{
		"confirmar", "confirmo", "listo", "perfecto", "si", "ok", "esta bien", "dale", "de una",
	}
)

// Classify returns the step for the latest human message. Precedence, first
// match wins: empty -> greeting, specific menu query -> menu, order -> order,
// catalog request -> full_menu, confirmation -> confirmation, else general.
// Order outranks the catalog set so "quiero ordenar del menú una pizza" is an
// order, and a specific query outranks it so "precio del menú completo" is menu.
func Classify(text string) Label {
	normalized := Normalize(text)
	if normalized == "" {
		return Greeting
	}

	padded := " " + normalized + " "
	switch {
	case containsPrefix(padded, specificMenuKeywords):
		return Menu
	case containsPrefix(padded, orderKeywords):
		return Order
	case containsWord(padded, fullMenuKeywords):
		return FullMenu
	case containsWord(padded, confirmationKeywords):
		return Confirmation
	default:
		return General
	}
}

var foldAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases, strips accents and turns punctuation into single spaces.
func Normalize(text string) string {
	folded, _, err := transform.String(foldAccents, strings.ToLower(text))
	if err != nil {
		folded = strings.ToLower(text)
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		b.WriteByte(' ')
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// containsPrefix matches keywords that start at a word boundary, so "pedido"
// also matches "pedidos" but "orden" does not match "desorden".
func containsPrefix(padded string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(padded, " "+kw) {
			return true
		}
	}
	return false
}

func containsWord(padded string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(padded, " "+kw+" ") {
			return true
		}
	}
	return false
}
