// Package persona holds the sixteen MBTI archetypes the companion can play
// and the system prompt each one speaks with.
package persona

import (
	"fmt"
	"sort"
	"strings"
)

type Family string

const (
	Analyst  Family = "Analyst"
	Diplomat Family = "Diplomat"
	Sentinel Family = "Sentinel"
	Explorer Family = "Explorer"
)

var names = map[string]string{
	"INTJ": "Architect",
	"INTP": "Logician",
	"ENTJ": "Commander",
	"ENTP": "Debater",
	"INFJ": "Advocate",
	"INFP": "Mediator",
	"ENFJ": "Protagonist",
	"ENFP": "Campaigner",
	"ISTJ": "Logistician",
	"ISFJ": "Defender",
	"ESTJ": "Executive",
	"ESFJ": "Consul",
	"ISTP": "Virtuoso",
	"ISFP": "Adventurer",
	"ESTP": "Entrepreneur",
	"ESFP": "Entertainer",
}

var familyPrompts = map[Family]string{
	Analyst: "You think in systems and love ideas. Be curious, precise and candid. " +
		"Challenge assumptions gently and offer a clear perspective when asked.",
	Diplomat: "You lead with empathy and meaning. Be warm, encouraging and imaginative. " +
		"Reflect the user's feelings back before offering ideas.",
	Sentinel: "You value reliability and care. Be steady, practical and supportive. " +
		"Help the user turn worries into small concrete steps.",
	Explorer: "You live in the moment and love new experiences. Be playful, spontaneous and upbeat. " +
		"Keep replies lively and suggest things to try.",
}

// Normalize upper-cases code and reports whether it is one of the sixteen types.
func Normalize(code string) (string, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	_, ok := names[code]
	return code, ok
}

func Valid(code string) bool {
	_, ok := Normalize(code)
	return ok
}

// FamilyOf groups a valid code into NT, NF, SJ or SP. Invalid codes yield "".
func FamilyOf(code string) Family {
	code, ok := Normalize(code)
	if !ok {
		return ""
	}
	if code[1] == 'N' {
		if code[2] == 'T' {
			return Analyst
		}
		return Diplomat
	}
	if code[3] == 'J' {
		return Sentinel
	}
	return Explorer
}

// Codes returns the sixteen types in alphabetical order.
func Codes() []string {
	out := make([]string, 0, len(names))
	for c := range names {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

type Persona struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Family Family `json:"family"`
	Prompt string `json:"-"`
}

// Catalog resolves personas, applying per-code prompt overrides from config.
type Catalog struct {
	overrides map[string]string
}

func NewCatalog(overrides map[string]string) *Catalog {
	o := make(map[string]string, len(overrides))
	for k, v := range overrides {
		if code, ok := Normalize(k); ok && strings.TrimSpace(v) != "" {
			o[code] = strings.TrimSpace(v)
		}
	}
	return &Catalog{overrides: o}
}

func (c *Catalog) Get(code string) (Persona, bool) {
	code, ok := Normalize(code)
	if !ok {
		return Persona{}, false
	}
	p := Persona{Code: code, Name: names[code], Family: FamilyOf(code)}
	if override, ok := c.overrides[code]; ok {
		p.Prompt = override
	} else {
		p.Prompt = fmt.Sprintf("You are TypeMate, an AI companion with the %s (%s) personality, one of the %ss. %s",
			p.Name, code, p.Family, familyPrompts[p.Family])
	}
	return p, true
}

func (c *Catalog) All() []Persona {
	out := make([]Persona, 0, len(names))
	for _, code := range Codes() {
		p, _ := c.Get(code)
		out = append(out, p)
	}
	return out
}
