// Package astro derives zodiac signs from birth dates and produces the daily
// fortune shown on the home screen.
package astro

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"
)

type Sign string

const (
	Aries       Sign = "aries"
	Taurus      Sign = "taurus"
	Gemini      Sign = "gemini"
	Cancer      Sign = "cancer"
	Leo         Sign = "leo"
	Virgo       Sign = "virgo"
	Libra       Sign = "libra"
	Scorpio     Sign = "scorpio"
	Sagittarius Sign = "sagittarius"
	Capricorn   Sign = "capricorn"
	Aquarius    Sign = "aquarius"
	Pisces      Sign = "pisces"
)

type Element string

const (
	Fire  Element = "fire"
	Earth Element = "earth"
	Air   Element = "air"
	Water Element = "water"
)

// cusps[m] is the last day of month m that still belongs to sign; later days
// belong to the next month's entry.
var cusps = [12]struct {
	lastDay int
	sign    Sign
}{
	{19, Capricorn},
	{18, Aquarius},
	{20, Pisces},
	{19, Aries},
	{20, Taurus},
	{20, Gemini},
	{22, Cancer},
	{22, Leo},
	{22, Virgo},
	{22, Libra},
	{21, Scorpio},
	{21, Sagittarius},
}

var elements = map[Sign]Element{
	Aries: Fire, Leo: Fire, Sagittarius: Fire,
	Taurus: Earth, Virgo: Earth, Capricorn: Earth,
	Gemini: Air, Libra: Air, Aquarius: Air,
	Cancer: Water, Scorpio: Water, Pisces: Water,
}

// SignFor returns the tropical sign of a calendar day.
func SignFor(month time.Month, day int) Sign {
	i := int(month) - 1
	if day <= cusps[i].lastDay {
		return cusps[i].sign
	}
	return cusps[(i+1)%12].sign
}

// ZodiacSign parses a YYYY-MM-DD birth date and returns its sign.
func ZodiacSign(birthDate string) (Sign, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(birthDate))
	if err != nil {
		return "", fmt.Errorf("invalid birth date %q: %w", birthDate, err)
	}
	return SignFor(t.Month(), t.Day()), nil
}

func ParseSign(s string) (Sign, bool) {
	sign := Sign(strings.ToLower(strings.TrimSpace(s)))
	_, ok := elements[sign]
	return sign, ok
}

func (s Sign) Element() Element {
	return elements[s]
}

type Fortune struct {
	Sign        Sign    `json:"sign"`
	Element     Element `json:"element"`
	Date        string  `json:"date"`
	Message     string  `json:"message"`
	LuckyColor  string  `json:"lucky_color"`
	LuckyNumber int     `json:"lucky_number"`
}

var messages = map[Element][]string{
	Fire: {
		"Your spark is contagious today. Start the thing you keep postponing.",
		"A bold message sent today lands better than you expect.",
		"Channel restless energy into movement; a walk clears the way.",
		"Someone is waiting for you to take the lead. Go first.",
	},
	Earth: {
		"Small steady steps pay off today. Finish one task completely.",
		"Take care of your body first and the rest will follow.",
		"A practical choice today saves you stress next week.",
		"Someone appreciates your reliability more than they say.",
	},
	Air: {
		"A conversation today opens a door. Ask the question.",
		"Write down the idea that keeps returning; it matters.",
		"Curiosity is your compass today. Follow the detour.",
		"Share a thought you have been keeping to yourself.",
	},
	Water: {
		"Trust the quiet feeling you have about a decision.",
		"Make space for rest; your intuition sharpens when calm.",
		"A kind word you give today comes back to you.",
		"Old memories bring a useful lesson. Let them surface.",
	},
}

var colors = []string{
	"crimson", "amber", "gold", "emerald", "teal", "sky blue",
	"indigo", "violet", "rose", "silver", "ivory", "charcoal",
}

// DailyFortune is deterministic for a (sign, calendar day) pair.
func DailyFortune(sign Sign, date time.Time) Fortune {
	day := date.Format(time.DateOnly)
	el := sign.Element()

	h := fnv.New64a()
	h.Write([]byte(string(sign) + "|" + day))
	seed := h.Sum64()

	pool := messages[el]
	if len(pool) == 0 {
		pool = messages[Air]
	}
	return Fortune{
		Sign:        sign,
		Element:     el,
		Date:        day,
		Message:     pool[seed%uint64(len(pool))],
		LuckyColor:  colors[(seed>>16)%uint64(len(colors))],
		LuckyNumber: int((seed>>32)%99) + 1,
	}
}
