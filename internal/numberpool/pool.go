package numberpool

import (
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// Number is one caller-ID entry allocated at the telephony provider.
type Number struct {
	ID           string    `json:"id"`
	Number       string    `json:"number"`
	Country      string    `json:"country"`
	Category     string    `json:"category"` // fixed, mobile, voip
	Capabilities []string  `json:"capabilities"`
	Active       bool      `json:"active"`
	Allocated    time.Time `json:"allocated"`
	Expires      time.Time `json:"expires"`
}

// ErrNoNumbersAvailable means the pool is empty. That is a fatal
// misconfiguration (no numbers allocated at the provider), not a
// transient condition; callers must not retry.
var ErrNoNumbersAvailable = errors.New("numberpool: no numbers available")

// Pool holds the caller-ID numbers fetched from the provider. It is
// read-mostly: Replace swaps the whole slice on (re-)sync, Choose only
// reads.
type Pool struct {
	mu      sync.RWMutex
	numbers []Number
	rand    *rand.Rand
	randMu  sync.Mutex
}

func New() *Pool {
	return &Pool{rand: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Replace swaps the pool contents. Inactive numbers are dropped here so
// Choose never has to filter them.
func (p *Pool) Replace(numbers []Number) {
	active := make([]Number, 0, len(numbers))
	for _, n := range numbers {
		if n.Active {
			active = append(active, n)
		}
	}
	p.mu.Lock()
	p.numbers = active
	p.mu.Unlock()
}

func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.numbers)
}

// Choose returns a caller-ID number for the outbound leg to the user.
// Preference order: a number from the user's country (inferred from the
// calling code), then one matching the user's language, then any number
// from the whole pool, uniformly at random.
func (p *Pool) Choose(callingCode, language string) (Number, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.numbers) == 0 {
		return Number{}, ErrNoNumbersAvailable
	}

	if country := CountryForCallingCode(callingCode); country != "" {
		if n, ok := p.pickMatching(country); ok {
			return n, nil
		}
	}
	if n, ok := p.pickMatching(language); ok {
		return n, nil
	}
	return p.numbers[p.intn(len(p.numbers))], nil
}

func (p *Pool) pickMatching(country string) (Number, bool) {
	if country == "" {
		return Number{}, false
	}
	var matches []Number
	for _, n := range p.numbers {
		if strings.EqualFold(n.Country, country) {
			matches = append(matches, n)
		}
	}
	if len(matches) == 0 {
		return Number{}, false
	}
	return matches[p.intn(len(matches))], true
}

func (p *Pool) intn(n int) int {
	p.randMu.Lock()
	defer p.randMu.Unlock()
	return p.rand.Intn(n)
}

// callingCodes maps international dialing prefixes to ISO2 country
// codes, for the countries the provider allocates numbers in.
var callingCodes = map[string]string{
	"+30":  "gr",
	"+31":  "nl",
	"+32":  "be",
	"+33":  "fr",
	"+34":  "es",
	"+351": "pt",
	"+353": "ie",
	"+358": "fi",
	"+36":  "hu",
	"+39":  "it",
	"+40":  "ro",
	"+420": "cz",
	"+421": "sk",
	"+43":  "at",
	"+44":  "gb",
	"+45":  "dk",
	"+46":  "se",
	"+47":  "no",
	"+48":  "pl",
	"+49":  "de",
}

// CountryForCallingCode resolves a dialing prefix (or a full E.164
// number) to an ISO2 country code. Longer prefixes win.
func CountryForCallingCode(s string) string {
	if !strings.HasPrefix(s, "+") {
		return ""
	}
	// Prefix lengths 4 ("+421") down to 2 ("+7").
	for l := 4; l >= 2; l-- {
		if len(s) < l {
			continue
		}
		if c, ok := callingCodes[s[:l]]; ok {
			return c
		}
	}
	return ""
}
