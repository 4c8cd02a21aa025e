package commands

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	KindNone        = ""
	KindHelp        = "help"
	KindPrice       = "price"
	KindChart       = "chart"
	KindGas         = "gas"
	KindToken       = "token"
	KindLeaderboard = "leaderboard"
	KindAsk         = "ask"
	KindAlert       = "alert"
	KindAlerts      = "alerts"
	KindDelAlert    = "delalert"
	KindRemind      = "remind"
	KindReminders   = "reminders"

	ChainEVM    = "evm"
	ChainSolana = "solana"

	DefaultChartDays = 7
	MaxChartDays     = 365
	MaxReminderDelay = 365 * 24 * time.Hour
)

// Command is a parsed chat message. Usage is set when the command was recognized but its
// arguments were not.
type Command struct {
	Kind    string
	Query   string
	Days    int
	Target  float64
	ID      int64
	Delay   time.Duration
	Text    string
	Address string
	Chain   string
	Usage   bool
}

var (
	commandRe  = regexp.MustCompile(`(?s)^/([A-Za-z_]+)(?:@\w+)?(?:\s+(.*))?$`)
	dollarRe   = regexp.MustCompile(`^\$([A-Za-z][A-Za-z0-9-]{0,19})$`)
	priceOfRe  = regexp.MustCompile(`(?i)^(?:what(?:'s| is) the )?price of ([a-z0-9][a-z0-9 -]{0,29}?)\s*\??$`)
	xPriceRe   = regexp.MustCompile(`(?i)^([a-z0-9][a-z0-9-]{0,19}) price\s*\??$`)
	evmRe      = regexp.MustCompile(`\b0x[0-9a-fA-F]{40}\b`)
	solanaRe   = regexp.MustCompile(`\b[1-9A-HJ-NP-Za-km-z]{32,44}\b`)
	daysRe     = regexp.MustCompile(`^(\d+)d(.*)$`)
	digitRe    = regexp.MustCompile(`[0-9]`)
	aliasKinds = map[string]string{
		"start":       KindHelp,
		"help":        KindHelp,
		"p":           KindPrice,
		"price":       KindPrice,
		"c":           KindChart,
		"chart":       KindChart,
		"gas":         KindGas,
		"leaderboard": KindLeaderboard,
		"ask":         KindAsk,
		"alert":       KindAlert,
		"alerts":      KindAlerts,
		"delalert":    KindDelAlert,
		"remind":      KindRemind,
		"reminders":   KindReminders,
	}
)

// Parse classifies a chat message. Messages the bot does not answer get KindNone.
func Parse(text string) Command {
	text = strings.TrimSpace(text)
	if text == "" {
		return Command{}
	}

	if m := commandRe.FindStringSubmatch(text); m != nil {
		kind, ok := aliasKinds[strings.ToLower(m[1])]
		if !ok {
			return Command{}
		}
		return parseArgs(kind, strings.TrimSpace(m[2]))
	}

	if m := dollarRe.FindStringSubmatch(text); m != nil {
		return Command{Kind: KindPrice, Query: strings.ToLower(m[1])}
	}
	if m := priceOfRe.FindStringSubmatch(text); m != nil {
		return Command{Kind: KindPrice, Query: strings.ToLower(strings.TrimSpace(m[1]))}
	}
	if m := xPriceRe.FindStringSubmatch(text); m != nil {
		return Command{Kind: KindPrice, Query: strings.ToLower(m[1])}
	}

	if addr := evmRe.FindString(text); addr != "" {
		return Command{Kind: KindToken, Address: addr, Chain: ChainEVM}
	}
	for _, candidate := range solanaRe.FindAllString(text, -1) {
		if digitRe.MatchString(candidate) {
			return Command{Kind: KindToken, Address: candidate, Chain: ChainSolana}
		}
	}
	return Command{}
}

func parseArgs(kind, args string) Command {
	c := Command{Kind: kind}
	fields := strings.Fields(args)

	switch kind {
	case KindPrice:
		c.Query = strings.ToLower(strings.TrimPrefix(args, "$"))
		c.Usage = c.Query == ""
	case KindChart:
		c.Days = DefaultChartDays
		if n := len(fields); n > 1 {
			days, err := strconv.Atoi(fields[n-1])
			if err != nil || days < 1 || days > MaxChartDays {
				c.Usage = true
				return c
			}
			c.Days = days
			fields = fields[:n-1]
		}
		c.Query = strings.ToLower(strings.TrimPrefix(strings.Join(fields, " "), "$"))
		c.Usage = c.Query == ""
	case KindAsk:
		c.Text = args
		c.Usage = args == ""
	case KindAlert:
		if len(fields) != 2 {
			c.Usage = true
			return c
		}
		target, ok := parseAmount(fields[1])
		c.Query = strings.ToLower(strings.TrimPrefix(fields[0], "$"))
		c.Target = target
		c.Usage = !ok
	case KindDelAlert:
		id, err := strconv.ParseInt(strings.TrimPrefix(args, "#"), 10, 64)
		c.ID = id
		c.Usage = err != nil || id <= 0
	case KindRemind:
		if len(fields) < 2 {
			c.Usage = true
			return c
		}
		delay, err := ParseDelay(fields[0])
		if err != nil {
			c.Usage = true
			return c
		}
		c.Delay = delay
		c.Text = strings.TrimSpace(strings.TrimPrefix(args, fields[0]))
	}
	return c
}

// parseAmount accepts prices like 70000, $70,000 or 0.5.
func parseAmount(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimPrefix(s, "$"), ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// ParseDelay parses Go durations extended with a leading day count, e.g. 2d, 1d12h, 90m.
func ParseDelay(s string) (time.Duration, error) {
	var d time.Duration
	if m := daysRe.FindStringSubmatch(s); m != nil {
		days, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, err
		}
		d = time.Duration(days) * 24 * time.Hour
		s = m[2]
	}
	if s != "" {
		rest, err := time.ParseDuration(s)
		if err != nil {
			return 0, err
		}
		d += rest
	}
	if d <= 0 || d > MaxReminderDelay {
		return 0, errInvalidDelay
	}
	return d, nil
}
