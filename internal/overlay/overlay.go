package overlay

import (
	"os"
	"strings"
)

// Rule binds one environment variable to a notification channel field.
// Primary rules mark the channel as environment-controlled when set.
type Rule struct {
	EnvVar  string
	Channel string
	Field   string
	Primary bool
}

// Channels lists every notification channel in display order.
var Channels = []string{
	"feishu",
	"dingtalk",
	"wework",
	"telegram",
	"email",
	"ntfy",
	"bark",
	"slack",
	"serverchan",
}

var rules = []Rule{
	{EnvVar: "FEISHU_WEBHOOK_URL", Channel: "feishu", Field: "webhook_url", Primary: true},
	{EnvVar: "DINGTALK_WEBHOOK_URL", Channel: "dingtalk", Field: "webhook_url", Primary: true},
	{EnvVar: "WEWORK_WEBHOOK_URL", Channel: "wework", Field: "webhook_url", Primary: true},
	{EnvVar: "WEWORK_MSG_TYPE", Channel: "wework", Field: "msg_type"},
	{EnvVar: "TELEGRAM_BOT_TOKEN", Channel: "telegram", Field: "bot_token", Primary: true},
	{EnvVar: "TELEGRAM_CHAT_ID", Channel: "telegram", Field: "chat_id"},
	{EnvVar: "EMAIL_FROM", Channel: "email", Field: "from", Primary: true},
	{EnvVar: "EMAIL_PASSWORD", Channel: "email", Field: "password"},
	{EnvVar: "EMAIL_TO", Channel: "email", Field: "to"},
	{EnvVar: "EMAIL_SMTP_SERVER", Channel: "email", Field: "smtp_server"},
	{EnvVar: "EMAIL_SMTP_PORT", Channel: "email", Field: "smtp_port"},
	{EnvVar: "NTFY_SERVER_URL", Channel: "ntfy", Field: "server_url", Primary: true},
	{EnvVar: "NTFY_TOPIC", Channel: "ntfy", Field: "topic"},
	{EnvVar: "NTFY_TOKEN", Channel: "ntfy", Field: "token"},
	{EnvVar: "BARK_URL", Channel: "bark", Field: "url", Primary: true},
	{EnvVar: "SLACK_WEBHOOK_URL", Channel: "slack", Field: "webhook_url", Primary: true},
	{EnvVar: "SERVERCHAN_UID", Channel: "serverchan", Field: "uid", Primary: true},
	{EnvVar: "SERVERCHAN_SENDKEY", Channel: "serverchan", Field: "sendkey"},
}

// Rules returns a copy of the overlay table in declaration order.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// IsChannel reports whether name is a known notification channel.
func IsChannel(name string) bool {
	for _, ch := range Channels {
		if ch == name {
			return true
		}
	}
	return false
}

// Resolver reads overlay values from the process environment.
type Resolver struct {
	getenv func(string) string
}

// NewResolver builds a Resolver. A nil getenv falls back to os.Getenv.
func NewResolver(getenv func(string) string) *Resolver {
	if getenv == nil {
		getenv = os.Getenv
	}
	return &Resolver{getenv: getenv}
}

// Value returns the trimmed value of the rule's variable and whether it is set.
func (r *Resolver) Value(rule Rule) (string, bool) {
	v := strings.TrimSpace(r.getenv(rule.EnvVar))
	return v, v != ""
}

// Resolve maps every set, non-blank overlay variable to its trimmed value.
func (r *Resolver) Resolve() map[string]string {
	out := make(map[string]string)
	for _, rule := range rules {
		if v, ok := r.Value(rule); ok {
			out[rule.EnvVar] = v
		}
	}
	return out
}

// Active returns the rules whose variable is currently set, with values.
func (r *Resolver) Active() []Binding {
	var out []Binding
	for _, rule := range rules {
		if v, ok := r.Value(rule); ok {
			out = append(out, Binding{Rule: rule, Value: v})
		}
	}
	return out
}

// Controlled reports whether channel.field is currently set from the environment.
func (r *Resolver) Controlled(channel, field string) bool {
	for _, rule := range rules {
		if rule.Channel == channel && rule.Field == field {
			_, ok := r.Value(rule)
			return ok
		}
	}
	return false
}

// Status reports, per channel and field, whether the environment controls it.
// The result covers every rule regardless of configuration file contents.
func (r *Resolver) Status() map[string]map[string]bool {
	out := make(map[string]map[string]bool, len(Channels))
	for _, rule := range rules {
		fields, ok := out[rule.Channel]
		if !ok {
			fields = make(map[string]bool)
			out[rule.Channel] = fields
		}
		_, set := r.Value(rule)
		fields[rule.Field] = set
	}
	return out
}

// Binding is a rule paired with its resolved value.
type Binding struct {
	Rule
	Value string
}
