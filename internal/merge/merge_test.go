package merge

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/trendradar-webui/internal/document"
	"github.com/eugenenazirov/trendradar-webui/internal/overlay"
	"github.com/eugenenazirov/trendradar-webui/internal/storage"
)

const storedConfig = `# TrendRadar
app:
  version_check_url: https://raw.githubusercontent.com/sansan0/TrendRadar/refs/heads/master/version
  show_version_update: true
platforms:
  - id: toutiao
    name: 今日头条
  - id: baidu
    name: 百度热搜
notification:
  enable_notification: true
  message_batch_size: 4000
  push_window:
    enabled: false
    time_range:
      start: "20:00"
      end: "22:00"
  channels:
    feishu:
      webhook_url: https://file.example/feishu
    telegram:
      bot_token: file-token
      chat_id: "1001"
report:
  mode: daily
  rank_threshold: 5
`

type fixture struct {
	path    string
	env     map[string]string
	service *Service
}

func newFixture(t *testing.T, content string) *fixture {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config", "config.yaml")
	if content != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}

	f := &fixture{path: path, env: map[string]string{}}
	resolver := overlay.NewResolver(func(key string) string { return f.env[key] })
	f.service = NewService(storage.NewYAMLFileStore(path), resolver, zaptest.NewLogger(t))
	return f
}

func (f *fixture) read(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(f.path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	return string(data)
}

func TestLoadEffectiveMissingFile(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	doc := f.service.LoadEffective()

	channels := doc.Lookup("notification", "channels")
	if got := strings.Join(document.MappingKeys(channels), ","); got != strings.Join(overlay.Channels, ",") {
		t.Fatalf("expected all channels to be present, got %s", got)
	}
	for _, name := range overlay.Channels {
		if !document.IsEmptyMapping(document.MappingValue(channels, name)) {
			t.Fatalf("expected %s to be an empty mapping", name)
		}
	}
}

func TestLoadEffectiveMalformedFile(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "notification: [oops\n")
	doc := f.service.LoadEffective()

	if doc.Lookup("notification", "channels", "feishu") == nil {
		t.Fatalf("expected empty scaffolding for malformed file")
	}
}

func TestLoadEffectiveKeepsFileValuesWithoutEnv(t *testing.T) {
	t.Parallel()

	f := newFixture(t, storedConfig)
	doc := f.service.LoadEffective()

	if v := doc.Lookup("notification", "channels", "feishu", "webhook_url"); v == nil || v.Value != "https://file.example/feishu" {
		t.Fatalf("expected file value for feishu webhook")
	}
	if doc.Lookup("notification", "channels", "feishu", FromEnvKey) != nil {
		t.Fatalf("marker must not be set without environment overlay")
	}
	if got := strings.Join(document.MappingKeys(doc.Root()), ","); got != "app,platforms,notification,report" {
		t.Fatalf("unexpected top-level order %s", got)
	}
}

func TestLoadEffectiveAppliesEveryRule(t *testing.T) {
	t.Parallel()

	for _, rule := range overlay.Rules() {
		rule := rule
		t.Run(rule.EnvVar, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, storedConfig)
			f.env[rule.EnvVar] = "  env-" + rule.Field + "  "

			doc := f.service.LoadEffective()
			v := doc.Lookup("notification", "channels", rule.Channel, rule.Field)
			if v == nil || v.Value != "env-"+rule.Field {
				t.Fatalf("expected overlay value for %s.%s, got %#v", rule.Channel, rule.Field, v)
			}

			marker := doc.Lookup("notification", "channels", rule.Channel, FromEnvKey)
			if rule.Primary && (marker == nil || marker.Value != "true") {
				t.Fatalf("expected %s marker for primary field %s", FromEnvKey, rule.Field)
			}
			if !rule.Primary && marker != nil {
				t.Fatalf("non-primary field %s must not set the marker", rule.Field)
			}
		})
	}
}

func TestLoadEffectiveDoesNotTouchFile(t *testing.T) {
	t.Parallel()

	f := newFixture(t, storedConfig)
	f.env["FEISHU_WEBHOOK_URL"] = "https://env.example/feishu"

	_ = f.service.LoadEffective()
	if got := f.read(t); got != storedConfig {
		t.Fatalf("load must never modify the file, got:\n%s", got)
	}
}

func TestSaveOfLoadedConfigMatchesSaveOfStoredConfig(t *testing.T) {
	t.Parallel()

	for name, content := range map[string]string{
		"full":            storedConfig,
		"no notification": "report:\n  mode: current\nrss:\n  enabled: true\n",
		"empty channels":  "notification:\n  channels: {}\n",
		"scalar channels": "notification:\n  channels:\n    feishu:\n    bark: \"\"\nreport:\n  mode: daily\n",
		"explicit empty":  "notification:\n  channels:\n    feishu: {}\n    dingtalk:\n      webhook_url: https://file.example/ding\n",
	} {
		content := content
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, content)
			parsed, err := document.Parse([]byte(content))
			if err != nil {
				t.Fatalf("Parse returned error: %v", err)
			}
			if err := f.service.Save(parsed); err != nil {
				t.Fatalf("Save returned error: %v", err)
			}
			fromParsed := f.read(t)

			if err := f.service.Save(f.service.LoadEffective()); err != nil {
				t.Fatalf("Save returned error: %v", err)
			}
			if got := f.read(t); got != fromParsed {
				t.Fatalf("round trip mismatch\nwant:\n%s\ngot:\n%s", fromParsed, got)
			}
		})
	}
}

func TestSaveIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, storedConfig)
	doc := f.service.LoadEffective()

	if err := f.service.Save(doc); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	first := f.read(t)
	if err := f.service.Save(doc); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if second := f.read(t); second != first {
		t.Fatalf("expected identical content\nfirst:\n%s\nsecond:\n%s", first, second)
	}
}

func TestSaveStripsEnvironmentControlledFields(t *testing.T) {
	t.Parallel()

	f := newFixture(t, storedConfig)
	f.env["TELEGRAM_BOT_TOKEN"] = "env-token"
	f.env["TELEGRAM_CHAT_ID"] = "env-chat"
	f.env["EMAIL_PASSWORD"] = "secret"

	doc := f.service.LoadEffective()
	email := doc.Lookup("notification", "channels", "email")
	document.SetMappingValue(email, "smtp_server", document.StringNode("smtp.example.com"))

	if err := f.service.Save(doc); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	saved := f.read(t)
	for _, forbidden := range []string{"env-token", "env-chat", "secret", "file-token", FromEnvKey} {
		if strings.Contains(saved, forbidden) {
			t.Fatalf("saved file must not contain %q:\n%s", forbidden, saved)
		}
	}
	if !strings.Contains(saved, "smtp_server: smtp.example.com") {
		t.Fatalf("fields without an environment variable must be kept:\n%s", saved)
	}
	if !strings.Contains(saved, "webhook_url: https://file.example/feishu") {
		t.Fatalf("unrelated channels must be kept:\n%s", saved)
	}
}

func TestSaveStripsWithoutMarker(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	f.env["BARK_URL"] = "https://api.day.app/env"

	doc, err := document.ParseJSON([]byte(`{"notification":{"channels":{"bark":{"url":"https://api.day.app/client","sound":"bell"}}}}`))
	if err != nil {
		t.Fatalf("ParseJSON returned error: %v", err)
	}
	if err := f.service.Save(doc); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	want := "notification:\n  channels:\n    bark:\n      sound: bell\n"
	if got := f.read(t); got != want {
		t.Fatalf("expected env-controlled url to be dropped\nwant:\n%s\ngot:\n%s", want, got)
	}
}

func TestSaveDoesNotMutateCandidate(t *testing.T) {
	t.Parallel()

	f := newFixture(t, storedConfig)
	f.env["FEISHU_WEBHOOK_URL"] = "https://env.example/feishu"

	doc := f.service.LoadEffective()
	if err := f.service.Save(doc); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	if doc.Lookup("notification", "channels", "feishu", FromEnvKey) == nil {
		t.Fatalf("Save must not remove the marker from the caller's document")
	}
	if doc.Lookup("notification", "channels", "bark") == nil {
		t.Fatalf("Save must not prune the caller's document")
	}
}

func TestFeishuScenario(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "report:\n  mode: daily\n")
	f.env["FEISHU_WEBHOOK_URL"] = "https://x"

	notification := f.service.Section("notification")
	feishu := document.MappingValue(document.MappingValue(notification, "channels"), "feishu")
	if v := document.MappingValue(feishu, "webhook_url"); v == nil || v.Value != "https://x" {
		t.Fatalf("expected overlay webhook url")
	}
	if v := document.MappingValue(feishu, FromEnvKey); v == nil || v.Value != "true" {
		t.Fatalf("expected %s marker", FromEnvKey)
	}

	body, err := document.ParseJSONValue([]byte(`{"channels":{"feishu":{"webhook_url":"https://other","_from_env":true}}}`))
	if err != nil {
		t.Fatalf("ParseJSONValue returned error: %v", err)
	}
	if err := f.service.UpdateSection(body, "notification"); err != nil {
		t.Fatalf("UpdateSection returned error: %v", err)
	}

	saved := f.read(t)
	if strings.Contains(saved, "webhook_url") || strings.Contains(saved, FromEnvKey) {
		t.Fatalf("feishu webhook must not be persisted:\n%s", saved)
	}
	if !strings.HasPrefix(saved, "report:\n  mode: daily\n") {
		t.Fatalf("other sections must be kept in place:\n%s", saved)
	}
}

func TestUpdateSectionKeepsCommentsAndOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t, storedConfig)
	body, err := document.ParseJSONValue([]byte(`{"mode":"incremental","rank_threshold":10}`))
	if err != nil {
		t.Fatalf("ParseJSONValue returned error: %v", err)
	}
	if err := f.service.UpdateSection(body, "report"); err != nil {
		t.Fatalf("UpdateSection returned error: %v", err)
	}

	saved := f.read(t)
	if !strings.HasPrefix(saved, "# TrendRadar\n") {
		t.Fatalf("expected leading comment to survive:\n%s", saved)
	}
	if !strings.HasSuffix(saved, "report:\n  mode: incremental\n  rank_threshold: 10\n") {
		t.Fatalf("expected report section replaced in place:\n%s", saved)
	}
	if !strings.Contains(saved, "bot_token: file-token") {
		t.Fatalf("expected untouched channel values to remain:\n%s", saved)
	}
}

func TestUpdateSectionKeepsStoredChannelEntries(t *testing.T) {
	t.Parallel()

	const content = "app:\n  name: old\nnotification:\n  channels:\n    feishu: {}\n    bark: \"\"\n"
	f := newFixture(t, content)
	body, err := document.ParseJSONValue([]byte(`"new"`))
	if err != nil {
		t.Fatalf("ParseJSONValue returned error: %v", err)
	}
	if err := f.service.UpdateSection(body, "app", "name"); err != nil {
		t.Fatalf("UpdateSection returned error: %v", err)
	}

	want := "app:\n  name: new\nnotification:\n  channels:\n    feishu: {}\n    bark: \"\"\n"
	if got := f.read(t); got != want {
		t.Fatalf("unexpected content\nwant:\n%s\ngot:\n%s", want, got)
	}
}

func TestOverlayOnScalarChannelRestoresScalarOnSave(t *testing.T) {
	t.Parallel()

	const content = "notification:\n  channels:\n    bark: \"\"\n"
	f := newFixture(t, content)
	f.env["BARK_URL"] = "https://api.day.app/env"

	doc := f.service.LoadEffective()
	if v := doc.Lookup("notification", "channels", "bark", "url"); v == nil || v.Value != "https://api.day.app/env" {
		t.Fatalf("expected overlay url on bark")
	}
	if err := f.service.Save(doc); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if got := f.read(t); got != content {
		t.Fatalf("expected stored scalar back\nwant:\n%s\ngot:\n%s", content, got)
	}
}

func TestOverlayDoesNotWriteThroughAnchors(t *testing.T) {
	t.Parallel()

	const content = "defaults: &d\n  msg_type: text\nnotification:\n  channels:\n    wework: *d\n"
	f := newFixture(t, content)
	f.env["WEWORK_WEBHOOK_URL"] = "https://secret.example/wework"

	doc := f.service.LoadEffective()
	defaults := doc.Lookup("defaults")
	if document.MappingValue(defaults, "webhook_url") != nil || document.MappingValue(defaults, FromEnvKey) != nil {
		t.Fatalf("overlay leaked into the anchored mapping: %v", document.MappingKeys(defaults))
	}
	wework := doc.Lookup("notification", "channels", "wework")
	if v := document.MappingValue(wework, "webhook_url"); v == nil || v.Value != "https://secret.example/wework" {
		t.Fatalf("expected overlay on wework")
	}
	if v := document.MappingValue(wework, "msg_type"); v == nil || v.Value != "text" {
		t.Fatalf("expected anchored values on wework")
	}

	// A client posting the served JSON back sees the anchor expanded.
	served, err := doc.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON returned error: %v", err)
	}
	posted, err := document.ParseJSON(served)
	if err != nil {
		t.Fatalf("ParseJSON returned error: %v", err)
	}
	if err := f.service.Save(posted); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	saved := f.read(t)
	if strings.Contains(saved, "secret.example") || strings.Contains(saved, FromEnvKey) {
		t.Fatalf("environment values leaked into the file:\n%s", saved)
	}
	if !strings.HasPrefix(saved, "defaults:\n  msg_type: text\n") {
		t.Fatalf("expected defaults untouched:\n%s", saved)
	}
}

func TestUpdateSectionCreatesNestedPath(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	body, err := document.ParseJSONValue([]byte(`{"enabled":true,"time_range":{"start":"8am","end":"9am"}}`))
	if err != nil {
		t.Fatalf("ParseJSONValue returned error: %v", err)
	}
	if err := f.service.UpdateSection(body, "notification", "push_window"); err != nil {
		t.Fatalf("UpdateSection returned error: %v", err)
	}

	want := "notification:\n  push_window:\n    enabled: true\n    time_range:\n      start: 8am\n      end: 9am\n"
	if got := f.read(t); got != want {
		t.Fatalf("unexpected content\nwant:\n%s\ngot:\n%s", want, got)
	}
}

func TestConcurrentSectionUpdatesAreNotLost(t *testing.T) {
	f := newFixture(t, "")
	var wg sync.WaitGroup

	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			body, err := document.ParseJSONValue([]byte(fmt.Sprintf(`{"value":%d}`, n)))
			if err != nil {
				t.Errorf("ParseJSONValue failed: %v", err)
				return
			}
			if err := f.service.UpdateSection(body, fmt.Sprintf("section_%d", n)); err != nil {
				t.Errorf("UpdateSection failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	doc := f.service.LoadPersisted()
	for i := 0; i < 12; i++ {
		if doc.Lookup(fmt.Sprintf("section_%d", i), "value") == nil {
			t.Fatalf("section_%d was lost", i)
		}
	}
}

type failingStore struct{}

func (failingStore) Read() (*document.Document, error) { return nil, errors.New("disk unavailable") }
func (failingStore) Write(*document.Document) error    { return errors.New("disk full") }

func TestSaveReportsWriteFailure(t *testing.T) {
	t.Parallel()

	svc := NewService(failingStore{}, overlay.NewResolver(func(string) string { return "" }), zaptest.NewLogger(t))

	if err := svc.Save(document.New()); err == nil {
		t.Fatalf("expected Save to report failure")
	}
	if err := svc.UpdateSection(document.MappingNode(), "rss"); err == nil {
		t.Fatalf("expected UpdateSection to report failure")
	}
	if err := svc.Save(nil); err == nil {
		t.Fatalf("expected error for nil document")
	}
	if doc := svc.LoadEffective(); doc.Lookup("notification", "channels") == nil {
		t.Fatalf("expected degraded load to return scaffolding")
	}
}

func TestEnvStatusIgnoresFileContents(t *testing.T) {
	t.Parallel()

	f := newFixture(t, storedConfig)
	f.env["NTFY_TOKEN"] = "tk"

	status := f.service.EnvStatus()
	if status["feishu"]["webhook_url"] {
		t.Fatalf("file-stored feishu webhook must not count as environment-controlled")
	}
	if !status["ntfy"]["token"] {
		t.Fatalf("expected ntfy.token to be environment-controlled")
	}
}
