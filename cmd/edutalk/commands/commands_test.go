package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/haivivi/edutalk/cmd/edutalk/internal/config"
	"github.com/haivivi/edutalk/pkg/kv"
	"github.com/haivivi/edutalk/pkg/ollama"
	"github.com/haivivi/edutalk/pkg/turn"
)

// setupTestEnv points EDUTALK_CONFIG at a fresh file holding data and
// returns its path. An empty data leaves the file absent.
func setupTestEnv(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if data != "" {
		if err := os.WriteFile(path, []byte(data), 0644); err != nil {
			t.Fatal(err)
		}
	}
	t.Setenv(config.EnvPath, path)
	return path
}

func runCmd(t *testing.T, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	rOut, wOut, _ := os.Pipe()
	rErr, wErr, _ := os.Pipe()
	os.Stdout = wOut
	os.Stderr = wErr

	verbose = false
	configPath = ""
	globalConfig = nil

	// Drain concurrently so large output cannot block the command.
	var outBuf, errBuf bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); outBuf.ReadFrom(rOut) }()
	go func() { defer wg.Done(); errBuf.ReadFrom(rErr) }()

	rootCmd.SetArgs(args)
	err := rootCmd.Execute()

	wOut.Close()
	wErr.Close()
	wg.Wait()
	os.Stdout = oldStdout
	os.Stderr = oldStderr
	setupLogging(os.Stderr)

	stdout = outBuf.String()
	stderr = errBuf.String()
	if err != nil {
		exitCode = 1
		stderr += err.Error()
	}

	resetFlags(rootCmd)
	return
}

func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		f.Changed = false
		f.Value.Set(f.DefValue)
	})
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// testConfig returns a config with speech off and storage in memory.
func testConfig(ollamaURL, embedURL string) string {
	retrieval := "  enabled: false\n"
	if embedURL != "" {
		retrieval = fmt.Sprintf("  enabled: true\n  base_url: %s\n", embedURL)
	}
	return fmt.Sprintf(`ollama:
  url: %s/api/generate
  probe_timeout: 1s
tts:
  enabled: false
retrieval:
%sstorage:
  in_memory: true
`, ollamaURL, retrieval)
}

func ndjson(tokens ...string) string {
	var b strings.Builder
	for _, tok := range tokens {
		q, _ := json.Marshal(tok)
		fmt.Fprintf(&b, `{"model":"m","response":%s,"done":false}`+"\n", q)
	}
	b.WriteString(`{"model":"m","response":"","done":true,"context":[1,2]}` + "\n")
	return b.String()
}

func TestVersion(t *testing.T) {
	setupTestEnv(t, "")

	stdout, _, code := runCmd(t, "version")
	if code != 0 {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(stdout, "edutalk") {
		t.Fatalf("expected 'edutalk', got: %s", stdout)
	}
}

func TestVersionJSON(t *testing.T) {
	setupTestEnv(t, "")

	stdout, _, code := runCmd(t, "version", "--format", "json")
	if code != 0 {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(stdout, `"version"`) {
		t.Fatalf("expected JSON, got: %s", stdout)
	}
}

func TestConfigInitShowPath(t *testing.T) {
	path := setupTestEnv(t, "")

	stdout, stderr, code := runCmd(t, "config", "path")
	if code != 0 || strings.TrimSpace(stdout) != path {
		t.Fatalf("config path = %q (exit %d, %s)", stdout, code, stderr)
	}

	_, stderr, code = runCmd(t, "config", "init")
	if code != 0 {
		t.Fatalf("config init: exit %d: %s", code, stderr)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	_, stderr, code = runCmd(t, "config", "init")
	if code == 0 || !strings.Contains(stderr, "already exists") {
		t.Fatalf("second init should fail, got exit %d: %s", code, stderr)
	}
	if _, _, code = runCmd(t, "config", "init", "--force"); code != 0 {
		t.Fatalf("init --force: exit %d", code)
	}

	stdout, stderr, code = runCmd(t, "config", "show")
	if code != 0 {
		t.Fatalf("config show: exit %d: %s", code, stderr)
	}
	for _, want := range []string{"deepseek-r1:1.5b", "sample_rate: 16000", "exit_message:"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("config show missing %q:\n%s", want, stdout)
		}
	}
}

func TestConfigShowMasksKeys(t *testing.T) {
	setupTestEnv(t, "whisper:\n  api_key: sk-secret-value-1234\n")

	stdout, stderr, code := runCmd(t, "config", "show")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if strings.Contains(stdout, "sk-secret-value-1234") || !strings.Contains(stdout, "sk-s") {
		t.Fatalf("api key not masked:\n%s", stdout)
	}
}

func TestConfigFlagOverridesEnv(t *testing.T) {
	setupTestEnv(t, "")
	other := filepath.Join(t.TempDir(), "other.yaml")

	stdout, _, code := runCmd(t, "--config", other, "config", "path")
	if code != 0 || strings.TrimSpace(stdout) != other {
		t.Fatalf("config path = %q, want %q", stdout, other)
	}
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	setupTestEnv(t, testConfig(srv.URL, ""))

	stdout, stderr, code := runCmd(t, "ping")
	if code != 0 {
		t.Fatalf("ping: exit %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, srv.URL+"/api/") {
		t.Fatalf("ping output = %q", stdout)
	}
}

func TestPingUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	setupTestEnv(t, testConfig(url, ""))

	_, stderr, code := runCmd(t, "ping")
	if code == 0 || !strings.Contains(stderr, "unreachable") {
		t.Fatalf("ping should fail, got exit %d: %s", code, stderr)
	}
}

func TestAsk(t *testing.T) {
	var prompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt string `json:"prompt"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		prompt = req.Prompt
		fmt.Fprint(w, ndjson("<think>", "hmm", "</think>", "Maths", " is", " on", " Monday.", " Bring", " a", " ruler!"))
	}))
	defer srv.Close()
	setupTestEnv(t, testConfig(srv.URL, ""))

	stdout, stderr, code := runCmd(t, "ask", "--no-speech", "When", "is", "maths?")
	if code != 0 {
		t.Fatalf("ask: exit %d: %s", code, stderr)
	}
	if stdout != "Maths is on Monday.\n Bring a ruler!\n" {
		t.Fatalf("ask output = %q", stdout)
	}
	if !strings.Contains(prompt, "- Question: When is maths?") || !strings.Contains(prompt, "No timetable data.") {
		t.Fatalf("prompt = %q", prompt)
	}
}

func TestAskServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()
	setupTestEnv(t, testConfig(srv.URL, ""))

	stdout, stderr, code := runCmd(t, "ask", "hello")
	if code == 0 {
		t.Fatalf("ask should fail, stdout = %q", stdout)
	}
	if !strings.Contains(stderr, config.Default().Messages.ErrorAPI) {
		t.Fatalf("stderr = %q", stderr)
	}
}

func embedServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		var data []string
		for i := range req.Input {
			data = append(data, fmt.Sprintf(`{"object":"embedding","index":%d,"embedding":[1,%d]}`, i, i))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"object":"list","model":"e","data":[%s],"usage":{"prompt_tokens":1,"total_tokens":1}}`,
			strings.Join(data, ","))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestIngest(t *testing.T) {
	embed := embedServer(t)
	setupTestEnv(t, testConfig("http://127.0.0.1:1", embed.URL+"/v1/"))

	dir := t.TempDir()
	doc := filepath.Join(dir, "timetable.txt")
	words := strings.Repeat("lesson ", 150)
	if err := os.WriteFile(doc, []byte(words), 0644); err != nil {
		t.Fatal(err)
	}

	empty := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(empty, nil, 0644); err != nil {
		t.Fatal(err)
	}

	stdout, stderr, code := runCmd(t, "ingest", "--list", empty, doc)
	if code != 0 {
		t.Fatalf("ingest: exit %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "empty.txt: no text, skipped") {
		t.Fatalf("empty file not skipped: %q", stdout)
	}
	if !strings.Contains(stdout, "timetable.txt: 2 chunks") {
		t.Fatalf("ingest output = %q", stdout)
	}
	if !strings.Contains(stdout, doc+": 2") {
		t.Fatalf("list output = %q", stdout)
	}
}

func TestIngestRejects(t *testing.T) {
	embed := embedServer(t)
	setupTestEnv(t, testConfig("http://127.0.0.1:1", embed.URL+"/v1/"))

	_, stderr, code := runCmd(t, "ingest", "schedule.png")
	if code == 0 || !strings.Contains(stderr, "not supported") {
		t.Fatalf("image accepted: exit %d: %s", code, stderr)
	}

	_, stderr, code = runCmd(t, "ingest")
	if code == 0 || !strings.Contains(stderr, "no files") {
		t.Fatalf("empty ingest accepted: exit %d: %s", code, stderr)
	}
}

func TestIngestRetrievalDisabled(t *testing.T) {
	setupTestEnv(t, testConfig("http://127.0.0.1:1", ""))

	_, stderr, code := runCmd(t, "ingest", "notes.txt")
	if code == 0 || !strings.Contains(stderr, "disabled") {
		t.Fatalf("exit %d: %s", code, stderr)
	}
}

func TestForget(t *testing.T) {
	dir := t.TempDir()
	setupTestEnv(t, fmt.Sprintf("storage:\n  dir: %s\nconversation:\n  session: lab\n", dir))

	ctx := context.Background()
	store, err := kv.NewBadger(kv.BadgerOptions{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	if err := turn.NewContextStore(store, "lab").Save(ctx, ollama.Context{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	store.Close()

	stdout, stderr, code := runCmd(t, "forget")
	if code != 0 {
		t.Fatalf("forget: exit %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, `"lab"`) {
		t.Fatalf("forget output = %q", stdout)
	}

	store, err = kv.NewBadger(kv.BadgerOptions{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if got, err := turn.NewContextStore(store, "lab").Load(ctx); err != nil || got != nil {
		t.Fatalf("context after forget = %v, %v", got, err)
	}
}

func TestStartupReportsSpeechError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	cfg := config.Default()
	cfg.Ollama.URL = srv.URL + "/api/generate"
	cfg.Storage.InMemory = true
	cfg.Retrieval.Enabled = false
	cfg.TTS.Enabled = false
	cfg.Audio.CaptureCommand = []string{"edutalk-no-such-recorder"}

	s, err := openSession(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	speechErr := s.checkSpeech("")
	if speechErr == nil {
		t.Fatal("missing capture command not reported")
	}
	var shown []string
	s.startup(context.Background(), func(m string) { shown = append(shown, m) }, speechErr)

	m := cfg.Messages
	want := []string{m.Welcome, m.ErrorModel, m.Loading, m.Ready}
	if strings.Join(shown, "|") != strings.Join(want, "|") {
		t.Fatalf("shown = %q, want %q", shown, want)
	}

	input := filepath.Join(t.TempDir(), "question.wav")
	if err := os.WriteFile(input, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if err := s.checkSpeech(input); err != nil {
		t.Fatalf("checkSpeech with input file: %v", err)
	}
}
